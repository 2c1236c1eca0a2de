package store

import (
    "context"
    "sort"
    "sync"

    "shipnorth/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu     sync.Mutex
    drafts map[string]model.RouteData // loadId -> draft
}

func NewMemory() *Memory {
    return &Memory{drafts: map[string]model.RouteData{}}
}

func (m *Memory) SaveDraft(ctx context.Context, route model.RouteData) error {
    if err := checkDraft(route); err != nil { return err }
    m.mu.Lock(); defer m.mu.Unlock()
    m.drafts[route.LoadID] = route.Clone()
    return nil
}

func (m *Memory) GetDraft(ctx context.Context, loadID string) (model.RouteData, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.drafts[loadID]
    if !ok { return model.RouteData{}, ErrNotFound }
    return r.Clone(), nil
}

// ListDrafts pages by load id; the cursor is the last load id returned.
func (m *Memory) ListDrafts(ctx context.Context, cursor string, limit int) ([]model.RouteData, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 || limit > 500 { limit = defaultLimit }
    ids := make([]string, 0, len(m.drafts))
    for id := range m.drafts {
        if cursor == "" || id > cursor { ids = append(ids, id) }
    }
    sort.Strings(ids)
    out := []model.RouteData{}
    for _, id := range ids {
        if len(out) == limit { break }
        out = append(out, m.drafts[id].Clone())
    }
    next := ""
    if len(out) == limit && len(ids) > limit { next = out[len(out)-1].LoadID }
    return out, next, nil
}

func (m *Memory) DeleteDraft(ctx context.Context, loadID string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.drafts[loadID]; !ok { return ErrNotFound }
    delete(m.drafts, loadID)
    return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
