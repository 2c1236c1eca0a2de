package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shipnorth/internal/events"
	"shipnorth/internal/metrics"
	"shipnorth/internal/model"
	"shipnorth/internal/store"
	"shipnorth/internal/tracking"
)

type Config struct {
	Backend Backend
	Store   store.Store
	Broker  events.Broker
	// Options are the optimize flags a new session starts with.
	Options model.OptimizeOptions
	Now     func() time.Time
}

type deps struct {
	backend Backend
	store   store.Store
	broker  events.Broker
	cache   *tracking.LocationCache
	options model.OptimizeOptions
	now     func() time.Time
}

// Manager owns the open sessions, at most one per load.
type Manager struct {
	deps deps

	mu       sync.Mutex
	sessions map[string]*Session
	byLoad   map[string]string // loadId -> session id
}

func NewManager(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Options.MaxDrivingHours <= 0 {
		cfg.Options = model.DefaultOptimizeOptions()
	}
	return &Manager{
		deps: deps{
			backend: cfg.Backend,
			store:   cfg.Store,
			broker:  cfg.Broker,
			cache:   tracking.NewLocationCache(),
			options: cfg.Options,
			now:     cfg.Now,
		},
		sessions: map[string]*Session{},
		byLoad:   map[string]string{},
	}
}

// Open returns the session editing loadID, creating one when none is open.
// A new session starts from the stored draft when there is one. created
// reports whether a new session was made.
func (m *Manager) Open(ctx context.Context, loadID string) (s *Session, created bool, err error) {
	loadID = strings.TrimSpace(loadID)
	if loadID == "" {
		return nil, false, errors.New("load id must not be empty")
	}
	m.mu.Lock()
	if id, ok := m.byLoad[loadID]; ok {
		s := m.sessions[id]
		m.mu.Unlock()
		return s, false, nil
	}
	m.mu.Unlock()

	route := model.RouteData{LoadID: loadID, Status: model.RouteDraft, Stops: []model.RouteStop{}, LastModified: m.deps.now().UTC()}
	restored := false
	if m.deps.store != nil {
		draft, err := m.deps.store.GetDraft(ctx, loadID)
		switch {
		case err == nil:
			route, restored = draft, true
		case !errors.Is(err, store.ErrNotFound):
			return nil, false, fmt.Errorf("load draft for %s: %w", loadID, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byLoad[loadID]; ok {
		return m.sessions[id], false, nil
	}
	s = newSession(uuid.NewString(), route, m.deps)
	m.sessions[s.id] = s
	m.byLoad[loadID] = s.id
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	log.Printf("[SESSION] opened id=%s load=%s restored=%t stops=%d", s.id, loadID, restored, len(route.Stops))
	return s, true, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns views of all open sessions ordered by load id.
func (m *Manager) List() []model.SessionView {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	out := make([]model.SessionView, 0, len(all))
	for _, s := range all {
		out = append(out, s.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route.LoadID < out[j].Route.LoadID })
	return out
}

// Close tears the session down and forgets it.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		delete(m.byLoad, s.LoadID())
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Close(ctx)
}

// Shutdown closes every open session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	var errs []error
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Locations exposes the shared latest-fix cache.
func (m *Manager) Locations() *tracking.LocationCache { return m.deps.cache }
