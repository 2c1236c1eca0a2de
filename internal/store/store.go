package store

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "shipnorth/internal/model"
)

// Store persists route drafts between editing sessions. The logistics backend
// stays the source of truth for saved routes; a draft is the editor's last
// local snapshot keyed by load id.
type Store interface {
    SaveDraft(ctx context.Context, route model.RouteData) error
    GetDraft(ctx context.Context, loadID string) (model.RouteData, error)
    ListDrafts(ctx context.Context, cursor string, limit int) (items []model.RouteData, nextCursor string, err error)
    DeleteDraft(ctx context.Context, loadID string) error
    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const defaultLimit = 100

// checkDraft rejects drafts without a load id or with an unknown status.
func checkDraft(route model.RouteData) error {
    if strings.TrimSpace(route.LoadID) == "" { return errors.New("save draft: load id must not be empty") }
    if !route.Status.Valid() { return fmt.Errorf("save draft: unknown route status %q", route.Status) }
    return nil
}
