//go:build postgres_integration

package store

import (
    "os"
    "testing"
    "time"

    "shipnorth/internal/model"
)

func TestPostgresDraftRoundTrip(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer p.Close()
    if err := p.Migrate(t.Context()); err != nil { t.Fatalf("Migrate: %v", err) }

    r := model.RouteData{LoadID: "it_load_1", Status: model.RouteDraft, TotalDistance: 12.5, LastModified: time.Now().UTC().Truncate(time.Millisecond),
        Stops: []model.RouteStop{{ID: "s1", Address: "1 King St", Packages: []string{"p1"}, Status: model.StopPending}}}
    if err := p.SaveDraft(t.Context(), r); err != nil { t.Fatalf("SaveDraft: %v", err) }
    got, err := p.GetDraft(t.Context(), "it_load_1")
    if err != nil { t.Fatalf("GetDraft: %v", err) }
    if got.TotalDistance != 12.5 || len(got.Stops) != 1 { t.Fatalf("unexpected draft: %+v", got) }
    if _, _, err := p.ListDrafts(t.Context(), "", 1); err != nil { t.Fatalf("ListDrafts: %v", err) }
    if err := p.DeleteDraft(t.Context(), "it_load_1"); err != nil { t.Fatalf("DeleteDraft: %v", err) }
}
