package store

import (
    "context"
    "database/sql"
    "embed"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "log"
    "sort"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"

    "shipnorth/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, fmt.Errorf("open postgres database: %w", err)
    }
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(10)
    db.SetConnMaxLifetime(30 * time.Minute)
    if err := db.Ping(); err != nil {
        return nil, fmt.Errorf("verify postgres connection: %w", err)
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations in file name order. Statements are
// idempotent so re-running is safe.
func (p *Postgres) Migrate(ctx context.Context) error {
    names, err := fs.Glob(migrationsFS, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        b, err := migrationsFS.ReadFile(name)
        if err != nil { return err }
        if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
        log.Printf("store: applied migration %s", name)
    }
    return nil
}

func (p *Postgres) SaveDraft(ctx context.Context, route model.RouteData) error {
    if err := checkDraft(route); err != nil { return err }
    stops, err := encodeStops(route.Stops)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO route_drafts (load_id, route_id, status, total_distance, estimated_duration, optimization_score, stops, last_modified, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
        ON CONFLICT (load_id) DO UPDATE SET route_id=EXCLUDED.route_id, status=EXCLUDED.status, total_distance=EXCLUDED.total_distance,
            estimated_duration=EXCLUDED.estimated_duration, optimization_score=EXCLUDED.optimization_score, stops=EXCLUDED.stops,
            last_modified=EXCLUDED.last_modified, updated_at=now()`,
        route.LoadID, nullIfEmpty(route.ID), string(route.Status), route.TotalDistance, route.EstimatedDuration, route.OptimizationScore, stops, route.LastModified.UTC())
    if err != nil { return fmt.Errorf("save draft %s: %w", route.LoadID, err) }
    return nil
}

const draftColumns = `load_id, COALESCE(route_id,''), status, total_distance, estimated_duration, optimization_score, stops, last_modified`

func (p *Postgres) GetDraft(ctx context.Context, loadID string) (model.RouteData, error) {
    row := p.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM route_drafts WHERE load_id=$1`, loadID)
    r, err := scanDraft(row)
    if errors.Is(err, sql.ErrNoRows) { return model.RouteData{}, ErrNotFound }
    return r, err
}

func (p *Postgres) ListDrafts(ctx context.Context, cursor string, limit int) ([]model.RouteData, string, error) {
    if limit <= 0 || limit > 500 { limit = defaultLimit }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT `+draftColumns+` FROM route_drafts WHERE load_id > $1 ORDER BY load_id LIMIT $2`, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+draftColumns+` FROM route_drafts ORDER BY load_id LIMIT $1`, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.RouteData{}
    for rows.Next() {
        r, err := scanDraft(rows)
        if err != nil { return nil, "", err }
        out = append(out, r)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    var next string
    if len(out) == limit { next = out[len(out)-1].LoadID }
    return out, next, nil
}

func (p *Postgres) DeleteDraft(ctx context.Context, loadID string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM route_drafts WHERE load_id=$1`, loadID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

type scanner interface{ Scan(dest ...any) error }

func scanDraft(s scanner) (model.RouteData, error) {
    var r model.RouteData
    var status string
    var stops []byte
    if err := s.Scan(&r.LoadID, &r.ID, &status, &r.TotalDistance, &r.EstimatedDuration, &r.OptimizationScore, &stops, &r.LastModified); err != nil {
        return r, err
    }
    r.Status = model.RouteStatus(status)
    var err error
    if r.Stops, err = decodeStops(stops); err != nil {
        return r, fmt.Errorf("draft %s: %w", r.LoadID, err)
    }
    return r, nil
}

func encodeStops(stops []model.RouteStop) (string, error) {
    if stops == nil { stops = []model.RouteStop{} }
    b, err := json.Marshal(stops)
    if err != nil { return "", fmt.Errorf("encode stops: %w", err) }
    return string(b), nil
}

func decodeStops(b []byte) ([]model.RouteStop, error) {
    out := []model.RouteStop{}
    if len(b) == 0 { return out, nil }
    if err := json.Unmarshal(b, &out); err != nil { return nil, fmt.Errorf("decode stops: %w", err) }
    return out, nil
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
