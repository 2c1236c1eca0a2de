package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "shipnorth/internal/api"
    "shipnorth/internal/backend"
    "shipnorth/internal/buildinfo"
    "shipnorth/internal/config"
    "shipnorth/internal/editor"
    "shipnorth/internal/events"
    "shipnorth/internal/metrics"
    "shipnorth/internal/store"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    metrics.RegisterDefault()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    bc, err := backend.New(backend.Options{
        BaseURL:   cfg.BackendURL,
        Token:     cfg.BackendToken,
        JWTSecret: cfg.BackendJWTSecret,
        Timeout:   cfg.BackendTimeout,
        RPS:       cfg.BackendRPS,
    })
    if err != nil {
        log.Fatalf("failed to init backend client: %v", err)
    }

    st, closeStore, err := openStore(ctx, cfg)
    if err != nil {
        log.Fatalf("failed to init store: %v", err)
    }
    defer closeStore()

    // Broker selection
    var broker events.Broker = events.NewMemoryBroker()
    if cfg.RedisURL != "" {
        rb, err := events.NewRedisBroker(cfg.RedisURL)
        if err != nil {
            log.Printf("redis broker unavailable, using in-memory: %v", err)
        } else {
            defer func() { _ = rb.Close() }()
            broker = rb
        }
    }

    sessions := editor.NewManager(editor.Config{Backend: bc, Store: st, Broker: broker, Options: cfg.Optimizer})
    srvDeps, err := api.NewServer(*cfg, sessions, st, broker)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }

    addr := ":" + cfg.Port
    srv := &http.Server{
        Addr:              addr,
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    go func() {
        info := buildinfo.Info()
        log.Printf("API listening on %s version=%s backend=%s", addr, info["version"], cfg.BackendURL)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatalf("server error: %v", err)
        }
    }()

    <-ctx.Done()
    log.Printf("shutting down")
    if err := srvDeps.Drain(srv, 15*time.Second); err != nil {
        log.Printf("shutdown: %v", err)
    }
}

// openStore uses Postgres when DATABASE_URL is set, memory otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
    if cfg.DatabaseURL == "" {
        return store.NewMemory(), func() {}, nil
    }
    pg, err := store.NewPostgres(cfg.DatabaseURL)
    if err != nil {
        return nil, nil, err
    }
    if cfg.DBMigrate {
        if err := pg.Migrate(ctx); err != nil {
            _ = pg.Close()
            return nil, nil, err
        }
    }
    return pg, func() { _ = pg.Close() }, nil
}
