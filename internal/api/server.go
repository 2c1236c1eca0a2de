package api

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/gorilla/mux"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "golang.org/x/time/rate"

    "shipnorth/internal/auth"
    "shipnorth/internal/config"
    "shipnorth/internal/editor"
    "shipnorth/internal/events"
    "shipnorth/internal/metrics"
    "shipnorth/internal/store"
)

type Server struct {
    Sessions *editor.Manager
    Store    store.Store
    Broker   events.Broker
    Auth     *auth.Verifier
    Config   config.Config

    limiter   *rate.Limiter
    heartbeat time.Duration
    origins   map[string]bool
}

// NewServer wires the HTTP layer to an editor manager and its collaborators.
func NewServer(cfg config.Config, sessions *editor.Manager, st store.Store, broker events.Broker) (*Server, error) {
    v, err := auth.NewVerifier(cfg.AuthMode, cfg.AuthHMACSecret)
    if err != nil {
        return nil, err
    }
    var lim *rate.Limiter
    if cfg.RateRPS > 0 {
        burst := cfg.RateBurst
        if burst <= 0 { burst = int(cfg.RateRPS) + 1 }
        lim = rate.NewLimiter(rate.Limit(cfg.RateRPS), burst)
    }
    origins := map[string]bool{}
    for _, o := range cfg.AllowOrigins {
        if o = strings.TrimSpace(o); o != "" { origins[o] = true }
    }
    return &Server{
        origins:   origins,
        Sessions:  sessions,
        Store:     st,
        Broker:    broker,
        Auth:      v,
        Config:    cfg,
        limiter:   lim,
        heartbeat: 15 * time.Second,
    }, nil
}

// Routes returns the full handler: router plus middleware.
func (s *Server) Routes() http.Handler {
    r := mux.NewRouter()

    v1 := r.PathPrefix("/v1").Subrouter()
    v1.HandleFunc("/sessions", s.CreateSessionHandler).Methods(http.MethodPost)
    v1.HandleFunc("/sessions", s.ListSessionsHandler).Methods(http.MethodGet)
    v1.HandleFunc("/sessions/{id}", s.GetSessionHandler).Methods(http.MethodGet)
    v1.HandleFunc("/sessions/{id}", s.CloseSessionHandler).Methods(http.MethodDelete)

    v1.HandleFunc("/sessions/{id}/stops", s.AddStopHandler).Methods(http.MethodPost)
    v1.HandleFunc("/sessions/{id}/stops/{index:[0-9]+}/move", s.MoveStopHandler).Methods(http.MethodPost)
    v1.HandleFunc("/sessions/{id}/stops/{stopId}", s.UpdateStopHandler).Methods(http.MethodPatch)
    v1.HandleFunc("/sessions/{id}/stops/{stopId}", s.RemoveStopHandler).Methods(http.MethodDelete)
    v1.HandleFunc("/sessions/{id}/estimates", s.EstimatesHandler).Methods(http.MethodGet)

    v1.HandleFunc("/sessions/{id}/packages/available", s.AvailablePackagesHandler).Methods(http.MethodGet)
    v1.HandleFunc("/sessions/{id}/selection", s.SelectionHandler).Methods(http.MethodPut)
    v1.HandleFunc("/sessions/{id}/selection/{packageId}", s.SelectPackageHandler).Methods(http.MethodPut, http.MethodDelete)
    v1.HandleFunc("/sessions/{id}/packages", s.AssignPackagesHandler).Methods(http.MethodPost)
    v1.HandleFunc("/sessions/{id}/packages/{packageId}", s.RemovePackageHandler).Methods(http.MethodDelete)

    v1.HandleFunc("/sessions/{id}/options", s.OptionsHandler).Methods(http.MethodPut)
    v1.HandleFunc("/sessions/{id}/optimize", s.OptimizeHandler).Methods(http.MethodPost)
    v1.HandleFunc("/sessions/{id}/save", s.SaveHandler).Methods(http.MethodPost)

    v1.HandleFunc("/sessions/{id}/tracking", s.StartTrackingHandler).Methods(http.MethodPost)
    v1.HandleFunc("/sessions/{id}/tracking", s.StopTrackingHandler).Methods(http.MethodDelete)
    v1.HandleFunc("/sessions/{id}/tracking", s.LatestLocationHandler).Methods(http.MethodGet)

    v1.HandleFunc("/sessions/{id}/events/stream", s.EventStreamHandler).Methods(http.MethodGet)
    v1.HandleFunc("/sessions/{id}/ws", s.WSHandler).Methods(http.MethodGet)

    v1.HandleFunc("/locations", s.LocationsHandler).Methods(http.MethodGet)
    v1.HandleFunc("/drafts", s.DraftsHandler).Methods(http.MethodGet)

    r.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)
    r.HandleFunc("/readyz", s.ReadyHandler).Methods(http.MethodGet)
    r.HandleFunc("/debug/vars.json", s.DebugJSON).Methods(http.MethodGet)
    r.HandleFunc("/openapi.yaml", s.OpenAPIHandler).Methods(http.MethodGet)
    r.HandleFunc("/docs", s.DocsHandler).Methods(http.MethodGet)
    r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

    r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    })
    r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method, r.URL.Path)
    })

    r.Use(s.metricsMiddleware, s.rateLimitMiddleware)
    return loggingMiddleware(s.corsMiddleware(r))
}

// Drain stops srv and closes every session. Sessions close first so their
// event streams end and drafts are written under a live context; the server
// then waits for in-flight requests. Sessions opened meanwhile are closed
// last. Each phase has its own timeout.
func (s *Server) Drain(srv *http.Server, timeout time.Duration) error {
    var errs []error
    closeSessions := func() {
        ctx, cancel := context.WithTimeout(context.Background(), timeout)
        defer cancel()
        if err := s.Sessions.Shutdown(ctx); err != nil { errs = append(errs, fmt.Errorf("session shutdown: %w", err)) }
    }
    closeSessions()
    ctx, cancel := context.WithTimeout(context.Background(), timeout)
    defer cancel()
    if err := srv.Shutdown(ctx); err != nil { errs = append(errs, fmt.Errorf("http shutdown: %w", err)) }
    closeSessions()
    return errors.Join(errs...)
}

// session resolves the {id} path variable, writing a 404 problem when the
// session is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
    sess, err := s.Sessions.Get(mux.Vars(r)["id"])
    if err != nil {
        writeError(w, r, err)
        return nil, false
    }
    return sess, true
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if s.Store != nil {
        if err := s.Store.Ping(ctx); err != nil { writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "store: "+err.Error(), r.URL.Path); return }
    }
    type pinger interface{ Ping(ctx context.Context) error }
    if p, ok := s.Broker.(pinger); ok {
        if err := p.Ping(ctx); err != nil { writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "broker: "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
