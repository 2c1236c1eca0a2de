package api

import (
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "shipnorth/internal/buildinfo"
)

// subscriberCounter is implemented by brokers that can count local listeners.
type subscriberCounter interface{ Subscribers(topic string) int }

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    c := s.Config
    views := s.Sessions.List()
    info := map[string]any{
        "build":    buildinfo.Info(),
        "time":     time.Now().UTC().Format(time.RFC3339),
        "sessions": len(views),
        "config": map[string]any{
            "PORT":              c.Port,
            "AUTH_MODE":         c.AuthMode,
            "ALLOW_ORIGINS":     strings.Join(c.AllowOrigins, ","),
            "RATE_RPS":          c.RateRPS,
            "RATE_BURST":        c.RateBurst,
            "BACKEND_URL":       c.BackendURL,
            "BACKEND_TIMEOUT":   c.BackendTimeout.String(),
            "TRACKING_INTERVAL": c.TrackingInterval.String(),
            "HAS_BACKEND_TOKEN": c.BackendToken != "" || c.BackendJWTSecret != "",
            "HAS_DATABASE_URL":  c.DatabaseURL != "",
            "HAS_REDIS_URL":     c.RedisURL != "",
        },
        "optimizerDefaults": c.Optimizer,
    }
    if sc, ok := s.Broker.(subscriberCounter); ok {
        subs := map[string]int{}
        for _, v := range views { subs[v.SessionID] = sc.Subscribers(v.SessionID) }
        info["subscribers"] = subs
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
