package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "shipnorth/internal/events"
)

// EventStreamHandler handles GET /v1/sessions/{id}/events/stream (SSE).
func (s *Server) EventStreamHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canView(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path); return }
    id := sess.ID()

    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)

    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    w.WriteHeader(http.StatusOK)

    // initial snapshot so a client does not need a separate GET
    writeSSE(w, events.New("session.snapshot", map[string]any{"session": sess.View()}))
    flusher.Flush()

    heartbeat := time.NewTicker(s.heartbeat)
    defer heartbeat.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, open := <-ch:
            if !open { return }
            writeSSE(w, evt)
            flusher.Flush()
            if evt.Type == events.SessionClosed { return }
        case <-heartbeat.C:
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"sessionId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().UTC().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

func writeSSE(w http.ResponseWriter, evt events.Event) {
    b, _ := json.Marshal(evt)
    fmt.Fprintf(w, "event: %s\n", evt.Type)
    fmt.Fprintf(w, "data: %s\n\n", b)
}
