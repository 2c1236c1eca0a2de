package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shipnorth/internal/events"
)

// Session events over WebSocket using a small graphql-transport-ws style
// envelope: connection_init/ack, subscribe/next/complete, ping/pong.

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// checkOrigin admits clients without an Origin header, same-host pages and
// origins on the CORS allow-list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return s.originAllowed(origin)
}

type subscribePayload struct {
	// Types filters event types; empty means all.
	Types []string `json:"types"`
}

// WSHandler handles GET /v1/sessions/{id}/ws
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	if !s.canView(w, r) {
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	topic := sess.ID()
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	subs := map[string]chan events.Event{}
	var wg sync.WaitGroup
	done := make(chan struct{})
	defer func() {
		close(done)
		for id, ch := range subs {
			s.Broker.Unsubscribe(topic, ch)
			delete(subs, id)
		}
		wg.Wait()
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.ID == "" {
				_ = write(wsMessage{Type: "error", Payload: []byte(`{"message":"subscription id required"}`)})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"subscription id already in use"}`)})
				continue
			}
			var pl subscribePayload
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &pl); err != nil {
					_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"invalid payload"}`)})
					continue
				}
			}
			want := map[string]bool{}
			for _, t := range pl.Types {
				want[t] = true
			}
			ch := s.Broker.Subscribe(topic)
			subs[msg.ID] = ch
			wg.Add(1)
			go func(id string, c chan events.Event) {
				defer wg.Done()
				for evt := range c {
					closed := evt.Type == events.SessionClosed
					if len(want) > 0 && !want[evt.Type] && !closed {
						continue
					}
					payload, _ := json.Marshal(evt)
					if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						return
					}
					if closed {
						// the session is gone; ending the read loop tears the rest down
						_ = write(wsMessage{Type: "complete", ID: id})
						_ = conn.Close()
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(topic, ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
}
