// Package main runs a demo WebSocket client for route editing session events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(base, path, body string) (*http.Response, error) {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "staff")
	return http.DefaultClient.Do(req)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	loadID := os.Getenv("LOAD_ID")
	if loadID == "" {
		loadID = "load_demo"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Open (or resume) the editing session for the load
	resp, err := post(base, "/v1/sessions", fmt.Sprintf(`{"loadId":%q}`, loadID))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var sess struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		log.Fatal(err)
	}
	if sess.SessionID == "" {
		log.Fatalf("no session returned (status %d)", resp.StatusCode)
	}
	log.Printf("Session ID: %s", sess.SessionID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/sessions/" + sess.SessionID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-Role", "staff")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to all session events
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: []byte(`{}`)}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger route events: two stops, then swap them
	time.Sleep(500 * time.Millisecond)
	stops := []string{
		`{"address":"100 Queen St W","city":"Toronto","packages":["demo_p1"],"coordinates":{"lat":43.65,"lng":-79.38}}`,
		`{"address":"111 Wellington St","city":"Ottawa","packages":["demo_p2"],"coordinates":{"lat":45.42,"lng":-75.70}}`,
	}
	for _, st := range stops {
		if r, err := post(base, "/v1/sessions/"+sess.SessionID+"/stops", st); err == nil {
			_ = r.Body.Close()
		}
	}
	if r, err := post(base, "/v1/sessions/"+sess.SessionID+"/stops/1/move", `{"direction":"up"}`); err == nil {
		_ = r.Body.Close()
	}

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
