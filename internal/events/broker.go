// Package events fans session events out to SSE and WebSocket subscribers.
package events

import (
    "sync"
    "time"
)

// Event types published per session
const (
    RouteUpdated    = "route.updated"
    RouteOptimized  = "route.optimized"
    RouteSaved      = "route.saved"
    TrackingFix     = "tracking.location"
    TrackingStopped = "tracking.stopped"
    SessionClosed   = "session.closed"
)

type Event struct {
    Type string         `json:"type"`
    TS   string         `json:"ts"`
    Data map[string]any `json:"data"`
}

// New stamps an event with the current time.
func New(typ string, data map[string]any) Event {
    return Event{Type: typ, TS: time.Now().UTC().Format(time.RFC3339), Data: data}
}

// Broker delivers events per topic (session id). Slow subscribers drop events.
type Broker interface {
    Subscribe(topic string) chan Event
    Unsubscribe(topic string, ch chan Event)
    Publish(topic string, evt Event)
}

type MemoryBroker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewMemoryBroker() *MemoryBroker {
    return &MemoryBroker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *MemoryBroker) Subscribe(topic string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan Event]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *MemoryBroker) Unsubscribe(topic string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[topic]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, topic) }
    close(ch)
}

func (b *MemoryBroker) Publish(topic string, evt Event) {
    b.mu.Lock()
    m := b.subs[topic]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}

// Subscribers reports the number of live subscriptions on topic.
func (b *MemoryBroker) Subscribers(topic string) int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.subs[topic])
}
