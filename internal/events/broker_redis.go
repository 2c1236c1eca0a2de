package events

import (
    "context"
    "encoding/json"
    "log"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker over Redis Pub/Sub so every API instance sees
// events for sessions it does not host.
type RedisBroker struct {
    rdb *redis.Client
    mu  sync.Mutex
    ps  map[chan Event]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return NewRedisBrokerClient(redis.NewClient(opt)), nil
}

func NewRedisBrokerClient(rdb *redis.Client) *RedisBroker {
    return &RedisBroker{rdb: rdb, ps: map[chan Event]*redis.PubSub{}}
}

// Ping checks connectivity.
func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Subscribe(topic string) chan Event {
    ch := make(chan Event, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(topic))
    // initial consume to ensure subscription
    if _, err := ps.Receive(ctx); err != nil {
        log.Printf("events: redis subscribe topic=%s err=%v", topic, err)
    }
    b.mu.Lock()
    b.ps[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the Pub/Sub connection; ch is closed once the reader exits.
func (b *RedisBroker) Unsubscribe(topic string, ch chan Event) {
    b.mu.Lock()
    ps := b.ps[ch]
    delete(b.ps, ch)
    b.mu.Unlock()
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(topic string, evt Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    if err := b.rdb.Publish(ctx, b.chanName(topic), data).Err(); err != nil {
        log.Printf("events: redis publish topic=%s err=%v", topic, err)
    }
}

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) chanName(topic string) string { return "route-session:" + topic }
