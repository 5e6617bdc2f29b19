// Package hub fans ingest deltas and heartbeats out to live dashboard
// subscribers.
package hub

import (
	"context"
	"sync"
	"time"
)

// DefaultHeartbeatInterval is how often idle subscribers receive a
// heartbeat so they can detect a dead transport.
const DefaultHeartbeatInterval = 15 * time.Second

// subscriberBuffer bounds the per-subscriber queue. A subscriber that
// cannot drain this many messages is considered dead and dropped.
const subscriberBuffer = 16

// Named message kinds pushed over the live stream.
const (
	MessageInit      = "init"
	MessageDelta     = "delta"
	MessageHeartbeat = "heartbeat"
)

// Message is one named payload pushed to subscribers.
type Message struct {
	Name string
	Data any
}

// Subscriber is one live connection's receive side.
type Subscriber struct {
	messages chan Message
}

// Messages returns the subscriber's receive channel. It is closed when the
// subscriber is dropped or unsubscribed.
func (s *Subscriber) Messages() <-chan Message {
	return s.messages
}

// Hub owns the set of live subscribers. It is created by the server and
// carries no package-level state; lifecycle is tied to Run's context.
type Hub struct {
	heartbeatInterval time.Duration

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	closed      bool
}

// New creates a hub. A non-positive interval selects the default.
func New(heartbeatInterval time.Duration) *Hub {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Hub{
		heartbeatInterval: heartbeatInterval,
		subscribers:       make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new live connection and returns its receive side.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{messages: make(chan Message, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.messages)
		return sub
	}
	h.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub)
}

func (h *Hub) dropLocked(sub *Subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.messages)
}

// Broadcast pushes a message to every subscriber without blocking. A
// subscriber whose buffer is full is dropped; slow dashboards must never
// stall ingestion or other subscribers.
func (h *Hub) Broadcast(name string, data any) {
	msg := Message{Name: name, Data: data}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.messages <- msg:
		default:
			h.dropLocked(sub)
		}
	}
}

// SubscriberCount reports how many live connections are registered.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Run emits heartbeats until the context is cancelled, then drops every
// remaining subscriber.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case tick := <-ticker.C:
			h.Broadcast(MessageHeartbeat, map[string]int64{"ts": tick.UTC().UnixMilli()})
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.messages)
	}
}
