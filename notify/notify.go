// Package notify is the invalidation channel between mutation workflows
// and the views that display mutated data. Signals carry no payload:
// a receiver must re-fetch its full state, never assume a delta.
package notify

import "sync"

// Topics emitted by this app.
const (
	TopicSettings = "settings"
	TopicHistory  = "history"
)

type Hub struct {
	mu   sync.Mutex
	subs map[string]map[int]chan struct{}
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan struct{})}
}

// Subscribe returns a signal channel for topic and a cancel func.
// The channel has a one-slot buffer; signals arriving while one is
// already pending are coalesced into it.
func (h *Hub) Subscribe(topic string) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan struct{}, 1)
	id := h.next
	h.next++
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]chan struct{})
	}
	h.subs[topic][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[topic], id)
	}
	return ch, cancel
}

// Emit wakes every subscriber of topic. Never blocks.
func (h *Hub) Emit(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[topic] {
		select {
		case ch <- struct{}{}:
		default: // a signal is already pending; coalesce
		}
	}
}
