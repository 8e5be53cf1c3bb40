package notify

import (
	"sync"

	"github.com/doctools/backend/internal/models"
)

// SubscriberBuffer is the per-subscriber queue length. Notifications beyond it are dropped.
const SubscriberBuffer = 32

// Hub fans notifications out to live subscribers of a session.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan models.Notification]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan models.Notification]struct{})}
}

// Subscribe registers for notifications of one session. The returned cancel
// function unregisters and closes the channel; it is safe to call twice and
// after Drop.
func (h *Hub) Subscribe(sessionID string) (<-chan models.Notification, func()) {
	ch := make(chan models.Notification, SubscriberBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan models.Notification]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		set := h.subs[sessionID]
		if _, ok := set[ch]; !ok {
			return
		}
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
		close(ch)
	}
}

// Drop closes every subscriber channel of a session, ending their streams.
func (h *Hub) Drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		close(ch)
	}
	delete(h.subs, sessionID)
}

// Notify delivers n to every subscriber of its session without blocking.
func (h *Hub) Notify(n models.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[n.SessionID] {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribers returns the number of live subscribers for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
