package push

import (
	"encoding/json"
	"log/slog"
	"sync"

	"opchat/cmd/internal/metrics"
	pushv1 "opchat/contracts/push/v1"
)

// Hub is the registry of connected subscribers and the broadcast fanout
// primitive. It implements the relay's Broadcaster port.
//
// Concurrency guarantees:
// - Add/Remove are safe under concurrent EmitToAll/EmitToOne.
// - Emission never blocks (drops under backpressure).
// - Emission is panic-safe because Subscriber.Send is never closed by the server.
type Hub struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string]*Subscriber
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[string]*Subscriber),
	}
}

// Add registers a subscriber.
func (h *Hub) Add(s *Subscriber) {
	if h == nil || s == nil || s.SessionID == "" {
		return
	}

	h.mu.Lock()
	h.subs[s.SessionID] = s
	h.mu.Unlock()

	metrics.SubscribersConnected.Inc()
	h.log.Info("hub.subscriber.join", "session_id", s.SessionID)
}

// Remove unregisters a subscriber and signals its shutdown.
func (h *Hub) Remove(sessionID string) {
	if h == nil || sessionID == "" {
		return
	}

	var sub *Subscriber

	h.mu.Lock()
	sub = h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()

	// Signal shutdown after removing from the registry. This ordering avoids
	// race windows where a broadcaster still holds a pointer while the
	// subscriber goroutines are being torn down.
	if sub != nil {
		sub.Close()
		metrics.SubscribersConnected.Dec()
	}

	h.log.Info("hub.subscriber.leave", "session_id", sessionID)
}

// Len reports the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// EmitToAll fans an event out to every connected subscriber.
// Non-blocking: if a subscriber queue is full or the session is shutting
// down, that subscriber is skipped.
func (h *Hub) EmitToAll(event string, payload any) {
	env, err := h.envelope(event, payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	metrics.BroadcastsEmitted.WithLabelValues(event).Inc()
	for _, s := range h.subs {
		h.enqueue(s, env)
	}
}

// EmitToOne targets exactly one subscriber by session id.
// An unknown or disconnected session is not an error.
func (h *Hub) EmitToOne(sessionID, event string, payload any) {
	env, err := h.envelope(event, payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	s := h.subs[sessionID]
	h.mu.RUnlock()

	if s == nil {
		return
	}

	metrics.BroadcastsEmitted.WithLabelValues(event).Inc()
	h.enqueue(s, env)
}

func (h *Hub) envelope(event string, payload any) (pushv1.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("hub.payload.marshal.fail", "event", event, "err", err)
		return pushv1.Envelope{}, err
	}
	return pushv1.Envelope{Event: event, Payload: raw}, nil
}

func (h *Hub) enqueue(s *Subscriber, env pushv1.Envelope) {
	if s == nil {
		return
	}

	select {
	case <-s.Done():
		// Skip subscribers that are shutting down.
		return
	default:
	}

	select {
	case s.Send <- env:
	default:
		// Drop rather than block the whole fanout.
		metrics.BroadcastDrops.Inc()
	}
}
