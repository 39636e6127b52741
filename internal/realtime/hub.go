// Package realtime pushes session ticks to live consumers: WebSocket
// clients through the Hub and other processes through Redis.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wonny/salespulse/internal/dashboard"
	"github.com/wonny/salespulse/internal/replay"
	"github.com/wonny/salespulse/pkg/logger"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 16

// Subscriber is one consumer of a session's messages
type Subscriber struct {
	sessionID string
	send      chan []byte
	closeOnce sync.Once
}

// SessionID returns the session this subscriber follows
func (s *Subscriber) SessionID() string { return s.sessionID }

// C delivers encoded messages; it is closed when the subscription ends
func (s *Subscriber) C() <-chan []byte { return s.send }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Hub fans session ticks out to subscribers
// ⭐ SSOT: WebSocket subscriptions are tracked only here
type Hub struct {
	logger *logger.Logger
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub with per-subscriber queues of the given length
func NewHub(buffer int, log *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		logger: log.WithComponent("hub"),
		buffer: buffer,
		subs:   make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber for sessionID
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		sessionID: sessionID,
		send:      make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("session_id", sessionID).Debug("Subscriber added")
	return sub
}

// Unsubscribe removes sub and closes its channel
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sub.sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.sessionID)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Publish implements replay.Sink
func (h *Hub) Publish(_ context.Context, tick replay.Tick) error {
	msg, err := NewMessage(MessageTick, tick.SessionID, dashboard.PresentTick(tick))
	if err != nil {
		return fmt.Errorf("encode tick: %w", err)
	}
	return h.Broadcast(msg)
}

// Broadcast sends msg to every subscriber of msg.SessionID
// A subscriber whose queue is full misses the message rather than
// stalling the replay loop.
func (h *Hub) Broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[msg.SessionID] {
		select {
		case sub.send <- data:
			h.delivered.Add(1)
		default:
			h.dropped.Add(1)
			h.logger.WithField("session_id", msg.SessionID).Debug("Slow subscriber, message dropped")
		}
	}
	return nil
}

// ResetSession tells subscribers to clear what they have drawn so far
func (h *Hub) ResetSession(sessionID string) {
	msg, err := NewMessage(MessageReset, sessionID, nil)
	if err == nil {
		_ = h.Broadcast(msg)
	}
}

// CloseSession notifies and drops every subscriber of sessionID
func (h *Hub) CloseSession(sessionID string) {
	msg, err := NewMessage(MessageClosed, sessionID, nil)
	if err == nil {
		_ = h.Broadcast(msg)
	}

	h.mu.Lock()
	set := h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()

	for sub := range set {
		sub.close()
	}

	if len(set) > 0 {
		h.logger.WithFields(map[string]interface{}{
			"session_id":  sessionID,
			"subscribers": len(set),
		}).Info("Closed session subscribers")
	}
}

// CloseAll ends every subscription, used on shutdown
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.CloseSession(id)
	}
}

// Subscribers returns the number of subscribers of sessionID
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Stats returns hub counters
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HubStats{
		Sessions:  len(h.subs),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
	for _, set := range h.subs {
		stats.Subscribers += len(set)
	}
	return stats
}
