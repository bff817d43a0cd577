package events

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSubscriberBuffer is the per-subscriber channel depth used when the
// caller passes a non-positive buffer size.
const DefaultSubscriberBuffer = 256

// Subscription is one subscriber's view of the hub. Events arrive on
// Events() in publication order; a subscriber that stops draining loses the
// oldest buffered events.
type Subscription struct {
	id    int
	kinds map[Kind]bool // empty means all kinds
	ch    chan Event
	hub   *Hub
	once  sync.Once
}

// Events returns the subscriber's delivery channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unregisters the subscription and closes its channel. Safe to call
// multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

func (s *Subscription) wants(kind Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	return s.kinds[kind]
}

// Hub is the in-process publish/subscribe bus. Delivery is non-blocking:
// publishers never wait on subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
	buffer int
	closed bool
}

// NewHub creates a hub with the given per-subscriber buffer depth.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[int]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber for the given kinds (all kinds when none
// are named).
func (h *Hub) Subscribe(kinds ...Kind) *Subscription {
	kindSet := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		id:    h.nextID,
		kinds: kindSet,
		ch:    make(chan Event, h.buffer),
		hub:   h,
	}
	h.nextID++
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers the event to all current subscribers interested in its
// kind. A zero At is stamped with the current time. Sends happen under the
// read lock so they cannot race a concurrent Close; they are non-blocking,
// so the lock is held only briefly.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Full buffer: drop the oldest event to make room, then
			// retry once. The bus is not a persistence mechanism.
			select {
			case dropped := <-sub.ch:
				slog.Warn("Event subscriber lagging, dropped oldest event",
					"subscriber_id", sub.id,
					"dropped_kind", dropped.Kind,
					"session_id", dropped.SessionID)
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close shuts the hub down: all subscriber channels are closed and further
// publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	close(s.ch)
}
