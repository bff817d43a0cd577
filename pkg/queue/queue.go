// Package queue implements the waiting queue, the dispatcher that matches
// sessions to agents, and the SLA sweeper.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/models"
)

// Item is one queued session. The queue holds routing metadata only; the
// session itself lives in the session service.
type Item struct {
	SessionID string
	Priority  int
	Tier      int // minimum agent tier required
	CreatedAt time.Time

	EnqueuedAt time.Time

	// seq breaks exact ties deterministically (FIFO within equal
	// priority and creation time).
	seq   uint64
	index int
}

// PriorityQueue orders waiting sessions by priority descending, then
// creation time ascending. Safe for concurrent use.
type PriorityQueue struct {
	mu      sync.RWMutex
	items   itemHeap
	byID    map[string]*Item
	nextSeq uint64
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{byID: make(map[string]*Item)}
}

// Enqueue inserts the session and returns its 1-indexed position and the
// queue depth after insert. Re-enqueueing a queued session updates its
// priority in place.
func (q *PriorityQueue) Enqueue(sess *models.Session) (position, depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byID[sess.ID]; ok {
		existing.Priority = sess.Priority
		existing.Tier = sess.Tier
		heap.Fix(&q.items, existing.index)
		return q.positionLocked(sess.ID), q.items.Len()
	}

	item := &Item{
		SessionID:  sess.ID,
		Priority:   sess.Priority,
		Tier:       sess.Tier,
		CreatedAt:  sess.CreatedAt,
		EnqueuedAt: time.Now(),
		seq:        q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.items, item)
	q.byID[sess.ID] = item
	return q.positionLocked(sess.ID), q.items.Len()
}

// Peek returns a copy of the head item without removing it.
func (q *PriorityQueue) Peek() (Item, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.items.Len() == 0 {
		return Item{}, false
	}
	return *q.items[0], true
}

// Pop removes and returns the head item.
func (q *PriorityQueue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return Item{}, false
	}
	item := heap.Pop(&q.items).(*Item)
	delete(q.byID, item.SessionID)
	return *item, true
}

// Remove deletes the session from the queue if present.
func (q *PriorityQueue) Remove(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[sessionID]
	if !ok {
		return false
	}
	heap.Remove(&q.items, item.index)
	delete(q.byID, sessionID)
	return true
}

// Position returns the 1-indexed serving position of the session, or 0 when
// the session is not queued.
func (q *PriorityQueue) Position(sessionID string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.positionLocked(sessionID)
}

// positionLocked counts queued items that would be served before the given
// session, plus one. Linear, but queue depths here are operationally small.
func (q *PriorityQueue) positionLocked(sessionID string) int {
	item, ok := q.byID[sessionID]
	if !ok {
		return 0
	}
	pos := 1
	for _, other := range q.items {
		if other.SessionID != sessionID && before(other, item) {
			pos++
		}
	}
	return pos
}

// Len returns the queue depth.
func (q *PriorityQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.items.Len()
}

// Snapshot returns all queued items in serving order.
func (q *PriorityQueue) Snapshot() []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Item, 0, q.items.Len())
	for _, item := range q.items {
		out = append(out, *item)
	}
	// The heap slice is not fully sorted; order the copy.
	sortItems(out)
	return out
}

func before(a, b *Item) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}

func sortItems(items []Item) {
	// Insertion sort keeps this allocation-free; snapshots are small.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && before(&items[j], &items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// itemHeap implements heap.Interface.
type itemHeap []*Item

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return before(h[i], h[j]) }
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
