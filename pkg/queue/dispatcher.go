package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/directory"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/services"
)

// safetyInterval bounds how long the dispatcher sleeps without a kick; it
// papers over any missed wakeup.
const safetyInterval = time.Second

// Dispatcher is the single writer that moves sessions from the waiting
// queue to available agents. All matching decisions happen on its loop
// goroutine; Enqueue and AgentAvailable only kick it.
type Dispatcher struct {
	queue     *PriorityQueue
	agents    *directory.Directory
	sessions  *services.SessionService
	publisher *events.Publisher
	cfg       config.QueueConfig

	kick     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewDispatcher creates a dispatcher over the given queue and services.
func NewDispatcher(q *PriorityQueue, agents *directory.Directory, sessions *services.SessionService, publisher *events.Publisher, cfg config.QueueConfig) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		agents:    agents,
		sessions:  sessions,
		publisher: publisher,
		cfg:       cfg,
		kick:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the dispatch loop. Safe to call once.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.started {
		slog.Warn("Dispatcher already started, ignoring duplicate Start call")
		return
	}
	d.started = true

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
	slog.Info("Dispatcher started")
}

// Stop signals the loop to exit and waits for it, bounded by the configured
// graceful shutdown timeout.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Dispatcher stopped")
	case <-time.After(d.cfg.GracefulShutdownTimeout):
		slog.Warn("Dispatcher stop timed out",
			"timeout", d.cfg.GracefulShutdownTimeout)
	}
}

// Enqueue places the session on the waiting queue, publishes
// session_enqueued (and queue_backpressure past the soft limit), and kicks
// the loop.
func (d *Dispatcher) Enqueue(sess *models.Session) {
	position, depth := d.queue.Enqueue(sess)

	d.publisher.SessionEnqueued(events.SessionEnqueuedPayload{
		BasePayload: events.NewBasePayload(events.KindSessionEnqueued, sess.ID),
		Priority:    sess.Priority,
		Position:    position,
		Depth:       depth,
	})

	if d.cfg.BackpressureSoftLimit > 0 && depth > d.cfg.BackpressureSoftLimit {
		slog.Warn("Waiting queue above soft limit",
			"depth", depth, "soft_limit", d.cfg.BackpressureSoftLimit)
		d.publisher.QueueBackpressure(events.QueueBackpressurePayload{
			BasePayload: events.NewBasePayload(events.KindQueueBackpressure, ""),
			Depth:       depth,
			SoftLimit:   d.cfg.BackpressureSoftLimit,
		})
	}

	d.Kick()
}

// Remove drops a session from the waiting queue (e.g. on completion while
// still queued).
func (d *Dispatcher) Remove(sessionID string) bool {
	return d.queue.Remove(sessionID)
}

// AgentAvailable notifies the loop that agent capacity may have appeared.
func (d *Dispatcher) AgentAvailable() {
	d.Kick()
}

// Kick wakes the dispatch loop without blocking.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Depth returns the current waiting queue depth.
func (d *Dispatcher) Depth() int {
	return d.queue.Len()
}

// Position returns the 1-indexed queue position of a session (0 when not
// queued).
func (d *Dispatcher) Position(sessionID string) int {
	return d.queue.Position(sessionID)
}

// Snapshot returns the queue contents in serving order.
func (d *Dispatcher) Snapshot() []Item {
	return d.queue.Snapshot()
}

func (d *Dispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(safetyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-d.kick:
		case <-ticker.C:
		}
		d.dispatch(ctx)
	}
}

// dispatch serves the queue strictly in priority/FIFO order. The head is
// never skipped: when no available agent can serve it, it stays at its
// position and the tick ends, even if later sessions could be matched now.
func (d *Dispatcher) dispatch(ctx context.Context) {
	for {
		item, ok := d.queue.Peek()
		if !ok {
			return
		}
		if !d.tryAssign(ctx, item) {
			return
		}
	}
}

// tryAssign attempts the two-phase assignment: claim the agent, then bind
// the session. Either failure rolls the other side back.
func (d *Dispatcher) tryAssign(ctx context.Context, item Item) bool {
	agent := d.agents.SelectAvailable(item.Tier)
	if agent == nil {
		return false
	}

	if !d.queue.Remove(item.SessionID) {
		// Lost a race with Remove; nothing claimed yet.
		return false
	}

	claimed, err := d.agents.Claim(agent.ID, item.SessionID)
	if err != nil {
		// Agent went away between selection and claim; requeue and let
		// the next pass retry.
		d.requeue(item)
		return false
	}

	if _, err := d.sessions.Assign(ctx, item.SessionID, claimed); err != nil {
		if relErr := d.agents.Unclaim(agent.ID); relErr != nil {
			slog.Error("Failed to unclaim agent after assign failure",
				"agent_id", agent.ID, "error", relErr)
		}
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrSessionCompleted) {
			// Session is gone; drop it.
			slog.Info("Dropped unassignable session from queue",
				"session_id", item.SessionID, "reason", err)
			return true
		}
		slog.Error("Failed to assign session", "session_id", item.SessionID, "error", err)
		d.requeue(item)
		return false
	}

	slog.Info("Session assigned",
		"session_id", item.SessionID,
		"agent_id", claimed.ID,
		"agent_tier", claimed.Tier,
		"priority", item.Priority)
	return true
}

func (d *Dispatcher) requeue(item Item) {
	d.queue.Enqueue(&models.Session{
		ID:        item.SessionID,
		Priority:  item.Priority,
		Tier:      item.Tier,
		CreatedAt: item.CreatedAt,
	})
}
