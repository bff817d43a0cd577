package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/database"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/services"
)

// SLASweeper periodically scans escalated sessions for missed pickup
// deadlines and publishes sla_breach events. Breaches are operational
// signals only; session state is untouched.
type SLASweeper struct {
	sessions  *services.SessionService
	publisher *events.Publisher
	interval  time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// reported dedupes breach events per session deadline.
	mu       sync.Mutex
	reported map[string]time.Time
}

// NewSLASweeper creates a sweeper with the given scan interval.
func NewSLASweeper(sessions *services.SessionService, publisher *events.Publisher, interval time.Duration) *SLASweeper {
	return &SLASweeper{
		sessions:  sessions,
		publisher: publisher,
		interval:  interval,
		stopCh:    make(chan struct{}),
		reported:  make(map[string]time.Time),
	}
}

// Start launches the sweep loop.
func (s *SLASweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
	slog.Info("SLA sweeper started", "interval", s.interval)
}

// Stop terminates the sweep loop. Safe to call multiple times.
func (s *SLASweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Sweep performs one scan pass. Exported for tests and manual triggers.
func (s *SLASweeper) Sweep(ctx context.Context) {
	sessions, err := s.sessions.List(ctx, database.SessionFilter{
		Statuses: []models.SessionStatus{models.SessionStatusEscalated},
	})
	if err != nil {
		slog.Error("SLA sweep failed to list escalated sessions", "error", err)
		return
	}

	now := time.Now()
	for _, sess := range sessions {
		if sess.EscalationSLA == nil || sess.AssignedAgentID != "" {
			continue
		}
		deadline := *sess.EscalationSLA
		if now.Before(deadline) {
			continue
		}
		if s.alreadyReported(sess.ID, deadline) {
			continue
		}

		ruleID := ""
		if n := len(sess.EscalationHistory); n > 0 {
			ruleID = sess.EscalationHistory[n-1].RuleID
		}

		slog.Warn("Escalation SLA breached",
			"session_id", sess.ID,
			"tier", sess.Tier,
			"deadline", deadline,
			"overdue", now.Sub(deadline))

		s.publisher.SLABreach(events.SLABreachPayload{
			BasePayload: events.NewBasePayload(events.KindSLABreach, sess.ID),
			RuleID:      ruleID,
			Tier:        sess.Tier,
			Deadline:    deadline.Format(time.RFC3339Nano),
			OverdueMS:   now.Sub(deadline).Milliseconds(),
		})
	}

	s.prune(sessions)
}

// alreadyReported records the breach and reports whether it was already
// published for this deadline. A session re-escalated with a fresh SLA
// breaches again.
func (s *SLASweeper) alreadyReported(sessionID string, deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.reported[sessionID]; ok && prev.Equal(deadline) {
		return true
	}
	s.reported[sessionID] = deadline
	return false
}

// prune drops dedup entries for sessions no longer escalated.
func (s *SLASweeper) prune(current []*models.Session) {
	live := make(map[string]bool, len(current))
	for _, sess := range current {
		live[sess.ID] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.reported {
		if !live[id] {
			delete(s.reported, id)
		}
	}
}
