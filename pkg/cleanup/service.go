// Package cleanup enforces data retention: completed sessions and finished
// evaluations past their retention window are removed by a periodic sweep.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/services"
)

// EvaluationStore is the slice of the persistence layer the sweep needs for
// evaluations. Sessions go through the session service so its cache stays
// consistent.
type EvaluationStore interface {
	DeleteEvaluationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention policies:
//   - Deletes completed sessions past the session retention window
//   - Deletes finished evaluations past the evaluation retention window
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	cfg      config.RetentionConfig
	sessions *services.SessionService
	evals    EvaluationStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg config.RetentionConfig, sessions *services.SessionService, evals EvaluationStore) *Service {
	return &Service{
		cfg:      cfg,
		sessions: sessions,
		evals:    evals,
	}
}

// Start launches the background cleanup loop. A zero cleanup interval
// disables the service.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	if s.cfg.CleanupInterval <= 0 {
		slog.Info("Retention sweep disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"session_retention", s.cfg.SessionRetention,
		"evaluation_retention", s.cfg.EvaluationRetention,
		"interval", s.cfg.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.pruneSessions(ctx)
	s.pruneEvaluations(ctx)
}

func (s *Service) pruneSessions(ctx context.Context) {
	if s.cfg.SessionRetention <= 0 {
		return
	}
	count, err := s.sessions.PruneCompleted(ctx, s.cfg.SessionRetention)
	if err != nil {
		slog.Error("Retention: session prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old sessions", "count", count)
	}
}

func (s *Service) pruneEvaluations(ctx context.Context) {
	if s.cfg.EvaluationRetention <= 0 {
		return
	}
	count, err := s.evals.DeleteEvaluationsBefore(ctx, time.Now().Add(-s.cfg.EvaluationRetention))
	if err != nil {
		slog.Error("Retention: evaluation prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old evaluations", "count", count)
	}
}
