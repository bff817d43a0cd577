package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/database"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/services"
)

func seedSession(t *testing.T, store *database.MemoryStore, id string, status models.SessionStatus, completedAt *time.Time) {
	t.Helper()
	now := time.Now()
	sess := &models.Session{
		ID:             id,
		Customer:       models.Customer{ID: "cust-1", Tier: models.CustomerTierStandard},
		Status:         status,
		Tier:           1,
		Priority:       1,
		PromptID:       "general_support",
		CreatedAt:      now.Add(-48 * time.Hour),
		LastActivityAt: now.Add(-48 * time.Hour),
		CompletedAt:    completedAt,
		Context:        models.NewConversationContext(),
	}
	require.NoError(t, store.UpsertSession(context.Background(), sess))
}

func seedEvaluation(t *testing.T, store *database.MemoryStore, id string, completedAt *time.Time) {
	t.Helper()
	status := models.EvaluationStatusInProgress
	if completedAt != nil {
		status = models.EvaluationStatusCompleted
	}
	eval := &models.Evaluation{
		ID:            id,
		InteractionID: "sess-1",
		AgentID:       "agent-1",
		QAAgentID:     "qa-1",
		ScorecardID:   "general_support",
		Status:        status,
		CreatedAt:     time.Now().Add(-48 * time.Hour),
		CompletedAt:   completedAt,
	}
	require.NoError(t, store.UpsertEvaluation(context.Background(), eval))
}

func timePtr(t time.Time) *time.Time { return &t }

func TestRunAllPrunesExpiredData(t *testing.T) {
	store := database.NewMemoryStore()
	sessions := services.NewSessionService(store, events.NewPublisher(events.NewHub(0)))

	old := time.Now().Add(-36 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	seedSession(t, store, "sess-old", models.SessionStatusCompleted, timePtr(old))
	seedSession(t, store, "sess-recent", models.SessionStatusCompleted, timePtr(recent))
	seedSession(t, store, "sess-active", models.SessionStatusActive, nil)

	seedEvaluation(t, store, "eval-old", timePtr(old))
	seedEvaluation(t, store, "eval-recent", timePtr(recent))
	seedEvaluation(t, store, "eval-open", nil)

	svc := NewService(config.RetentionConfig{
		SessionRetention:    24 * time.Hour,
		EvaluationRetention: 24 * time.Hour,
		CleanupInterval:     time.Hour,
	}, sessions, store)

	svc.runAll(context.Background())

	remaining, err := store.ListSessions(context.Background(), database.SessionFilter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, sess := range remaining {
		ids = append(ids, sess.ID)
	}
	assert.ElementsMatch(t, []string{"sess-recent", "sess-active"}, ids)

	gone, err := store.GetEvaluation(context.Background(), "eval-old")
	require.NoError(t, err)
	assert.Nil(t, gone)
	for _, id := range []string{"eval-recent", "eval-open"} {
		kept, err := store.GetEvaluation(context.Background(), id)
		require.NoError(t, err)
		assert.NotNil(t, kept, id)
	}
}

func TestRunAllEvictsPrunedSessionsFromCache(t *testing.T) {
	store := database.NewMemoryStore()
	sessions := services.NewSessionService(store, events.NewPublisher(events.NewHub(0)))

	seedSession(t, store, "sess-old", models.SessionStatusCompleted,
		timePtr(time.Now().Add(-36*time.Hour)))

	// Warm the cache.
	_, err := sessions.Get(context.Background(), "sess-old")
	require.NoError(t, err)
	require.Equal(t, 1, sessions.CachedCount())

	svc := NewService(config.RetentionConfig{
		SessionRetention: 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}, sessions, store)
	svc.runAll(context.Background())

	assert.Equal(t, 0, sessions.CachedCount())
}

func TestZeroRetentionDisablesPruning(t *testing.T) {
	store := database.NewMemoryStore()
	sessions := services.NewSessionService(store, events.NewPublisher(events.NewHub(0)))

	old := time.Now().Add(-365 * 24 * time.Hour)
	seedSession(t, store, "sess-old", models.SessionStatusCompleted, timePtr(old))
	seedEvaluation(t, store, "eval-old", timePtr(old))

	svc := NewService(config.RetentionConfig{CleanupInterval: time.Hour}, sessions, store)
	svc.runAll(context.Background())

	remaining, err := store.ListSessions(context.Background(), database.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	kept, err := store.GetEvaluation(context.Background(), "eval-old")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestStartRunsSweepUntilStopped(t *testing.T) {
	store := database.NewMemoryStore()
	sessions := services.NewSessionService(store, events.NewPublisher(events.NewHub(0)))

	seedSession(t, store, "sess-old", models.SessionStatusCompleted,
		timePtr(time.Now().Add(-36*time.Hour)))

	svc := NewService(config.RetentionConfig{
		SessionRetention: 24 * time.Hour,
		CleanupInterval:  10 * time.Millisecond,
	}, sessions, store)
	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		remaining, err := store.ListSessions(context.Background(), database.SessionFilter{})
		return err == nil && len(remaining) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStartWithoutIntervalIsDisabled(t *testing.T) {
	store := database.NewMemoryStore()
	sessions := services.NewSessionService(store, events.NewPublisher(events.NewHub(0)))

	svc := NewService(config.RetentionConfig{SessionRetention: 24 * time.Hour}, sessions, store)
	svc.Start(context.Background())

	// Stop on a never-started service must not block.
	svc.Stop()
}
