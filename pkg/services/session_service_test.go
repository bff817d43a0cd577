package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/models"
)

func TestCreateSession(t *testing.T) {
	svc, store, hub := newTestService()
	sub := hub.Subscribe(events.KindSessionCreated)
	defer sub.Close()

	sess, err := svc.Create(context.Background(), CreateSessionParams{
		Customer:       testCustomer(),
		Category:       "billing",
		Urgency:        models.UrgencyNormal,
		PromptID:       "general-support",
		InitialMessage: "my invoice is wrong",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, models.SessionStatusWaiting, sess.Status)
	assert.Equal(t, 1, sess.Tier)
	assert.Equal(t, 1, sess.Priority)
	assert.Equal(t, 1, sess.Context.CurrentStep)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, models.RoleCustomer, sess.Messages[0].Role)

	// Write-through: the store row exists immediately.
	stored, err := store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	// Profile created with counters.
	profile, err := store.GetProfile(context.Background(), "cust-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 1, profile.TotalSessions)

	ev := <-sub.Events()
	assert.Equal(t, events.KindSessionCreated, ev.Kind)
	assert.Equal(t, sess.ID, ev.SessionID)
}

func TestCreateSessionPriorityComputation(t *testing.T) {
	tests := []struct {
		name     string
		tier     models.CustomerTier
		urgency  models.Urgency
		category string
		want     int
	}{
		{"standard normal", models.CustomerTierStandard, models.UrgencyNormal, "", 1},
		{"vip high", models.CustomerTierVIP, models.UrgencyHigh, "", 6},
		{"premium critical crypto clamps at 10", models.CustomerTierPremium, models.UrgencyCritical, "crypto_theft", 10},
		{"standard onboarding", models.CustomerTierStandard, models.UrgencyNormal, "onboarding", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService()
			customer := testCustomer()
			customer.Tier = tt.tier
			sess, err := svc.Create(context.Background(), CreateSessionParams{
				Customer: customer,
				Category: tt.category,
				Urgency:  tt.urgency,
				PromptID: "general-support",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, sess.Priority)
		})
	}
}

func TestCreateSessionValidation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateSessionParams{
		Customer: models.Customer{Name: "No ID"},
		PromptID: "general-support",
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = svc.Create(context.Background(), CreateSessionParams{
		Customer: testCustomer(),
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestGetUnknownSession(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Get(context.Background(), "session-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessage(t *testing.T) {
	svc, store, _ := newTestService()
	sess := mustCreate(t, svc)

	updated, err := svc.AppendMessage(context.Background(), sess.ID, models.Message{
		Role:    models.RoleCustomer,
		Content: "hello?",
	})
	require.NoError(t, err)
	require.Len(t, updated.Messages, 1)
	assert.NotEmpty(t, updated.Messages[0].ID)
	assert.False(t, updated.Messages[0].Timestamp.IsZero())

	stored, err := store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
}

func TestAppendMessageToCompletedSession(t *testing.T) {
	svc, _, _ := newTestService()
	sess := mustCreate(t, svc)

	_, err := svc.Complete(context.Background(), sess.ID, "resolved")
	require.NoError(t, err)

	_, err = svc.AppendMessage(context.Background(), sess.ID, models.Message{
		Role:    models.RoleCustomer,
		Content: "one more thing",
	})
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestAssignSession(t *testing.T) {
	svc, _, hub := newTestService()
	sub := hub.Subscribe(events.KindSessionAssigned)
	defer sub.Close()

	sess := mustCreate(t, svc)
	agent := &models.Agent{ID: "agent-1", Tier: 1}

	updated, err := svc.Assign(context.Background(), sess.ID, agent)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, updated.Status)
	assert.Equal(t, "agent-1", updated.AssignedAgentID)
	require.NotNil(t, updated.AssignedAt)
	require.Len(t, updated.Context.StatusChanges, 1)

	// Double assignment conflicts.
	_, err = svc.Assign(context.Background(), sess.ID, &models.Agent{ID: "agent-2", Tier: 1})
	assert.ErrorIs(t, err, ErrConflict)

	ev := <-sub.Events()
	assert.Equal(t, events.KindSessionAssigned, ev.Kind)
}

func TestCompleteSessionIsIdempotent(t *testing.T) {
	svc, _, hub := newTestService()
	sub := hub.Subscribe(events.KindSessionCompleted)
	defer sub.Close()

	sess := mustCreate(t, svc)

	first, err := svc.Complete(context.Background(), sess.ID, "resolved")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, first.Status)
	require.NotNil(t, first.CompletedAt)
	assert.GreaterOrEqual(t, first.ResolutionTime, time.Duration(0))

	second, err := svc.Complete(context.Background(), sess.ID, "resolved again")
	require.NoError(t, err)
	assert.Equal(t, first.CompletedAt.Unix(), second.CompletedAt.Unix())

	// Only one completion event.
	<-sub.Events()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected second completion event: %+v", ev)
	default:
	}
}

func TestCompleteUpdatesProfileCounters(t *testing.T) {
	svc, store, _ := newTestService()
	sess := mustCreate(t, svc)

	_, err := svc.Complete(context.Background(), sess.ID, "resolved")
	require.NoError(t, err)

	profile, err := store.GetProfile(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.ResolvedIssues)
}

func TestEscalateSession(t *testing.T) {
	svc, store, _ := newTestService()
	sess := mustCreate(t, svc)

	_, err := svc.Assign(context.Background(), sess.ID, &models.Agent{ID: "agent-1", Tier: 1})
	require.NoError(t, err)

	deadline := time.Now().Add(30 * time.Minute)
	updated, err := svc.Escalate(context.Background(), sess.ID, models.EscalationEvent{
		Timestamp: time.Now(),
		Reason:    "customer mentioned a lawyer",
		FromTier:  1,
		ToTier:    4,
		RuleID:    "legal_issue",
		Priority:  models.RulePriorityCritical,
		SLA:       deadline,
	}, sess.Priority+1)
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusEscalated, updated.Status)
	assert.Equal(t, 4, updated.Tier)
	assert.Equal(t, sess.Priority+1, updated.Priority)
	assert.Empty(t, updated.AssignedAgentID)
	require.NotNil(t, updated.EscalationSLA)
	require.Len(t, updated.EscalationHistory, 1)
	assert.Equal(t, "legal_issue", updated.EscalationHistory[0].RuleID)
	require.NotEmpty(t, updated.Context.TierChanges)

	profile, err := store.GetProfile(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.EscalatedIssues)
}

func TestEscalatePriorityClamped(t *testing.T) {
	svc, _, _ := newTestService()
	sess := mustCreate(t, svc)

	updated, err := svc.Escalate(context.Background(), sess.ID, models.EscalationEvent{
		Reason:   "bump",
		FromTier: 1,
		ToTier:   2,
		RuleID:   "threshold_reached",
		Priority: models.RulePriorityMedium,
	}, 99)
	require.NoError(t, err)
	assert.Equal(t, models.MaxPriority, updated.Priority)
}

func TestRecoverState(t *testing.T) {
	svc, store, _ := newTestService()

	waiting := mustCreate(t, svc)
	active := mustCreate(t, svc)
	_, err := svc.Assign(context.Background(), active.ID, &models.Agent{ID: "agent-1", Tier: 1})
	require.NoError(t, err)
	escalated := mustCreate(t, svc)
	_, err = svc.Escalate(context.Background(), escalated.ID, models.EscalationEvent{
		Reason: "stolen funds", FromTier: 1, ToTier: 3,
		RuleID: "crypto_theft_urgent", Priority: models.RulePriorityHigh,
	}, 5)
	require.NoError(t, err)
	completed := mustCreate(t, svc)
	_, err = svc.Complete(context.Background(), completed.ID, "resolved")
	require.NoError(t, err)

	// Fresh service over the same store simulates restart.
	restarted := NewSessionService(store, events.NewPublisher(events.NewHub(0)))
	reenqueue, err := restarted.RecoverState(context.Background())
	require.NoError(t, err)

	ids := make(map[string]bool, len(reenqueue))
	for _, s := range reenqueue {
		ids[s.ID] = true
	}
	assert.True(t, ids[waiting.ID], "waiting session should re-enqueue")
	assert.True(t, ids[escalated.ID], "unassigned escalated session should re-enqueue")
	assert.False(t, ids[active.ID], "assigned active session should not re-enqueue")
	assert.False(t, ids[completed.ID], "completed session should not re-enqueue")

	// Active session is back in the working set.
	assert.Equal(t, 3, restarted.CachedCount())
}

func TestUpdateMutatesContext(t *testing.T) {
	svc, store, _ := newTestService()
	sess := mustCreate(t, svc)

	updated, err := svc.Update(context.Background(), sess.ID, func(s *models.Session) error {
		s.Context.ExtractedFields["victim_email"] = "jane@example.com"
		s.Context.CurrentStep = 2
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Context.CurrentStep)
	assert.Equal(t, "jane@example.com", updated.Context.ExtractedFields["victim_email"])

	stored, err := store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Context.CurrentStep)
}

func mustCreate(t *testing.T, svc *SessionService) *models.Session {
	t.Helper()
	sess, err := svc.Create(context.Background(), CreateSessionParams{
		Customer: testCustomer(),
		PromptID: "general-support",
	})
	require.NoError(t, err)
	return sess
}
