package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/database"
	"github.com/ocintel/dispatch/pkg/directory"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/queue"
	"github.com/ocintel/dispatch/pkg/services"
)

func testRules() []models.EscalationRule {
	return []models.EscalationRule{
		{
			ID: "legal_issue", Name: "Legal issue",
			Triggers: []string{"legal", "lawyer", "attorney"},
			FromTier: 1, ToTier: 4,
			Priority: models.RulePriorityCritical, AutoEscalate: true,
			SLA: 30 * time.Minute,
		},
		{
			ID: "crypto_theft_urgent", Name: "Crypto theft",
			Triggers: []string{"stolen", "theft", "hacked"},
			FromTier: 1, ToTier: 3,
			Priority: models.RulePriorityHigh, AutoEscalate: true,
			SLA: time.Hour,
		},
		{
			ID: "threshold_reached", Name: "Conversation threshold",
			Triggers: []string{"threshold", "message limit", "completion"},
			FromTier: 1, ToTier: 2,
			Priority: models.RulePriorityMedium, AutoEscalate: true,
			SLA: 2 * time.Hour,
		},
		{
			ID: "threshold_reached_t2", Name: "Conversation threshold tier 2",
			Triggers: []string{"threshold", "message limit", "completion"},
			FromTier: 2, ToTier: 3,
			Priority: models.RulePriorityMedium, AutoEscalate: true,
			SLA: 2 * time.Hour,
		},
	}
}

type engineFixture struct {
	engine     *Engine
	agents     *directory.Directory
	sessions   *services.SessionService
	dispatcher *queue.Dispatcher
	hub        *events.Hub
}

func newEngineFixture(t *testing.T, autoReenqueue bool) *engineFixture {
	t.Helper()
	hub := events.NewHub(0)
	publisher := events.NewPublisher(hub)
	sessions := services.NewSessionService(database.NewMemoryStore(), publisher)
	agents := directory.New(nil)
	dispatcher := queue.NewDispatcher(queue.NewPriorityQueue(), agents, sessions, publisher, config.QueueConfig{
		BackpressureSoftLimit:   50,
		GracefulShutdownTimeout: 5 * time.Second,
	})
	engine := NewEngine(testRules(), agents, sessions, dispatcher, publisher, autoReenqueue)
	return &engineFixture{engine: engine, agents: agents, sessions: sessions, dispatcher: dispatcher, hub: hub}
}

func (f *engineFixture) createSession(t *testing.T) *models.Session {
	t.Helper()
	sess, err := f.sessions.Create(context.Background(), services.CreateSessionParams{
		Customer: models.Customer{ID: "cust-1", Name: "Jane Doe", Tier: models.CustomerTierStandard},
		PromptID: "general-support",
	})
	require.NoError(t, err)
	return sess
}

func (f *engineFixture) agentAt(t *testing.T, tier int) *models.Agent {
	t.Helper()
	agent, err := f.agents.Create(directory.CreateAgentParams{Name: "Agent", Tier: tier})
	require.NoError(t, err)
	_, err = f.agents.UpdateStatus(agent.ID, models.AgentStatusAvailable, "")
	require.NoError(t, err)
	return agent
}

func TestFindRuleFirstMatchAtTier(t *testing.T) {
	f := newEngineFixture(t, true)

	rule := f.engine.FindRule("Customer mentioned their LAWYER and stolen funds", 1)
	require.NotNil(t, rule)
	assert.Equal(t, "legal_issue", rule.ID, "rule order decides when several triggers match")

	rule = f.engine.FindRule("completion threshold reached", 2)
	require.NotNil(t, rule)
	assert.Equal(t, "threshold_reached_t2", rule.ID)

	assert.Nil(t, f.engine.FindRule("just a question", 1))
	assert.Nil(t, f.engine.FindRule("stolen funds", 4), "no rules from top tier")
}

func TestHandleEscalationNoMatchingRule(t *testing.T) {
	f := newEngineFixture(t, true)
	sess := f.createSession(t)

	_, err := f.engine.HandleEscalation(context.Background(), sess.ID, "nothing relevant")
	assert.ErrorIs(t, err, ErrNoMatchingRule)
}

func TestHandleEscalationReenqueuesWhenNoAgentAtTier(t *testing.T) {
	f := newEngineFixture(t, true)
	sub := f.hub.Subscribe(events.KindSessionEscalated)
	defer sub.Close()

	sess := f.createSession(t)
	res, err := f.engine.HandleEscalation(context.Background(), sess.ID, "funds were stolen from my wallet")
	require.NoError(t, err)

	assert.Equal(t, "crypto_theft_urgent", res.Rule.ID)
	assert.False(t, res.Reassigned)
	assert.Equal(t, models.SessionStatusEscalated, res.Session.Status)
	assert.Equal(t, 3, res.Session.Tier)
	assert.Equal(t, sess.Priority+1, res.Session.Priority)
	require.NotNil(t, res.Session.EscalationSLA)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *res.Session.EscalationSLA, 5*time.Second)
	require.Len(t, res.Session.EscalationHistory, 1)
	assert.Equal(t, 1, res.Session.EscalationHistory[0].FromTier)

	assert.Equal(t, 1, f.dispatcher.Depth())
	assert.Equal(t, 1, f.dispatcher.Position(sess.ID))

	ev := <-sub.Events()
	payload, ok := ev.Payload.(events.SessionEscalatedPayload)
	require.True(t, ok)
	assert.Equal(t, "crypto_theft_urgent", payload.RuleID)
	assert.False(t, payload.Reassigned)
}

func TestHandleEscalationReassignsAtExactTier(t *testing.T) {
	f := newEngineFixture(t, true)
	f.agentAt(t, 4) // higher tier must not be picked for immediate handoff
	target := f.agentAt(t, 3)

	sess := f.createSession(t)
	res, err := f.engine.HandleEscalation(context.Background(), sess.ID, "account hacked")
	require.NoError(t, err)

	assert.True(t, res.Reassigned)
	assert.Equal(t, target.ID, res.AgentID)
	assert.Equal(t, models.SessionStatusActive, res.Session.Status)
	assert.Equal(t, target.ID, res.Session.AssignedAgentID)
	assert.Equal(t, 3, res.Session.Tier)
	assert.Equal(t, 0, f.dispatcher.Depth())

	busy, err := f.agents.Get(target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusBusy, busy.Status)
}

func TestHandleEscalationReleasesPreviousAgent(t *testing.T) {
	f := newEngineFixture(t, true)
	prev := f.agentAt(t, 1)

	sess := f.createSession(t)
	_, err := f.sessions.Assign(context.Background(), sess.ID, prev)
	require.NoError(t, err)
	_, err = f.agents.Claim(prev.ID, sess.ID)
	require.NoError(t, err)

	res, err := f.engine.HandleEscalation(context.Background(), sess.ID, "wallet theft")
	require.NoError(t, err)
	assert.False(t, res.Reassigned)

	released, err := f.agents.Get(prev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusAvailable, released.Status)
	assert.Empty(t, released.CurrentSessionID)
	assert.Equal(t, 1, released.Performance.EscalatedSessions)
}

func TestHandleEscalationAuthorityCheck(t *testing.T) {
	f := newEngineFixture(t, true)
	// A tier-4 agent cannot escalate anywhere; canEscalateTo is empty.
	top := f.agentAt(t, 4)

	sess := f.createSession(t)
	_, err := f.sessions.Assign(context.Background(), sess.ID, top)
	require.NoError(t, err)

	_, err = f.engine.HandleEscalation(context.Background(), sess.ID, "legal threat")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	unchanged, err := f.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.Tier)
	assert.Empty(t, unchanged.EscalationHistory)
}

func TestHandleEscalationPriorityClamped(t *testing.T) {
	f := newEngineFixture(t, true)
	sess, err := f.sessions.Create(context.Background(), services.CreateSessionParams{
		Customer: models.Customer{ID: "cust-2", Name: "Vip", Tier: models.CustomerTierVIP},
		Category: "crypto_theft",
		Urgency:  models.UrgencyCritical,
		PromptID: "general-support",
	})
	require.NoError(t, err)
	require.Equal(t, models.MaxPriority, sess.Priority)

	res, err := f.engine.HandleEscalation(context.Background(), sess.ID, "stolen crypto")
	require.NoError(t, err)
	assert.Equal(t, models.MaxPriority, res.Session.Priority)
}

func TestHandleEscalationWithoutAutoReenqueue(t *testing.T) {
	f := newEngineFixture(t, false)
	sess := f.createSession(t)

	res, err := f.engine.HandleEscalation(context.Background(), sess.ID, "stolen funds")
	require.NoError(t, err)
	assert.False(t, res.Reassigned)
	assert.Equal(t, models.SessionStatusEscalated, res.Session.Status)
	assert.Equal(t, 0, f.dispatcher.Depth(), "session stays out of the queue")
}
