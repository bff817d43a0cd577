package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocintel/dispatch/pkg/knowledge"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/services"
)

func TestCreateAgent(t *testing.T) {
	d := New(nil)
	agent, err := d.Create(CreateAgentParams{Name: "Sam", Tier: 2})
	require.NoError(t, err)

	assert.NotEmpty(t, agent.ID)
	// Fresh agents are dispatchable immediately.
	assert.Equal(t, models.AgentStatusAvailable, agent.Status)
	assert.False(t, agent.LastAvailable.IsZero())
	assert.Equal(t, 1, agent.Availability.MaxConcurrentSessions)
	assert.Equal(t, []int{3, 4}, agent.EscalationAuthority.CanEscalateTo)
	assert.False(t, agent.EscalationAuthority.CanApproveEscalations)
	assert.Equal(t, 200, agent.EscalationAuthority.MaxCompensation)
}

func TestCreateAgentDerivesKnowledgeGrants(t *testing.T) {
	catalog := knowledge.NewRegistry([]models.KnowledgeEntry{
		{ID: "kb-basic", Title: "Basics", AccessTier: 1},
		{ID: "kb-fraud", Title: "Fraud playbook", AccessTier: 3},
	})
	d := New(catalog)

	junior, err := d.Create(CreateAgentParams{Name: "Junior", Tier: 1})
	require.NoError(t, err)
	require.Len(t, junior.KnowledgeAccess, 1)
	assert.Equal(t, "kb-basic", junior.KnowledgeAccess[0].KnowledgeID)
	assert.True(t, junior.KnowledgeAccess[0].CanRead)
	assert.False(t, junior.KnowledgeAccess[0].CanEdit)

	senior, err := d.Create(CreateAgentParams{Name: "Senior", Tier: 3})
	require.NoError(t, err)
	require.Len(t, senior.KnowledgeAccess, 2)
	for _, grant := range senior.KnowledgeAccess {
		assert.True(t, grant.CanEdit)
		assert.False(t, grant.CanApprove)
	}

	supervisor, err := d.Create(CreateAgentParams{Name: "Supervisor", Tier: 4})
	require.NoError(t, err)
	require.Len(t, supervisor.KnowledgeAccess, 2)
	assert.True(t, supervisor.KnowledgeAccess[0].CanApprove)
}

func TestCreateAgentValidation(t *testing.T) {
	d := New(nil)

	_, err := d.Create(CreateAgentParams{Tier: 1})
	assert.True(t, services.IsValidationError(err))

	_, err = d.Create(CreateAgentParams{Name: "Sam", Tier: 5})
	assert.True(t, services.IsValidationError(err))

	_, err = d.Create(CreateAgentParams{Name: "Sam", Tier: -1})
	assert.True(t, services.IsValidationError(err))
}

func TestAuthorityByTier(t *testing.T) {
	tests := []struct {
		tier            int
		canEscalateTo   []int
		canApprove      bool
		maxCompensation int
	}{
		{0, []int{1, 2, 3, 4}, false, 0},
		{1, []int{2, 3, 4}, false, 50},
		{3, []int{4}, true, 1000},
		{4, nil, true, 1000},
	}
	for _, tt := range tests {
		auth := computeAuthority(tt.tier)
		assert.Equal(t, tt.canEscalateTo, auth.CanEscalateTo, "tier %d", tt.tier)
		assert.Equal(t, tt.canApprove, auth.CanApproveEscalations, "tier %d", tt.tier)
		assert.Equal(t, tt.maxCompensation, auth.MaxCompensation, "tier %d", tt.tier)
		assert.False(t, auth.MayEscalateTo(tt.tier))
	}
	assert.True(t, computeAuthority(1).MayEscalateTo(4))
}

func TestUpdateStatusRules(t *testing.T) {
	d := New(nil)
	agent, err := d.Create(CreateAgentParams{Name: "Sam", Tier: 1})
	require.NoError(t, err)

	// Busy without a session id is invalid.
	_, err = d.UpdateStatus(agent.ID, models.AgentStatusBusy, "")
	assert.True(t, services.IsValidationError(err))

	busy, err := d.UpdateStatus(agent.ID, models.AgentStatusBusy, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", busy.CurrentSessionID)

	avail, err := d.UpdateStatus(agent.ID, models.AgentStatusAvailable, "")
	require.NoError(t, err)
	assert.Empty(t, avail.CurrentSessionID)
	assert.False(t, avail.LastAvailable.IsZero())

	_, err = d.UpdateStatus(agent.ID, models.AgentStatus("bogus"), "")
	assert.True(t, services.IsValidationError(err))

	_, err = d.UpdateStatus("agent-missing", models.AgentStatusAvailable, "")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestClaimAndRelease(t *testing.T) {
	d := New(nil)
	agent, err := d.Create(CreateAgentParams{Name: "Sam", Tier: 1})
	require.NoError(t, err)

	// Agents off the floor cannot be claimed.
	_, err = d.UpdateStatus(agent.ID, models.AgentStatusOffline, "")
	require.NoError(t, err)
	_, err = d.Claim(agent.ID, "session-1")
	assert.ErrorIs(t, err, services.ErrConflict)

	_, err = d.UpdateStatus(agent.ID, models.AgentStatusAvailable, "")
	require.NoError(t, err)

	claimed, err := d.Claim(agent.ID, "session-1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusBusy, claimed.Status)
	assert.Equal(t, 1, claimed.Performance.TotalSessions)

	// Double claim conflicts.
	_, err = d.Claim(agent.ID, "session-2")
	assert.ErrorIs(t, err, services.ErrConflict)

	released, err := d.Release(agent.ID, true, true, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusAvailable, released.Status)
	assert.Equal(t, 1, released.Performance.ResolvedSessions)
	assert.Equal(t, 10*time.Minute, released.Performance.AverageResolutionTime)
	assert.Equal(t, 1.0, released.Performance.FirstContactResolution)

	// An escalated handoff dilutes the first-contact ratio.
	_, err = d.Claim(agent.ID, "session-2")
	require.NoError(t, err)
	handedOff, err := d.Release(agent.ID, false, false, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0.5, handedOff.Performance.FirstContactResolution)
}

func TestSelectAvailablePrefersHighestTierThenLongestIdle(t *testing.T) {
	d := New(nil)

	t1a, _ := d.Create(CreateAgentParams{Name: "A", Tier: 1})
	time.Sleep(2 * time.Millisecond)
	t1b, _ := d.Create(CreateAgentParams{Name: "B", Tier: 1})
	t3, _ := d.Create(CreateAgentParams{Name: "C", Tier: 3})

	// Nobody available once everyone steps off the floor.
	for _, id := range []string{t1a.ID, t1b.ID, t3.ID} {
		_, err := d.UpdateStatus(id, models.AgentStatusOffline, "")
		require.NoError(t, err)
	}
	assert.Nil(t, d.SelectAvailable(1))

	_, err := d.UpdateStatus(t1a.ID, models.AgentStatusAvailable, "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = d.UpdateStatus(t1b.ID, models.AgentStatusAvailable, "")
	require.NoError(t, err)
	_, err = d.UpdateStatus(t3.ID, models.AgentStatusAvailable, "")
	require.NoError(t, err)

	// Highest tier wins.
	selected := d.SelectAvailable(1)
	require.NotNil(t, selected)
	assert.Equal(t, t3.ID, selected.ID)

	// Minimum tier is honored.
	assert.Nil(t, d.SelectAvailable(4))

	// Within a tier, longest idle wins.
	selected = d.SelectAvailableAt(1)
	require.NotNil(t, selected)
	assert.Equal(t, t1a.ID, selected.ID)
}

func TestQualityScoreComposite(t *testing.T) {
	p := models.AgentPerformance{
		TotalSessions:          10,
		EscalatedSessions:      2,
		CustomerSatisfaction:   4.5,
		FirstContactResolution: 0.8,
		QualityScore:           90,
	}
	// 0.30*90 + 0.25*80 + 0.25*90 + 0.20*80 = 85.5, rounds to 86.
	assert.Equal(t, 86.0, QualityScore(p))

	// No sessions yet: escalation avoidance defaults to perfect.
	fresh := models.AgentPerformance{}
	assert.Equal(t, 20.0, QualityScore(fresh))
}

func TestListFiltersByStatus(t *testing.T) {
	d := New(nil)
	a, _ := d.Create(CreateAgentParams{Name: "A", Tier: 1})
	b, _ := d.Create(CreateAgentParams{Name: "B", Tier: 2})

	_, err := d.UpdateStatus(b.ID, models.AgentStatusOffline, "")
	require.NoError(t, err)

	all := d.List("")
	assert.Len(t, all, 2)
	// Sorted by tier descending.
	assert.Equal(t, 2, all[0].Tier)

	available := d.List(models.AgentStatusAvailable)
	require.Len(t, available, 1)
	assert.Equal(t, a.ID, available[0].ID)
}
