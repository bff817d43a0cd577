// Package directory maintains the in-memory agent roster: registration,
// status transitions, derived escalation authority, and performance rollups.
package directory

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/ident"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/services"
)

// maxCompensationByTier is the per-tier compensation ceiling in dollars.
var maxCompensationByTier = map[int]int{
	0: 0,
	1: 50,
	2: 200,
	3: 1000,
	4: 1000,
}

// Catalog enumerates the knowledge entries visible at a tier. Satisfied by
// *knowledge.Registry.
type Catalog interface {
	ListForTier(readerTier int) []*models.AnnotatedKnowledgeEntry
}

// Directory is the authoritative in-memory agent registry. The roster is
// operational state, rebuilt by re-registration after a restart.
type Directory struct {
	catalog Catalog

	mu     sync.RWMutex
	agents map[string]*models.Agent
}

// New creates an empty directory. catalog may be nil; agents then register
// without knowledge grants.
func New(catalog Catalog) *Directory {
	return &Directory{catalog: catalog, agents: make(map[string]*models.Agent)}
}

// CreateAgentParams carries validated registration input.
type CreateAgentParams struct {
	Name                  string
	Email                 string
	Tier                  int
	SupervisorID          string
	Skills                []string
	Certifications        []string
	MaxConcurrentSessions int
}

// Create registers a new agent. Agents enter the roster available, with the
// tiebreak clock stamped, so the dispatcher can consider them immediately.
func (d *Directory) Create(params CreateAgentParams) (*models.Agent, error) {
	if params.Name == "" {
		return nil, services.NewValidationError("name", "required")
	}
	if params.Tier < models.MinAgentTier || params.Tier > models.MaxAgentTier {
		return nil, services.NewValidationError("tier",
			fmt.Sprintf("must be between %d and %d", models.MinAgentTier, models.MaxAgentTier))
	}
	if params.MaxConcurrentSessions <= 0 {
		params.MaxConcurrentSessions = 1
	}

	agent := &models.Agent{
		ID:             ident.New(ident.KindAgent),
		Name:           params.Name,
		Email:          params.Email,
		Tier:           params.Tier,
		Status:         models.AgentStatusAvailable,
		LastAvailable:  time.Now(),
		SupervisorID:   params.SupervisorID,
		Skills:         params.Skills,
		Certifications: params.Certifications,
		Availability: models.AgentAvailability{
			MaxConcurrentSessions: params.MaxConcurrentSessions,
		},
		EscalationAuthority: computeAuthority(params.Tier),
	}
	agent.KnowledgeAccess = d.knowledgeGrants(params.Tier)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[agent.ID] = agent

	slog.Info("Agent registered", "agent_id", agent.ID, "tier", agent.Tier)
	return agent.Clone(), nil
}

// knowledgeGrants snapshots the knowledge base entries a tier can see at
// registration time.
func (d *Directory) knowledgeGrants(tier int) []models.KnowledgeAccess {
	if d.catalog == nil {
		return nil
	}
	entries := d.catalog.ListForTier(tier)
	if len(entries) == 0 {
		return nil
	}
	grants := make([]models.KnowledgeAccess, 0, len(entries))
	for _, e := range entries {
		grants = append(grants, models.KnowledgeAccess{
			KnowledgeID: e.ID,
			CanRead:     true,
			CanEdit:     e.CanEdit,
			CanApprove:  e.CanApprove,
		})
	}
	return grants
}

// Get returns a deep copy of the agent.
func (d *Directory) Get(agentID string) (*models.Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	agent, ok := d.agents[agentID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return agent.Clone(), nil
}

// List returns all agents sorted by tier descending then name, optionally
// filtered by status.
func (d *Directory) List(status models.AgentStatus) []*models.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*models.Agent, 0, len(d.agents))
	for _, agent := range d.agents {
		if status != "" && agent.Status != status {
			continue
		}
		out = append(out, agent.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier > out[j].Tier
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// UpdateStatus transitions an agent between availability states.
// Going busy requires the session being worked; becoming available clears
// the current session and stamps the dispatcher tiebreak clock.
func (d *Directory) UpdateStatus(agentID string, status models.AgentStatus, currentSessionID string) (*models.Agent, error) {
	if !status.Valid() {
		return nil, services.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	if status == models.AgentStatusBusy && currentSessionID == "" {
		return nil, services.NewValidationError("current_session_id", "required when going busy")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	agent, ok := d.agents[agentID]
	if !ok {
		return nil, services.ErrNotFound
	}

	agent.Status = status
	switch status {
	case models.AgentStatusBusy:
		agent.CurrentSessionID = currentSessionID
	case models.AgentStatusAvailable:
		agent.CurrentSessionID = ""
		agent.LastAvailable = time.Now()
	default:
		agent.CurrentSessionID = ""
	}

	return agent.Clone(), nil
}

// Claim marks an available agent busy on a session. Used by the dispatcher
// for the atomic half of assignment; returns ErrConflict when the agent is
// no longer available.
func (d *Directory) Claim(agentID, sessionID string) (*models.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	agent, ok := d.agents[agentID]
	if !ok {
		return nil, services.ErrNotFound
	}
	if agent.Status != models.AgentStatusAvailable {
		return nil, services.ErrConflict
	}
	agent.Status = models.AgentStatusBusy
	agent.CurrentSessionID = sessionID
	agent.Performance.TotalSessions++
	return agent.Clone(), nil
}

// Unclaim reverts a Claim that never turned into an assignment. The agent
// returns to available and the claim's session counter is rolled back.
func (d *Directory) Unclaim(agentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	agent, ok := d.agents[agentID]
	if !ok {
		return services.ErrNotFound
	}
	if agent.Performance.TotalSessions > 0 {
		agent.Performance.TotalSessions--
	}
	agent.Status = models.AgentStatusAvailable
	agent.CurrentSessionID = ""
	agent.LastAvailable = time.Now()
	return nil
}

// Release returns a busy agent to available after their session ends.
// resolved notes whether the session completed (vs escalated away);
// firstContact marks a resolution without any escalation along the way.
func (d *Directory) Release(agentID string, resolved, firstContact bool, handleTime time.Duration) (*models.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	agent, ok := d.agents[agentID]
	if !ok {
		return nil, services.ErrNotFound
	}

	perf := &agent.Performance
	if resolved {
		prev := perf.ResolvedSessions
		perf.ResolvedSessions++
		total := perf.AverageResolutionTime*time.Duration(prev) + handleTime
		perf.AverageResolutionTime = total / time.Duration(perf.ResolvedSessions)
	} else {
		perf.EscalatedSessions++
	}
	if handled := perf.ResolvedSessions + perf.EscalatedSessions; handled > 0 {
		total := perf.AverageHandleTime*time.Duration(handled-1) + handleTime
		perf.AverageHandleTime = total / time.Duration(handled)

		fc := 0.0
		if resolved && firstContact {
			fc = 1
		}
		perf.FirstContactResolution = (perf.FirstContactResolution*float64(handled-1) + fc) / float64(handled)
	}

	agent.Status = models.AgentStatusAvailable
	agent.CurrentSessionID = ""
	agent.LastAvailable = time.Now()
	return agent.Clone(), nil
}

// SelectAvailable returns the best available agent for the given minimum
// tier: highest tier at or above minTier, longest-idle first within a tier.
// Returns nil when nobody qualifies.
func (d *Directory) SelectAvailable(minTier int) *models.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var best *models.Agent
	for _, agent := range d.agents {
		if agent.Status != models.AgentStatusAvailable || agent.Tier < minTier {
			continue
		}
		if best == nil {
			best = agent
			continue
		}
		if agent.Tier != best.Tier {
			if agent.Tier > best.Tier {
				best = agent
			}
			continue
		}
		if agent.LastAvailable.Before(best.LastAvailable) {
			best = agent
		}
	}
	if best == nil {
		return nil
	}
	return best.Clone()
}

// SelectAvailableAt returns the longest-idle available agent at exactly the
// given tier, or nil.
func (d *Directory) SelectAvailableAt(tier int) *models.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var best *models.Agent
	for _, agent := range d.agents {
		if agent.Status != models.AgentStatusAvailable || agent.Tier != tier {
			continue
		}
		if best == nil || agent.LastAvailable.Before(best.LastAvailable) {
			best = agent
		}
	}
	if best == nil {
		return nil
	}
	return best.Clone()
}

// RecordSatisfaction folds a 0..5 customer rating into the agent's running
// average.
func (d *Directory) RecordSatisfaction(agentID string, rating float64) error {
	if rating < 0 || rating > 5 {
		return services.NewValidationError("rating", "must be between 0 and 5")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	agent, ok := d.agents[agentID]
	if !ok {
		return services.ErrNotFound
	}
	// Simple exponential smoothing keeps the rolling feel without storing
	// every rating.
	if agent.Performance.CustomerSatisfaction == 0 {
		agent.Performance.CustomerSatisfaction = rating
	} else {
		agent.Performance.CustomerSatisfaction = agent.Performance.CustomerSatisfaction*0.8 + rating*0.2
	}
	return nil
}

// RecordQualityScore feeds a completed QA evaluation score (0..100) into the
// agent's performance record.
func (d *Directory) RecordQualityScore(agentID string, score float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	agent, ok := d.agents[agentID]
	if !ok {
		return services.ErrNotFound
	}
	if agent.Performance.QualityScore == 0 {
		agent.Performance.QualityScore = score
	} else {
		agent.Performance.QualityScore = agent.Performance.QualityScore*0.8 + score*0.2
	}
	return nil
}

// QualityScore computes the composite 0..100 quality metric:
// 30% satisfaction, 25% first-contact resolution, 25% QA score,
// 20% escalation avoidance. Rounded to the nearest integer.
func QualityScore(p models.AgentPerformance) float64 {
	escAvoidance := 1.0
	if p.TotalSessions > 0 {
		escAvoidance = 1 - float64(p.EscalatedSessions)/float64(p.TotalSessions)
	}
	score := 0.30*(p.CustomerSatisfaction/5)*100 +
		0.25*p.FirstContactResolution*100 +
		0.25*p.QualityScore +
		0.20*escAvoidance*100
	return math.Round(score)
}

// computeAuthority derives the escalation authority strictly from tier.
func computeAuthority(tier int) models.EscalationAuthority {
	var canEscalateTo []int
	for t := tier + 1; t <= models.MaxAgentTier; t++ {
		canEscalateTo = append(canEscalateTo, t)
	}
	return models.EscalationAuthority{
		CanEscalateTo:         canEscalateTo,
		CanApproveEscalations: tier >= 3,
		CanOverridePolicies:   tier >= 3,
		MaxCompensation:       maxCompensationByTier[tier],
	}
}
