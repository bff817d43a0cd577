package models

import "time"

// AgentStatus is the availability state of a support agent.
type AgentStatus string

// Agent statuses.
const (
	AgentStatusAvailable AgentStatus = "available"
	AgentStatusBusy      AgentStatus = "busy"
	AgentStatusOffline   AgentStatus = "offline"
	AgentStatusTraining  AgentStatus = "training"
	AgentStatusBreak     AgentStatus = "break"
)

// Valid reports whether the status is known.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusAvailable, AgentStatusBusy, AgentStatusOffline, AgentStatusTraining, AgentStatusBreak:
		return true
	}
	return false
}

// Tier bounds for agents. Tier 0 is self-service automation, tier 4 is
// supervisor/manager.
const (
	MinAgentTier = 0
	MaxAgentTier = 4
)

// AgentAvailability holds capacity settings for an agent.
type AgentAvailability struct {
	MaxConcurrentSessions int `json:"max_concurrent_sessions"`
}

// AgentPerformance holds the running performance counters for an agent.
type AgentPerformance struct {
	TotalSessions         int           `json:"total_sessions"`
	ResolvedSessions      int           `json:"resolved_sessions"`
	EscalatedSessions     int           `json:"escalated_sessions"`
	AverageResolutionTime time.Duration `json:"average_resolution_time"`
	// CustomerSatisfaction is a 0..5 rating.
	CustomerSatisfaction float64 `json:"customer_satisfaction"`
	// FirstContactResolution is a 0..1 ratio.
	FirstContactResolution float64 `json:"first_contact_resolution"`
	AverageHandleTime      time.Duration `json:"average_handle_time"`
	// QualityScore is the 0..100 QA-derived score.
	QualityScore float64 `json:"quality_score"`
}

// KnowledgeAccess is one entry of an agent's derived knowledge-base grant.
type KnowledgeAccess struct {
	KnowledgeID string `json:"knowledge_id"`
	CanRead     bool   `json:"can_read"`
	CanEdit     bool   `json:"can_edit"`
	CanApprove  bool   `json:"can_approve"`
}

// EscalationAuthority is derived strictly from an agent's tier.
type EscalationAuthority struct {
	// CanEscalateTo lists the tiers strictly above the agent's own, up to 4.
	CanEscalateTo        []int `json:"can_escalate_to"`
	CanApproveEscalations bool `json:"can_approve_escalations"`
	CanOverridePolicies   bool `json:"can_override_policies"`
	// MaxCompensation is the per-tier compensation ceiling in dollars.
	MaxCompensation int `json:"max_compensation"`
}

// MayEscalateTo reports whether toTier is within the authority.
func (a EscalationAuthority) MayEscalateTo(toTier int) bool {
	for _, t := range a.CanEscalateTo {
		if t == toTier {
			return true
		}
	}
	return false
}

// Agent is a member of the support organisation, human or automated.
type Agent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Tier  int    `json:"tier"`

	Status          AgentStatus `json:"status"`
	CurrentSessionID string     `json:"current_session_id,omitempty"`
	SupervisorID    string      `json:"supervisor_id,omitempty"`

	Skills          []string `json:"skills,omitempty"`
	Certifications  []string `json:"certifications,omitempty"`
	TrainingHistory []string `json:"training_history,omitempty"`

	Availability AgentAvailability `json:"availability"`
	Performance  AgentPerformance  `json:"performance"`

	KnowledgeAccess     []KnowledgeAccess   `json:"knowledge_access,omitempty"`
	EscalationAuthority EscalationAuthority `json:"escalation_authority"`

	// LastAvailable is the instant the agent last became available; the
	// dispatcher uses it as the selection tiebreak.
	LastAvailable time.Time `json:"last_available"`
}

// Clone returns a deep copy safe to hand to readers.
func (a *Agent) Clone() *Agent {
	out := *a
	out.Skills = append([]string(nil), a.Skills...)
	out.Certifications = append([]string(nil), a.Certifications...)
	out.TrainingHistory = append([]string(nil), a.TrainingHistory...)
	out.KnowledgeAccess = append([]KnowledgeAccess(nil), a.KnowledgeAccess...)
	out.EscalationAuthority.CanEscalateTo = append([]int(nil), a.EscalationAuthority.CanEscalateTo...)
	return &out
}
