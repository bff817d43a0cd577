// Package models defines the domain types shared across the dispatch core.
package models

import "time"

// SessionStatus represents the lifecycle state of a support session.
type SessionStatus string

// Session lifecycle states.
const (
	SessionStatusWaiting   SessionStatus = "waiting"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusEscalated SessionStatus = "escalated"
	SessionStatusCompleted SessionStatus = "completed"
)

// IsTerminal reports whether the status is a terminal state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted
}

// Valid reports whether the status is a known lifecycle state.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusActive, SessionStatusEscalated, SessionStatusCompleted:
		return true
	}
	return false
}

// CustomerTier classifies the customer relationship for priority scoring.
type CustomerTier string

// Customer tiers.
const (
	CustomerTierStandard  CustomerTier = "standard"
	CustomerTierPremium   CustomerTier = "premium"
	CustomerTierVIP       CustomerTier = "vip"
	CustomerTierUrgent    CustomerTier = "urgent"
	CustomerTierNewClient CustomerTier = "new_client"
)

// Urgency is the caller-declared urgency of the issue.
type Urgency string

// Urgency levels.
const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Customer identifies the person behind a session.
type Customer struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Email string       `json:"email,omitempty"`
	Phone string       `json:"phone,omitempty"`
	Tier  CustomerTier `json:"tier"`
}

// EscalationEvent is one append-only entry in a session's escalation history.
type EscalationEvent struct {
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason"`
	FromTier  int          `json:"from_tier"`
	ToTier    int          `json:"to_tier"`
	RuleID    string       `json:"rule_id"`
	Priority  RulePriority `json:"priority"`
	SLA       time.Time    `json:"sla"`
}

// AuditEntry records a single status or tier change on a session context.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
}

// ConversationContext holds the conversation runtime state for a session.
// The conversation runtime is the sole mutator.
type ConversationContext struct {
	// CurrentStep is a 1-indexed pointer into the active prompt's flow.
	CurrentStep        int               `json:"current_step"`
	ExtractedFields    map[string]string `json:"extracted_fields"`
	CustomerIntent     string            `json:"customer_intent,omitempty"`
	IssueCategory      string            `json:"issue_category,omitempty"`
	EscalationTriggers []string          `json:"escalation_triggers,omitempty"`
	StatusChanges      []AuditEntry      `json:"status_changes,omitempty"`
	TierChanges        []AuditEntry      `json:"tier_changes,omitempty"`
}

// NewConversationContext returns a context positioned at step 1 with no
// extracted fields.
func NewConversationContext() ConversationContext {
	return ConversationContext{
		CurrentStep:     1,
		ExtractedFields: make(map[string]string),
	}
}

// Clone returns a deep copy safe for concurrent readers.
func (c ConversationContext) Clone() ConversationContext {
	out := c
	out.ExtractedFields = make(map[string]string, len(c.ExtractedFields))
	for k, v := range c.ExtractedFields {
		out.ExtractedFields[k] = v
	}
	out.EscalationTriggers = append([]string(nil), c.EscalationTriggers...)
	out.StatusChanges = append([]AuditEntry(nil), c.StatusChanges...)
	out.TierChanges = append([]AuditEntry(nil), c.TierChanges...)
	return out
}

// Session is a customer's conversation from creation to completion.
type Session struct {
	ID       string   `json:"id"`
	Customer Customer `json:"customer"`

	Status   SessionStatus `json:"status"`
	Tier     int           `json:"tier"`     // 1-based, monotonically non-decreasing
	Priority int           `json:"priority"` // 1..10, higher served first
	Category string        `json:"category,omitempty"`
	Urgency  Urgency       `json:"urgency,omitempty"`
	PromptID string        `json:"prompt_id"`

	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	AssignedAgentID string `json:"assigned_agent_id,omitempty"`

	Messages []Message           `json:"messages,omitempty"`
	Context  ConversationContext `json:"context"`

	EscalationHistory []EscalationEvent `json:"escalation_history,omitempty"`
	EscalationReason  string            `json:"escalation_reason,omitempty"`
	EscalationSLA     *time.Time        `json:"escalation_sla,omitempty"`

	// ResolutionTime is completedAt - createdAt, set on completion.
	ResolutionTime time.Duration `json:"resolution_time,omitempty"`
}

// Clone returns a deep copy safe to hand to readers.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.EscalationHistory = append([]EscalationEvent(nil), s.EscalationHistory...)
	out.Context = s.Context.Clone()
	if s.AssignedAt != nil {
		t := *s.AssignedAt
		out.AssignedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.EscalationSLA != nil {
		t := *s.EscalationSLA
		out.EscalationSLA = &t
	}
	return &out
}

// CustomerMessageCount counts customer-role messages. The conversation
// runtime uses this for the max-messages escalation quota.
func (s *Session) CustomerMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleCustomer {
			n++
		}
	}
	return n
}

// CustomerProfile is the durable cross-session record for a customer.
type CustomerProfile struct {
	ID                    string        `json:"id"`
	Name                  string        `json:"name"`
	Email                 string        `json:"email,omitempty"`
	Phone                 string        `json:"phone,omitempty"`
	Tier                  CustomerTier  `json:"tier"`
	FirstContact          time.Time     `json:"first_contact"`
	LastContact           time.Time     `json:"last_contact"`
	TotalSessions         int           `json:"total_sessions"`
	ResolvedIssues        int           `json:"resolved_issues"`
	EscalatedIssues       int           `json:"escalated_issues"`
	AverageResolutionTime time.Duration `json:"average_resolution_time"`
	Tags                  []string      `json:"tags,omitempty"`
	Notes                 []string      `json:"notes,omitempty"`
}
