package models

import "time"

// RulePriority grades escalation rules.
type RulePriority string

// Rule priorities.
const (
	RulePriorityLow      RulePriority = "low"
	RulePriorityMedium   RulePriority = "medium"
	RulePriorityHigh     RulePriority = "high"
	RulePriorityCritical RulePriority = "critical"
)

// Valid reports whether the priority is known.
func (p RulePriority) Valid() bool {
	switch p {
	case RulePriorityLow, RulePriorityMedium, RulePriorityHigh, RulePriorityCritical:
		return true
	}
	return false
}

// EscalationRule describes when and how a session is promoted between tiers.
// Rules are loaded at startup and immutable thereafter.
type EscalationRule struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Triggers are case-insensitive substrings matched against the
	// escalation reason.
	Triggers []string `json:"triggers"`
	FromTier int      `json:"from_tier"`
	// ToTier must be strictly greater than FromTier.
	ToTier               int           `json:"to_tier"`
	Priority             RulePriority  `json:"priority"`
	AutoEscalate         bool          `json:"auto_escalate"`
	NotificationRequired bool          `json:"notification_required"`
	SLA                  time.Duration `json:"sla"`
}
