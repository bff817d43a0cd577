package events

import (
	"time"

	"github.com/ocintel/dispatch/pkg/models"
)

// BasePayload carries the fields common to every event payload. Timestamps
// are RFC3339Nano strings for wire stability.
type BasePayload struct {
	Type      Kind   `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewBasePayload stamps a base payload with the current time.
func NewBasePayload(kind Kind, sessionID string) BasePayload {
	return BasePayload{
		Type:      kind,
		SessionID: sessionID,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}
}

// SessionCreatedPayload is published when a new session is stored.
type SessionCreatedPayload struct {
	BasePayload
	CustomerID string               `json:"customer_id"`
	Status     models.SessionStatus `json:"status"`
	Priority   int                  `json:"priority"`
	Category   string               `json:"category,omitempty"`
}

// SessionEnqueuedPayload is published when a session enters the waiting queue.
type SessionEnqueuedPayload struct {
	BasePayload
	Priority int `json:"priority"`
	Position int `json:"position"` // 1-indexed queue position after insert
	Depth    int `json:"depth"`    // queue length after insert
}

// SessionAssignedPayload is published when the dispatcher binds a session to
// an agent.
type SessionAssignedPayload struct {
	BasePayload
	AgentID   string `json:"agent_id"`
	AgentTier int    `json:"agent_tier"`
	Priority  int    `json:"priority"`
}

// SessionUpdatedPayload is published on whitelisted field updates and message
// appends.
type SessionUpdatedPayload struct {
	BasePayload
	Status    models.SessionStatus `json:"status"`
	MessageID string               `json:"message_id,omitempty"`
	Role      models.MessageRole   `json:"role,omitempty"`
}

// SessionCompletedPayload is published once when a session completes.
type SessionCompletedPayload struct {
	BasePayload
	AgentID          string `json:"agent_id,omitempty"`
	ResolutionTimeMS int64  `json:"resolution_time_ms"`
}

// SessionEscalatedPayload is published when the escalation engine promotes a
// session.
type SessionEscalatedPayload struct {
	BasePayload
	Reason     string              `json:"reason"`
	RuleID     string              `json:"rule_id"`
	RuleName   string              `json:"rule_name"`
	FromTier   int                 `json:"from_tier"`
	ToTier     int                 `json:"to_tier"`
	Priority   models.RulePriority `json:"priority"`
	SLA        string              `json:"sla"` // RFC3339Nano deadline
	Reassigned bool                `json:"reassigned"`
	AgentID    string              `json:"agent_id,omitempty"`
}

// SLABreachPayload is published by the SLA sweeper when an escalated session
// has not been picked up by its deadline. Operational only: it does not
// change session state.
type SLABreachPayload struct {
	BasePayload
	RuleID   string `json:"rule_id"`
	Tier     int    `json:"tier"`
	Deadline string `json:"deadline"` // RFC3339Nano
	OverdueMS int64 `json:"overdue_ms"`
}

// TypingStartPayload opens a stealth response sequence.
type TypingStartPayload struct {
	BasePayload
	AgentID      string              `json:"agent_id"`
	ResponseType models.ResponseType `json:"response_type"`
}

// TypingProgressPayload is a periodic (~100ms) typing indicator tick.
type TypingProgressPayload struct {
	BasePayload
	ElapsedMS int64 `json:"elapsed_ms"`
	TotalMS   int64 `json:"total_ms"`
}

// TypingEndPayload closes the typing indicator.
type TypingEndPayload struct {
	BasePayload
	AgentID string `json:"agent_id"`
}

// ResponseReadyPayload delivers the enriched agent response after the paced
// delay.
type ResponseReadyPayload struct {
	BasePayload
	AgentID      string              `json:"agent_id"`
	ResponseType models.ResponseType `json:"response_type"`
	Content      string              `json:"content"`
	DelayMS      int64               `json:"delay_ms"`
	TypingMS     int64               `json:"typing_ms"`
}

// EvaluationCreatedPayload is published when a QA evaluation is opened.
type EvaluationCreatedPayload struct {
	BasePayload
	EvaluationID string `json:"evaluation_id"`
	AgentID      string `json:"agent_id"`
	QAAgentID    string `json:"qa_agent_id"`
	ScorecardID  string `json:"scorecard_id"`
}

// CriterionScoredPayload is published after each criterion scoring update.
type CriterionScoredPayload struct {
	BasePayload
	EvaluationID  string  `json:"evaluation_id"`
	CriterionID   string  `json:"criterion_id"`
	Score         float64 `json:"score"`
	MaxScore      float64 `json:"max_score"`
	Passed        bool    `json:"passed"`
	WeightedScore float64 `json:"weighted_score"`
	AutoFailed    bool    `json:"auto_failed"`
}

// EvaluationCompletedPayload is published when an evaluation is finalised.
type EvaluationCompletedPayload struct {
	BasePayload
	EvaluationID  string  `json:"evaluation_id"`
	AgentID       string  `json:"agent_id"`
	QAAgentID     string  `json:"qa_agent_id"`
	WeightedScore float64 `json:"weighted_score"`
	Passed        bool    `json:"passed"`
	AutoFailed    bool    `json:"auto_failed"`
}

// CalibrationRequiredPayload signals a QA agent drifting from their running
// average.
type CalibrationRequiredPayload struct {
	BasePayload
	EvaluationID  string  `json:"evaluation_id"`
	QAAgentID     string  `json:"qa_agent_id"`
	WeightedScore float64 `json:"weighted_score"`
	AverageScore  float64 `json:"average_score"`
	Deviation     float64 `json:"deviation"`
}

// QueueBackpressurePayload is advisory: the waiting queue exceeded its soft
// limit.
type QueueBackpressurePayload struct {
	BasePayload
	Depth     int `json:"depth"`
	SoftLimit int `json:"soft_limit"`
}
