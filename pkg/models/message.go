package models

import "time"

// MessageRole identifies who produced a message.
type MessageRole string

// Message roles.
const (
	RoleCustomer MessageRole = "customer"
	RoleAgent    MessageRole = "agent"
	RoleSystem   MessageRole = "system"
)

// Valid reports whether the role is known.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleSystem:
		return true
	}
	return false
}

// ResponseType classifies an agent response for stealth pacing.
type ResponseType string

// Response types recognized by the stealth pacer.
const (
	ResponseTypeGreeting      ResponseType = "greeting"
	ResponseTypeSimpleAnswer  ResponseType = "simple_answer"
	ResponseTypeComplexAnswer ResponseType = "complex_answer"
	ResponseTypeEscalation    ResponseType = "escalation"
)

// Valid reports whether the response type is known.
func (t ResponseType) Valid() bool {
	switch t {
	case ResponseTypeGreeting, ResponseTypeSimpleAnswer, ResponseTypeComplexAnswer, ResponseTypeEscalation:
		return true
	}
	return false
}

// Message is a single entry in a session's append-only message log.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`

	// AgentID is set for role=agent.
	AgentID      string       `json:"agent_id,omitempty"`
	ResponseType ResponseType `json:"response_type,omitempty"`

	// Metadata carries free-form annotations (confidence, model, tier, ...).
	Metadata map[string]any `json:"metadata,omitempty"`
}
