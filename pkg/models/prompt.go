package models

// AgentPersona describes the voice of a prompt-driven agent.
type AgentPersona struct {
	Name  string `json:"name" yaml:"name"`
	Tone  string `json:"tone" yaml:"tone"`
	Style string `json:"style" yaml:"style"`
}

// PromptScope bounds what a prompt-driven conversation may do.
type PromptScope struct {
	PrimaryFunction string   `json:"primary_function" yaml:"primary_function"`
	Boundaries      []string `json:"boundaries,omitempty" yaml:"boundaries"`
	// MaxMessages is the total customer-message quota before escalation.
	MaxMessages        int      `json:"max_messages" yaml:"max_messages"`
	EscalationTriggers []string `json:"escalation_triggers,omitempty" yaml:"escalation_triggers"`
}

// PromptStep is one step of a conversation flow.
type PromptStep struct {
	Purpose  string   `json:"purpose" yaml:"purpose"`
	Messages []string `json:"messages" yaml:"messages"`
	// Collects names the fields this step gathers.
	Collects []string `json:"collects,omitempty" yaml:"collects"`
	// ExtractionPatterns maps field name to a regular expression. The first
	// capture group is retained when present, otherwise the whole match.
	ExtractionPatterns map[string]string `json:"extraction_patterns,omitempty" yaml:"extraction_patterns"`
	Escalation         bool              `json:"escalation,omitempty" yaml:"escalation"`
}

// PromptEscalation configures the overall escalation threshold for a prompt.
type PromptEscalation struct {
	// Threshold is the overall field-completion ratio (0..1) that triggers
	// escalation.
	Threshold float64  `json:"threshold" yaml:"threshold"`
	Message   string   `json:"message" yaml:"message"`
	NextSteps []string `json:"next_steps,omitempty" yaml:"next_steps"`
}

// PromptConfig is a named stepwise information-gathering flow. Prompts are
// read-only at runtime.
type PromptConfig struct {
	ID               string           `json:"id" yaml:"id"`
	AgentPersona     AgentPersona     `json:"agent_persona" yaml:"agent_persona"`
	Scope            PromptScope      `json:"scope" yaml:"scope"`
	ConversationFlow []PromptStep     `json:"conversation_flow" yaml:"conversation_flow"`
	Escalation       PromptEscalation `json:"escalation" yaml:"escalation"`
}

// TotalCollectable sums |step.collects| over steps with non-empty collects.
// Steps that collect nothing do not contribute to the completion denominator.
func (p *PromptConfig) TotalCollectable() int {
	total := 0
	for _, step := range p.ConversationFlow {
		total += len(step.Collects)
	}
	return total
}
