// Package conversation is the prompt-driven runtime: it walks a session
// through its prompt's step flow, extracts structured fields from customer
// messages, and raises escalation when quotas or thresholds are hit.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/services"
)

// ErrUnknownPrompt means the session references a prompt the registry does
// not hold.
var ErrUnknownPrompt = errors.New("unknown prompt")

// stepCompleteRatio is the share of a step's collect fields that must be
// extracted before the step advances.
const stepCompleteRatio = 0.8

// Runtime processes customer messages against the session's active prompt.
// It is the sole mutator of ConversationContext.
type Runtime struct {
	prompts  *config.PromptRegistry
	intent   config.IntentConfig
	sessions *services.SessionService

	// categories is the deterministic iteration order for intent keywords.
	categories []string
}

// NewRuntime creates a runtime over the given prompt registry and intent
// configuration.
func NewRuntime(prompts *config.PromptRegistry, intent config.IntentConfig, sessions *services.SessionService) *Runtime {
	categories := make([]string, 0, len(intent.Categories))
	for name := range intent.Categories {
		categories = append(categories, name)
	}
	sort.Strings(categories)
	return &Runtime{
		prompts:    prompts,
		intent:     intent,
		sessions:   sessions,
		categories: categories,
	}
}

// Result is the outcome of processing one customer message.
type Result struct {
	// Extracted holds the fields newly captured from this message.
	Extracted map[string]string
	// StepComplete reports whether the current step finished and the
	// pointer advanced.
	StepComplete bool
	// ShouldEscalate asks the caller to hand the session to the escalation
	// engine with EscalationReason.
	ShouldEscalate   bool
	EscalationReason string
	// NextStep is the 1-indexed step pointer after processing.
	NextStep int
	// AdvisoryFallback is set when the flow is exhausted; the message was
	// recorded but no extraction ran.
	AdvisoryFallback bool
	// Context is a snapshot of the conversation context after processing.
	Context models.ConversationContext
}

// ProcessMessage appends the customer message to the session and advances the
// conversation: field extraction, step completion, intent detection, and
// escalation checks, in that order.
func (r *Runtime) ProcessMessage(ctx context.Context, sessionID, content string) (*Result, error) {
	sess, err := r.sessions.AppendMessage(ctx, sessionID, models.Message{
		Role:    models.RoleCustomer,
		Content: content,
	})
	if err != nil {
		return nil, err
	}

	prompt, ok := r.prompts.Get(sess.PromptID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrompt, sess.PromptID)
	}

	result := &Result{Extracted: make(map[string]string)}
	lowered := strings.ToLower(content)
	messageCount := sess.CustomerMessageCount()

	updated, err := r.sessions.Update(ctx, sessionID, func(s *models.Session) error {
		cc := &s.Context

		if cc.CurrentStep > len(prompt.ConversationFlow) {
			result.AdvisoryFallback = true
		} else {
			step := prompt.ConversationFlow[cc.CurrentStep-1]
			r.extract(s, cc.CurrentStep, content, result)
			if stepComplete(step, cc.ExtractedFields) {
				result.StepComplete = true
				cc.CurrentStep++
			}
		}

		r.detectIntent(s, lowered)

		if trigger := r.hardTrigger(lowered); trigger != "" {
			cc.EscalationTriggers = append(cc.EscalationTriggers, trigger)
			result.ShouldEscalate = true
			result.EscalationReason = "hard trigger: " + trigger
		}
		if !result.ShouldEscalate && prompt.Scope.MaxMessages > 0 && messageCount >= prompt.Scope.MaxMessages {
			result.ShouldEscalate = true
			result.EscalationReason = fmt.Sprintf("message limit reached (%d)", messageCount)
		}
		if !result.ShouldEscalate {
			if total := prompt.TotalCollectable(); total > 0 {
				ratio := float64(len(cc.ExtractedFields)) / float64(total)
				if ratio >= prompt.Escalation.Threshold {
					result.ShouldEscalate = true
					result.EscalationReason = "completion threshold reached"
				}
			}
		}

		result.NextStep = cc.CurrentStep
		result.Context = cc.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Processed customer message",
		"session_id", updated.ID,
		"step", result.NextStep,
		"extracted", len(result.Extracted),
		"escalate", result.ShouldEscalate)
	return result, nil
}

// NextMessages returns the current step's scripted messages. Past the end of
// the flow it returns the prompt's escalation message, when configured.
func (r *Runtime) NextMessages(ctx context.Context, sessionID string) ([]string, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	prompt, ok := r.prompts.Get(sess.PromptID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrompt, sess.PromptID)
	}
	step := sess.Context.CurrentStep
	if step > len(prompt.ConversationFlow) {
		if prompt.Escalation.Message != "" {
			return []string{prompt.Escalation.Message}, nil
		}
		return nil, nil
	}
	msgs := prompt.ConversationFlow[step-1].Messages
	return append([]string(nil), msgs...), nil
}

// SwitchPrompt changes the session's active prompt and resets the
// conversation state. The audit trails survive the reset.
func (r *Runtime) SwitchPrompt(ctx context.Context, sessionID, promptID string) (*models.Session, error) {
	if _, ok := r.prompts.Get(promptID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrompt, promptID)
	}
	return r.sessions.Update(ctx, sessionID, func(s *models.Session) error {
		statusChanges := s.Context.StatusChanges
		tierChanges := s.Context.TierChanges
		s.PromptID = promptID
		s.Context = models.NewConversationContext()
		s.Context.StatusChanges = statusChanges
		s.Context.TierChanges = tierChanges
		return nil
	})
}

// extract applies the current step's compiled patterns to the message.
// The first capture group wins when present; already-extracted fields are
// never overwritten.
func (r *Runtime) extract(s *models.Session, step int, content string, result *Result) {
	patterns := r.prompts.StepPatterns(s.PromptID, step)
	for field, re := range patterns {
		if _, done := s.Context.ExtractedFields[field]; done {
			continue
		}
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		value := m[0]
		if len(m) > 1 && m[1] != "" {
			value = m[1]
		}
		s.Context.ExtractedFields[field] = value
		result.Extracted[field] = value
	}
}

// stepComplete reports whether enough of the step's collect fields are
// extracted. Steps that collect nothing complete on any message.
func stepComplete(step models.PromptStep, extracted map[string]string) bool {
	if len(step.Collects) == 0 {
		return true
	}
	have := 0
	for _, field := range step.Collects {
		if _, ok := extracted[field]; ok {
			have++
		}
	}
	return float64(have)/float64(len(step.Collects)) >= stepCompleteRatio
}

// detectIntent sets customer intent and issue category from the first
// matching keyword, scanning categories in sorted order.
func (r *Runtime) detectIntent(s *models.Session, lowered string) {
	for _, category := range r.categories {
		for _, keyword := range r.intent.Categories[category] {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				s.Context.CustomerIntent = category
				s.Context.IssueCategory = category
				if s.Category == "" {
					s.Category = category
				}
				return
			}
		}
	}
}

// hardTrigger returns the first matching forced-escalation phrase, or "".
func (r *Runtime) hardTrigger(lowered string) string {
	for _, phrase := range r.intent.HardTriggers {
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return phrase
		}
	}
	return ""
}
