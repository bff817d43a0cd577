package config

import (
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/ocintel/dispatch/pkg/models"
)

// PromptRegistry holds the loaded prompt configs with their extraction
// patterns compiled. Prompts are read-only at runtime.
type PromptRegistry struct {
	prompts map[string]*models.PromptConfig
	// patterns[promptID][stepIndex][field], stepIndex is 0-based.
	patterns map[string][]map[string]*regexp.Regexp
}

// NewPromptRegistry validates the prompts and compiles every extraction
// pattern. An invalid pattern is a startup error.
func NewPromptRegistry(prompts map[string]models.PromptConfig) (*PromptRegistry, error) {
	r := &PromptRegistry{
		prompts:  make(map[string]*models.PromptConfig, len(prompts)),
		patterns: make(map[string][]map[string]*regexp.Regexp, len(prompts)),
	}

	for id, prompt := range prompts {
		p := prompt
		if p.ID == "" {
			p.ID = id
		}
		if p.ID != id {
			return nil, NewValidationError("prompts", fmt.Sprintf("prompt key %q does not match id %q", id, p.ID))
		}
		if len(p.ConversationFlow) == 0 {
			return nil, NewValidationError("prompts", fmt.Sprintf("prompt %q has no conversation flow", id))
		}
		if p.Escalation.Threshold < 0 || p.Escalation.Threshold > 1 {
			return nil, NewValidationError("prompts", fmt.Sprintf("prompt %q escalation threshold %v outside [0,1]", id, p.Escalation.Threshold))
		}
		if p.Scope.MaxMessages <= 0 {
			return nil, NewValidationError("prompts", fmt.Sprintf("prompt %q scope.max_messages must be positive", id))
		}

		steps := make([]map[string]*regexp.Regexp, len(p.ConversationFlow))
		for i, step := range p.ConversationFlow {
			compiled := make(map[string]*regexp.Regexp, len(step.ExtractionPatterns))
			for field, pattern := range step.ExtractionPatterns {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, NewValidationError("prompts",
						fmt.Sprintf("prompt %q step %d field %q: invalid pattern: %v", id, i+1, field, err))
				}
				compiled[field] = re
			}
			steps[i] = compiled
		}

		r.prompts[id] = &p
		r.patterns[id] = steps
	}

	return r, nil
}

// Get returns the prompt with the given id.
func (r *PromptRegistry) Get(id string) (*models.PromptConfig, bool) {
	p, ok := r.prompts[id]
	return p, ok
}

// List returns all prompts sorted by id.
func (r *PromptRegistry) List() []*models.PromptConfig {
	out := make([]*models.PromptConfig, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StepPatterns returns the compiled patterns for a prompt step (1-indexed,
// matching ConversationContext.CurrentStep). Returns nil when the step is
// out of range.
func (r *PromptRegistry) StepPatterns(promptID string, step int) map[string]*regexp.Regexp {
	steps, ok := r.patterns[promptID]
	if !ok || step < 1 || step > len(steps) {
		return nil
	}
	return steps[step-1]
}

// Len returns the number of registered prompts.
func (r *PromptRegistry) Len() int {
	return len(r.prompts)
}

// ScorecardRegistry holds the loaded scorecards. Immutable once loaded.
type ScorecardRegistry struct {
	cards map[string]*models.Scorecard
}

// weightTolerance absorbs float drift when checking that criterion weights
// sum to 100.
const weightTolerance = 1e-6

// NewScorecardRegistry validates scorecard arithmetic: criterion weights
// must sum to 100 and each criterion's max score must equal the sum of its
// sub-criterion points.
func NewScorecardRegistry(cards map[string]models.Scorecard) (*ScorecardRegistry, error) {
	r := &ScorecardRegistry{cards: make(map[string]*models.Scorecard, len(cards))}

	for id, card := range cards {
		c := card
		if c.ID == "" {
			c.ID = id
		}
		if c.ID != id {
			return nil, NewValidationError("scorecards", fmt.Sprintf("scorecard key %q does not match id %q", id, c.ID))
		}
		if len(c.Criteria) == 0 {
			return nil, NewValidationError("scorecards", fmt.Sprintf("scorecard %q has no criteria", id))
		}
		if c.PassingScore < 0 || c.PassingScore > 100 {
			return nil, NewValidationError("scorecards", fmt.Sprintf("scorecard %q passing score %v outside [0,100]", id, c.PassingScore))
		}

		weightSum := 0.0
		for _, crit := range c.Criteria {
			weightSum += crit.Weight
			pointSum := 0.0
			for _, sub := range crit.SubCriteria {
				if sub.Points < 0 {
					return nil, NewValidationError("scorecards",
						fmt.Sprintf("scorecard %q criterion %q sub %q has negative points", id, crit.ID, sub.Name))
				}
				pointSum += sub.Points
			}
			if math.Abs(pointSum-crit.MaxScore) > weightTolerance {
				return nil, NewValidationError("scorecards",
					fmt.Sprintf("scorecard %q criterion %q: max score %v != sum of sub points %v", id, crit.ID, crit.MaxScore, pointSum))
			}
		}
		if math.Abs(weightSum-100) > weightTolerance {
			return nil, NewValidationError("scorecards",
				fmt.Sprintf("scorecard %q criterion weights sum to %v, want 100", id, weightSum))
		}

		// Mark auto-fail criteria named at the card level.
		for _, afID := range c.AutoFailCriteria {
			crit := c.Criterion(afID)
			if crit == nil {
				return nil, NewValidationError("scorecards",
					fmt.Sprintf("scorecard %q auto-fail criterion %q does not exist", id, afID))
			}
			crit.AutoFail = true
		}

		r.cards[id] = &c
	}

	return r, nil
}

// Get returns the scorecard with the given id.
func (r *ScorecardRegistry) Get(id string) (*models.Scorecard, bool) {
	c, ok := r.cards[id]
	return c, ok
}

// List returns all scorecards sorted by id.
func (r *ScorecardRegistry) List() []*models.Scorecard {
	out := make([]*models.Scorecard, 0, len(r.cards))
	for _, c := range r.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered scorecards.
func (r *ScorecardRegistry) Len() int {
	return len(r.cards)
}
