package config

import (
	"sync"
	"time"

	"github.com/ocintel/dispatch/pkg/models"
)

// Builtin is the raw built-in configuration before user overrides and
// registry compilation. It is sufficient to run the service with no config
// directory at all.
type Builtin struct {
	Stealth    StealthConfig
	Queue      QueueConfig
	QA         QAConfig
	Escalation EscalationConfig
	Retention  RetentionConfig

	Prompts         map[string]models.PromptConfig
	Scorecards      map[string]models.Scorecard
	EscalationRules []models.EscalationRule
	Knowledge       []models.KnowledgeEntry
	Intent          IntentConfig
}

var (
	builtinOnce sync.Once
	builtin     *Builtin
)

// GetBuiltinConfig returns the built-in configuration. The result is shared;
// callers must not mutate it.
func GetBuiltinConfig() *Builtin {
	builtinOnce.Do(func() {
		builtin = &Builtin{
			Stealth: StealthConfig{
				Enabled:  true,
				Profiles: builtinStealthProfiles(),
			},
			Queue: QueueConfig{
				BackpressureSoftLimit:   50,
				SLASweepInterval:        30 * time.Second,
				GracefulShutdownTimeout: 30 * time.Second,
			},
			QA: QAConfig{
				PassThreshold:    0,
				CalibrationDelta: 15,
			},
			Escalation: EscalationConfig{
				EnableAutoReenqueue: true,
			},
			Retention: RetentionConfig{
				SessionRetention:    30 * 24 * time.Hour,
				EvaluationRetention: 90 * 24 * time.Hour,
				CleanupInterval:     time.Hour,
			},
			Prompts:         builtinPrompts(),
			Scorecards:      builtinScorecards(),
			EscalationRules: builtinEscalationRules(),
			Knowledge:       builtinKnowledge(),
			Intent:          builtinIntent(),
		}
	})
	return builtin
}

func builtinStealthProfiles() map[int]models.StealthProfile {
	return map[int]models.StealthProfile{
		0: {
			TypingSpeed:       180,
			MinResponseDelay:  1000 * time.Millisecond,
			MaxResponseDelay:  5000 * time.Millisecond,
			TypingVariability: 0.35,
			ResponsePatterns: map[models.ResponseType]models.ResponsePattern{
				models.ResponseTypeGreeting:      {Delay: 700 * time.Millisecond, TypingDuration: 1000 * time.Millisecond},
				models.ResponseTypeSimpleAnswer:  {Delay: 1200 * time.Millisecond, TypingDuration: 1800 * time.Millisecond},
				models.ResponseTypeComplexAnswer: {Delay: 2500 * time.Millisecond, TypingDuration: 3500 * time.Millisecond},
				models.ResponseTypeEscalation:    {Delay: 2000 * time.Millisecond, TypingDuration: 2500 * time.Millisecond},
			},
			Personality: models.StealthPersonality{EmojiUsage: 0.4, Formality: 0.2},
		},
		1: {
			TypingSpeed:       200,
			MinResponseDelay:  1500 * time.Millisecond,
			MaxResponseDelay:  6000 * time.Millisecond,
			TypingVariability: 0.3,
			ResponsePatterns: map[models.ResponseType]models.ResponsePattern{
				models.ResponseTypeGreeting:      {Delay: 800 * time.Millisecond, TypingDuration: 1200 * time.Millisecond},
				models.ResponseTypeSimpleAnswer:  {Delay: 1500 * time.Millisecond, TypingDuration: 2000 * time.Millisecond},
				models.ResponseTypeComplexAnswer: {Delay: 3000 * time.Millisecond, TypingDuration: 4500 * time.Millisecond},
				models.ResponseTypeEscalation:    {Delay: 2500 * time.Millisecond, TypingDuration: 3000 * time.Millisecond},
			},
			Personality: models.StealthPersonality{EmojiUsage: 0.3, Formality: 0.3},
		},
		2: {
			TypingSpeed:       220,
			MinResponseDelay:  2000 * time.Millisecond,
			MaxResponseDelay:  8000 * time.Millisecond,
			TypingVariability: 0.25,
			ResponsePatterns: map[models.ResponseType]models.ResponsePattern{
				models.ResponseTypeGreeting:      {Delay: 1000 * time.Millisecond, TypingDuration: 1500 * time.Millisecond},
				models.ResponseTypeSimpleAnswer:  {Delay: 2000 * time.Millisecond, TypingDuration: 2500 * time.Millisecond},
				models.ResponseTypeComplexAnswer: {Delay: 4000 * time.Millisecond, TypingDuration: 5500 * time.Millisecond},
				models.ResponseTypeEscalation:    {Delay: 3000 * time.Millisecond, TypingDuration: 3500 * time.Millisecond},
			},
			Personality: models.StealthPersonality{EmojiUsage: 0.2, Formality: 0.5},
		},
		3: {
			TypingSpeed:       240,
			MinResponseDelay:  2500 * time.Millisecond,
			MaxResponseDelay:  10000 * time.Millisecond,
			TypingVariability: 0.2,
			ResponsePatterns: map[models.ResponseType]models.ResponsePattern{
				models.ResponseTypeGreeting:      {Delay: 1200 * time.Millisecond, TypingDuration: 1800 * time.Millisecond},
				models.ResponseTypeSimpleAnswer:  {Delay: 2500 * time.Millisecond, TypingDuration: 3000 * time.Millisecond},
				models.ResponseTypeComplexAnswer: {Delay: 5000 * time.Millisecond, TypingDuration: 7000 * time.Millisecond},
				models.ResponseTypeEscalation:    {Delay: 3500 * time.Millisecond, TypingDuration: 4000 * time.Millisecond},
			},
			Personality: models.StealthPersonality{EmojiUsage: 0.05, Formality: 0.7},
		},
		4: {
			TypingSpeed:       260,
			MinResponseDelay:  3000 * time.Millisecond,
			MaxResponseDelay:  12000 * time.Millisecond,
			TypingVariability: 0.15,
			ResponsePatterns: map[models.ResponseType]models.ResponsePattern{
				models.ResponseTypeGreeting:      {Delay: 1500 * time.Millisecond, TypingDuration: 2000 * time.Millisecond},
				models.ResponseTypeSimpleAnswer:  {Delay: 3000 * time.Millisecond, TypingDuration: 3500 * time.Millisecond},
				models.ResponseTypeComplexAnswer: {Delay: 6000 * time.Millisecond, TypingDuration: 8000 * time.Millisecond},
				models.ResponseTypeEscalation:    {Delay: 4000 * time.Millisecond, TypingDuration: 4500 * time.Millisecond},
			},
			Personality: models.StealthPersonality{EmojiUsage: 0, Formality: 0.9},
		},
	}
}

// builtinEscalationRules returns the default rule set in match order: the
// engine takes the first rule whose from_tier matches and whose triggers hit
// the reason, so the more severe rules come first.
func builtinEscalationRules() []models.EscalationRule {
	return []models.EscalationRule{
		{
			ID:                   "legal_issue",
			Name:                 "Legal threat or formal complaint",
			Triggers:             []string{"legal", "lawyer", "attorney", "lawsuit", "formal complaint", "sue"},
			FromTier:             1,
			ToTier:               4,
			Priority:             models.RulePriorityCritical,
			AutoEscalate:         true,
			NotificationRequired: true,
			SLA:                  30 * time.Minute,
		},
		{
			ID:                   "legal_issue_t2",
			Name:                 "Legal threat or formal complaint (tier 2)",
			Triggers:             []string{"legal", "lawyer", "attorney", "lawsuit", "formal complaint", "sue"},
			FromTier:             2,
			ToTier:               4,
			Priority:             models.RulePriorityCritical,
			AutoEscalate:         true,
			NotificationRequired: true,
			SLA:                  30 * time.Minute,
		},
		{
			ID:           "crypto_theft_urgent",
			Name:         "Active crypto theft",
			Triggers:     []string{"stolen", "theft", "hacked", "drained"},
			FromTier:     1,
			ToTier:       3,
			Priority:     models.RulePriorityHigh,
			AutoEscalate: true,
			SLA:          time.Hour,
		},
		{
			ID:           "crypto_theft_urgent_t2",
			Name:         "Active crypto theft (tier 2)",
			Triggers:     []string{"stolen", "theft", "hacked", "drained"},
			FromTier:     2,
			ToTier:       3,
			Priority:     models.RulePriorityHigh,
			AutoEscalate: true,
			SLA:          time.Hour,
		},
		{
			ID:           "supervisor_request",
			Name:         "Customer asked for a supervisor",
			Triggers:     []string{"supervisor", "manager", "human"},
			FromTier:     1,
			ToTier:       3,
			Priority:     models.RulePriorityHigh,
			AutoEscalate: true,
			SLA:          2 * time.Hour,
		},
		{
			ID:           "supervisor_request_t2",
			Name:         "Customer asked for a supervisor (tier 2)",
			Triggers:     []string{"supervisor", "manager", "human"},
			FromTier:     2,
			ToTier:       3,
			Priority:     models.RulePriorityHigh,
			AutoEscalate: true,
			SLA:          2 * time.Hour,
		},
		{
			ID:           "vip_customer",
			Name:         "VIP customer escalation",
			Triggers:     []string{"vip"},
			FromTier:     1,
			ToTier:       2,
			Priority:     models.RulePriorityMedium,
			AutoEscalate: true,
			SLA:          4 * time.Hour,
		},
		{
			ID:           "threshold_reached",
			Name:         "Conversation threshold reached",
			Triggers:     []string{"threshold", "message limit", "completion"},
			FromTier:     1,
			ToTier:       2,
			Priority:     models.RulePriorityMedium,
			AutoEscalate: true,
			SLA:          4 * time.Hour,
		},
		{
			ID:           "threshold_reached_t2",
			Name:         "Conversation threshold reached (tier 2)",
			Triggers:     []string{"threshold", "message limit", "completion"},
			FromTier:     2,
			ToTier:       3,
			Priority:     models.RulePriorityMedium,
			AutoEscalate: true,
			SLA:          4 * time.Hour,
		},
		{
			ID:                   "quality_review",
			Name:                 "Specialist requests expert review",
			Triggers:             []string{"expert", "review", "complex"},
			FromTier:             3,
			ToTier:               4,
			Priority:             models.RulePriorityHigh,
			AutoEscalate:         true,
			NotificationRequired: true,
			SLA:                  time.Hour,
		},
	}
}

func builtinIntent() IntentConfig {
	return IntentConfig{
		Categories: map[string][]string{
			"crypto_theft":   {"stolen", "theft", "hacked", "drained", "missing funds", "unauthorized transaction"},
			"account_access": {"locked out", "password", "login", "2fa", "can't access", "cannot access"},
			"billing":        {"invoice", "charge", "refund", "billing", "payment failed"},
			"onboarding":     {"getting started", "setup", "new account", "how do i"},
			"technical":      {"error", "bug", "crash", "not working", "broken"},
			"legal":          {"legal", "lawyer", "attorney", "lawsuit"},
		},
		HardTriggers: []string{"legal", "formal complaint", "lawyer", "attorney", "sue", "police report"},
	}
}
