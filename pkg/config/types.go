// Package config loads, merges, and validates the dispatch core
// configuration: runtime options, queue tuning, stealth profiles, prompt
// configs, scorecards, escalation rules, and seed knowledge entries.
//
// Built-in configuration covers everything needed to run offline; a
// dispatch.yaml in the config directory overrides or extends it (user wins
// on conflict).
package config

import (
	"time"

	"github.com/ocintel/dispatch/pkg/models"
)

// Config is the fully merged, validated runtime configuration.
type Config struct {
	Stealth    StealthConfig
	Queue      QueueConfig
	QA         QAConfig
	Escalation EscalationConfig
	Retention  RetentionConfig

	Prompts    *PromptRegistry
	Scorecards *ScorecardRegistry

	// EscalationRules are immutable after load, in match order.
	EscalationRules []models.EscalationRule

	// Knowledge is the seed catalog for the knowledge registry.
	Knowledge []models.KnowledgeEntry

	Intent IntentConfig
}

// StealthConfig controls the response pacer.
type StealthConfig struct {
	// Enabled gates the pacer globally; disabled responses are delivered
	// immediately (still in order). Default true.
	Enabled bool

	// MaxResponseDelay, when positive, caps every profile's maximum delay.
	MaxResponseDelay time.Duration

	// Profiles maps agent tier (0..4) to its pacing profile.
	Profiles map[int]models.StealthProfile
}

// Profile returns the profile for a tier, falling back to tier 1.
func (c StealthConfig) Profile(tier int) models.StealthProfile {
	if p, ok := c.Profiles[tier]; ok {
		return p
	}
	return c.Profiles[1]
}

// QueueConfig tunes the waiting queue, dispatcher, and SLA sweeper.
type QueueConfig struct {
	// BackpressureSoftLimit is advisory: enqueueing past it publishes a
	// queue_backpressure event but never rejects the session.
	BackpressureSoftLimit int

	// SLASweepInterval is how often escalated sessions are scanned for
	// SLA breaches.
	SLASweepInterval time.Duration

	// GracefulShutdownTimeout bounds the dispatcher drain on shutdown.
	GracefulShutdownTimeout time.Duration
}

// QAConfig tunes the evaluator.
type QAConfig struct {
	// PassThreshold, when positive, overrides every scorecard's passing
	// score. Zero means each scorecard's own threshold applies.
	PassThreshold float64

	// CalibrationDelta is the deviation from a QA agent's running average
	// that flags calibration. Default 15.
	CalibrationDelta float64
}

// EscalationConfig tunes the escalation engine.
type EscalationConfig struct {
	// EnableAutoReenqueue returns escalated sessions to the waiting queue
	// (with bumped priority) when no target-tier agent is free. Default
	// true.
	EnableAutoReenqueue bool
}

// RetentionConfig tunes the background retention sweep.
type RetentionConfig struct {
	// SessionRetention is how long completed sessions are kept before the
	// sweep deletes them. Zero disables session pruning.
	SessionRetention time.Duration

	// EvaluationRetention is how long completed evaluations are kept.
	// Zero disables evaluation pruning.
	EvaluationRetention time.Duration

	// CleanupInterval is how often the sweep runs. Zero disables the
	// service entirely.
	CleanupInterval time.Duration
}

// IntentConfig drives the conversation runtime's intent detection.
type IntentConfig struct {
	// Categories maps an issue category to its case-insensitive keywords.
	Categories map[string][]string

	// HardTriggers are phrases that force an escalation request
	// regardless of the message quota (e.g. "formal complaint").
	HardTriggers []string
}

// Stats summarises a loaded configuration for startup logging.
type Stats struct {
	Prompts         int
	Scorecards      int
	EscalationRules int
	KnowledgeSeeds  int
	StealthProfiles int
}

// Stats returns counts for startup logging.
func (c *Config) Stats() Stats {
	return Stats{
		Prompts:         c.Prompts.Len(),
		Scorecards:      c.Scorecards.Len(),
		EscalationRules: len(c.EscalationRules),
		KnowledgeSeeds:  len(c.Knowledge),
		StealthProfiles: len(c.Stealth.Profiles),
	}
}
