package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/ocintel/dispatch/pkg/models"
)

// UserConfigFile is the optional override file inside the config directory.
const UserConfigFile = "dispatch.yaml"

// yamlRoot mirrors dispatch.yaml. Durations are strings ("30s", "1h30m")
// parsed at load time; booleans are pointers so an explicit false survives
// the merge with built-in defaults.
type yamlRoot struct {
	Stealth    *yamlStealth    `yaml:"stealth"`
	Queue      *yamlQueue      `yaml:"queue"`
	QA         *yamlQA         `yaml:"qa"`
	Escalation *yamlEscalation `yaml:"escalation"`
	Retention  *yamlRetention  `yaml:"retention"`

	Prompts         map[string]models.PromptConfig `yaml:"prompts"`
	Scorecards      map[string]models.Scorecard    `yaml:"scorecards"`
	EscalationRules []yamlEscalationRule           `yaml:"escalation_rules"`
	Knowledge       []yamlKnowledgeEntry           `yaml:"knowledge"`
	Intent          *yamlIntent                    `yaml:"intent"`
}

type yamlStealth struct {
	Enabled          *bool                       `yaml:"enabled"`
	MaxResponseDelay string                      `yaml:"max_response_delay"`
	Profiles         map[int]yamlStealthProfile  `yaml:"profiles"`
}

type yamlStealthProfile struct {
	TypingSpeed       float64                        `yaml:"typing_speed"`
	MinResponseDelay  string                         `yaml:"min_response_delay"`
	MaxResponseDelay  string                         `yaml:"max_response_delay"`
	TypingVariability float64                        `yaml:"typing_variability"`
	ResponsePatterns  map[string]yamlResponsePattern `yaml:"response_patterns"`
	Personality       *yamlPersonality               `yaml:"personality"`
}

type yamlResponsePattern struct {
	Delay          string `yaml:"delay"`
	TypingDuration string `yaml:"typing_duration"`
}

type yamlPersonality struct {
	EmojiUsage float64 `yaml:"emoji_usage"`
	Formality  float64 `yaml:"formality"`
}

type yamlQueue struct {
	BackpressureSoftLimit   *int   `yaml:"backpressure_soft_limit"`
	SLASweepInterval        string `yaml:"sla_sweep_interval"`
	GracefulShutdownTimeout string `yaml:"graceful_shutdown_timeout"`
}

type yamlQA struct {
	PassThreshold    *float64 `yaml:"pass_threshold"`
	CalibrationDelta *float64 `yaml:"calibration_delta"`
}

type yamlEscalation struct {
	EnableAutoReenqueue *bool `yaml:"enable_auto_reenqueue"`
}

type yamlRetention struct {
	SessionRetention    string `yaml:"session_retention"`
	EvaluationRetention string `yaml:"evaluation_retention"`
	CleanupInterval     string `yaml:"cleanup_interval"`
}

type yamlEscalationRule struct {
	ID                   string   `yaml:"id"`
	Name                 string   `yaml:"name"`
	Triggers             []string `yaml:"triggers"`
	FromTier             int      `yaml:"from_tier"`
	ToTier               int      `yaml:"to_tier"`
	Priority             string   `yaml:"priority"`
	AutoEscalate         bool     `yaml:"auto_escalate"`
	NotificationRequired bool     `yaml:"notification_required"`
	SLA                  string   `yaml:"sla"`
}

type yamlKnowledgeEntry struct {
	ID          string            `yaml:"id"`
	Title       string            `yaml:"title"`
	Content     map[string]string `yaml:"content"`
	AccessTier  int               `yaml:"access_tier"`
	Tags        []string          `yaml:"tags"`
	Owner       string            `yaml:"owner"`
	ReviewCycle string            `yaml:"review_cycle"`
	Version     int               `yaml:"version"`
}

type yamlIntent struct {
	Categories   map[string][]string `yaml:"categories"`
	HardTriggers []string            `yaml:"hard_triggers"`
}

// Initialize loads the built-in configuration, merges the optional user
// dispatch.yaml from configDir over it (user wins on conflict), validates
// everything, and compiles the prompt and scorecard registries. A missing
// config directory or file is not an error.
func Initialize(configDir string) (*Config, error) {
	user, err := loadUserConfig(configDir)
	if err != nil {
		return nil, err
	}

	cfg, err := merge(GetBuiltinConfig(), user)
	if err != nil {
		return nil, err
	}

	stats := cfg.Stats()
	slog.Info("Configuration loaded",
		"prompts", stats.Prompts,
		"scorecards", stats.Scorecards,
		"escalation_rules", stats.EscalationRules,
		"knowledge_seeds", stats.KnowledgeSeeds,
		"stealth_profiles", stats.StealthProfiles)

	return cfg, nil
}

func loadUserConfig(configDir string) (*yamlRoot, error) {
	if configDir == "" {
		return &yamlRoot{}, nil
	}

	path := filepath.Join(configDir, UserConfigFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("No user config found, using built-in configuration", "path", path)
		return &yamlRoot{}, nil
	}
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	var user yamlRoot
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, NewLoadError(path, err)
	}
	slog.Info("User config loaded", "path", path)
	return &user, nil
}

// merge produces the final runtime Config from built-in data and the parsed
// user file.
func merge(b *Builtin, user *yamlRoot) (*Config, error) {
	cfg := &Config{
		Stealth:    b.Stealth,
		Queue:      b.Queue,
		QA:         b.QA,
		Escalation: b.Escalation,
		Retention:  b.Retention,
		Intent:     b.Intent,
	}

	if err := applyStealth(cfg, user.Stealth); err != nil {
		return nil, err
	}
	if err := applyQueue(cfg, user.Queue); err != nil {
		return nil, err
	}
	applyQA(cfg, user.QA)
	if user.Escalation != nil && user.Escalation.EnableAutoReenqueue != nil {
		cfg.Escalation.EnableAutoReenqueue = *user.Escalation.EnableAutoReenqueue
	}
	if err := applyRetention(cfg, user.Retention); err != nil {
		return nil, err
	}
	applyIntent(cfg, user.Intent)

	prompts := make(map[string]models.PromptConfig, len(b.Prompts)+len(user.Prompts))
	for id, p := range b.Prompts {
		prompts[id] = p
	}
	for id, p := range user.Prompts {
		prompts[id] = p
	}
	promptRegistry, err := NewPromptRegistry(prompts)
	if err != nil {
		return nil, err
	}
	cfg.Prompts = promptRegistry

	cards := make(map[string]models.Scorecard, len(b.Scorecards)+len(user.Scorecards))
	for id, c := range b.Scorecards {
		cards[id] = c
	}
	for id, c := range user.Scorecards {
		cards[id] = c
	}
	scorecardRegistry, err := NewScorecardRegistry(cards)
	if err != nil {
		return nil, err
	}
	cfg.Scorecards = scorecardRegistry

	rules, err := mergeRules(b.EscalationRules, user.EscalationRules)
	if err != nil {
		return nil, err
	}
	cfg.EscalationRules = rules

	cfg.Knowledge = mergeKnowledge(b.Knowledge, user.Knowledge)

	return cfg, nil
}

func applyStealth(cfg *Config, user *yamlStealth) error {
	// Profiles map is shared with the builtin singleton until a user
	// override forces a copy.
	if user == nil {
		return nil
	}
	if user.Enabled != nil {
		cfg.Stealth.Enabled = *user.Enabled
	}
	if user.MaxResponseDelay != "" {
		d, err := parseDuration("stealth.max_response_delay", user.MaxResponseDelay)
		if err != nil {
			return err
		}
		cfg.Stealth.MaxResponseDelay = d
	}
	if len(user.Profiles) == 0 {
		return nil
	}

	profiles := make(map[int]models.StealthProfile, len(cfg.Stealth.Profiles))
	for tier, p := range cfg.Stealth.Profiles {
		profiles[tier] = p
	}
	for tier, up := range user.Profiles {
		if tier < models.MinAgentTier || tier > models.MaxAgentTier {
			return NewValidationError("stealth", fmt.Sprintf("profile tier %d outside [%d,%d]", tier, models.MinAgentTier, models.MaxAgentTier))
		}
		converted, err := convertStealthProfile(tier, up)
		if err != nil {
			return err
		}
		// Unset fields in the user profile fall back to the built-in
		// profile for the same tier.
		if base, ok := profiles[tier]; ok {
			if err := mergo.Merge(&converted, base); err != nil {
				return NewValidationError("stealth", fmt.Sprintf("profile tier %d: %v", tier, err))
			}
		}
		profiles[tier] = converted
	}
	cfg.Stealth.Profiles = profiles
	return nil
}

func convertStealthProfile(tier int, up yamlStealthProfile) (models.StealthProfile, error) {
	section := fmt.Sprintf("stealth.profiles[%d]", tier)

	p := models.StealthProfile{
		TypingSpeed:       up.TypingSpeed,
		TypingVariability: up.TypingVariability,
	}
	var err error
	if p.MinResponseDelay, err = parseDuration(section+".min_response_delay", up.MinResponseDelay); err != nil {
		return p, err
	}
	if p.MaxResponseDelay, err = parseDuration(section+".max_response_delay", up.MaxResponseDelay); err != nil {
		return p, err
	}
	if up.Personality != nil {
		p.Personality = models.StealthPersonality{
			EmojiUsage: up.Personality.EmojiUsage,
			Formality:  up.Personality.Formality,
		}
	}
	if len(up.ResponsePatterns) > 0 {
		p.ResponsePatterns = make(map[models.ResponseType]models.ResponsePattern, len(up.ResponsePatterns))
		for name, pat := range up.ResponsePatterns {
			rt := models.ResponseType(name)
			if !rt.Valid() {
				return p, NewValidationError("stealth", fmt.Sprintf("%s: unknown response type %q", section, name))
			}
			var rp models.ResponsePattern
			if rp.Delay, err = parseDuration(section+".response_patterns."+name+".delay", pat.Delay); err != nil {
				return p, err
			}
			if rp.TypingDuration, err = parseDuration(section+".response_patterns."+name+".typing_duration", pat.TypingDuration); err != nil {
				return p, err
			}
			p.ResponsePatterns[rt] = rp
		}
	}
	return p, nil
}

func applyQueue(cfg *Config, user *yamlQueue) error {
	if user == nil {
		return nil
	}
	if user.BackpressureSoftLimit != nil {
		if *user.BackpressureSoftLimit < 0 {
			return NewValidationError("queue", "backpressure_soft_limit must not be negative")
		}
		cfg.Queue.BackpressureSoftLimit = *user.BackpressureSoftLimit
	}
	if user.SLASweepInterval != "" {
		d, err := parseDuration("queue.sla_sweep_interval", user.SLASweepInterval)
		if err != nil {
			return err
		}
		if d <= 0 {
			return NewValidationError("queue", "sla_sweep_interval must be positive")
		}
		cfg.Queue.SLASweepInterval = d
	}
	if user.GracefulShutdownTimeout != "" {
		d, err := parseDuration("queue.graceful_shutdown_timeout", user.GracefulShutdownTimeout)
		if err != nil {
			return err
		}
		cfg.Queue.GracefulShutdownTimeout = d
	}
	return nil
}

func applyQA(cfg *Config, user *yamlQA) {
	if user == nil {
		return
	}
	if user.PassThreshold != nil {
		cfg.QA.PassThreshold = *user.PassThreshold
	}
	if user.CalibrationDelta != nil {
		cfg.QA.CalibrationDelta = *user.CalibrationDelta
	}
}

func applyRetention(cfg *Config, user *yamlRetention) error {
	if user == nil {
		return nil
	}
	if user.SessionRetention != "" {
		d, err := parseDuration("retention.session_retention", user.SessionRetention)
		if err != nil {
			return err
		}
		cfg.Retention.SessionRetention = d
	}
	if user.EvaluationRetention != "" {
		d, err := parseDuration("retention.evaluation_retention", user.EvaluationRetention)
		if err != nil {
			return err
		}
		cfg.Retention.EvaluationRetention = d
	}
	if user.CleanupInterval != "" {
		d, err := parseDuration("retention.cleanup_interval", user.CleanupInterval)
		if err != nil {
			return err
		}
		cfg.Retention.CleanupInterval = d
	}
	return nil
}

func applyIntent(cfg *Config, user *yamlIntent) {
	if user == nil {
		return
	}
	if len(user.Categories) > 0 {
		categories := make(map[string][]string, len(cfg.Intent.Categories)+len(user.Categories))
		for cat, kw := range cfg.Intent.Categories {
			categories[cat] = kw
		}
		for cat, kw := range user.Categories {
			categories[cat] = kw
		}
		cfg.Intent.Categories = categories
	}
	if len(user.HardTriggers) > 0 {
		cfg.Intent.HardTriggers = user.HardTriggers
	}
}

// mergeRules overlays user rules on the built-in set: a user rule with a
// known id replaces the built-in rule in place, new ids append in file
// order. Match order is preserved.
func mergeRules(base []models.EscalationRule, user []yamlEscalationRule) ([]models.EscalationRule, error) {
	rules := append([]models.EscalationRule(nil), base...)
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		index[r.ID] = i
	}

	for _, ur := range user {
		rule, err := convertRule(ur)
		if err != nil {
			return nil, err
		}
		if i, ok := index[rule.ID]; ok {
			rules[i] = rule
		} else {
			index[rule.ID] = len(rules)
			rules = append(rules, rule)
		}
	}

	for _, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func convertRule(ur yamlEscalationRule) (models.EscalationRule, error) {
	rule := models.EscalationRule{
		ID:                   ur.ID,
		Name:                 ur.Name,
		Triggers:             ur.Triggers,
		FromTier:             ur.FromTier,
		ToTier:               ur.ToTier,
		Priority:             models.RulePriority(ur.Priority),
		AutoEscalate:         ur.AutoEscalate,
		NotificationRequired: ur.NotificationRequired,
	}
	if ur.SLA != "" {
		d, err := parseDuration("escalation_rules."+ur.ID+".sla", ur.SLA)
		if err != nil {
			return rule, err
		}
		rule.SLA = d
	}
	return rule, nil
}

func validateRule(r models.EscalationRule) error {
	if r.ID == "" {
		return NewValidationError("escalation_rules", "rule id is required")
	}
	if !r.Priority.Valid() {
		return NewValidationError("escalation_rules", fmt.Sprintf("rule %q has unknown priority %q", r.ID, r.Priority))
	}
	if r.FromTier < models.MinAgentTier || r.FromTier > models.MaxAgentTier {
		return NewValidationError("escalation_rules", fmt.Sprintf("rule %q from_tier %d outside [%d,%d]", r.ID, r.FromTier, models.MinAgentTier, models.MaxAgentTier))
	}
	if r.ToTier <= r.FromTier || r.ToTier > models.MaxAgentTier {
		return NewValidationError("escalation_rules", fmt.Sprintf("rule %q to_tier %d must be above from_tier %d and at most %d", r.ID, r.ToTier, r.FromTier, models.MaxAgentTier))
	}
	if r.SLA < 0 {
		return NewValidationError("escalation_rules", fmt.Sprintf("rule %q sla must not be negative", r.ID))
	}
	return nil
}

func mergeKnowledge(base []models.KnowledgeEntry, user []yamlKnowledgeEntry) []models.KnowledgeEntry {
	entries := append([]models.KnowledgeEntry(nil), base...)
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.ID] = i
	}

	now := time.Now().UTC()
	for _, ue := range user {
		entry := models.KnowledgeEntry{
			ID:          ue.ID,
			Title:       ue.Title,
			Content:     ue.Content,
			AccessTier:  ue.AccessTier,
			Tags:        ue.Tags,
			Owner:       ue.Owner,
			ReviewCycle: ue.ReviewCycle,
			Version:     ue.Version,
			LastUpdated: now,
		}
		if entry.Version == 0 {
			entry.Version = 1
		}
		if i, ok := index[entry.ID]; ok {
			entries[i] = entry
		} else {
			index[entry.ID] = len(entries)
			entries = append(entries, entry)
		}
	}
	return entries
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, NewValidationError(field, fmt.Sprintf("invalid duration %q", value))
	}
	if d < 0 {
		return 0, NewValidationError(field, "duration must not be negative")
	}
	return d, nil
}
