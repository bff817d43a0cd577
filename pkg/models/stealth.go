package models

import "time"

// ResponsePattern holds the base pacing numbers for one response type.
type ResponsePattern struct {
	Delay          time.Duration `json:"delay"`
	TypingDuration time.Duration `json:"typing_duration"`
}

// StealthPersonality tunes the content enrichment applied to paced
// responses. Both knobs are probabilities in [0,1].
type StealthPersonality struct {
	EmojiUsage float64 `json:"emoji_usage"`
	Formality  float64 `json:"formality"`
}

// StealthProfile describes the human-pacing behaviour of an agent. Profiles
// are defined per tier, with optional per-agent overrides.
type StealthProfile struct {
	// TypingSpeed is a characters-per-second proxy; 200 is the reference
	// speed the typing duration formula normalizes against.
	TypingSpeed       float64       `json:"typing_speed"`
	MinResponseDelay  time.Duration `json:"min_response_delay"`
	MaxResponseDelay  time.Duration `json:"max_response_delay"`
	TypingVariability float64       `json:"typing_variability"`

	ResponsePatterns map[ResponseType]ResponsePattern `json:"response_patterns"`
	Personality      StealthPersonality               `json:"personality"`
}

// Pattern returns the response pattern for the given type, falling back to
// the simple_answer pattern when the type is unknown.
func (p StealthProfile) Pattern(rt ResponseType) ResponsePattern {
	if pat, ok := p.ResponsePatterns[rt]; ok {
		return pat
	}
	return p.ResponsePatterns[ResponseTypeSimpleAnswer]
}
