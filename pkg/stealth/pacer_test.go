package stealth

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/models"
)

func fastProfile() models.StealthProfile {
	return models.StealthProfile{
		TypingSpeed:       200,
		MinResponseDelay:  5 * time.Millisecond,
		MaxResponseDelay:  50 * time.Millisecond,
		TypingVariability: 0.2,
		ResponsePatterns: map[models.ResponseType]models.ResponsePattern{
			models.ResponseTypeSimpleAnswer: {Delay: 10 * time.Millisecond, TypingDuration: 20 * time.Millisecond},
		},
		Personality: models.StealthPersonality{EmojiUsage: 0, Formality: 0.4},
	}
}

func fastConfig(enabled bool) config.StealthConfig {
	return config.StealthConfig{
		Enabled:  enabled,
		Profiles: map[int]models.StealthProfile{1: fastProfile()},
	}
}

func TestComputeDelayBounds(t *testing.T) {
	profile := models.StealthProfile{
		TypingSpeed:       200,
		MinResponseDelay:  1500 * time.Millisecond,
		MaxResponseDelay:  6000 * time.Millisecond,
		TypingVariability: 0.3,
		ResponsePatterns: map[models.ResponseType]models.ResponsePattern{
			models.ResponseTypeSimpleAnswer: {Delay: 1500 * time.Millisecond, TypingDuration: 2000 * time.Millisecond},
		},
	}
	rng := rand.New(rand.NewSource(42))

	for count := 0; count < 30; count++ {
		delay := computeDelay(profile, models.ResponseTypeSimpleAnswer, count, 0, rng)
		assert.GreaterOrEqual(t, delay, profile.MinResponseDelay)
		assert.LessOrEqual(t, delay, profile.MaxResponseDelay)
	}
}

func TestComputeDelayExperienceFloor(t *testing.T) {
	profile := fastProfile()
	profile.TypingVariability = 0 // randomFactor becomes exactly 1
	profile.MinResponseDelay = 0
	rng := rand.New(rand.NewSource(1))

	fresh := computeDelay(profile, models.ResponseTypeSimpleAnswer, 0, 0, rng)
	assert.Equal(t, 10*time.Millisecond, fresh)

	// Past 6 responses the experience factor bottoms out at 0.7.
	veteran := computeDelay(profile, models.ResponseTypeSimpleAnswer, 50, 0, rng)
	assert.Equal(t, 7*time.Millisecond, veteran)
}

func TestComputeDelayGlobalCap(t *testing.T) {
	profile := fastProfile()
	rng := rand.New(rand.NewSource(1))
	delay := computeDelay(profile, models.ResponseTypeSimpleAnswer, 0, 3*time.Millisecond, rng)
	assert.Equal(t, 3*time.Millisecond, delay)
}

func TestComputeTypingScalesWithLength(t *testing.T) {
	profile := fastProfile()
	rng := rand.New(rand.NewSource(7))

	short := computeTyping(profile, models.ResponseTypeSimpleAnswer, 10, rng)
	long := computeTyping(profile, models.ResponseTypeSimpleAnswer, 500, rng)

	// Length factor clamps to [0.5, 2.0]; wobble stays within [0.8, 1.2].
	base := float64(20 * time.Millisecond)
	assert.GreaterOrEqual(t, short, time.Duration(base*0.5*0.8))
	assert.LessOrEqual(t, short, time.Duration(base*0.5*1.2))
	assert.GreaterOrEqual(t, long, time.Duration(base*2.0*0.8))
	assert.LessOrEqual(t, long, time.Duration(base*2.0*1.2))
}

func TestEnrichCapitalizesSentences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	out := Enrich("hello there. how can i help? great", models.StealthPersonality{}, rng)
	assert.Equal(t, "Hello there. How can i help? Great", out)
}

func TestEnrichFormalPrefix(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	out := Enrich("your refund is on its way.", models.StealthPersonality{Formality: 1.0}, rng)
	assert.Contains(t, out, "Your refund is on its way.")
	assert.Greater(t, len(out), len("Your refund is on its way."), "formality 1.0 always prefixes")
}

func TestEnrichEmojiSuffix(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	out := Enrich("done", models.StealthPersonality{EmojiUsage: 1.0}, rng)
	assert.True(t, hasEmojiSuffix(out), "emoji usage 1.0 always appends: %q", out)
}

func hasEmojiSuffix(s string) bool {
	for _, suffix := range emojiSuffixes {
		if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

func collectKinds(sub *events.Subscription, n int, timeout time.Duration) []events.Kind {
	var kinds []events.Kind
	deadline := time.After(timeout)
	for len(kinds) < n {
		select {
		case ev := <-sub.Events():
			kinds = append(kinds, ev.Kind)
		case <-deadline:
			return kinds
		}
	}
	return kinds
}

func TestScheduleEmitsOrderedSequence(t *testing.T) {
	hub := events.NewHub(0)
	pacer := NewPacer(fastConfig(true), events.NewPublisher(hub))
	defer pacer.Stop()

	sub := hub.Subscribe(events.KindTypingStart, events.KindTypingEnd, events.KindResponseReady)
	defer sub.Close()

	pacer.Schedule(Request{
		SessionID:    "sess-1",
		AgentID:      "agent-1",
		AgentTier:    1,
		Content:      "here is your answer",
		ResponseType: models.ResponseTypeSimpleAnswer,
	})

	kinds := collectKinds(sub, 3, 2*time.Second)
	require.Equal(t, []events.Kind{
		events.KindTypingStart,
		events.KindTypingEnd,
		events.KindResponseReady,
	}, kinds)
}

func TestScheduleDisabledDeliversImmediatelyInOrder(t *testing.T) {
	hub := events.NewHub(0)
	pacer := NewPacer(fastConfig(false), events.NewPublisher(hub))
	defer pacer.Stop()

	sub := hub.Subscribe(events.KindResponseReady)
	defer sub.Close()

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		pacer.Schedule(Request{
			SessionID:    "sess-1",
			AgentID:      "agent-1",
			AgentTier:    1,
			Content:      c,
			ResponseType: models.ResponseTypeSimpleAnswer,
		})
	}

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-sub.Events():
			payload, ok := ev.Payload.(events.ResponseReadyPayload)
			require.True(t, ok)
			assert.Equal(t, int64(0), payload.DelayMS)
			got = append(got, payload.Content)
		case <-deadline:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, contents, got, "disabled pacing preserves per-session order")
}

func TestScheduleBacklogKeepsPerSessionOrder(t *testing.T) {
	cfg := fastConfig(true)
	profile := cfg.Profiles[1]
	profile.MinResponseDelay = 0
	profile.MaxResponseDelay = 5 * time.Millisecond
	profile.ResponsePatterns = map[models.ResponseType]models.ResponsePattern{
		models.ResponseTypeSimpleAnswer: {Delay: time.Millisecond, TypingDuration: time.Millisecond},
	}
	profile.Personality = models.StealthPersonality{}
	cfg.Profiles[1] = profile

	hub := events.NewHub(256)
	pacer := NewPacer(cfg, events.NewPublisher(hub))
	defer pacer.Stop()

	sub := hub.Subscribe(events.KindResponseReady)
	defer sub.Close()

	// Overfill the per-session buffer; the overflow waits for the worker
	// instead of jumping the line.
	total := jobBuffer + 4
	for i := 0; i < total; i++ {
		pacer.Schedule(Request{
			SessionID:    "sess-1",
			AgentID:      "agent-1",
			AgentTier:    1,
			Content:      fmt.Sprintf("reply %03d", i),
			ResponseType: models.ResponseTypeSimpleAnswer,
		})
	}

	var got []string
	deadline := time.After(10 * time.Second)
	for len(got) < total {
		select {
		case ev := <-sub.Events():
			payload, ok := ev.Payload.(events.ResponseReadyPayload)
			require.True(t, ok)
			got = append(got, payload.Content)
		case <-deadline:
			t.Fatalf("timed out after %d responses", len(got))
		}
	}
	for i, content := range got {
		assert.Contains(t, content, fmt.Sprintf("%03d", i))
	}
}

func TestDeactivateSuppressesPendingResponses(t *testing.T) {
	cfg := fastConfig(true)
	profile := cfg.Profiles[1]
	profile.ResponsePatterns[models.ResponseTypeSimpleAnswer] = models.ResponsePattern{
		Delay: 5 * time.Second, TypingDuration: 5 * time.Second,
	}
	profile.MaxResponseDelay = 10 * time.Second
	cfg.Profiles[1] = profile

	hub := events.NewHub(0)
	pacer := NewPacer(cfg, events.NewPublisher(hub))
	defer pacer.Stop()

	sub := hub.Subscribe(events.KindResponseReady)
	defer sub.Close()

	pacer.Schedule(Request{
		SessionID:    "sess-1",
		AgentID:      "agent-1",
		AgentTier:    1,
		Content:      "never delivered",
		ResponseType: models.ResponseTypeSimpleAnswer,
	})
	pacer.Deactivate("sess-1")

	select {
	case ev := <-sub.Events():
		t.Fatalf("response delivered after deactivation: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, 0, pacer.ActiveSessions())
}
