package stealth

import (
	"math/rand"
	"strings"
	"unicode"

	"github.com/ocintel/dispatch/pkg/models"
)

// formalPrefixes soften a response when the personality leans formal.
var formalPrefixes = []string{
	"Certainly. ",
	"Of course. ",
	"Thanks for your patience. ",
	"Happy to help. ",
}

// casualFillers replace a leading formal opener when the personality leans
// casual.
var casualFillers = []string{
	"Sure thing! ",
	"No worries! ",
	"Got it! ",
}

// emojiSuffixes are appended per the personality's emoji usage.
var emojiSuffixes = []string{" 🙂", " 👍", " ✨"}

// Enrich applies the human-texture pipeline to a response: sentence
// capitalization, an optional formality prefix, an optional emoji suffix,
// and filler variation. The semantic content is never altered.
func Enrich(content string, personality models.StealthPersonality, rng *rand.Rand) string {
	out := capitalizeSentences(content)

	if personality.Formality > 0.5 && rng.Float64() < personality.Formality {
		out = formalPrefixes[rng.Intn(len(formalPrefixes))] + out
	} else if personality.Formality < 0.3 && rng.Float64() < 0.3 {
		out = casualFillers[rng.Intn(len(casualFillers))] + out
	}

	if rng.Float64() < personality.EmojiUsage && !strings.ContainsAny(out, "🙂👍✨") {
		out += emojiSuffixes[rng.Intn(len(emojiSuffixes))]
	}

	return out
}

// capitalizeSentences upper-cases the first letter of each sentence.
func capitalizeSentences(s string) string {
	runes := []rune(s)
	capitalizeNext := true
	for i, r := range runes {
		if capitalizeNext && unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			capitalizeNext = false
			continue
		}
		switch r {
		case '.', '!', '?':
			capitalizeNext = true
		default:
			if capitalizeNext && !unicode.IsSpace(r) {
				capitalizeNext = false
			}
		}
	}
	return string(runes)
}
