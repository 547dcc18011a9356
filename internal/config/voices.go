package config

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// VoiceCatalog lists the known voice identifiers per TTS provider. Used by
// [Validate] to catch typos in voice IDs before a session starts, since an
// invalid voice otherwise only surfaces as a mid-session synthesis failure.
var VoiceCatalog = map[string][]string{
	"edge": {
		"en-US-GuyNeural",
		"en-US-JennyNeural",
		"en-US-AriaNeural",
		"en-US-DavisNeural",
		"en-US-TonyNeural",
		"en-US-SaraNeural",
		"en-GB-RyanNeural",
		"en-GB-SoniaNeural",
		"en-AU-WilliamNeural",
		"en-AU-NatashaNeural",
	},
	"openai": {
		"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer",
	},
}

// suggestionThreshold is the minimum Jaro-Winkler similarity for a catalog
// entry to be offered as a "did you mean" suggestion.
const suggestionThreshold = 0.8

// KnownVoice reports whether id is in the catalog for the given provider.
// Unknown providers accept any voice ID: the catalog only covers built-in
// providers.
func KnownVoice(provider, id string) bool {
	known, ok := VoiceCatalog[provider]
	if !ok {
		return true
	}
	for _, v := range known {
		if v == id {
			return true
		}
	}
	return false
}

// SuggestVoice returns the catalog entry most similar to id for the given
// provider, or "" when nothing is close enough to be a plausible typo.
func SuggestVoice(provider, id string) string {
	best, bestScore := "", suggestionThreshold
	for _, v := range VoiceCatalog[provider] {
		score := matchr.JaroWinkler(strings.ToLower(id), strings.ToLower(v), false)
		if score > bestScore {
			best, bestScore = v, score
		}
	}
	return best
}
