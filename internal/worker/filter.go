package worker

import (
	"strings"

	"github.com/mpetrenko/stt-stream-service/internal/engine"
)

// minSegmentRunes is the shortest trimmed segment text worth keeping.
// Single-character segments are overwhelmingly decoder noise.
const minSegmentRunes = 2

// filterTranscript reduces a raw inference result to the final
// transcript. Segments whose no-speech probability exceeds the threshold
// are dropped, as are segments shorter than two characters and segments
// containing a denylisted phrase (case-insensitive substring match).
// Survivors are joined with single spaces.
func filterTranscript(result *engine.Result, noSpeechThreshold float64, denylist []string) string {
	if result == nil {
		return ""
	}

	var kept []string

segments:
	for _, seg := range result.Segments {
		if seg.NoSpeechProb > noSpeechThreshold {
			continue
		}

		text := strings.TrimSpace(seg.Text)
		if len([]rune(text)) < minSegmentRunes {
			continue
		}

		lower := strings.ToLower(text)
		for _, phrase := range denylist {
			if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
				continue segments
			}
		}

		kept = append(kept, text)
	}

	return strings.Join(kept, " ")
}

// languageOf extracts a display language from an inference result,
// defaulting to English when the backend reports none.
func languageOf(result *engine.Result) string {
	if result != nil && result.Language != "" {
		return result.Language
	}
	return "en"
}
