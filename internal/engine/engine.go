package engine

import "context"

// Segment is one stretch of decoded speech as reported by the model.
// NoSpeechProb is the model's estimate that the stretch contains no
// speech at all; downstream filtering discards high-probability segments.
type Segment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// Result is the raw outcome of one inference call, before any
// hallucination or no-speech filtering is applied.
type Result struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Engine runs speech-to-text inference on a complete WAV payload.
// Implementations must be safe for concurrent use; Transcribe honors
// ctx cancellation and deadlines.
type Engine interface {
	Transcribe(ctx context.Context, wav []byte) (*Result, error)
	Model() string
}

// StatsProvider is implemented by engines that track backend client
// statistics, for inclusion in the service stats surface.
type StatsProvider interface {
	GetStats() ClientStats
}
