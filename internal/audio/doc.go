// Package audio provides the per-source accumulation buffer and chunk
// extraction logic for streaming PCM, plus WAV encoding helpers.
package audio
