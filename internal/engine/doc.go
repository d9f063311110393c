// Package engine abstracts speech-to-text inference behind a single
// Transcribe call. Two backends are provided: an HTTP multipart client
// for self-hosted whisper servers and a client for OpenAI-compatible
// transcription APIs. A scripted mock supports testing the pipeline
// without a model.
package engine
