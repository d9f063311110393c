// Package server exposes the service over HTTP: a WebSocket endpoint for
// streaming transcription, a one-shot POST endpoint for complete audio
// payloads, and health, statistics, and Prometheus metrics routes.
package server
