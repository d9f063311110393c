// Package session implements the WebSocket streaming protocol: JSON text
// frames carry control messages (start, stop, ping) and binary frames
// carry raw mono 16-bit PCM. Each connection gets one Session that
// buffers audio per source, hands ready chunks to the worker pool, and
// streams transcription, silence, and error results back to the client.
package session
