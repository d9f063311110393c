package session

import "encoding/json"

// Control message types accepted from clients
const (
	TypeStart = "start"
	TypeStop  = "stop"
	TypePing  = "ping"
)

// Server message types
const (
	TypeConnected     = "connected"
	TypeStarted       = "started"
	TypeStopped       = "stopped"
	TypePong          = "pong"
	TypeTranscription = "transcription"
	TypeSilence       = "silence"
	TypeError         = "error"
)

// ControlMessage is a client text frame steering the stream
type ControlMessage struct {
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`
}

// ParseControl decodes a client text frame. A malformed frame returns
// ok=false and is ignored by the caller; the connection stays up.
func ParseControl(data []byte) (ControlMessage, bool) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, false
	}
	return msg, true
}

// ConnectedMessage is the greeting sent immediately after upgrade
type ConnectedMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Model     string `json:"model"`
	Streaming bool   `json:"streaming"`
}

// StartedMessage acknowledges a start control message
type StartedMessage struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// StoppedMessage acknowledges a stop control message
type StoppedMessage struct {
	Type string `json:"type"`
}

// PongMessage answers a ping
type PongMessage struct {
	Type string `json:"type"`
}

// TranscriptionMessage delivers recognized speech for one chunk
type TranscriptionMessage struct {
	Type     string `json:"type"`
	Source   string `json:"source"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

// SilenceMessage reports a chunk that produced no speech
type SilenceMessage struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// ErrorMessage reports a processing failure. Source is empty for
// failures not tied to a stream.
type ErrorMessage struct {
	Type    string `json:"type"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}
