package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mpetrenko/stt-stream-service/internal/audio"
	"github.com/mpetrenko/stt-stream-service/internal/metrics"
	"github.com/mpetrenko/stt-stream-service/internal/worker"
)

// Session owns one WebSocket connection: it parses control frames,
// accumulates binary audio per source, dispatches ready chunks to the
// worker pool, and writes results back. The read loop runs on the
// caller's goroutine; result writes happen from per-chunk goroutines and
// are serialized by a write mutex.
type Session struct {
	id      string
	conn    *websocket.Conn
	pool    *worker.Pool
	policy  audio.ChunkPolicy
	model   string
	logger  *slog.Logger
	metrics *metrics.Metrics

	writeMu sync.Mutex

	// Read-loop state, touched only from Run.
	buffers map[string]*audio.SessionBuffer
	source  string

	opened time.Time
}

// New creates a session around an upgraded WebSocket connection
func New(conn *websocket.Conn, pool *worker.Pool, policy audio.ChunkPolicy, model string, logger *slog.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()

	return &Session{
		id:      id,
		conn:    conn,
		pool:    pool,
		policy:  policy,
		model:   model,
		logger:  logger.With(slog.String("session_id", id)),
		metrics: m,
		buffers: make(map[string]*audio.SessionBuffer),
		opened:  time.Now(),
	}
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// Run sends the greeting and services the connection until the client
// disconnects or a read fails. It blocks; callers run it on the
// connection's handler goroutine.
func (s *Session) Run() {
	s.logger.Info("WebSocket session opened",
		slog.String("remote", s.conn.RemoteAddr().String()))

	if s.metrics != nil {
		s.metrics.RecordConnectionOpened()
	}

	s.writeJSON(ConnectedMessage{
		Type:      TypeConnected,
		Message:   "WebSocket connection established",
		Model:     s.model,
		Streaming: true,
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("WebSocket read failed", slog.String("error", err.Error()))
			}
			break
		}

		switch msgType {
		case websocket.TextMessage:
			s.handleControl(data)
		case websocket.BinaryMessage:
			s.handleAudio(data)
		}
	}

	s.cleanup()
}

func (s *Session) handleControl(data []byte) {
	msg, ok := ParseControl(data)
	if !ok {
		// Garbage on the control channel is dropped, not fatal.
		s.logger.Debug("Ignoring malformed control message", slog.Int("bytes", len(data)))
		if s.metrics != nil {
			s.metrics.RecordMalformedMessage()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RecordControlMessage(msg.Type)
	}

	switch msg.Type {
	case TypeStart:
		source := msg.Source
		if source == "" {
			source = audio.DefaultSource
		}

		// A repeated start for the same source discards whatever was
		// buffered and begins a fresh stream.
		buf, err := audio.NewSessionBuffer(source, s.policy)
		if err != nil {
			s.writeJSON(ErrorMessage{Type: TypeError, Source: source, Message: err.Error()})
			return
		}
		s.buffers[source] = buf
		s.source = source

		s.logger.Info("Transcription stream started", slog.String("source", source))
		s.writeJSON(StartedMessage{Type: TypeStarted, Source: source})

	case TypeStop:
		if s.source != "" {
			delete(s.buffers, s.source)
		}
		s.logger.Info("Transcription stream stopped", slog.String("source", s.source))
		s.writeJSON(StoppedMessage{Type: TypeStopped})

	case TypePing:
		s.writeJSON(PongMessage{Type: TypePong})

	default:
		s.logger.Debug("Unknown control message type", slog.String("type", msg.Type))
	}
}

func (s *Session) handleAudio(data []byte) {
	// Binary audio before any start message implies the default source.
	if s.source == "" {
		s.source = audio.DefaultSource
	}

	buf, ok := s.buffers[s.source]
	if !ok {
		var err error
		buf, err = audio.NewSessionBuffer(s.source, s.policy)
		if err != nil {
			s.writeJSON(ErrorMessage{Type: TypeError, Source: s.source, Message: err.Error()})
			return
		}
		s.buffers[s.source] = buf
	}

	if s.metrics != nil {
		s.metrics.RecordAudioReceived(len(data))
	}

	chunks, droppedBytes := buf.Feed(data)
	if droppedBytes > 0 {
		s.logger.Warn("Audio buffer overflow, dropped oldest bytes",
			slog.String("source", s.source),
			slog.Int("dropped_bytes", droppedBytes))
		if s.metrics != nil {
			s.metrics.RecordOverflow(droppedBytes)
		}
	}

	for _, chunk := range chunks {
		if s.metrics != nil {
			s.metrics.RecordChunkEmitted(len(chunk.PCM))
		}
		go s.dispatch(chunk)
	}
}

// dispatch submits one chunk and forwards its result to the client.
// Results may complete out of submission order; each carries its own
// source so the client can attribute them.
func (s *Session) dispatch(chunk audio.Chunk) {
	start := time.Now()
	result := <-s.pool.Submit(chunk)

	if s.metrics != nil {
		silent := result.Success && result.Text == ""
		s.metrics.RecordTranscription(result.Success, silent, time.Since(start).Seconds())
	}

	switch {
	case !result.Success:
		s.writeJSON(ErrorMessage{
			Type:    TypeError,
			Source:  chunk.Source,
			Message: result.ErrorDetail,
		})
	case result.Text == "":
		s.writeJSON(SilenceMessage{Type: TypeSilence, Source: chunk.Source})
	default:
		s.logger.Debug("Transcription delivered",
			slog.String("source", chunk.Source),
			slog.Uint64("seq", chunk.Seq),
			slog.Int("text_len", len(result.Text)))
		s.writeJSON(TranscriptionMessage{
			Type:     TypeTranscription,
			Source:   chunk.Source,
			Text:     result.Text,
			Language: result.Language,
		})
	}
}

// writeJSON serializes a message to the connection. Write failures are
// expected after disconnect; the late result is logged and dropped.
func (s *Session) writeJSON(v interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteJSON(v); err != nil {
		s.logger.Debug("Dropped message for closed connection", slog.String("error", err.Error()))
	}
}

func (s *Session) cleanup() {
	s.buffers = make(map[string]*audio.SessionBuffer)
	s.conn.Close()

	duration := time.Since(s.opened)
	if s.metrics != nil {
		s.metrics.RecordConnectionClosed(duration.Seconds())
	}

	s.logger.Info("WebSocket session closed",
		slog.Duration("duration", duration))
}
