package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mpetrenko/stt-stream-service/internal/audio"
	"github.com/mpetrenko/stt-stream-service/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 8 * 1024,
	// Browser capture clients connect from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and runs a streaming session
// on the handler goroutine until the client disconnects.
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	policy := audio.ChunkPolicy{
		MinChunkBytes:  h.config.Audio.MinChunkBytes(),
		OverlapBytes:   h.config.Audio.OverlapBytes(),
		MaxBufferBytes: h.config.Audio.MaxBufferBytes(),
	}

	sess := session.New(conn, h.pool, policy, h.model, h.logger, h.metrics)

	h.registry.Add(sess)
	defer h.registry.Remove(sess)

	sess.Run()
}
