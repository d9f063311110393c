package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mpetrenko/stt-stream-service/internal/config"
	"github.com/mpetrenko/stt-stream-service/internal/engine"
	"github.com/mpetrenko/stt-stream-service/internal/metrics"
	"github.com/mpetrenko/stt-stream-service/internal/session"
	"github.com/mpetrenko/stt-stream-service/internal/transcode"
	"github.com/mpetrenko/stt-stream-service/internal/worker"
)

// oneShotTimeout bounds the whole one-shot pipeline: conversion (when
// needed) plus inference.
const oneShotTimeout = 30 * time.Second

// HTTPServer serves the WebSocket streaming endpoint, the one-shot
// transcription endpoint, and monitoring routes.
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	pool       *worker.Pool
	transcoder *transcode.Transcoder
	registry   *session.Registry
	metrics    *metrics.Metrics
	model      string

	startTime time.Time
}

// NewHTTPServer creates the HTTP server and wires up all routes
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, pool *worker.Pool,
	transcoder *transcode.Transcoder, registry *session.Registry, m *metrics.Metrics, model string) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     cfg,
		pool:       pool,
		transcoder: transcoder,
		registry:   registry,
		metrics:    m,
		model:      model,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// WebSocket streaming endpoint (metrics recorded per session)
	mux.HandleFunc("/ws", h.handleWebSocket)

	// One-shot transcription
	mux.HandleFunc("/transcribe", h.withMetrics("/transcribe", h.handleTranscribe))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

			if ww.statusCode >= 400 {
				errorType := "client_error"
				if ww.statusCode >= 500 {
					errorType = "server_error"
				}
				h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
			}
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Serve runs the HTTP server until Stop is called. A clean shutdown
// returns nil.
func (h *HTTPServer) Serve() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// Handler exposes the route mux for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// transcribeResponse is the one-shot endpoint's JSON body. Silence is a
// success with empty text; only pipeline failures set success false.
type transcribeResponse struct {
	Success  bool   `json:"success"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleTranscribe implements POST /transcribe: the request body is one
// complete audio payload, either raw PCM or a compressed container.
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if len(body) == 0 {
		http.Error(w, "No audio data provided", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), oneShotTimeout)
	defer cancel()

	contentType := r.Header.Get("Content-Type")
	compressed := transcode.NeedsConversion(body, contentType)

	if h.metrics != nil {
		h.metrics.RecordOneShot(compressed)
	}

	// Compressed uploads get a lower audibility floor than raw PCM; a
	// container of that size cannot hold a decodable utterance either way.
	minBytes := h.config.Worker.MinAudibleBytes
	if compressed {
		minBytes = h.config.Worker.MinContainerBytes
	}
	if len(body) < minBytes {
		h.logger.Debug("One-shot payload below audibility floor",
			slog.Int("bytes", len(body)),
			slog.Bool("compressed", compressed))
		h.writeJSON(w, http.StatusOK, transcribeResponse{Success: true, Text: "", Language: "en"})
		return
	}

	pcm := body
	if compressed {
		pcm, err = h.transcoder.Convert(ctx, body)
		if err != nil {
			h.logger.Error("One-shot conversion failed", slog.String("error", err.Error()))
			h.writeJSON(w, failureStatus(ctx), transcribeResponse{
				Success: false,
				Text:    "",
				Error:   fmt.Sprintf("audio conversion failed: %v", err),
			})
			return
		}
	}

	result := h.pool.Process(ctx, "upload", pcm)

	if !result.Success {
		h.writeJSON(w, failureStatus(ctx), transcribeResponse{
			Success: false,
			Text:    "",
			Error:   result.ErrorDetail,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, transcribeResponse{
		Success:  true,
		Text:     result.Text,
		Language: result.Language,
	})
}

// failureStatus distinguishes bad audio from a pipeline that ran out of
// time. Deadline expiry is a server failure and answers 500; everything
// else stays a 200 with success false so clients can read the detail.
func failureStatus(ctx context.Context) int {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")

	health := map[string]interface{}{
		"status":    "ok",
		"model":     h.model,
		"streaming": true,
		"websocket": true,
		"engine":    h.config.Engine.Type,
		"uptime":    time.Since(h.startTime).String(),
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"timestamp":          time.Now().UTC(),
		"uptime":             time.Since(h.startTime).String(),
		"active_connections": h.registry.Len(),
		"worker_pool":        h.pool.Stats(),
	}
	if sp, ok := h.pool.Engine().(engine.StatsProvider); ok {
		stats["engine_client"] = sp.GetStats()
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// handleRoot provides API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	doc := map[string]interface{}{
		"service": "stt-stream-service",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"GET /health":      "Health check",
			"GET /stats":       "Service statistics",
			"GET /metrics":     "Prometheus metrics",
			"POST /transcribe": "One-shot transcription of a complete audio payload",
			"GET /ws":          "WebSocket streaming transcription",
		},
	}

	h.writeJSON(w, http.StatusOK, doc)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}
