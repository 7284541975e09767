// Package server exposes the recorder's diagnostics HTTP API: health, audio
// levels, pipeline statistics, effective configuration and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShichengRao/transcription-and-summary/internal/config"
	"github.com/ShichengRao/transcription-and-summary/internal/metrics"
	"github.com/ShichengRao/transcription-and-summary/internal/recorder"
)

// HTTPServer serves the diagnostics API
type HTTPServer struct {
	config   *config.Config
	recorder *recorder.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	server   *http.Server
}

// NewHTTPServer creates the diagnostics API server
func NewHTTPServer(cfg *config.Config, rec *recorder.Recorder, logger *slog.Logger, m *metrics.Metrics) *HTTPServer {
	s := &HTTPServer{
		config:   cfg,
		recorder: rec,
		logger:   logger,
		metrics:  m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/levels", s.withMetrics("/levels", s.handleLevels))
	mux.HandleFunc("/stats", s.withMetrics("/stats", s.handleStats))
	mux.HandleFunc("/results", s.withMetrics("/results", s.handleResults))
	mux.HandleFunc("/pause", s.withMetrics("/pause", s.handlePause))
	mux.HandleFunc("/resume", s.withMetrics("/resume", s.handleResume))
	mux.HandleFunc("/config", s.withMetrics("/config", s.handleConfig))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the route mux, mainly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving in a background goroutine
func (s *HTTPServer) Start() {
	go func() {
		s.logger.Info("HTTP server starting", slog.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts the server down
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server stopping")
	return s.server.Shutdown(ctx)
}

// responseWriter captures the status code for instrumentation
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// withMetrics wraps a handler with request counting and timing
func (s *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		s.metrics.RecordHTTPRequest(r.Method, endpoint,
			strconv.Itoa(rw.statusCode), time.Since(start).Seconds())
		if rw.statusCode >= 400 {
			s.metrics.RecordHTTPError(r.Method, endpoint, http.StatusText(rw.statusCode))
		}
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"recording": s.recorder.IsRecording(),
		"time":      time.Now().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleLevels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.recorder.AudioLevels())
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.recorder.Stats())
}

// handleResults drains and returns buffered transcription results
func (s *HTTPServer) handleResults(w http.ResponseWriter, r *http.Request) {
	results := s.recorder.DrainResults()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(results),
		"results": results,
	})
}

func (s *HTTPServer) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.recorder.Pause()
	s.writeJSON(w, http.StatusOK, map[string]any{"recording": s.recorder.IsRecording()})
}

func (s *HTTPServer) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.recorder.Resume()
	s.writeJSON(w, http.StatusOK, map[string]any{"recording": s.recorder.IsRecording()})
}

func (s *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"audio":         s.config.Audio,
		"capture":       s.config.Capture,
		"transcription": s.config.Transcription,
		"queue":         s.config.Queue,
		"storage":       s.config.Storage,
	})
}

func (s *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "transcription-recorder",
		"endpoints": []string{
			"/health", "/levels", "/stats", "/results",
			"/pause", "/resume", "/config", "/metrics",
		},
	})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
