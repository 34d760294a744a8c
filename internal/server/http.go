package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/natetr/CrankScribe/internal/config"
	"github.com/natetr/CrankScribe/internal/llm"
	"github.com/natetr/CrankScribe/internal/metrics"
	"github.com/natetr/CrankScribe/internal/pipeline"
	"github.com/natetr/CrankScribe/internal/session"
	"github.com/natetr/CrankScribe/internal/transcription"
)

// HTTPServer provides the chunk upload, finalize and monitoring API
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	orch    *pipeline.Orchestrator
	store   *session.Store
	llm     *llm.Client
	trans   *transcription.Client
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP API server. llmClient may be nil; the
// /process endpoint then reports that processing is not configured.
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger,
	orch *pipeline.Orchestrator, store *session.Store, llmClient *llm.Client,
	transClient *transcription.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		orch:      orch,
		store:     store,
		llm:       llmClient,
		trans:     transClient,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.Server.Address, appConfig.Server.Port),
		Handler:      withCORS(mux),
		ReadTimeout:  appConfig.Server.GetReadTimeout(),
		WriteTimeout: appConfig.Server.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Recording pipeline endpoints
	mux.HandleFunc("/chunk", h.withMetrics("/chunk", h.handleChunk))
	mux.HandleFunc("/finalize", h.withMetrics("/finalize", h.handleFinalize))
	mux.HandleFunc("/process", h.withMetrics("/process", h.handleProcess))
	mux.HandleFunc("/email", h.withMetrics("/email", h.handleEmail))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoint
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withCORS allows cross-origin access to the whole API. The uploading device
// talks to the server directly, but companion web UIs hit it from a browser.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Session-Id, X-Chunk-Seq")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

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

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForError maps pipeline errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrEmptySession):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrTranscription):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleChunk implements the POST /chunk endpoint. The body is raw mu-law
// audio; session and ordering come from the X-Session-Id and X-Chunk-Seq
// headers. A missing X-Chunk-Seq means sequence 0.
func (h *HTTPServer) handleChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessionID := r.Header.Get("X-Session-Id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Session-Id header")
		return
	}

	seq := 0
	if seqStr := r.Header.Get("X-Chunk-Seq"); seqStr != "" {
		var err error
		seq, err = strconv.Atoi(seqStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid X-Chunk-Seq")
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(h.config.Server.MaxChunkBytes)))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Chunk body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to read chunk body")
		return
	}

	receipt, err := h.orch.IngestChunk(sessionID, seq, body)
	if err != nil {
		h.logger.Warn("Chunk rejected",
			slog.String("session_id", sessionID),
			slog.Int("seq", seq),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":      receipt.Seq,
		"size_bytes":    receipt.RawBytes,
		"decoded_bytes": receipt.StoredBytes,
	})
}

// handleFinalize implements the POST /finalize endpoint: combine the
// session's chunks, transcribe and return the transcript.
func (h *HTTPServer) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessionID := r.Header.Get("X-Session-Id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Missing X-Session-Id header")
		return
	}

	result, err := h.orch.Finalize(r.Context(), sessionID)
	if err != nil {
		h.logger.Warn("Finalize failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transcript":             result.Transcript,
		"chunks_combined":        result.Chunks,
		"audio_duration_seconds": result.AudioSeconds,
	})
}

type processRequest struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

// handleProcess implements the POST /process endpoint: run one LLM action
// (summary, minutes, todos) over a transcript.
func (h *HTTPServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if h.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM processing not configured")
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Action == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "Missing action or text")
		return
	}

	result, err := h.llm.Process(r.Context(), req.Action, req.Text)
	if err != nil {
		if errors.Is(err, llm.ErrUnknownAction) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Transcript processing failed",
			slog.String("action", req.Action),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"timestamp":       time.Now().UTC(),
		"uptime":          time.Since(h.startTime).String(),
		"active_sessions": h.store.ActiveCount(),
		"llm_configured":  h.llm != nil,
	})
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	infos := h.store.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Sanitized configuration: API keys are intentionally omitted.
	sanitized := map[string]any{
		"server": map[string]any{
			"port":            h.config.Server.Port,
			"address":         h.config.Server.Address,
			"max_chunk_bytes": h.config.Server.MaxChunkBytes,
		},
		"audio": map[string]any{
			"input_sample_rate":  h.config.Audio.InputSampleRate,
			"output_sample_rate": h.config.Audio.OutputSampleRate,
		},
		"session": map[string]any{
			"max_age_minutes":        h.config.Session.MaxAgeMinutes,
			"sweep_interval_seconds": h.config.Session.SweepIntervalSeconds,
		},
		"transcription": map[string]any{
			"endpoint":       h.config.Transcription.Endpoint,
			"model":          h.config.Transcription.Model,
			"language":       h.config.Transcription.Language,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
		},
		"llm": map[string]any{
			"enabled": h.config.LLM.Enabled,
			"model":   h.config.LLM.Model,
		},
		"events": map[string]any{
			"enabled": h.config.Events.Enabled,
			"topic":   h.config.Events.Topic,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitized)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]any{
			"active_count": h.store.ActiveCount(),
		},
	}
	if h.trans != nil {
		stats["transcription"] = h.trans.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleEmail implements the /email endpoint. Relaying transcripts by mail
// needs an SMTP relay that is not configured yet, so the endpoint only
// acknowledges the request.
func (h *HTTPServer) handleEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusNotImplemented, map[string]any{
		"status":  "not_implemented",
		"message": "Email relay requires SMTP configuration",
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "CrankScribe",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /chunk":    "Upload one mu-law audio chunk (X-Session-Id, X-Chunk-Seq headers)",
			"POST /finalize": "Combine a session's chunks and transcribe (X-Session-Id header)",
			"POST /process":  "Run an LLM action over a transcript (summary, minutes, todos)",
			"POST /email":    "Relay a transcript by email (not implemented)",
			"GET /health":    "Service health check",
			"GET /sessions":  "List active recording sessions",
			"GET /config":    "Get service configuration",
			"GET /stats":     "Get service statistics",
			"GET /metrics":   "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
