package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sahaa21/MindMend/internal/assistant"
	"github.com/Sahaa21/MindMend/internal/audio"
	"github.com/Sahaa21/MindMend/internal/config"
	"github.com/Sahaa21/MindMend/internal/listen"
	"github.com/Sahaa21/MindMend/internal/metrics"
	"github.com/Sahaa21/MindMend/internal/session"
	"github.com/Sahaa21/MindMend/internal/transcription"
)

// maxUploadSize bounds multipart audio uploads
const maxUploadSize = 32 << 20

// Sessions is the listen surface exposed over HTTP
type Sessions interface {
	StartListening(id string) (string, error)
	PollState(id string) (listen.Status, error)
	StopListening(id string) error
	RecordAndTranscribe(ctx context.Context, duration time.Duration) (listen.Transcript, error)
	RecordExchange(id string, e session.Exchange) (string, error)
	Sessions() []session.Info
	GetActiveSessionCount() int
}

// Assistant answers spoken and typed questions
type Assistant interface {
	HandleAudio(ctx context.Context, wav []byte) (assistant.Reply, error)
	Ask(ctx context.Context, question string) (assistant.Reply, error)
	Speak(ctx context.Context, text, language string) ([]byte, error)
}

// HTTPServer provides the voice API plus monitoring endpoints
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	sessions    Sessions
	assistant   Assistant
	transcriber transcription.StatsReporter
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer

	// Server state
	startTime time.Time
}

// Dependencies groups the collaborators of the HTTP server. Assistant and
// Transcriber may be nil.
type Dependencies struct {
	Sessions    Sessions
	Assistant   Assistant
	Transcriber transcription.StatsReporter
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(appConfig *config.Config, deps Dependencies, logger *slog.Logger) *HTTPServer {
	h := &HTTPServer{
		logger:      logger,
		config:      appConfig,
		sessions:    deps.Sessions,
		assistant:   deps.Assistant,
		transcriber: deps.Transcriber,
		metrics:     deps.Metrics,
		gatherer:    deps.Gatherer,
		startTime:   time.Now(),
	}

	if h.gatherer == nil {
		h.gatherer = prometheus.DefaultGatherer
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	// Recording requests hold the connection for the capture plus transcription
	writeTimeout := appConfig.Listen.GetMaxRecord() + appConfig.Transcription.GetTimeoutDuration() + 10*time.Second

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Wake word sessions
	mux.HandleFunc("POST /listen", h.withMetrics("/listen", h.handleStartListening))
	mux.HandleFunc("GET /listen/{id}", h.withMetrics("/listen/{id}", h.handlePollState))
	mux.HandleFunc("POST /listen/{id}/stop", h.withMetrics("/listen/{id}/stop", h.handleStopListening))
	mux.HandleFunc("GET /sessions", h.withMetrics("/sessions", h.handleSessions))

	// Voice and text questions
	mux.HandleFunc("POST /voice/record", h.withMetrics("/voice/record", h.handleRecord))
	mux.HandleFunc("POST /voice/transcribe", h.withMetrics("/voice/transcribe", h.handleTranscribe))
	mux.HandleFunc("POST /voice/tts", h.withMetrics("/voice/tts", h.handleSpeak))
	mux.HandleFunc("POST /ask", h.withMetrics("/ask", h.handleAsk))

	// Monitoring
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
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

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var (
		acqErr  *audio.AcquisitionError
		failure *transcription.Failure
	)

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, listen.ErrAlreadyListening):
		return http.StatusConflict
	case errors.Is(err, listen.ErrInvalidDuration), errors.Is(err, assistant.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, listen.ErrNoAudio), errors.Is(err, assistant.ErrNoSpeech):
		return http.StatusUnprocessableEntity
	case errors.As(err, &acqErr), errors.Is(err, assistant.ErrSpeechDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &failure), errors.Is(err, assistant.ErrSpeechFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *HTTPServer) writeError(w http.ResponseWriter, err error) {
	h.writeErrorMessage(w, err, err.Error())
}

// writeErrorMessage reports err with a client-facing message in place of
// the error text
func (h *HTTPServer) writeErrorMessage(w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error("Request failed", slog.String("error", err.Error()), slog.Int("status", status))
	}

	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// recordExchange appends an answered question to the session's history.
// Failures are logged and never fail the request.
func (h *HTTPServer) recordExchange(id string, reply assistant.Reply) string {
	if id == "" {
		return ""
	}

	recorded, err := h.sessions.RecordExchange(id, session.Exchange{
		Time:     time.Now(),
		Question: reply.Question,
		Answer:   reply.Answer,
		Language: reply.Language,
	})
	if err != nil {
		h.logger.Warn("Failed to record exchange",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return recorded
}

// handleStartListening implements POST /listen
func (h *HTTPServer) handleStartListening(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.StartListening(r.URL.Query().Get("session"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	status, err := h.sessions.PollState(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"state":      status.State,
	})
}

// handlePollState implements GET /listen/{id}
func (h *HTTPServer) handlePollState(w http.ResponseWriter, r *http.Request) {
	status, err := h.sessions.PollState(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// handleStopListening implements POST /listen/{id}/stop
func (h *HTTPServer) handleStopListening(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sessions.StopListening(id); err != nil {
		h.writeError(w, err)
		return
	}

	status, err := h.sessions.PollState(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"state":      status.State,
	})
}

// handleSessions implements GET /sessions
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.Sessions()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleRecord implements POST /voice/record?duration=seconds
func (h *HTTPServer) handleRecord(w http.ResponseWriter, r *http.Request) {
	duration := h.config.Listen.GetRecordDuration()
	if raw := r.URL.Query().Get("duration"); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, fmt.Errorf("%w: %q is not a number", listen.ErrInvalidDuration, raw))
			return
		}
		duration = time.Duration(secs * float64(time.Second))
	}

	transcript, err := h.sessions.RecordAndTranscribe(r.Context(), duration)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"text":       transcript.Text,
		"language":   transcript.Language,
		"confidence": transcript.Confidence,
		"duration":   transcript.Duration.Seconds(),
	})
}

// handleTranscribe implements POST /voice/transcribe with a multipart "audio" file
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"error":   "assistant is disabled",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid multipart upload: " + err.Error(),
		})
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		// older clients send the field as "file"
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "missing audio file",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	h.logger.Info("Received audio upload",
		slog.String("filename", header.Filename),
		slog.Int("size", len(data)),
	)

	reply, err := h.assistant.HandleAudio(r.Context(), data)
	if errors.Is(err, assistant.ErrNoSpeech) {
		h.writeErrorMessage(w, err, "Could not transcribe audio")
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"success":              true,
		"transcribed_text":     reply.Question,
		"answer":               reply.Answer,
		"detected_language":    reply.DetectedLanguage,
		"language":             reply.Language,
		"language_name":        reply.LanguageName,
		"language_probability": reply.Probability,
	}
	if len(reply.Audio) > 0 {
		response["audio_response"] = base64.StdEncoding.EncodeToString(reply.Audio)
		response["audio_format"] = reply.AudioFormat
	}
	if id := h.recordExchange(r.FormValue("session_id"), reply); id != "" {
		response["session_id"] = id
	}

	h.writeJSON(w, http.StatusOK, response)
}

// handleSpeak implements POST /voice/tts
func (h *HTTPServer) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"error":   "assistant is disabled",
		})
		return
	}

	var query struct {
		Question string `json:"question"`
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&query); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid JSON body",
		})
		return
	}

	text := query.Question
	if text == "" {
		text = query.Text
	}

	speech, err := h.assistant.Speak(r.Context(), text, query.Language)
	if errors.Is(err, assistant.ErrSpeechFailed) {
		h.writeErrorMessage(w, err, "TTS generation failed")
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"audio":        base64.StdEncoding.EncodeToString(speech),
		"audio_format": "mp3",
	})
}

// handleAsk implements POST /ask
func (h *HTTPServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"error":   "assistant is disabled",
		})
		return
	}

	var query struct {
		Question  string `json:"question"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&query); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid JSON body",
		})
		return
	}

	reply, err := h.assistant.Ask(r.Context(), query.Question)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"answer":        reply.Answer,
		"language":      reply.Language,
		"language_name": reply.LanguageName,
	}
	if id := h.recordExchange(query.SessionID, reply); id != "" {
		response["session_id"] = id
	}

	h.writeJSON(w, http.StatusOK, response)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{
		"session_manager": map[string]interface{}{
			"status":          "running",
			"active_sessions": h.sessions.GetActiveSessionCount(),
		},
		"assistant": map[string]interface{}{
			"enabled": h.assistant != nil,
		},
	}

	if h.transcriber != nil {
		stats := h.transcriber.GetStats()
		components["transcription"] = map[string]interface{}{
			"status":          "running",
			"provider":        h.config.Transcription.Provider,
			"total_requests":  stats.TotalRequests,
			"success_rate":    stats.SuccessRate,
			"active_requests": stats.ActiveRequests,
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "mindmend-voice",
			"version": "1.0.0",
		},
		"components": components,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":    h.config.Audio.SampleRate,
			"channels":       h.config.Audio.Channels,
			"chunk_duration": h.config.Audio.ChunkDuration,
		},
		"listen": map[string]interface{}{
			"window_duration": h.config.Listen.WindowDuration,
			"queue_size":      h.config.Listen.QueueSize,
			"queue_timeout":   h.config.Listen.QueueTimeout,
			"record_duration": h.config.Listen.RecordDuration,
			"max_record":      h.config.Listen.MaxRecord,
			"record_on_wake":  h.config.Listen.RecordOnWake,
			"max_sessions":    h.config.Listen.MaxSessions,
			"session_timeout": h.config.Listen.SessionTimeout,
		},
		"wake": map[string]interface{}{
			"phrases":  h.config.Wake.Phrases,
			"language": h.config.Wake.Language,
		},
		"vad": map[string]interface{}{
			"enabled":             h.config.VAD.Enabled,
			"threshold":           h.config.VAD.Threshold,
			"frame_size":          h.config.VAD.FrameSize,
			"min_speech_duration": h.config.VAD.MinSpeechDuration,
		},
		"transcription": map[string]interface{}{
			"provider":       h.config.Transcription.Provider,
			"endpoint":       h.config.Transcription.Endpoint,
			"model":          h.config.Transcription.Model,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"assistant": map[string]interface{}{
			"enabled":      h.config.Assistant.Enabled,
			"model":        h.config.Assistant.Model,
			"speech_model": h.config.Assistant.SpeechModel,
			"voice":        h.config.Assistant.Voice,
		},
		"language": map[string]interface{}{
			"supported": h.config.Language.Supported,
			"fallback":  h.config.Language.Fallback,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	h.writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.Sessions()

	states := make(map[string]int)
	var windows, dropped uint64
	for _, info := range infos {
		states[info.Status.State.String()]++
		windows += info.Status.Windows
		dropped += info.Status.ChunksDropped
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count":      len(infos),
			"by_state":          states,
			"windows_evaluated": windows,
			"chunks_dropped":    dropped,
		},
	}

	if h.transcriber != nil {
		stats["transcription"] = h.transcriber.GetStats()
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "MindMend Voice Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                   "API documentation",
			"POST /listen":            "Start listening for a wake phrase (?session=id to reuse a session)",
			"GET /listen/{id}":        "Poll the listen state of a session",
			"POST /listen/{id}/stop":  "Stop listening",
			"GET /sessions":           "List sessions",
			"POST /voice/record":      "Record ?duration=seconds and transcribe",
			"POST /voice/transcribe":  "Answer an uploaded recording (multipart field 'audio', optional 'session_id')",
			"POST /voice/tts":         "Synthesize {\"question\"} as base64 MP3",
			"POST /ask":               "Answer a typed question ({\"question\", \"session_id\"})",
			"GET /health":             "Service health check",
			"GET /config":             "Get service configuration",
			"GET /stats":              "Get service statistics",
			"GET /metrics":            "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}
