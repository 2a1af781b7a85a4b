package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/events"
	"github.com/youtonghy/Voice-transcript/internal/metrics"
	"github.com/youtonghy/Voice-transcript/internal/provider"
	"github.com/youtonghy/Voice-transcript/internal/session"
	"github.com/youtonghy/Voice-transcript/internal/store"
)

const (
	serviceName    = "voicetranscript"
	serviceVersion = "1.0.0"
)

// Sessions is the session manager surface used by the API
type Sessions interface {
	Start(ctx context.Context, sc session.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	Status() session.Status
	ProcessMediaFile(ctx context.Context, req session.MediaRequest) (string, error)
	TranslateText(ctx context.Context, conversationID, text, targetLanguage string) (string, error)
	OptimizeText(ctx context.Context, conversationID, text string) (string, error)
	SummarizeText(ctx context.Context, text, targetLanguage string) (string, error)
	RefreshTitle(ctx context.Context, conversationID string) (string, error)
}

// Conversations is the store surface used by the API
type Conversations interface {
	ListConversations() ([]store.Conversation, error)
	Conversation(id string) (*store.Conversation, error)
	EntriesForConversation(conversationID string, limit int) ([]store.Entry, error)
	UpdateConversationTitle(id, title string) error
	SetPinned(id string, pinned bool) error
	UpdateOrderRank(id string, rank float64) error
	DeleteConversation(id string) error
}

// ProviderStats reports provider transport statistics
type ProviderStats interface {
	Stats() provider.ClientStats
}

// Deps holds the API's collaborators. Providers, Hub and Gatherer are
// optional.
type Deps struct {
	Sessions      Sessions
	Conversations Conversations
	Config        session.ConfigSource
	Providers     ProviderStats
	Hub           *events.Hub
	Gatherer      prometheus.Gatherer
	Metrics       *metrics.Metrics
}

// HTTPServer provides the HTTP API for sessions, conversations and text
// operations
type HTTPServer struct {
	server *http.Server
	logger *slog.Logger
	deps   Deps

	// Media jobs outlive their request
	jobsCtx    context.Context
	jobsCancel context.CancelFunc
	jobs       sync.WaitGroup

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, deps Deps) *HTTPServer {
	jobsCtx, jobsCancel := context.WithCancel(context.Background())

	h := &HTTPServer{
		logger:     logger,
		deps:       deps,
		jobsCtx:    jobsCtx,
		jobsCancel: jobsCancel,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	// No write timeout: stop and text operations wait on providers and
	// /events connections are long-lived
	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// Handler returns the API handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	route := func(pattern string, handler http.HandlerFunc) {
		mux.HandleFunc(pattern, h.withMetrics(pattern, handler))
	}

	route("GET /{$}", h.handleRoot)
	route("GET /health", h.handleHealth)
	route("GET /status", h.handleStatus)
	route("GET /stats", h.handleStats)
	route("GET /config", h.handleConfig)

	// Capture sessions and file jobs
	route("POST /sessions", h.handleStartSession)
	route("DELETE /sessions/current", h.handleStopSession)
	route("POST /media", h.handleMedia)

	// Conversations
	route("GET /conversations", h.handleListConversations)
	route("GET /conversations/{id}", h.handleGetConversation)
	route("GET /conversations/{id}/entries", h.handleEntries)
	route("PATCH /conversations/{id}", h.handleUpdateConversation)
	route("DELETE /conversations/{id}", h.handleDeleteConversation)
	route("POST /conversations/{id}/title", h.handleRefreshTitle)

	// Text operations
	route("POST /translate", h.handleTranslate)
	route("POST /optimize", h.handleOptimize)
	route("POST /summarize", h.handleSummarize)

	// Event stream and Prometheus metrics are not instrumented
	if h.deps.Hub != nil {
		mux.Handle("GET /events", h.deps.Hub)
	}
	if h.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
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

// Stop gracefully stops the HTTP server and waits for running media jobs
// until ctx is done
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	err := h.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		h.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("Media jobs still running at shutdown")
	}
	h.jobsCancel()

	return err
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.deps.Sessions.Status()

	components := map[string]interface{}{
		"session": map[string]interface{}{
			"status":       componentStatus(status.Ready),
			"is_recording": status.IsRecording,
			"summarizing":  status.Summarizing,
		},
	}
	if h.deps.Providers != nil {
		stats := h.deps.Providers.Stats()
		components["providers"] = map[string]interface{}{
			"status":          "running",
			"total_requests":  stats.TotalRequests,
			"success_rate":    stats.SuccessRate,
			"active_requests": stats.ActiveRequests,
		}
	}
	if h.deps.Hub != nil {
		components["events"] = map[string]interface{}{
			"status":    "running",
			"listeners": h.deps.Hub.ClientCount(),
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	})
}

func componentStatus(ready bool) string {
	if ready {
		return "running"
	}
	return "stopped"
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Sessions.Status())
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"session":   h.deps.Sessions.Status(),
	}
	if h.deps.Providers != nil {
		stats["providers"] = h.deps.Providers.Stats()
	}
	if h.deps.Hub != nil {
		stats["events"] = map[string]interface{}{
			"listeners": h.deps.Hub.ClientCount(),
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleConfig implements the /config endpoint. Credentials are reported
// only as present or absent.
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.deps.Config.Snapshot()

	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"preferred_sample_rate": cfg.Audio.PreferredSampleRate,
			"silence_threshold":     cfg.Audio.SilenceThreshold,
			"min_silence_seconds":   cfg.Audio.MinSilenceSeconds,
			"max_segment_seconds":   cfg.Audio.MaxSegmentSeconds,
			"silence_detector":      cfg.Audio.SilenceDetector,
			"handoff_queue_size":    cfg.Audio.HandoffQueueSize,
		},
		"recognition": map[string]interface{}{
			"engine":   provider.ParseRecognitionEngine(cfg.Recognition.Engine).String(),
			"language": cfg.Recognition.Language,
		},
		"translation": map[string]interface{}{
			"enabled":         cfg.Translation.Enabled,
			"engine":          provider.ParseLanguageEngine(cfg.Translation.Engine).String(),
			"target_language": cfg.Translation.TranslateLanguage(),
		},
		"summary": map[string]interface{}{
			"engine": provider.ParseLanguageEngine(cfg.Summary.Engine).String(),
		},
		"optimize": map[string]interface{}{
			"engine": provider.ParseLanguageEngine(cfg.Optimize.Engine).String(),
		},
		"credentials": map[string]interface{}{
			"openai":    cfg.OpenAI.APIKey != "",
			"gemini":    cfg.Gemini.APIKey != "",
			"soniox":    cfg.Soniox.APIKey != "",
			"dashscope": cfg.DashScope.APIKey != "",
		},
		"providers": map[string]interface{}{
			"timeout":        cfg.Providers.Timeout,
			"max_retries":    cfg.Providers.MaxRetries,
			"max_concurrent": cfg.Providers.MaxConcurrent,
		},
		"logging": map[string]interface{}{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "Voice Transcript Service",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                           "API documentation",
			"GET /health":                     "Service health check",
			"GET /status":                     "Recording status",
			"GET /stats":                      "Service statistics",
			"GET /config":                     "Sanitized configuration",
			"GET /metrics":                    "Prometheus metrics",
			"GET /events":                     "WebSocket event stream",
			"POST /sessions":                  "Start recording",
			"DELETE /sessions/current":        "Stop recording",
			"POST /media":                     "Transcribe a media file",
			"GET /conversations":              "List conversations",
			"GET /conversations/{id}":         "Get a conversation",
			"GET /conversations/{id}/entries": "List conversation entries",
			"PATCH /conversations/{id}":       "Rename, pin or reorder a conversation",
			"DELETE /conversations/{id}":      "Delete a conversation",
			"POST /conversations/{id}/title":  "Generate a conversation title",
			"POST /translate":                 "Translate text",
			"POST /optimize":                  "Optimize text",
			"POST /summarize":                 "Summarize text",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
