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
	"strings"
	"time"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/provider"
	"github.com/youtonghy/Voice-transcript/internal/session"
	"github.com/youtonghy/Voice-transcript/internal/store"
)

const (
	// maxBodyBytes bounds JSON request bodies
	maxBodyBytes = 1 << 20

	defaultProviderTimeout = 60 * time.Second
)

type startSessionRequest struct {
	Mode               string `json:"mode"`
	Translate          *bool  `json:"translate"`
	TranslateLanguage  string `json:"translateLanguage"`
	RecognitionEngine  string `json:"recognitionEngine"`
	TranscribeLanguage string `json:"transcribeLanguage"`
}

type mediaRequest struct {
	Path              string `json:"path"`
	Translate         *bool  `json:"translate"`
	TranslateLanguage string `json:"translateLanguage"`
}

type updateConversationRequest struct {
	Title     *string  `json:"title"`
	Pinned    *bool    `json:"pinned"`
	OrderRank *float64 `json:"orderRank"`
}

type textRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
}

// handleStartSession implements POST /sessions
func (h *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.deps.Sessions.Start(r.Context(), session.Context{
		Mode:               mode,
		Translate:          req.Translate,
		TranslateLanguage:  req.TranslateLanguage,
		RecognitionEngine:  req.RecognitionEngine,
		TranscribeLanguage: req.TranscribeLanguage,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"conversationId": id})
}

// handleStopSession implements DELETE /sessions/current. Stop outlives the
// request so a client that disconnects does not cancel the summary.
func (h *HTTPServer) handleStopSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), stopTimeout(h.deps.Config.Snapshot()))
	defer cancel()

	summary, err := h.deps.Sessions.Stop(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var out *string
	if summary != "" {
		out = &summary
	}
	writeJSON(w, http.StatusOK, map[string]*string{"summary": out})
}

// stopTimeout bounds a stop: the pipeline drain plus every summary attempt
func stopTimeout(cfg config.Config) time.Duration {
	perAttempt := cfg.Providers.GetTimeoutDuration()
	if perAttempt <= 0 {
		perAttempt = defaultProviderTimeout
	}
	return cfg.Session.GetDrainTimeoutDuration() + perAttempt*time.Duration(cfg.Providers.MaxRetries+1)
}

// handleMedia implements POST /media. The job runs after the response.
func (h *HTTPServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	job := session.MediaRequest{
		Path:              req.Path,
		Translate:         req.Translate,
		TranslateLanguage: req.TranslateLanguage,
	}

	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		if _, err := h.deps.Sessions.ProcessMediaFile(h.jobsCtx, job); err != nil {
			h.logger.Error("Media job failed",
				slog.String("path", job.Path),
				slog.String("error", err.Error()),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "path": req.Path})
}

// handleListConversations implements GET /conversations
func (h *HTTPServer) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.deps.Conversations.ListConversations()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":         len(convs),
		"conversations": convs,
	})
}

// handleGetConversation implements GET /conversations/{id}
func (h *HTTPServer) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.deps.Conversations.Conversation(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handleEntries implements GET /conversations/{id}/entries?limit=
func (h *HTTPServer) handleEntries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	if _, err := h.deps.Conversations.Conversation(id); err != nil {
		h.fail(w, r, err)
		return
	}

	entries, err := h.deps.Conversations.EntriesForConversation(id, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversationId": id,
		"total":          len(entries),
		"entries":        entries,
	})
}

// handleUpdateConversation implements PATCH /conversations/{id}
func (h *HTTPServer) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateConversationRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if req.Title == nil && req.Pinned == nil && req.OrderRank == nil {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	if req.Title != nil {
		if err := h.deps.Conversations.UpdateConversationTitle(id, *req.Title); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if req.Pinned != nil {
		if err := h.deps.Conversations.SetPinned(id, *req.Pinned); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if req.OrderRank != nil {
		if err := h.deps.Conversations.UpdateOrderRank(id, *req.OrderRank); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	h.handleGetConversation(w, r)
}

// handleDeleteConversation implements DELETE /conversations/{id}
func (h *HTTPServer) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Conversations.DeleteConversation(r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefreshTitle implements POST /conversations/{id}/title
func (h *HTTPServer) handleRefreshTitle(w http.ResponseWriter, r *http.Request) {
	title, err := h.deps.Sessions.RefreshTitle(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

// handleTranslate implements POST /translate
func (h *HTTPServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeText(w, r, &req) {
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	out, err := h.deps.Sessions.TranslateText(r.Context(), req.ConversationID, req.Text, req.TargetLanguage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"translation": out})
}

// handleOptimize implements POST /optimize
func (h *HTTPServer) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeText(w, r, &req) {
		return
	}

	out, err := h.deps.Sessions.OptimizeText(r.Context(), req.ConversationID, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": out})
}

// handleSummarize implements POST /summarize
func (h *HTTPServer) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeText(w, r, &req) {
		return
	}

	out, err := h.deps.Sessions.SummarizeText(r.Context(), req.Text, req.TargetLanguage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": out})
}

// decodeBody reads a JSON body into v. An empty body is accepted when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

func decodeText(w http.ResponseWriter, r *http.Request, req *textRequest) bool {
	if !decodeBody(w, r, req, false) {
		return false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return false
	}
	return true
}

// fail maps err to a status code and writes it
func (h *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error("Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, err.Error())
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var httpErr *provider.HTTPError

	switch {
	case errors.Is(err, session.ErrRecordingAlreadyRunning),
		errors.Is(err, session.ErrRecordingNotRunning):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrRecognitionEngineMissing),
		errors.Is(err, provider.ErrTranslationEngineMissing),
		errors.Is(err, provider.ErrSummaryEngineMissing):
		return http.StatusPreconditionFailed
	case errors.Is(err, session.ErrNoAudioInputDevice):
		return http.StatusServiceUnavailable
	case errors.Is(err, audio.ErrNoAudioTrack),
		errors.Is(err, audio.ErrUnsupportedCodec),
		errors.Is(err, audio.ErrMissingSampleRate),
		errors.Is(err, session.ErrEmptyMedia):
		return http.StatusUnprocessableEntity
	case errors.As(err, &httpErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
