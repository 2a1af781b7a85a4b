package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// maxUpload bounds multipart and JSON request bodies
const maxUpload = 32 << 20

// mockConfig controls the canned responses
type mockConfig struct {
	Text       string
	Language   string
	Confidence float64
	Latency    time.Duration
	FailEvery  int // every n-th request returns 503; 0 disables
}

// mockServer answers recognition and chat requests in the wire formats of
// the supported providers
type mockServer struct {
	cfg      mockConfig
	logger   *slog.Logger
	requests atomic.Uint64
	now      func() time.Time
}

func newMockServer(cfg mockConfig, logger *slog.Logger) *mockServer {
	return &mockServer{cfg: cfg, logger: logger, now: time.Now}
}

// Handler returns the routes of every mocked provider
func (s *mockServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /soniox", s.guard(s.handleSoniox))
	mux.HandleFunc("POST /dashscope", s.guard(s.handleDashScope))
	mux.HandleFunc("POST /v1/audio/transcriptions", s.guard(s.handleOpenAITranscription))
	mux.HandleFunc("POST /v1/chat/completions", s.guard(s.handleOpenAIChat))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "requests": s.requests.Load()})
	})
	return mux
}

// guard checks the bearer token, applies the latency and injects failures
func (s *mockServer) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := s.requests.Add(1)

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody("missing API key"))
			return
		}

		if s.cfg.Latency > 0 {
			select {
			case <-time.After(s.cfg.Latency):
			case <-r.Context().Done():
				return
			}
		}

		if s.cfg.FailEvery > 0 && n%uint64(s.cfg.FailEvery) == 0 {
			s.logger.Info("Injecting failure", slog.String("path", r.URL.Path), slog.Uint64("request", n))
			writeJSON(w, http.StatusServiceUnavailable, errorBody("injected failure"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		next(w, r)
	}
}

func (s *mockServer) handleSoniox(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Config struct {
			Language *string `json:"language"`
		} `json:"config"`
		Audio struct {
			Content string `json:"content"`
		} `json:"audio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	dur, err := s.inspectBase64(req.Audio.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	language := s.language(req.Config.Language)
	s.logRequest(r, dur, language)

	writeJSON(w, http.StatusOK, map[string]any{
		"transcription": []map[string]any{
			{"text": s.cfg.Text, "confidence": s.cfg.Confidence},
		},
		"language": language,
	})
}

func (s *mockServer) handleDashScope(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
		Input struct {
			Audio string `json:"audio"`
		} `json:"input"`
		Parameters struct {
			Language string `json:"language"`
		} `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.Model == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("model is required"))
		return
	}

	dur, err := s.inspectBase64(req.Input.Audio)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	language := s.language(&req.Parameters.Language)
	s.logRequest(r, dur, language)

	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": uuid.NewString(),
		"output": map[string]any{
			"text":       s.cfg.Text,
			"language":   language,
			"confidence": s.cfg.Confidence,
		},
	})
}

func (s *mockServer) handleOpenAITranscription(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Error parsing form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Error getting audio file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Error reading audio file"))
		return
	}

	dur, err := inspectWAV(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	language := r.FormValue("language")
	language = s.language(&language)
	s.logRequest(r, dur, language,
		slog.String("model", r.FormValue("model")),
		slog.String("filename", header.Filename),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"text":       s.cfg.Text,
		"language":   language,
		"confidence": s.cfg.Confidence,
	})
}

func (s *mockServer) handleOpenAIChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	var user string
	for _, m := range req.Messages {
		if m.Role == "user" {
			user = messageText(m.Content)
		}
	}
	if user == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("no user message"))
		return
	}

	s.logger.Info("Chat request",
		slog.String("model", req.Model),
		slog.Int("messages", len(req.Messages)),
		slog.Int("chars", len(user)),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": s.now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": "[mock] " + user,
			},
		}},
	})
}

func (s *mockServer) language(requested *string) string {
	if requested != nil && *requested != "" {
		return *requested
	}
	return s.cfg.Language
}

func (s *mockServer) inspectBase64(content string) (time.Duration, error) {
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return 0, fmt.Errorf("audio is not base64: %w", err)
	}
	return inspectWAV(data)
}

func (s *mockServer) logRequest(r *http.Request, dur time.Duration, language string, attrs ...any) {
	args := append([]any{
		slog.String("path", r.URL.Path),
		slog.Duration("audio", dur),
		slog.String("language", language),
	}, attrs...)
	s.logger.Info("Transcription request", args...)
}

// inspectWAV checks data is a WAV file and returns its duration
func inspectWAV(data []byte) (time.Duration, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("audio is not a valid WAV file")
	}
	dur, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to read WAV duration: %w", err)
	}
	return dur, nil
}

// messageText accepts both string content and an array of text parts
func messageText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func errorBody(msg string) map[string]any {
	return map[string]any{"error": map[string]string{"message": msg}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
