package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSegment() audio.Segment {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.2
	}
	return audio.Segment{ID: "seg-1", Seq: 1, Samples: samples, SampleRate: 16000, DurationMs: 100}
}

func newTestRouter() *Router {
	return NewRouter(config.ProvidersConfig{Timeout: 5, MaxConcurrent: 2}, testLogger(), nil)
}

func TestParseEngines(t *testing.T) {
	recognition := []struct {
		input    string
		expected Engine
	}{
		{"openai", EngineOpenAI},
		{"", EngineOpenAI},
		{"  SONIOX ", EngineSoniox},
		{"qwen", EngineDashScope},
		{"DashScope", EngineDashScope},
		{"whisper-local", EngineOpenAI},
	}
	for _, tt := range recognition {
		if got := ParseRecognitionEngine(tt.input); got != tt.expected {
			t.Errorf("ParseRecognitionEngine(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}

	language := []struct {
		input    string
		expected Engine
	}{
		{"gemini", EngineGemini},
		{" Gemini", EngineGemini},
		{"openai", EngineOpenAI},
		{"soniox", EngineOpenAI},
		{"", EngineOpenAI},
	}
	for _, tt := range language {
		if got := ParseLanguageEngine(tt.input); got != tt.expected {
			t.Errorf("ParseLanguageEngine(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}

func TestMissingCredentials(t *testing.T) {
	r := newTestRouter()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Recognition.Engine = "soniox"
	cfg.OpenAI.APIKey = "sk-test"

	_, err := r.Transcribe(ctx, &cfg, testSegment())
	if !errors.Is(err, ErrRecognitionEngineMissing) {
		t.Fatalf("Expected ErrRecognitionEngineMissing, got %v", err)
	}
	var missing *EngineMissingError
	if !errors.As(err, &missing) || missing.Engine != EngineSoniox {
		t.Errorf("Expected soniox engine in error, got %v", err)
	}

	cfg = config.Default()
	cfg.Translation.Engine = "gemini"
	cfg.Summary.Engine = "openai"
	cfg.Optimize.Engine = "gemini"

	if _, err := r.Translate(ctx, &cfg, "hi", "French", ""); !errors.Is(err, ErrTranslationEngineMissing) {
		t.Errorf("Expected ErrTranslationEngineMissing, got %v", err)
	}
	if _, err := r.Summarize(ctx, &cfg, "hi", "French"); !errors.Is(err, ErrSummaryEngineMissing) {
		t.Errorf("Expected ErrSummaryEngineMissing, got %v", err)
	}
	if _, err := r.Optimize(ctx, &cfg, "hi"); !errors.Is(err, ErrSummaryEngineMissing) {
		t.Errorf("Expected ErrSummaryEngineMissing for optimize, got %v", err)
	}
}

func TestSonioxTranscribe(t *testing.T) {
	var got sonioxRequest
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcription":[{"text":" hello ","confidence":0.8},{"text":"world","confidence":0.6}],"language":"en"}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Recognition.Engine = "soniox"
	cfg.Recognition.Language = "en"
	cfg.Soniox.APIKey = "soniox-key"
	cfg.Soniox.Endpoint = srv.URL

	result, err := newTestRouter().Transcribe(context.Background(), &cfg, testSegment())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if auth != "Bearer soniox-key" {
		t.Errorf("Expected bearer auth, got %q", auth)
	}
	if !got.Config.IncludeConfidence || got.Config.Language == nil || *got.Config.Language != "en" {
		t.Errorf("Unexpected request config: %+v", got.Config)
	}
	wav, err := base64.StdEncoding.DecodeString(got.Audio.Content)
	if err != nil {
		t.Fatalf("Audio content is not base64: %v", err)
	}
	if string(wav[:4]) != "RIFF" || len(wav) != audio.WAVHeaderSize+2*1600 {
		t.Errorf("Expected WAV payload of %d bytes, got %d", audio.WAVHeaderSize+2*1600, len(wav))
	}

	if result.Text != "hello world" {
		t.Errorf("Expected text 'hello world', got %q", result.Text)
	}
	if result.Confidence == nil || *result.Confidence < 0.69 || *result.Confidence > 0.71 {
		t.Errorf("Expected averaged confidence 0.7, got %v", result.Confidence)
	}
	if result.Language == nil || *result.Language != "en" {
		t.Errorf("Expected language en, got %v", result.Language)
	}
}

func TestDashScopeTranscribe(t *testing.T) {
	var got dashScopeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Write([]byte(`{"output":{"text":"你好 "}}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Recognition.Engine = "qwen"
	cfg.Recognition.Language = "auto"
	cfg.DashScope.APIKey = "dash-key"
	cfg.DashScope.Endpoint = srv.URL

	result, err := newTestRouter().Transcribe(context.Background(), &cfg, testSegment())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if got.Model != "qwen3-asr-flash" || got.Input.Format != "wav" || got.Input.SampleRate != 16000 {
		t.Errorf("Unexpected request: model=%s format=%s rate=%d", got.Model, got.Input.Format, got.Input.SampleRate)
	}
	if got.Parameters.Language != "" {
		t.Errorf("Expected no language hint for auto, got %q", got.Parameters.Language)
	}
	if result.Text != "你好" {
		t.Errorf("Expected trimmed text, got %q", result.Text)
	}
	if result.Language != nil {
		t.Errorf("Expected no language, got %v", *result.Language)
	}
}

func TestProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Recognition.Engine = "soniox"
	cfg.Soniox.APIKey = "soniox-key"
	cfg.Soniox.Endpoint = srv.URL

	_, err := newTestRouter().Transcribe(context.Background(), &cfg, testSegment())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", httpErr.StatusCode)
	}
}

func TestRouterTransportFollowsSnapshot(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer slow-key" {
			select {
			case <-r.Context().Done():
			case <-time.After(3 * time.Second):
			}
			return
		}
		if atomic.AddInt32(&calls, 1)%3 != 0 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"transcription":[{"text":"hello"}]}`))
	}))
	defer srv.Close()

	router := NewRouter(config.ProvidersConfig{Timeout: 5, MaxRetries: 0, MaxConcurrent: 2}, testLogger(), nil)
	router.client.backoff = func(int) time.Duration { return time.Millisecond }

	cfg := config.Default()
	cfg.Recognition.Engine = "soniox"
	cfg.Soniox.APIKey = "soniox-key"
	cfg.Soniox.Endpoint = srv.URL
	cfg.Providers.MaxRetries = 0

	if _, err := router.Transcribe(context.Background(), &cfg, testSegment()); err == nil {
		t.Fatal("Expected failure without retries")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected 1 attempt, got %d", n)
	}

	// A reloaded snapshot raises the retry count for the next call
	cfg.Providers.MaxRetries = 2
	atomic.StoreInt32(&calls, 0)
	result, err := router.Transcribe(context.Background(), &cfg, testSegment())
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if result.Text != "hello" {
		t.Errorf("Expected text 'hello', got %q", result.Text)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}

	// And lowers the timeout below the one the router was created with
	cfg.Providers.MaxRetries = 0
	cfg.Providers.Timeout = 1
	cfg.Soniox.APIKey = "slow-key"
	start := time.Now()
	_, err = router.Transcribe(context.Background(), &cfg, testSegment())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
		t.Errorf("Expected the 1s snapshot timeout to apply, took %v", elapsed)
	}
}

func TestOpenAIBackend(t *testing.T) {
	var (
		mu      sync.Mutex
		chatReq map[string]any
		form    map[string]string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/audio/transcriptions"):
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("Failed to parse multipart form: %v", err)
			}
			mu.Lock()
			form = map[string]string{
				"model":    r.FormValue("model"),
				"language": r.FormValue("language"),
			}
			mu.Unlock()
			w.Write([]byte(`{"text":" hello there "}`))
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			json.Unmarshal(body, &chatReq)
			mu.Unlock()
			w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",` +
				`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" bonjour "}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = srv.URL + "/v1/"
	cfg.Recognition.Language = "fr"

	r := newTestRouter()

	result, err := r.Transcribe(context.Background(), &cfg, testSegment())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Text != "hello there" {
		t.Errorf("Expected trimmed text, got %q", result.Text)
	}
	if result.Language == nil || *result.Language != "fr" {
		t.Errorf("Expected configured language fallback fr, got %v", result.Language)
	}
	mu.Lock()
	if form["model"] != "gpt-4o-transcribe" || form["language"] != "fr" {
		t.Errorf("Unexpected transcription form: %v", form)
	}
	mu.Unlock()

	translated, err := r.Translate(context.Background(), &cfg, "hello", "French", "default")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if translated != "bonjour" {
		t.Errorf("Expected bonjour, got %q", translated)
	}

	mu.Lock()
	defer mu.Unlock()
	if chatReq["temperature"] != 0.2 {
		t.Errorf("Expected temperature 0.2, got %v", chatReq["temperature"])
	}
	messages, _ := chatReq["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("Expected system and user messages, got %v", chatReq["messages"])
	}
	system, _ := messages[0].(map[string]any)
	if content, _ := system["content"].(string); !strings.Contains(content, "Translate the user message into French") {
		t.Errorf("Unexpected system prompt: %v", system["content"])
	}
}

func TestGeminiBackend(t *testing.T) {
	var body map[string]any
	var path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Kurzfassung "}]}}]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Summary.Engine = "gemini"
	cfg.Gemini.APIKey = "gemini-key"
	cfg.Gemini.BaseURL = srv.URL + "/"

	out, err := newTestRouter().Summarize(context.Background(), &cfg, "transcript", "German")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if out != "Kurzfassung" {
		t.Errorf("Expected Kurzfassung, got %q", out)
	}
	if !strings.Contains(path, "gemini-2.0-flash:generateContent") {
		t.Errorf("Unexpected request path %s", path)
	}

	raw, _ := json.Marshal(body["systemInstruction"])
	if !strings.Contains(string(raw), "summarizes conversations in German") {
		t.Errorf("Expected rendered summary prompt in system instruction, got %s", raw)
	}
}

func TestRequestLanguage(t *testing.T) {
	tests := map[string]string{
		"auto":  "",
		" AUTO": "",
		"":      "",
		"en":    "en",
		" zh ":  "zh",
	}
	for input, expected := range tests {
		if got := requestLanguage(input); got != expected {
			t.Errorf("requestLanguage(%q): expected %q, got %q", input, expected, got)
		}
	}
}
