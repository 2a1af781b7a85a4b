package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSegment() audio.Segment {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return audio.Segment{ID: "seg-1", Seq: 1, Samples: samples, SampleRate: 16000, DurationMs: 100}
}

func newTestServer(t *testing.T, cfg mockConfig) *httptest.Server {
	t.Helper()
	if cfg.Text == "" {
		cfg.Text = "mock transcript"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	ts := httptest.NewServer(newMockServer(cfg, testLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func testConfig(ts *httptest.Server) config.Config {
	cfg := config.Default()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = ts.URL + "/v1"
	cfg.Soniox.APIKey = "soniox-test"
	cfg.Soniox.Endpoint = ts.URL + "/soniox"
	cfg.DashScope.APIKey = "dashscope-test"
	cfg.DashScope.Endpoint = ts.URL + "/dashscope"
	return cfg
}

func TestRouterAgainstMock(t *testing.T) {
	ts := newTestServer(t, mockConfig{Confidence: 0.9})
	router := provider.NewRouter(config.Default().Providers, testLogger(), nil)
	defer router.Close()

	for _, engine := range []string{"openai", "soniox", "qwen"} {
		t.Run(engine, func(t *testing.T) {
			cfg := testConfig(ts)
			cfg.Recognition.Engine = engine

			result, err := router.Transcribe(context.Background(), &cfg, testSegment())
			if err != nil {
				t.Fatalf("Failed to transcribe: %v", err)
			}
			if result.Text != "mock transcript" {
				t.Errorf("Expected mock transcript, got %q", result.Text)
			}
			if result.Language == nil || *result.Language != "en" {
				t.Errorf("Expected language en, got %v", result.Language)
			}
			if result.Confidence == nil || *result.Confidence != 0.9 {
				t.Errorf("Expected confidence 0.9, got %v", result.Confidence)
			}
		})
	}

	t.Run("translate", func(t *testing.T) {
		cfg := testConfig(ts)
		out, err := router.Translate(context.Background(), &cfg, "hello", "French", "default")
		if err != nil {
			t.Fatalf("Failed to translate: %v", err)
		}
		if out != "[mock] hello" {
			t.Errorf("Expected echoed text, got %q", out)
		}
	})

	t.Run("summarize", func(t *testing.T) {
		cfg := testConfig(ts)
		out, err := router.Summarize(context.Background(), &cfg, "line one\nline two\n", "French")
		if err != nil {
			t.Fatalf("Failed to summarize: %v", err)
		}
		if out != "[mock] line one\nline two" {
			t.Errorf("Expected echoed transcript, got %q", out)
		}
	})
}

func TestMockRejectsRequests(t *testing.T) {
	ts := newTestServer(t, mockConfig{})

	tests := []struct {
		name     string
		path     string
		auth     string
		body     any
		expected int
	}{
		{
			name:     "missing key",
			path:     "/soniox",
			body:     map[string]any{},
			expected: http.StatusUnauthorized,
		},
		{
			name:     "not base64",
			path:     "/soniox",
			auth:     "Bearer k",
			body:     map[string]any{"audio": map[string]string{"content": "%%%"}},
			expected: http.StatusBadRequest,
		},
		{
			name:     "not wav",
			path:     "/dashscope",
			auth:     "Bearer k",
			body:     map[string]any{"model": "m", "input": map[string]string{"audio": base64.StdEncoding.EncodeToString([]byte("nope"))}},
			expected: http.StatusBadRequest,
		},
		{
			name:     "dashscope without model",
			path:     "/dashscope",
			auth:     "Bearer k",
			body:     map[string]any{"input": map[string]string{}},
			expected: http.StatusBadRequest,
		},
		{
			name:     "chat without user message",
			path:     "/v1/chat/completions",
			auth:     "Bearer k",
			body:     map[string]any{"model": "m", "messages": []map[string]string{{"role": "system", "content": "x"}}},
			expected: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(tt.body)
			req, _ := http.NewRequest(http.MethodPost, ts.URL+tt.path, bytes.NewReader(data))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, resp.StatusCode)
			}
		})
	}
}

func TestMockFailEvery(t *testing.T) {
	ts := newTestServer(t, mockConfig{FailEvery: 2})

	wav, err := audio.EncodeWAV(testSegment().Samples, 16000)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}
	body, _ := json.Marshal(map[string]any{
		"audio": map[string]string{"content": base64.StdEncoding.EncodeToString(wav)},
	})

	var statuses []int
	for i := 0; i < 4; i++ {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/soniox", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer k")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	expected := []int{200, 503, 200, 503}
	for i := range expected {
		if statuses[i] != expected[i] {
			t.Errorf("Request %d: expected %d, got %d", i+1, expected[i], statuses[i])
		}
	}
}

func TestInspectWAV(t *testing.T) {
	wav, err := audio.EncodeWAV(make([]float32, 8000), 16000)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}

	dur, err := inspectWAV(wav)
	if err != nil {
		t.Fatalf("Failed to inspect WAV: %v", err)
	}
	if dur.Milliseconds() != 500 {
		t.Errorf("Expected 500ms, got %v", dur)
	}

	if _, err := inspectWAV([]byte("RIFF")); err == nil {
		t.Error("Expected error for truncated WAV")
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{`"plain"`, "plain"},
		{`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, "ab"},
		{`42`, ""},
	}

	for _, tt := range tests {
		if got := messageText(json.RawMessage(tt.raw)); got != tt.expected {
			t.Errorf("messageText(%s): expected %q, got %q", tt.raw, tt.expected, got)
		}
	}
}
