package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/metrics"
)

// Transcription is the recognition result for one segment
type Transcription struct {
	Text       string
	Language   *string
	Confidence *float64
}

// Router dispatches requests to the engine selected by the config snapshot
// passed with each call. The snapshot's provider timeout and retry count
// apply per call; the concurrency limit is fixed when the router is created.
// It is safe for concurrent use.
type Router struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	client  *JSONClient
}

// NewRouter creates a router whose backends share one pooled HTTP client.
// cfg supplies the concurrency limit and the defaults for calls whose
// snapshot leaves the timeout unset.
func NewRouter(cfg config.ProvidersConfig, logger *slog.Logger, m *metrics.Metrics) *Router {
	client := NewJSONClient(ClientConfig{
		Timeout:       cfg.GetTimeoutDuration(),
		MaxRetries:    cfg.MaxRetries,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	client.onRetry = m.RecordProviderRetry

	return &Router{
		logger:  logger,
		metrics: m,
		client:  client,
	}
}

// transport reads the per-call timeout and retry count from the snapshot
func (r *Router) transport(ctx context.Context, cfg *config.Config) (context.Context, callSettings) {
	settings := r.client.settings(withCallSettings(ctx, callSettings{
		Timeout:    cfg.Providers.GetTimeoutDuration(),
		MaxRetries: cfg.Providers.MaxRetries,
	}))
	return withCallSettings(ctx, settings), settings
}

// Transcribe encodes the segment as WAV and sends it to the recognition engine
func (r *Router) Transcribe(ctx context.Context, cfg *config.Config, seg audio.Segment) (*Transcription, error) {
	engine := ParseRecognitionEngine(cfg.Recognition.Engine)

	apiKey := r.recognitionKey(cfg, engine)
	if apiKey == "" {
		return nil, &EngineMissingError{Kind: KindRecognition, Engine: engine}
	}

	wav, err := audio.EncodeWAV(seg.Samples, seg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode segment: %w", err)
	}

	language := requestLanguage(cfg.Recognition.Language)

	ctx, settings := r.transport(ctx, cfg)
	start := time.Now()
	var result *Transcription
	switch engine {
	case EngineSoniox:
		result, err = sonioxTranscribe(ctx, r.client, cfg.Soniox.Endpoint, apiKey, language, wav)
	case EngineDashScope:
		result, err = dashScopeTranscribe(ctx, r.client, cfg.DashScope.Endpoint, apiKey, cfg.DashScope.Model, language, seg.SampleRate, wav)
	default:
		client := newOpenAIClient(cfg.OpenAI, r.client.HTTPClient(), settings)
		result, err = openAITranscribe(ctx, client, cfg.OpenAI.TranscribeModel, language, wav)
	}
	r.record(engine, "transcribe", start, err)
	if err != nil {
		return nil, err
	}

	if result.Language == nil && language != "" {
		result.Language = &language
	}

	r.logger.Debug("Segment transcribed",
		slog.String("engine", engine.String()),
		slog.String("segment_id", seg.ID),
		slog.Int("chars", len(result.Text)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// Translate translates text into targetLanguage. contextHint is passed to
// engines that accept one.
func (r *Router) Translate(ctx context.Context, cfg *config.Config, text, targetLanguage, contextHint string) (string, error) {
	engine := ParseLanguageEngine(cfg.Translation.Engine)

	apiKey := r.languageKey(cfg, engine)
	if apiKey == "" {
		return "", &EngineMissingError{Kind: KindTranslation, Engine: engine}
	}

	ctx, settings := r.transport(ctx, cfg)
	start := time.Now()
	var (
		out string
		err error
	)
	switch engine {
	case EngineGemini:
		out, err = r.gemini(ctx, cfg, settings, cfg.Gemini.TranslateModel,
			geminiTranslateInstructions(cfg.Gemini.TranslatePrompt, targetLanguage, contextHint), text)
	default:
		client := newOpenAIClient(cfg.OpenAI, r.client.HTTPClient(), settings)
		out, err = openAIChat(ctx, client, cfg.OpenAI.TranslateModel, openAITranslatePrompt(targetLanguage), text)
	}
	r.record(engine, "translate", start, err)
	return out, err
}

// Summarize summarizes text in targetLanguage using the configured summary prompt
func (r *Router) Summarize(ctx context.Context, cfg *config.Config, text, targetLanguage string) (string, error) {
	engine := ParseLanguageEngine(cfg.Summary.Engine)

	apiKey := r.languageKey(cfg, engine)
	if apiKey == "" {
		return "", &EngineMissingError{Kind: KindSummary, Engine: engine}
	}

	prompt := config.RenderPrompt(cfg.Summary.Prompt, targetLanguage)

	ctx, settings := r.transport(ctx, cfg)
	start := time.Now()
	var (
		out string
		err error
	)
	switch engine {
	case EngineGemini:
		out, err = r.gemini(ctx, cfg, settings, cfg.Gemini.SummaryModel, []string{prompt}, text)
	default:
		client := newOpenAIClient(cfg.OpenAI, r.client.HTTPClient(), settings)
		out, err = openAIChat(ctx, client, cfg.OpenAI.SummaryModel, prompt, text)
	}
	r.record(engine, "summarize", start, err)
	return out, err
}

// Optimize rewrites text with the configured optimize prompt. Missing
// credentials report the summary kind.
func (r *Router) Optimize(ctx context.Context, cfg *config.Config, text string) (string, error) {
	engine := ParseLanguageEngine(cfg.Optimize.Engine)

	apiKey := r.languageKey(cfg, engine)
	if apiKey == "" {
		return "", &EngineMissingError{Kind: KindSummary, Engine: engine}
	}

	ctx, settings := r.transport(ctx, cfg)
	start := time.Now()
	var (
		out string
		err error
	)
	switch engine {
	case EngineGemini:
		out, err = r.gemini(ctx, cfg, settings, cfg.Gemini.OptimizeModel, []string{cfg.Optimize.Prompt}, text)
	default:
		client := newOpenAIClient(cfg.OpenAI, r.client.HTTPClient(), settings)
		out, err = openAIChat(ctx, client, cfg.OpenAI.OptimizeModel, cfg.Optimize.Prompt, text)
	}
	r.record(engine, "optimize", start, err)
	return out, err
}

// Stats returns statistics of the pooled HTTP client
func (r *Router) Stats() ClientStats {
	return r.client.GetStats()
}

// Close waits for in-flight pooled requests
func (r *Router) Close() error {
	return r.client.Close()
}

func (r *Router) gemini(ctx context.Context, cfg *config.Config, settings callSettings, model string, instructions []string, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, settings.Timeout)
	defer cancel()

	client, err := newGeminiClient(ctx, cfg.Gemini, r.client.HTTPClient())
	if err != nil {
		return "", err
	}
	return geminiGenerate(ctx, client, model, instructions, text)
}

func (r *Router) recognitionKey(cfg *config.Config, engine Engine) string {
	switch engine {
	case EngineSoniox:
		return strings.TrimSpace(cfg.Soniox.APIKey)
	case EngineDashScope:
		return strings.TrimSpace(cfg.DashScope.APIKey)
	default:
		return strings.TrimSpace(cfg.OpenAI.APIKey)
	}
}

func (r *Router) languageKey(cfg *config.Config, engine Engine) string {
	if engine == EngineGemini {
		return strings.TrimSpace(cfg.Gemini.APIKey)
	}
	return strings.TrimSpace(cfg.OpenAI.APIKey)
}

func (r *Router) record(engine Engine, operation string, start time.Time, err error) {
	r.metrics.RecordProviderRequest(engine.String(), operation, time.Since(start).Seconds(), err)
	if err != nil {
		r.logger.Warn("Provider request failed",
			slog.String("engine", engine.String()),
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
}

// requestLanguage returns the language hint to send, or "" for auto-detect
func requestLanguage(configured string) string {
	lang := strings.TrimSpace(configured)
	if strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}
