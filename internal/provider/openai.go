package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/youtonghy/Voice-transcript/internal/config"
)

// chatTemperature is used for every chat completion
const chatTemperature = 0.2

func newOpenAIClient(cfg config.OpenAIConfig, httpClient *http.Client, settings callSettings) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(settings.MaxRetries),
		option.WithRequestTimeout(settings.Timeout),
	}
	if base := normalizeBaseURL(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return openai.NewClient(opts...)
}

// normalizeBaseURL trims the URL and guarantees a trailing slash so the SDK
// joins paths under it
func normalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return ""
	}
	return base + "/"
}

// transcriptionExtras are optional fields some OpenAI-compatible servers
// return alongside the text
type transcriptionExtras struct {
	Language   *string  `json:"language"`
	Confidence *float64 `json:"confidence"`
}

func openAITranscribe(ctx context.Context, client openai.Client, model, language string, wav []byte) (*Transcription, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "segment.wav", "audio/wav"),
		Model: openai.AudioModel(model),
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	resp, err := client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai transcription failed: %w", err)
	}

	result := &Transcription{Text: strings.TrimSpace(resp.Text)}

	var extras transcriptionExtras
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &extras); err == nil {
			result.Language = extras.Language
			result.Confidence = extras.Confidence
		}
	}
	return result, nil
}

func openAIChat(ctx context.Context, client openai.Client, model, systemPrompt, userText string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userText))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    messages,
		Temperature: openai.Float(chatTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func openAITranslatePrompt(targetLanguage string) string {
	return fmt.Sprintf("You are a professional translator. Translate the user message into %s. Respond with translation only.", targetLanguage)
}
