package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/youtonghy/Voice-transcript/internal/config"
)

func newGeminiClient(ctx context.Context, cfg config.GeminiConfig, httpClient *http.Client) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

// geminiGenerate sends userText with the given system instructions and
// returns the concatenated text of the first candidate
func geminiGenerate(ctx context.Context, client *genai.Client, model string, instructions []string, userText string) (string, error) {
	var gc *genai.GenerateContentConfig
	var parts []*genai.Part
	for _, inst := range instructions {
		if strings.TrimSpace(inst) != "" {
			parts = append(parts, &genai.Part{Text: inst})
		}
	}
	if len(parts) > 0 {
		gc = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: parts},
		}
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(userText), gc)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// geminiTranslateInstructions builds the system instructions for a translation
func geminiTranslateInstructions(prompt, targetLanguage, contextHint string) []string {
	instructions := []string{config.RenderPrompt(prompt, targetLanguage)}
	if targetLanguage != "" {
		instructions = append(instructions, fmt.Sprintf("Respond in %s.", targetLanguage))
	}
	if contextHint != "" {
		instructions = append(instructions, fmt.Sprintf("Context: %s", contextHint))
	}
	return instructions
}
