package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

type dashScopeRequest struct {
	Model      string              `json:"model"`
	Input      dashScopeInput      `json:"input"`
	Parameters dashScopeParameters `json:"parameters"`
}

type dashScopeInput struct {
	Mode       string `json:"mode"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Audio      string `json:"audio"`
}

type dashScopeParameters struct {
	Language string `json:"language,omitempty"`
}

type dashScopeResponse struct {
	Output struct {
		Text       string   `json:"text"`
		Language   *string  `json:"language"`
		Confidence *float64 `json:"confidence"`
	} `json:"output"`
}

func dashScopeTranscribe(ctx context.Context, client *JSONClient, endpoint, apiKey, model, language string, sampleRate int, wav []byte) (*Transcription, error) {
	req := dashScopeRequest{
		Model: model,
		Input: dashScopeInput{
			Mode:       "file",
			Format:     "wav",
			SampleRate: sampleRate,
			Audio:      base64.StdEncoding.EncodeToString(wav),
		},
		Parameters: dashScopeParameters{Language: language},
	}

	var resp dashScopeResponse
	if err := client.PostJSON(ctx, endpoint, apiKey, req, &resp); err != nil {
		return nil, fmt.Errorf("dashscope transcription failed: %w", err)
	}

	return &Transcription{
		Text:       strings.TrimSpace(resp.Output.Text),
		Language:   resp.Output.Language,
		Confidence: resp.Output.Confidence,
	}, nil
}
