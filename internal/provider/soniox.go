package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

type sonioxRequest struct {
	Config sonioxConfig `json:"config"`
	Audio  sonioxAudio  `json:"audio"`
}

type sonioxConfig struct {
	IncludeConfidence bool    `json:"include_confidence"`
	EnableDiarization bool    `json:"enable_diarization"`
	Language          *string `json:"language"`
}

type sonioxAudio struct {
	Content string `json:"content"`
}

type sonioxResponse struct {
	Transcription []struct {
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	} `json:"transcription"`
	Language *string `json:"language"`
}

func sonioxTranscribe(ctx context.Context, client *JSONClient, endpoint, apiKey, language string, wav []byte) (*Transcription, error) {
	req := sonioxRequest{
		Config: sonioxConfig{IncludeConfidence: true},
		Audio:  sonioxAudio{Content: base64.StdEncoding.EncodeToString(wav)},
	}
	if language != "" {
		req.Config.Language = &language
	}

	var resp sonioxResponse
	if err := client.PostJSON(ctx, endpoint, apiKey, req, &resp); err != nil {
		return nil, fmt.Errorf("soniox transcription failed: %w", err)
	}

	var (
		fragments []string
		sum       float64
		count     int
	)
	for _, item := range resp.Transcription {
		if text := strings.TrimSpace(item.Text); text != "" {
			fragments = append(fragments, text)
		}
		if item.Confidence != nil {
			sum += *item.Confidence
			count++
		}
	}

	result := &Transcription{
		Text:     strings.Join(fragments, " "),
		Language: resp.Language,
	}
	if count > 0 {
		avg := sum / float64(count)
		result.Confidence = &avg
	}
	return result, nil
}
