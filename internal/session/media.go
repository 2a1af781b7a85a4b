package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/protocol"
)

// MediaConversationTitle is the title of conversations created by file jobs
const MediaConversationTitle = "Media Transcription"

// ProcessMediaFile decodes a file, segments it in one batch and runs every
// segment through the pipeline in order. It returns the conversation id.
// Segment failures are counted, not returned.
func (m *Manager) ProcessMediaFile(ctx context.Context, req MediaRequest) (string, error) {
	if m.decoder == nil {
		return "", fmt.Errorf("media decoding is not available")
	}

	start := time.Now()

	samples, sampleRate, err := m.decoder.Decode(ctx, req.Path)
	if err != nil {
		m.metrics.RecordMediaJob("decode_error")
		return "", fmt.Errorf("failed to decode %s: %w", req.Path, err)
	}
	if len(samples) == 0 {
		m.metrics.RecordMediaJob("decode_error")
		return "", ErrEmptyMedia
	}

	cfg := m.config.Snapshot()

	segments, err := audio.SegmentAll(samples, segmenterParams(&cfg, sampleRate))
	if err != nil {
		m.metrics.RecordMediaJob("error")
		return "", fmt.Errorf("failed to segment media: %w", err)
	}

	conv, err := m.store.CreateConversation(MediaConversationTitle)
	if err != nil {
		m.metrics.RecordMediaJob("error")
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	translate := cfg.Translation.Enabled
	if req.Translate != nil {
		translate = *req.Translate
	}
	language := strings.TrimSpace(req.TranslateLanguage)
	if language == "" {
		language = cfg.Translation.TranslateLanguage()
	}

	meta := Metadata{
		ConversationID:    conv.ID,
		Mode:              ModeDefault,
		Translate:         translate,
		TranslateLanguage: language,
		StartedAt:         start,
	}

	m.logger.Info("Media job started",
		slog.String("conversation_id", conv.ID),
		slog.String("path", req.Path),
		slog.Int("sample_rate", sampleRate),
		slog.Int("segments", len(segments)),
	)

	total := max(len(segments), 1)
	failed := 0
	for i, seg := range segments {
		m.emit(protocol.TopicMedia, protocol.MediaProgressEvent{
			Type:           protocol.TypeMediaProgress,
			ConversationID: conv.ID,
			Current:        i + 1,
			Total:          total,
		})
		m.metrics.RecordSegmentEmitted("media", seg.Duration().Seconds())

		if !m.runPipeline(ctx, meta, seg) {
			failed++
		}
	}

	m.emit(protocol.TopicMedia, protocol.MediaCompleteEvent{
		Type:           protocol.TypeMediaComplete,
		ConversationID: conv.ID,
		Segments:       len(segments),
		Failed:         failed,
	})

	outcome := "success"
	if failed > 0 {
		outcome = "partial"
	}
	m.metrics.RecordMediaJob(outcome)

	m.logger.Info("Media job completed",
		slog.String("conversation_id", conv.ID),
		slog.Int("segments", len(segments)),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(start)),
	)

	return conv.ID, nil
}
