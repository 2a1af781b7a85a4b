package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/protocol"
	"github.com/youtonghy/Voice-transcript/internal/store"
)

// runPipeline transcribes, persists and optionally translates one segment.
// Failures are logged and counted; they never reach the session or sibling
// segments. It reports whether the transcription was persisted.
func (m *Manager) runPipeline(ctx context.Context, meta Metadata, seg audio.Segment) bool {
	m.metrics.PipelineStarted()
	defer m.metrics.PipelineFinished()

	cfg := m.config.Snapshot()
	applyOverrides(&cfg, meta)

	logger := m.logger.With(
		slog.String("conversation_id", meta.ConversationID),
		slog.String("segment_id", seg.ID),
	)

	result, err := m.recognizer.Transcribe(ctx, &cfg, seg)
	if err != nil {
		m.metrics.RecordPipelineFailure("recognition")
		logger.Error("Segment recognition failed", slog.String("error", err.Error()))
		return false
	}

	metadata := map[string]any{
		"segmentId":  seg.ID,
		"segmentSeq": seg.Seq,
		"durationMs": seg.DurationMs,
		"mode":       meta.Mode.String(),
	}
	if result.Confidence != nil {
		metadata["confidence"] = *result.Confidence
	}

	entry, err := m.store.AppendEntry(store.NewEntry{
		ConversationID: meta.ConversationID,
		Kind:           store.EntryTranscription,
		Text:           result.Text,
		Language:       result.Language,
		Metadata:       metadata,
	})
	if err != nil {
		m.metrics.RecordPipelineFailure("persist")
		logger.Error("Failed to persist transcription", slog.String("error", err.Error()))
		return false
	}
	m.metrics.RecordEntryPersisted(string(store.EntryTranscription))

	m.emit(protocol.TopicTranscription, protocol.SegmentEvent{
		Type:           protocol.TypeSegment,
		ConversationID: meta.ConversationID,
		SegmentID:      seg.ID,
		EntryID:        entry.ID,
		Text:           result.Text,
		Language:       result.Language,
		Confidence:     result.Confidence,
		DurationMs:     seg.DurationMs,
		Mode:           meta.Mode.String(),
	})

	logger.Debug("Segment transcribed",
		slog.String("entry_id", entry.ID),
		slog.Uint64("seq", seg.Seq),
		slog.Int64("duration_ms", seg.DurationMs),
	)

	if meta.Translate {
		m.translateSegment(ctx, &cfg, meta, seg, entry, result.Text, logger)
		return true
	}

	if meta.Mode == ModeVoiceInput {
		m.emit(protocol.TopicTranscription, protocol.VoiceInputEvent{
			Type:           protocol.TypeVoiceInput,
			ConversationID: meta.ConversationID,
			SegmentID:      seg.ID,
			Transcription:  result.Text,
			Language:       result.Language,
		})
	}

	return true
}

// translateSegment is the optional second half of the pipeline. A failure
// here leaves the transcription entry in place.
func (m *Manager) translateSegment(ctx context.Context, cfg *config.Config, meta Metadata, seg audio.Segment, source *store.Entry, text string, logger *slog.Logger) {
	target := meta.TranslateLanguage

	translation, err := m.language.Translate(ctx, cfg, text, target, meta.Mode.String())
	if err != nil {
		m.metrics.RecordPipelineFailure("translation")
		logger.Warn("Segment translation failed",
			slog.String("target_language", target),
			slog.String("error", err.Error()),
		)
		return
	}

	entry, err := m.store.AppendEntry(store.NewEntry{
		ConversationID: meta.ConversationID,
		Kind:           store.EntryTranslation,
		Text:           text,
		TranslatedText: &translation,
		Language:       &target,
		Metadata: map[string]any{
			"segmentId":     seg.ID,
			"sourceEntryId": source.ID,
			"context":       meta.Mode.String(),
		},
	})
	if err != nil {
		m.metrics.RecordPipelineFailure("persist")
		logger.Error("Failed to persist translation", slog.String("error", err.Error()))
		return
	}
	m.metrics.RecordEntryPersisted(string(store.EntryTranslation))

	m.emit(protocol.TopicTranscription, protocol.TranslationEvent{
		Type:           protocol.TypeTranslation,
		ConversationID: meta.ConversationID,
		SegmentID:      seg.ID,
		EntryID:        entry.ID,
		Text:           text,
		Translation:    translation,
		TargetLanguage: target,
		Mode:           meta.Mode.String(),
	})

	if meta.Mode == ModeVoiceInput {
		m.emit(protocol.TopicTranscription, protocol.VoiceInputEvent{
			Type:           protocol.TypeVoiceInput,
			ConversationID: meta.ConversationID,
			SegmentID:      seg.ID,
			Transcription:  text,
			Translation:    &translation,
			Language:       &target,
		})
	}
}

// applyOverrides replaces the recognition settings with the session's
// overrides
func applyOverrides(cfg *config.Config, meta Metadata) {
	if engine := strings.TrimSpace(meta.RecognitionEngine); engine != "" {
		cfg.Recognition.Engine = engine
	}
	if language := strings.TrimSpace(meta.TranscribeLanguage); language != "" {
		cfg.Recognition.Language = language
	}
}
