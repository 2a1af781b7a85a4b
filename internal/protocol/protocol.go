package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event topics
const (
	TopicTranscription = "transcription-event"
	TopicMedia         = "media-event"
	TopicStatus        = "status-event"
)

// Payload types
const (
	TypeSegment       = "segment"
	TypeTranslation   = "translation"
	TypeVoiceInput    = "voice_input"
	TypeSummary       = "summary"
	TypeMediaProgress = "media_progress"
	TypeMediaComplete = "media_complete"
	TypeStatus        = "status"
)

// SegmentEvent is emitted after a segment's transcription is persisted
type SegmentEvent struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversationId"`
	SegmentID      string   `json:"segmentId"`
	EntryID        string   `json:"entryId"`
	Text           string   `json:"text"`
	Language       *string  `json:"language"`
	Confidence     *float64 `json:"confidence"`
	DurationMs     int64    `json:"durationMs"`
	Mode           string   `json:"mode"`
}

// TranslationEvent is emitted after a segment's translation is persisted
type TranslationEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	SegmentID      string `json:"segmentId"`
	EntryID        string `json:"entryId"`
	Text           string `json:"text"`
	Translation    string `json:"translation"`
	TargetLanguage string `json:"targetLanguage"`
	Mode           string `json:"mode"`
}

// VoiceInputEvent carries a transcription and, when requested, its translation
type VoiceInputEvent struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversationId"`
	SegmentID      string  `json:"segmentId"`
	Transcription  string  `json:"transcription"`
	Translation    *string `json:"translation"`
	Language       *string `json:"language"`
}

// SummaryEvent is emitted when a default-mode session stops with a summary
type SummaryEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Summary        string `json:"summary"`
}

// MediaProgressEvent is emitted before each segment of a media job
type MediaProgressEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Current        int    `json:"current"`
	Total          int    `json:"total"`
}

// MediaCompleteEvent is emitted when a media job has run every segment
type MediaCompleteEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Segments       int    `json:"segments"`
	Failed         int    `json:"failed"`
}

// StatusEvent mirrors the session slot after start and stop
type StatusEvent struct {
	Type           string `json:"type"`
	Running        bool   `json:"running"`
	Ready          bool   `json:"ready"`
	IsRecording    bool   `json:"isRecording"`
	Summarizing    bool   `json:"summarizing"`
	Mode           string `json:"mode,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Envelope wraps a payload with its topic for transport
type Envelope struct {
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope encodes payload into an envelope for topic
func NewEnvelope(topic string, payload any, ts time.Time) (*Envelope, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}

	return &Envelope{Topic: topic, Timestamp: ts.UTC(), Payload: raw}, nil
}

// Encode serializes the envelope
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes and validates an envelope
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := ValidateEnvelope(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// ValidateEnvelope checks the topic and that the payload carries a type
func ValidateEnvelope(env *Envelope) error {
	switch env.Topic {
	case TopicTranscription, TopicMedia, TopicStatus:
	default:
		return fmt.Errorf("unknown topic %q", env.Topic)
	}

	if len(env.Payload) == 0 {
		return fmt.Errorf("empty payload for topic %s", env.Topic)
	}

	if _, err := env.PayloadType(); err != nil {
		return err
	}
	return nil
}

// PayloadType returns the payload's type field
func (e *Envelope) PayloadType() (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(e.Payload, &head); err != nil {
		return "", fmt.Errorf("failed to decode payload type: %w", err)
	}
	if head.Type == "" {
		return "", fmt.Errorf("payload for topic %s has no type", e.Topic)
	}
	return head.Type, nil
}

// Decode unmarshals the payload into the struct matching its type
func (e *Envelope) Decode() (any, error) {
	typ, err := e.PayloadType()
	if err != nil {
		return nil, err
	}

	var target any
	switch typ {
	case TypeSegment:
		target = &SegmentEvent{}
	case TypeTranslation:
		target = &TranslationEvent{}
	case TypeVoiceInput:
		target = &VoiceInputEvent{}
	case TypeSummary:
		target = &SummaryEvent{}
	case TypeMediaProgress:
		target = &MediaProgressEvent{}
	case TypeMediaComplete:
		target = &MediaCompleteEvent{}
	case TypeStatus:
		target = &StatusEvent{}
	default:
		return nil, fmt.Errorf("unknown payload type %q", typ)
	}

	if err := json.Unmarshal(e.Payload, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", typ, err)
	}
	return target, nil
}
