package session

import (
	"context"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/events"
	"github.com/youtonghy/Voice-transcript/internal/metrics"
	"github.com/youtonghy/Voice-transcript/internal/provider"
	"github.com/youtonghy/Voice-transcript/internal/store"
)

// AudioSource opens the capture device
type AudioSource interface {
	Open(preferredSampleRate, framesPerBuffer int) (InputStream, error)
}

// InputStream delivers mono float samples to a callback on the device's
// realtime thread. Stop must not return while a callback is running.
type InputStream interface {
	SampleRate() int
	Start(callback func(samples []float32)) error
	Stop() error
}

// Recognizer transcribes one segment
type Recognizer interface {
	Transcribe(ctx context.Context, cfg *config.Config, seg audio.Segment) (*provider.Transcription, error)
}

// LanguageService runs the text operations of the language providers
type LanguageService interface {
	Translate(ctx context.Context, cfg *config.Config, text, targetLanguage, contextHint string) (string, error)
	Summarize(ctx context.Context, cfg *config.Config, text, targetLanguage string) (string, error)
	Optimize(ctx context.Context, cfg *config.Config, text string) (string, error)
}

// Store persists conversations and entries
type Store interface {
	CreateConversation(title string) (*store.Conversation, error)
	Conversation(id string) (*store.Conversation, error)
	AppendEntry(e store.NewEntry) (*store.Entry, error)
	EntriesForConversation(conversationID string, limit int) ([]store.Entry, error)
	UpdateConversationTitle(id, title string) error
}

// Decoder turns a media file into mono samples
type Decoder interface {
	Decode(ctx context.Context, path string) ([]float32, int, error)
}

// ConfigSource returns the live configuration
type ConfigSource interface {
	Snapshot() config.Config
}

// Deps holds the manager's collaborators. Source and Decoder may be nil
// when capture or file jobs are not available.
type Deps struct {
	Config     ConfigSource
	Source     AudioSource
	Recognizer Recognizer
	Language   LanguageService
	Store      Store
	Decoder    Decoder
	Events     events.Emitter
	Metrics    *metrics.Metrics
}
