package store

import "time"

// DefaultConversationTitle is used when a conversation is created without a title
const DefaultConversationTitle = "New Conversation"

// EntryKind identifies what an entry holds
type EntryKind string

// Entry kinds
const (
	EntryTranscription EntryKind = "transcription"
	EntryTranslation   EntryKind = "translation"
	EntrySummary       EntryKind = "summary"
	EntryOptimization  EntryKind = "optimization"
)

// Valid reports whether k is a known entry kind
func (k EntryKind) Valid() bool {
	switch k {
	case EntryTranscription, EntryTranslation, EntrySummary, EntryOptimization:
		return true
	default:
		return false
	}
}

// Conversation is one transcript, bound to a capture session or a file job
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Pinned    bool      `json:"pinned"`
	OrderRank float64   `json:"orderRank"`
}

// Entry is one persisted unit of transcript content. Entries are append-only.
type Entry struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Kind           EntryKind      `json:"kind"`
	Text           string         `json:"text"`
	TranslatedText *string        `json:"translatedText,omitempty"`
	Language       *string        `json:"language,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewEntry holds the fields supplied when appending an entry
type NewEntry struct {
	ConversationID string
	Kind           EntryKind
	Text           string
	TranslatedText *string
	Language       *string
	Metadata       map[string]any
}
