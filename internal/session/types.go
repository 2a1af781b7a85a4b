package session

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how a session's output is consumed
type Mode string

// Recording modes
const (
	ModeDefault    Mode = "default"
	ModeVoiceInput Mode = "voice_input"
)

// ParseMode converts a mode name. Empty selects the default mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return ModeDefault, nil
	case "voice_input", "voiceinput", "voice-input":
		return ModeVoiceInput, nil
	default:
		return "", fmt.Errorf("unknown recording mode %q", s)
	}
}

func (m Mode) String() string {
	return string(m)
}

// Context holds the caller's options for a new session. Nil and empty
// fields fall back to the configuration.
type Context struct {
	Mode               Mode   `json:"mode"`
	Translate          *bool  `json:"translate,omitempty"`
	TranslateLanguage  string `json:"translateLanguage,omitempty"`
	RecognitionEngine  string `json:"recognitionEngine,omitempty"`
	TranscribeLanguage string `json:"transcribeLanguage,omitempty"`
}

// Metadata is the immutable description of a running session
type Metadata struct {
	ConversationID     string    `json:"conversationId"`
	Mode               Mode      `json:"mode"`
	Translate          bool      `json:"translate"`
	TranslateLanguage  string    `json:"translateLanguage"`
	RecognitionEngine  string    `json:"recognitionEngine,omitempty"`
	TranscribeLanguage string    `json:"transcribeLanguage,omitempty"`
	StartedAt          time.Time `json:"startedAt"`
}

// Status mirrors slot occupancy for observers
type Status struct {
	Running        bool   `json:"running"`
	Ready          bool   `json:"ready"`
	IsRecording    bool   `json:"isRecording"`
	Mode           string `json:"mode,omitempty"`
	Summarizing    bool   `json:"summarizing"`
	ConversationID string `json:"conversationId,omitempty"`
}

// MediaRequest describes a file transcription job
type MediaRequest struct {
	Path              string `json:"path"`
	Translate         *bool  `json:"translate,omitempty"`
	TranslateLanguage string `json:"translateLanguage,omitempty"`
}
