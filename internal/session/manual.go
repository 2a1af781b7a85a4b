package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/store"
)

// maxTitleRunes bounds generated conversation titles
const maxTitleRunes = 80

// TranslateText translates text on request and records it in the
// conversation
func (m *Manager) TranslateText(ctx context.Context, conversationID, text, targetLanguage string) (string, error) {
	cfg := m.config.Snapshot()
	if strings.TrimSpace(targetLanguage) == "" {
		targetLanguage = cfg.Translation.TranslateLanguage()
	}

	translation, err := m.language.Translate(ctx, &cfg, text, targetLanguage, "manual")
	if err != nil {
		return "", err
	}

	if _, err := m.store.AppendEntry(store.NewEntry{
		ConversationID: conversationID,
		Kind:           store.EntryTranslation,
		Text:           text,
		TranslatedText: &translation,
		Language:       &targetLanguage,
		Metadata:       map[string]any{"context": "manual"},
	}); err != nil {
		return "", fmt.Errorf("failed to persist translation: %w", err)
	}
	m.metrics.RecordEntryPersisted(string(store.EntryTranslation))

	return translation, nil
}

// OptimizeText rewrites text with the optimize prompt. The result is
// recorded when a conversation id is given.
func (m *Manager) OptimizeText(ctx context.Context, conversationID, text string) (string, error) {
	cfg := m.config.Snapshot()

	optimized, err := m.language.Optimize(ctx, &cfg, text)
	if err != nil {
		return "", err
	}

	if conversationID == "" {
		return optimized, nil
	}

	if _, err := m.store.AppendEntry(store.NewEntry{
		ConversationID: conversationID,
		Kind:           store.EntryOptimization,
		Text:           optimized,
		Metadata:       map[string]any{"source": text},
	}); err != nil {
		return "", fmt.Errorf("failed to persist optimization: %w", err)
	}
	m.metrics.RecordEntryPersisted(string(store.EntryOptimization))

	return optimized, nil
}

// SummarizeText summarizes arbitrary text without recording it
func (m *Manager) SummarizeText(ctx context.Context, text, targetLanguage string) (string, error) {
	cfg := m.config.Snapshot()
	if strings.TrimSpace(targetLanguage) == "" {
		targetLanguage = cfg.Translation.TranslateLanguage()
	}
	return m.language.Summarize(ctx, &cfg, text, targetLanguage)
}

// RefreshTitle generates a title from the conversation's transcript and
// stores it
func (m *Manager) RefreshTitle(ctx context.Context, conversationID string) (string, error) {
	if _, err := m.store.Conversation(conversationID); err != nil {
		return "", err
	}

	entries, err := m.store.EntriesForConversation(conversationID, 0)
	if err != nil {
		return "", fmt.Errorf("failed to load entries: %w", err)
	}

	transcript := joinTranscript(entries)
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("conversation %s has no transcript", conversationID)
	}

	cfg := m.config.Snapshot()
	cfg.Summary.Prompt = cfg.Summary.TitlePrompt
	if strings.TrimSpace(cfg.Summary.Prompt) == "" {
		cfg.Summary.Prompt = config.DefaultTitlePrompt
	}

	raw, err := m.language.Summarize(ctx, &cfg, transcript, cfg.Translation.TranslateLanguage())
	if err != nil {
		return "", err
	}

	title := cleanTitle(raw)
	if title == "" {
		return "", fmt.Errorf("provider returned an empty title")
	}

	if err := m.store.UpdateConversationTitle(conversationID, title); err != nil {
		return "", err
	}
	return title, nil
}

// cleanTitle keeps the first line, strips quotes and bounds the length
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.Trim(strings.TrimSpace(title), "\"'`")
	title = strings.TrimSpace(title)

	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	return title
}
