package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/youtonghy/Voice-transcript/internal/events"
	"github.com/youtonghy/Voice-transcript/internal/protocol"
	"github.com/youtonghy/Voice-transcript/internal/store"
)

// consoleEmitter prints events as readable lines
type consoleEmitter struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleEmitter(out io.Writer) *consoleEmitter {
	return &consoleEmitter{out: out}
}

// Emit implements events.Emitter
func (c *consoleEmitter) Emit(topic string, payload any) {
	line := formatEvent(payload)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

var _ events.Emitter = (*consoleEmitter)(nil)

// formatEvent renders an event payload. Payloads may be values or pointers.
// Unknown payloads render as "".
func formatEvent(payload any) string {
	switch e := payload.(type) {
	case *protocol.SegmentEvent:
		return formatEvent(*e)
	case protocol.SegmentEvent:
		return fmt.Sprintf("[%s] %s", formatDuration(e.DurationMs), e.Text)
	case *protocol.TranslationEvent:
		return formatEvent(*e)
	case protocol.TranslationEvent:
		return fmt.Sprintf("  -> (%s) %s", e.TargetLanguage, e.Translation)
	case *protocol.VoiceInputEvent:
		return formatEvent(*e)
	case protocol.VoiceInputEvent:
		if e.Translation != nil {
			return fmt.Sprintf("voice input: %s => %s", e.Transcription, *e.Translation)
		}
		return "voice input: " + e.Transcription
	case *protocol.SummaryEvent:
		return formatEvent(*e)
	case protocol.SummaryEvent:
		return "Summary:\n" + e.Summary
	case *protocol.MediaProgressEvent:
		return formatEvent(*e)
	case protocol.MediaProgressEvent:
		return fmt.Sprintf("segment %d/%d", e.Current, e.Total)
	case *protocol.MediaCompleteEvent:
		return formatEvent(*e)
	case protocol.MediaCompleteEvent:
		return fmt.Sprintf("done: %d segments, %d failed (conversation %s)", e.Segments, e.Failed, e.ConversationID)
	case *protocol.StatusEvent:
		return formatEvent(*e)
	case protocol.StatusEvent:
		if e.IsRecording {
			return fmt.Sprintf("recording (%s) conversation %s", e.Mode, e.ConversationID)
		}
		if e.Summarizing {
			return "summarizing"
		}
		return "idle"
	default:
		return ""
	}
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return d.Round(100 * time.Millisecond).String()
}

// formatEntry renders a stored entry for listings
func formatEntry(e store.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-13s %s", e.CreatedAt.Local().Format("15:04:05"), e.Kind, e.Text)
	if e.TranslatedText != nil {
		lang := ""
		if e.Language != nil {
			lang = *e.Language
		}
		fmt.Fprintf(&b, "\n%s %-13s -> (%s) %s", strings.Repeat(" ", 8), "", lang, *e.TranslatedText)
	}
	return b.String()
}
