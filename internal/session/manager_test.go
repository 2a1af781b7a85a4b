package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/events"
	"github.com/youtonghy/Voice-transcript/internal/metrics"
	"github.com/youtonghy/Voice-transcript/internal/protocol"
	"github.com/youtonghy/Voice-transcript/internal/provider"
	"github.com/youtonghy/Voice-transcript/internal/store"
)

const testSampleRate = 1000

type fakeStream struct {
	mu       sync.Mutex
	callback func([]float32)
	stopped  bool
}

func (s *fakeStream) SampleRate() int { return testSampleRate }

func (s *fakeStream) Start(callback func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = callback
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// push delivers samples the way the device thread would
func (s *fakeStream) push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && !s.stopped {
		s.callback(samples)
	}
}

type fakeSource struct {
	mu      sync.Mutex
	err     error
	streams []*fakeStream
}

func (f *fakeSource) Open(preferredSampleRate, framesPerBuffer int) (InputStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeStream{}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeSource) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

type fakeRecognizer struct {
	fn func(ctx context.Context, seg audio.Segment) (*provider.Transcription, error)
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, cfg *config.Config, seg audio.Segment) (*provider.Transcription, error) {
	if f.fn != nil {
		return f.fn(ctx, seg)
	}
	return transcription(fmt.Sprintf("segment %d", seg.Seq)), nil
}

func transcription(text string) *provider.Transcription {
	lang := "en"
	return &provider.Transcription{Text: text, Language: &lang}
}

type fakeLanguage struct {
	mu           sync.Mutex
	translateErr error
	summaries    []string
	prompts      []string
	hints        []string
}

func (f *fakeLanguage) Translate(ctx context.Context, cfg *config.Config, text, targetLanguage, contextHint string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints = append(f.hints, contextHint)
	if f.translateErr != nil {
		return "", f.translateErr
	}
	return fmt.Sprintf("[%s] %s", targetLanguage, text), nil
}

func (f *fakeLanguage) Summarize(ctx context.Context, cfg *config.Config, text, targetLanguage string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, text)
	f.prompts = append(f.prompts, cfg.Summary.Prompt)
	return "summary in " + targetLanguage, nil
}

func (f *fakeLanguage) Optimize(ctx context.Context, cfg *config.Config, text string) (string, error) {
	return strings.ToUpper(text), nil
}

func (f *fakeLanguage) summaryInputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.summaries...)
}

type fakeDecoder struct {
	samples    []float32
	sampleRate int
	err        error
}

func (f *fakeDecoder) Decode(ctx context.Context, path string) ([]float32, int, error) {
	return f.samples, f.sampleRate, f.err
}

type testEnv struct {
	manager  *Manager
	source   *fakeSource
	store    *store.Store
	recorder *events.Recorder
	language *fakeLanguage
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, rec *fakeRecognizer, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Audio.SilenceThreshold = 0.01
	cfg.Audio.MinSilenceSeconds = 0.1
	cfg.Audio.MaxSegmentSeconds = 1
	cfg.Translation.TargetLanguage = "French"
	cfg.Session.DrainTimeout = 5
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	env := &testEnv{
		source:   &fakeSource{},
		store:    st,
		recorder: events.NewRecorder(),
		language: &fakeLanguage{},
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}
	hub := events.NewHub(logger, env.metrics)
	if rec == nil {
		rec = &fakeRecognizer{}
	}

	manager, err := NewManager(Deps{
		Config:     config.NewHolder(cfg),
		Source:     env.source,
		Recognizer: rec,
		Language:   env.language,
		Store:      st,
		Decoder:    &fakeDecoder{},
		Events:     events.Multi(hub, env.recorder),
		Metrics:    env.metrics,
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	env.manager = manager

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		manager.Close(ctx)
		hub.Close()
		st.Close()
	})

	return env
}

// burst is speech followed by enough silence to close a segment
func burst() []float32 {
	samples := make([]float32, 750)
	for i := range 600 {
		samples[i] = 0.5
	}
	return samples
}

func speech(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.5
	}
	return samples
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func entriesOfKind(t *testing.T, st *store.Store, conversationID string, kind store.EntryKind) []store.Entry {
	t.Helper()
	entries, err := st.EntriesForConversation(conversationID, 0)
	if err != nil {
		t.Fatalf("Failed to load entries: %v", err)
	}
	var out []store.Entry
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func payloadsOfType[T any](rec *events.Recorder, topic string) []T {
	var out []T
	for _, p := range rec.Topic(topic) {
		if v, ok := p.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func TestStartStopSlotErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	if _, err := env.manager.Stop(ctx); !errors.Is(err, ErrRecordingNotRunning) {
		t.Fatalf("Expected ErrRecordingNotRunning, got %v", err)
	}

	id, err := env.manager.Start(ctx, Context{Mode: ModeVoiceInput})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a conversation id")
	}

	if _, err := env.manager.Start(ctx, Context{}); !errors.Is(err, ErrRecordingAlreadyRunning) {
		t.Errorf("Expected ErrRecordingAlreadyRunning, got %v", err)
	}

	status := env.manager.Status()
	if !status.IsRecording || status.ConversationID != id || status.Mode != "voice_input" {
		t.Errorf("Unexpected status while recording: %+v", status)
	}

	if _, err := env.manager.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if env.manager.IsRecording() {
		t.Error("Expected slot to be empty after stop")
	}
	if _, err := env.manager.Stop(ctx); !errors.Is(err, ErrRecordingNotRunning) {
		t.Errorf("Expected ErrRecordingNotRunning after stop, got %v", err)
	}

	statuses := payloadsOfType[protocol.StatusEvent](env.recorder, protocol.TopicStatus)
	if len(statuses) < 2 || !statuses[0].IsRecording || statuses[len(statuses)-1].IsRecording {
		t.Errorf("Expected recording then idle status events, got %+v", statuses)
	}
}

func TestStartWithoutDevice(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.source.err = errors.New("no default input device")

	_, err := env.manager.Start(context.Background(), Context{})
	if !errors.Is(err, ErrNoAudioInputDevice) {
		t.Fatalf("Expected ErrNoAudioInputDevice, got %v", err)
	}
	if env.manager.IsRecording() {
		t.Error("Expected slot to be released after a failed start")
	}

	convs, err := env.store.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("Expected no conversation for a failed start, got %d", len(convs))
	}
}

func TestPipelinePersistsTranscriptionAndTranslation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	id, err := env.manager.Start(ctx, Context{Mode: ModeVoiceInput, Translate: boolPtr(true), TranslateLanguage: "German"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	env.source.last().push(burst())

	waitFor(t, "translation entry", func() bool {
		return len(entriesOfKind(t, env.store, id, store.EntryTranslation)) == 1
	})

	transcripts := entriesOfKind(t, env.store, id, store.EntryTranscription)
	if len(transcripts) != 1 || transcripts[0].Text != "segment 1" {
		t.Fatalf("Unexpected transcription entries: %+v", transcripts)
	}
	if transcripts[0].Metadata["mode"] != "voice_input" {
		t.Errorf("Expected mode metadata, got %v", transcripts[0].Metadata)
	}

	translations := entriesOfKind(t, env.store, id, store.EntryTranslation)
	tr := translations[0]
	if tr.TranslatedText == nil || *tr.TranslatedText != "[German] segment 1" {
		t.Errorf("Unexpected translated text: %v", tr.TranslatedText)
	}
	if tr.Language == nil || *tr.Language != "German" {
		t.Errorf("Expected target language German, got %v", tr.Language)
	}
	if tr.Metadata["sourceEntryId"] != transcripts[0].ID {
		t.Errorf("Expected sourceEntryId %s, got %v", transcripts[0].ID, tr.Metadata["sourceEntryId"])
	}

	waitFor(t, "voice input event", func() bool {
		return len(payloadsOfType[protocol.VoiceInputEvent](env.recorder, protocol.TopicTranscription)) == 1
	})

	segs := payloadsOfType[protocol.SegmentEvent](env.recorder, protocol.TopicTranscription)
	if len(segs) != 1 || segs[0].EntryID != transcripts[0].ID || segs[0].DurationMs != 600 {
		t.Errorf("Unexpected segment events: %+v", segs)
	}

	trEvents := payloadsOfType[protocol.TranslationEvent](env.recorder, protocol.TopicTranscription)
	if len(trEvents) != 1 || trEvents[0].TargetLanguage != "German" || trEvents[0].SegmentID != segs[0].SegmentID {
		t.Errorf("Unexpected translation events: %+v", trEvents)
	}

	voice := payloadsOfType[protocol.VoiceInputEvent](env.recorder, protocol.TopicTranscription)[0]
	if voice.Translation == nil || *voice.Translation != "[German] segment 1" {
		t.Errorf("Expected combined event with translation, got %+v", voice)
	}

	env.language.mu.Lock()
	hints := append([]string(nil), env.language.hints...)
	env.language.mu.Unlock()
	if len(hints) != 1 || hints[0] != "voice_input" {
		t.Errorf("Expected translation context hint voice_input, got %v", hints)
	}

	summary, err := env.manager.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if summary != "" || len(env.language.summaryInputs()) != 0 {
		t.Error("Expected no summary in voice input mode")
	}
}

func TestTranslationFailureKeepsTranscription(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.language.translateErr = &provider.EngineMissingError{Kind: provider.KindTranslation, Engine: provider.EngineOpenAI}
	ctx := context.Background()

	id, err := env.manager.Start(ctx, Context{Translate: boolPtr(true)})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	env.source.last().push(burst())

	waitFor(t, "segment event", func() bool {
		return len(payloadsOfType[protocol.SegmentEvent](env.recorder, protocol.TopicTranscription)) == 1
	})

	if _, err := env.manager.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if n := len(entriesOfKind(t, env.store, id, store.EntryTranscription)); n != 1 {
		t.Errorf("Expected transcription to survive, got %d entries", n)
	}
	if n := len(entriesOfKind(t, env.store, id, store.EntryTranslation)); n != 0 {
		t.Errorf("Expected no translation entry, got %d", n)
	}
	if n := len(payloadsOfType[protocol.TranslationEvent](env.recorder, protocol.TopicTranscription)); n != 0 {
		t.Errorf("Expected no translation event, got %d", n)
	}
}

func TestRecognitionFailureIsIsolated(t *testing.T) {
	rec := &fakeRecognizer{fn: func(ctx context.Context, seg audio.Segment) (*provider.Transcription, error) {
		if seg.Seq == 1 {
			return nil, &provider.HTTPError{StatusCode: 500, Body: "boom"}
		}
		return transcription("second"), nil
	}}
	env := newTestEnv(t, rec, nil)
	ctx := context.Background()

	id, err := env.manager.Start(ctx, Context{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stream := env.source.last()
	stream.push(burst())
	stream.push(burst())

	summary, err := env.manager.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	entries := entriesOfKind(t, env.store, id, store.EntryTranscription)
	if len(entries) != 1 || entries[0].Text != "second" {
		t.Fatalf("Expected only the second segment, got %+v", entries)
	}
	if summary != "summary in French" {
		t.Errorf("Expected summary, got %q", summary)
	}
}

func TestStopFlushesTailAndSummarizes(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	id, err := env.manager.Start(ctx, Context{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stream := env.source.last()
	stream.push(burst())
	// Speech that never reaches a silence boundary
	stream.push(speech(300))

	summary, err := env.manager.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if summary != "summary in French" {
		t.Errorf("Expected summary in French, got %q", summary)
	}

	inputs := env.language.summaryInputs()
	if len(inputs) != 1 {
		t.Fatalf("Expected one summarize call, got %d", len(inputs))
	}
	if !strings.Contains(inputs[0], "segment 1\n") || !strings.Contains(inputs[0], "segment 2\n") {
		t.Errorf("Expected transcript to include the flushed tail, got %q", inputs[0])
	}

	summaries := entriesOfKind(t, env.store, id, store.EntrySummary)
	if len(summaries) != 1 || summaries[0].Language == nil || *summaries[0].Language != "French" {
		t.Fatalf("Unexpected summary entries: %+v", summaries)
	}

	summaryEvents := payloadsOfType[protocol.SummaryEvent](env.recorder, protocol.TopicTranscription)
	if len(summaryEvents) != 1 || summaryEvents[0].ConversationID != id || summaryEvents[0].Summary != summary {
		t.Errorf("Unexpected summary events: %+v", summaryEvents)
	}

	if status := env.manager.Status(); status.IsRecording || status.Summarizing || !status.Ready {
		t.Errorf("Unexpected status after stop: %+v", status)
	}

	statuses := payloadsOfType[protocol.StatusEvent](env.recorder, protocol.TopicStatus)
	if len(statuses) != 3 {
		t.Fatalf("Expected recording, summarizing and idle status events, got %+v", statuses)
	}
	if !statuses[1].Summarizing || statuses[1].IsRecording {
		t.Errorf("Expected a summarizing status after stop, got %+v", statuses[1])
	}
	if statuses[2].Summarizing {
		t.Errorf("Expected summarizing to clear once the summary is done, got %+v", statuses[2])
	}
}

func TestEventsCountedOncePerEmit(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, Context{Mode: ModeVoiceInput}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	env.source.last().push(burst())
	waitFor(t, "segment and voice input events", func() bool {
		return len(env.recorder.Topic(protocol.TopicTranscription)) >= 2
	})
	if _, err := env.manager.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// Close waits for in-flight pipelines
	if err := env.manager.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, topic := range []string{protocol.TopicStatus, protocol.TopicTranscription} {
		expected := float64(len(env.recorder.Topic(topic)))
		got := testutil.ToFloat64(env.metrics.EventsEmitted.WithLabelValues(topic))
		if got != expected {
			t.Errorf("Topic %s: expected %v counted events, got %v", topic, expected, got)
		}
	}
}

func TestStopWithoutSpeechSkipsSummary(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	id, err := env.manager.Start(ctx, Context{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	env.source.last().push(make([]float32, 400))

	summary, err := env.manager.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if summary != "" {
		t.Errorf("Expected no summary, got %q", summary)
	}
	if n := len(entriesOfKind(t, env.store, id, store.EntrySummary)); n != 0 {
		t.Errorf("Expected no summary entry, got %d", n)
	}
}

// Entries are ordered by persistence, not capture: a later segment whose
// recognition finishes first is stored first.
func TestEntriesFollowPersistenceOrder(t *testing.T) {
	releaseFirst := make(chan struct{})
	rec := &fakeRecognizer{fn: func(ctx context.Context, seg audio.Segment) (*provider.Transcription, error) {
		if seg.Seq == 1 {
			<-releaseFirst
		}
		return transcription(fmt.Sprintf("segment %d", seg.Seq)), nil
	}}
	env := newTestEnv(t, rec, nil)
	ctx := context.Background()

	id, err := env.manager.Start(ctx, Context{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stream := env.source.last()
	stream.push(burst())
	stream.push(burst())

	waitFor(t, "second segment", func() bool {
		return len(entriesOfKind(t, env.store, id, store.EntryTranscription)) == 1
	})
	close(releaseFirst)

	if _, err := env.manager.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	entries := entriesOfKind(t, env.store, id, store.EntryTranscription)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 transcription entries, got %d", len(entries))
	}
	if entries[0].Text != "segment 2" || entries[1].Text != "segment 1" {
		t.Errorf("Expected persistence order [segment 2, segment 1], got [%s, %s]", entries[0].Text, entries[1].Text)
	}
	if entries[0].Metadata["segmentSeq"] != float64(2) {
		t.Errorf("Expected capture sequence 2 in metadata, got %v", entries[0].Metadata["segmentSeq"])
	}

	inputs := env.language.summaryInputs()
	if len(inputs) != 1 || inputs[0] != "segment 2\nsegment 1\n" {
		t.Errorf("Expected summary over persistence order, got %q", inputs)
	}
}

func TestCaptureDropsWhenHandoffFull(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	segmenter, err := audio.NewSegmenter(audio.SegmenterParams{
		SampleRate:        testSampleRate,
		SilenceThreshold:  0.01,
		MinSilenceSeconds: 0.1,
		MaxSegmentSeconds: 1,
	})
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	s := &activeSession{
		segmenter: segmenter,
		handoff:   make(chan audio.Segment, 1),
	}

	for range 3 {
		env.manager.capture(s, burst())
	}

	if len(s.handoff) != 1 {
		t.Errorf("Expected 1 queued segment, got %d", len(s.handoff))
	}
	if s.dropped.Load() != 2 {
		t.Errorf("Expected 2 dropped segments, got %d", s.dropped.Load())
	}
	if s.captured.Load() != 3*750 {
		t.Errorf("Expected %d captured samples, got %d", 3*750, s.captured.Load())
	}

	s.stopped = true
	env.manager.capture(s, burst())
	if s.captured.Load() != 3*750 {
		t.Error("Expected callback to ignore samples after stop")
	}
}

func TestResolveMetadata(t *testing.T) {
	cfg := config.Default()
	cfg.Translation.Enabled = true
	cfg.Translation.TargetLanguage = "Japanese"

	tests := []struct {
		name      string
		ctx       Context
		mode      Mode
		translate bool
		language  string
	}{
		{"defaults", Context{}, ModeDefault, true, "Japanese"},
		{"explicit off", Context{Translate: boolPtr(false)}, ModeDefault, false, "Japanese"},
		{"override language", Context{Mode: ModeVoiceInput, TranslateLanguage: " Korean "}, ModeVoiceInput, true, "Korean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := resolveMetadata(&cfg, tt.ctx)
			if meta.Mode != tt.mode {
				t.Errorf("Expected mode %s, got %s", tt.mode, meta.Mode)
			}
			if meta.Translate != tt.translate {
				t.Errorf("Expected translate %v, got %v", tt.translate, meta.Translate)
			}
			if meta.TranslateLanguage != tt.language {
				t.Errorf("Expected language %s, got %s", tt.language, meta.TranslateLanguage)
			}
		})
	}

	cfg.Translation.TargetLanguage = ""
	if meta := resolveMetadata(&cfg, Context{}); meta.TranslateLanguage != "Chinese" {
		t.Errorf("Expected fallback language Chinese, got %s", meta.TranslateLanguage)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	applyOverrides(&cfg, Metadata{RecognitionEngine: "soniox", TranscribeLanguage: "de"})
	if cfg.Recognition.Engine != "soniox" || cfg.Recognition.Language != "de" {
		t.Errorf("Expected overrides to apply, got %+v", cfg.Recognition)
	}

	cfg = config.Default()
	applyOverrides(&cfg, Metadata{})
	if cfg.Recognition.Engine != "openai" || cfg.Recognition.Language != "auto" {
		t.Errorf("Expected configuration to be kept, got %+v", cfg.Recognition)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
		wantErr  bool
	}{
		{"", ModeDefault, false},
		{"Default", ModeDefault, false},
		{"voice_input", ModeVoiceInput, false},
		{"dictation", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.expected {
			t.Errorf("ParseMode(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}
