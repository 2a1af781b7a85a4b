package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/events"
	"github.com/youtonghy/Voice-transcript/internal/metrics"
	"github.com/youtonghy/Voice-transcript/internal/protocol"
	"github.com/youtonghy/Voice-transcript/internal/store"
)

// activeSession is the state behind an occupied slot
type activeSession struct {
	meta   Metadata
	cfg    config.Config
	stream InputStream

	// segMu guards the segmenter and the stopped flag. It is taken by the
	// capture callback and once by stop.
	segMu     sync.Mutex
	segmenter *audio.Segmenter
	stopped   bool

	handoff        chan audio.Segment
	dispatcherDone chan struct{}
	inflight       sync.WaitGroup

	dropped  atomic.Uint64
	captured atomic.Uint64

	// Guarded by Manager.slotMu
	starting bool
	stopping bool
}

// Manager owns the capture slot and the segment pipelines
type Manager struct {
	config     ConfigSource
	source     AudioSource
	recognizer Recognizer
	language   LanguageService
	store      Store
	decoder    Decoder
	events     events.Emitter
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// Pipelines run on the service context; stop never cancels them
	ctx       context.Context
	cancel    context.CancelFunc
	pipelines sync.WaitGroup

	slotMu sync.Mutex
	slot   *activeSession

	statusMu sync.RWMutex
	status   Status
}

// NewManager creates a session manager
func NewManager(deps Deps, logger *slog.Logger) (*Manager, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config source is required")
	}
	if deps.Recognizer == nil || deps.Language == nil {
		return nil, fmt.Errorf("recognizer and language service are required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	emitter := deps.Events
	if emitter == nil {
		emitter = events.Discard
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:     deps.Config,
		source:     deps.Source,
		recognizer: deps.Recognizer,
		language:   deps.Language,
		store:      deps.Store,
		decoder:    deps.Decoder,
		events:     emitter,
		metrics:    deps.Metrics,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		status:     Status{Running: true, Ready: true},
	}, nil
}

// Status returns the current slot status
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// IsRecording reports whether a session occupies the slot
func (m *Manager) IsRecording() bool {
	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	return m.slot != nil && !m.slot.starting
}

// Start opens the capture device, creates a conversation and begins
// segmenting audio. It returns the new conversation id.
func (m *Manager) Start(ctx context.Context, sc Context) (string, error) {
	s := &activeSession{starting: true}

	m.slotMu.Lock()
	if m.slot != nil {
		m.slotMu.Unlock()
		return "", ErrRecordingAlreadyRunning
	}
	m.slot = s
	m.slotMu.Unlock()

	meta, err := m.start(ctx, s, sc)
	if err != nil {
		m.slotMu.Lock()
		m.slot = nil
		m.slotMu.Unlock()
		return "", err
	}

	m.setStatus(Status{
		Running:        true,
		Ready:          true,
		IsRecording:    true,
		Mode:           meta.Mode.String(),
		ConversationID: meta.ConversationID,
	})
	m.metrics.RecordSessionStarted(meta.Mode.String())

	m.logger.Info("Recording started",
		slog.String("conversation_id", meta.ConversationID),
		slog.String("mode", meta.Mode.String()),
		slog.Bool("translate", meta.Translate),
		slog.String("translate_language", meta.TranslateLanguage),
		slog.Int("sample_rate", s.segmenter.SampleRate()),
	)

	return meta.ConversationID, nil
}

func (m *Manager) start(ctx context.Context, s *activeSession, sc Context) (Metadata, error) {
	if m.source == nil {
		return Metadata{}, ErrNoAudioInputDevice
	}

	cfg := m.config.Snapshot()
	meta := resolveMetadata(&cfg, sc)

	stream, err := m.source.Open(cfg.Audio.PreferredSampleRate, cfg.Audio.FramesPerBuffer)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrNoAudioInputDevice, err)
	}

	segmenter, err := audio.NewSegmenter(segmenterParams(&cfg, stream.SampleRate()))
	if err != nil {
		stream.Stop()
		return Metadata{}, fmt.Errorf("failed to create segmenter: %w", err)
	}

	conv, err := m.store.CreateConversation("")
	if err != nil {
		stream.Stop()
		return Metadata{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	meta.ConversationID = conv.ID
	meta.StartedAt = time.Now()

	s.meta = meta
	s.cfg = cfg
	s.stream = stream
	s.segmenter = segmenter
	s.handoff = make(chan audio.Segment, cfg.Audio.HandoffQueueSize)
	s.dispatcherDone = make(chan struct{})

	go m.dispatch(s)

	if err := stream.Start(func(samples []float32) { m.capture(s, samples) }); err != nil {
		s.segMu.Lock()
		s.stopped = true
		s.segMu.Unlock()
		close(s.handoff)
		<-s.dispatcherDone
		stream.Stop()
		return Metadata{}, fmt.Errorf("%w: %w", ErrNoAudioInputDevice, err)
	}

	m.slotMu.Lock()
	s.starting = false
	m.slotMu.Unlock()

	return meta, nil
}

// capture runs on the realtime audio thread. It only segments samples and
// hands completed segments off without blocking.
func (m *Manager) capture(s *activeSession, samples []float32) {
	s.segMu.Lock()
	defer s.segMu.Unlock()

	if s.stopped {
		return
	}

	s.captured.Add(uint64(len(samples)))
	m.metrics.RecordSamplesCaptured(len(samples))

	for seg := range s.segmenter.Push(samples) {
		select {
		case s.handoff <- seg:
			m.metrics.RecordSegmentEmitted("capture", seg.Duration().Seconds())
		default:
			s.dropped.Add(1)
			m.metrics.RecordSegmentDropped()
		}
	}
}

// dispatch owns the receiving side of the handoff queue and starts one
// pipeline per segment
func (m *Manager) dispatch(s *activeSession) {
	defer close(s.dispatcherDone)

	for seg := range s.handoff {
		s.inflight.Add(1)
		m.pipelines.Add(1)
		go func() {
			defer m.pipelines.Done()
			defer s.inflight.Done()
			m.runPipeline(m.ctx, s.meta, seg)
		}()
	}
}

// Stop halts capture, dispatches the flushed tail segment and clears the
// slot. In default mode it then waits for the session's pipelines and
// summarizes the transcript; the summary is returned and is empty when
// nothing was transcribed.
func (m *Manager) Stop(ctx context.Context) (string, error) {
	m.slotMu.Lock()
	s := m.slot
	if s == nil || s.starting || s.stopping {
		m.slotMu.Unlock()
		return "", ErrRecordingNotRunning
	}
	s.stopping = true
	m.slotMu.Unlock()

	if err := s.stream.Stop(); err != nil {
		m.logger.Warn("Failed to stop input stream",
			slog.String("conversation_id", s.meta.ConversationID),
			slog.String("error", err.Error()),
		)
	}

	s.segMu.Lock()
	s.stopped = true
	tail, hasTail := s.segmenter.Flush()
	stats := s.segmenter.Stats()
	s.segMu.Unlock()

	if hasTail {
		s.handoff <- tail
		m.metrics.RecordSegmentEmitted("flush", tail.Duration().Seconds())
	}
	close(s.handoff)
	<-s.dispatcherDone

	summarize := s.meta.Mode == ModeDefault

	m.slotMu.Lock()
	m.slot = nil
	m.slotMu.Unlock()

	m.setStatus(Status{Running: true, Ready: true, Summarizing: summarize})

	elapsed := time.Since(s.meta.StartedAt)
	m.metrics.RecordSessionStopped(elapsed.Seconds())

	m.logger.Info("Recording stopped",
		slog.String("conversation_id", s.meta.ConversationID),
		slog.Duration("duration", elapsed),
		slog.Uint64("samples_captured", s.captured.Load()),
		slog.Uint64("segments", stats.SegmentsEmitted),
		slog.Uint64("segments_dropped", s.dropped.Load()),
	)

	if !summarize {
		return "", nil
	}
	defer m.setStatus(Status{Running: true, Ready: true})

	m.drain(ctx, s)

	return m.summarizeSession(ctx, s)
}

// drain waits for the session's in-flight pipelines, bounded by the
// configured drain timeout
func (m *Manager) drain(ctx context.Context, s *activeSession) {
	timeout := s.cfg.Session.GetDrainTimeoutDuration()
	if timeout <= 0 {
		return
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		m.logger.Warn("Timed out waiting for segment pipelines",
			slog.String("conversation_id", s.meta.ConversationID),
			slog.Duration("timeout", timeout),
		)
	case <-ctx.Done():
	}
}

func (m *Manager) summarizeSession(ctx context.Context, s *activeSession) (string, error) {
	conversationID := s.meta.ConversationID

	entries, err := m.store.EntriesForConversation(conversationID, 0)
	if err != nil {
		return "", fmt.Errorf("failed to load entries: %w", err)
	}

	transcript := joinTranscript(entries)
	if strings.TrimSpace(transcript) == "" {
		return "", nil
	}

	cfg := m.config.Snapshot()
	target := s.meta.TranslateLanguage

	summary, err := m.language.Summarize(ctx, &cfg, transcript, target)
	if err != nil {
		m.metrics.RecordPipelineFailure("summary")
		return "", fmt.Errorf("failed to summarize conversation: %w", err)
	}

	if _, err := m.store.AppendEntry(store.NewEntry{
		ConversationID: conversationID,
		Kind:           store.EntrySummary,
		Text:           summary,
		Language:       &target,
	}); err != nil {
		return "", fmt.Errorf("failed to persist summary: %w", err)
	}
	m.metrics.RecordEntryPersisted(string(store.EntrySummary))

	m.emit(protocol.TopicTranscription, protocol.SummaryEvent{
		Type:           protocol.TypeSummary,
		ConversationID: conversationID,
		Summary:        summary,
	})

	m.logger.Info("Conversation summarized",
		slog.String("conversation_id", conversationID),
		slog.Int("chars", len(summary)),
	)

	return summary, nil
}

// Close stops an active session and waits for in-flight pipelines until
// ctx is done, then cancels the rest
func (m *Manager) Close(ctx context.Context) error {
	if _, err := m.Stop(ctx); err != nil && !errors.Is(err, ErrRecordingNotRunning) {
		m.logger.Warn("Failed to stop session on close", slog.String("error", err.Error()))
	}

	done := make(chan struct{})
	go func() {
		m.pipelines.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("timed out waiting for segment pipelines: %w", ctx.Err())
	}

	m.cancel()
	m.setStatus(Status{})
	return err
}

func (m *Manager) setStatus(status Status) {
	m.statusMu.Lock()
	m.status = status
	m.statusMu.Unlock()

	m.emit(protocol.TopicStatus, protocol.StatusEvent{
		Type:           protocol.TypeStatus,
		Running:        status.Running,
		Ready:          status.Ready,
		IsRecording:    status.IsRecording,
		Summarizing:    status.Summarizing,
		Mode:           status.Mode,
		ConversationID: status.ConversationID,
	})
}

func (m *Manager) emit(topic string, payload any) {
	m.metrics.RecordEventEmitted(topic)
	m.events.Emit(topic, payload)
}

// resolveMetadata applies configuration defaults to the caller's context
func resolveMetadata(cfg *config.Config, sc Context) Metadata {
	mode := sc.Mode
	if mode == "" {
		mode = ModeDefault
	}

	translate := cfg.Translation.Enabled
	if sc.Translate != nil {
		translate = *sc.Translate
	}

	language := strings.TrimSpace(sc.TranslateLanguage)
	if language == "" {
		language = cfg.Translation.TranslateLanguage()
	}

	return Metadata{
		Mode:               mode,
		Translate:          translate,
		TranslateLanguage:  language,
		RecognitionEngine:  strings.TrimSpace(sc.RecognitionEngine),
		TranscribeLanguage: strings.TrimSpace(sc.TranscribeLanguage),
	}
}

func segmenterParams(cfg *config.Config, sampleRate int) audio.SegmenterParams {
	return audio.SegmenterParams{
		SampleRate:        sampleRate,
		SilenceThreshold:  cfg.Audio.SilenceThreshold,
		MinSilenceSeconds: cfg.Audio.MinSilenceSeconds,
		MaxSegmentSeconds: cfg.Audio.MaxSegmentSeconds,
		Detector:          cfg.Audio.SilenceDetector,
		RMSWindow:         cfg.Audio.GetRMSWindow(),
	}
}

// joinTranscript concatenates transcription entries in persistence order
func joinTranscript(entries []store.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Kind != store.EntryTranscription {
			continue
		}
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
