package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/youtonghy/Voice-transcript/internal/audio"
	"github.com/youtonghy/Voice-transcript/internal/capture"
	"github.com/youtonghy/Voice-transcript/internal/config"
	"github.com/youtonghy/Voice-transcript/internal/events"
	"github.com/youtonghy/Voice-transcript/internal/metrics"
	"github.com/youtonghy/Voice-transcript/internal/provider"
	"github.com/youtonghy/Voice-transcript/internal/session"
	"github.com/youtonghy/Voice-transcript/internal/store"
)

// app holds the wired components shared by the commands
type app struct {
	cfg      *config.Config
	holder   *config.Holder
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *store.Store
	router   *provider.Router
	sessions *session.Manager
	hub      *events.Hub

	audioReady bool
}

type appOptions struct {
	capture bool
	hub     bool           // fan events out to WebSocket clients
	emitter events.Emitter // defaults to logging events
}

// newApp opens the store and wires the session manager. With capture set
// PortAudio is initialized and the default input device is used.
func newApp(cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	logger.Info("Conversation store opened", slog.String("path", cfg.Storage.Path))

	a := &app{
		cfg:      cfg,
		holder:   config.NewHolder(*cfg),
		logger:   logger,
		registry: registry,
		metrics:  appMetrics,
		store:    st,
		router:   provider.NewRouter(cfg.Providers, logger, appMetrics),
	}

	var source session.AudioSource
	if opts.capture {
		if err := portaudio.Initialize(); err != nil {
			// Recording reports ErrNoAudioInputDevice; everything else still works
			logger.Warn("Audio backend unavailable", slog.String("error", err.Error()))
		} else {
			a.audioReady = true
			source = capture.NewDevice(logger)
		}
	}

	var emitter events.Emitter = events.NewLogEmitter(logger)
	if opts.emitter != nil {
		emitter = opts.emitter
	}
	if opts.hub {
		a.hub = events.NewHub(logger, appMetrics)
		emitter = events.Multi(a.hub, emitter)
	}

	sessions, err := session.NewManager(session.Deps{
		Config:     a.holder,
		Source:     source,
		Recognizer: a.router,
		Language:   a.router,
		Store:      st,
		Decoder: audio.NewMediaDecoder(audio.DecoderConfig{
			FFmpegPath:       cfg.Media.FFmpegPath,
			TargetSampleRate: cfg.Media.TargetSampleRate,
		}, logger),
		Events:  emitter,
		Metrics: appMetrics,
	}, logger)
	if err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	a.sessions = sessions

	logger.Info("Configuration loaded",
		slog.String("recognition_engine", provider.ParseRecognitionEngine(cfg.Recognition.Engine).String()),
		slog.String("recognition_language", cfg.Recognition.Language),
		slog.Bool("translation_enabled", cfg.Translation.Enabled),
		slog.String("translation_engine", provider.ParseLanguageEngine(cfg.Translation.Engine).String()),
		slog.String("target_language", cfg.Translation.TranslateLanguage()),
		slog.String("silence_detector", cfg.Audio.SilenceDetector),
		slog.String("log_level", cfg.Logging.Level),
	)

	return a, nil
}

// reload re-reads the configuration file into the holder. A running session
// keeps its segmenter settings. Listeners, storage, logging and the provider
// concurrency limit are not reconfigured.
func (a *app) reload(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		a.logger.Error("Failed to reload configuration", slog.String("error", err.Error()))
		return
	}
	if err := a.holder.Update(*cfg); err != nil {
		a.logger.Error("Rejected reloaded configuration", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("Configuration reloaded",
		slog.String("path", path),
		slog.String("recognition_engine", cfg.Recognition.Engine),
		slog.Bool("translation_enabled", cfg.Translation.Enabled),
	)
}

// close stops the session manager and releases resources
func (a *app) close(ctx context.Context) {
	if a.sessions != nil {
		if err := a.sessions.Close(ctx); err != nil {
			a.logger.Error("Error closing session manager", slog.String("error", err.Error()))
		}
	}

	if err := a.router.Close(); err != nil {
		a.logger.Error("Error closing provider router", slog.String("error", err.Error()))
	}

	stats := a.router.Stats()
	a.logger.Info("Final provider statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Uint64("total_retries", stats.TotalRetries),
	)

	if err := a.store.Close(); err != nil {
		a.logger.Error("Error closing conversation store", slog.String("error", err.Error()))
	}

	if a.hub != nil {
		a.hub.Close()
	}

	if a.audioReady {
		portaudio.Terminate()
	}
}
