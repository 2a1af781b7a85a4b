package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Audio       AudioConfig       `yaml:"audio"`
	Media       MediaConfig       `yaml:"media"`
	Storage     StorageConfig     `yaml:"storage"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Translation TranslationConfig `yaml:"translation"`
	Summary     SummaryConfig     `yaml:"summary"`
	Optimize    OptimizeConfig    `yaml:"optimize"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	Soniox      SonioxConfig      `yaml:"soniox"`
	DashScope   DashScopeConfig   `yaml:"dashscope"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Session     SessionConfig     `yaml:"session"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains capture and segmentation parameters
type AudioConfig struct {
	PreferredSampleRate int     `yaml:"preferred_sample_rate"`
	SilenceThreshold    float32 `yaml:"silence_threshold"`   // amplitude in [0,1]
	MinSilenceSeconds   float64 `yaml:"min_silence_seconds"` // seconds
	MaxSegmentSeconds   float64 `yaml:"max_segment_seconds"` // seconds
	SilenceDetector     string  `yaml:"silence_detector"`    // "amplitude" or "rms"
	RMSWindowMs         int     `yaml:"rms_window_ms"`
	FramesPerBuffer     int     `yaml:"frames_per_buffer"`
	HandoffQueueSize    int     `yaml:"handoff_queue_size"`
}

// MediaConfig contains file transcription parameters
type MediaConfig struct {
	FFmpegPath       string `yaml:"ffmpeg_path"`
	TargetSampleRate int    `yaml:"target_sample_rate"` // 0 keeps the source rate
}

// StorageConfig contains conversation store configuration
type StorageConfig struct {
	Path string `yaml:"path"`
}

// RecognitionConfig selects the speech recognition engine
type RecognitionConfig struct {
	Engine   string `yaml:"engine"`   // openai, soniox, dashscope (qwen)
	Language string `yaml:"language"` // "auto" lets the engine detect
}

// TranslationConfig controls automatic translation of segments
type TranslationConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Engine         string `yaml:"engine"` // openai, gemini
	TargetLanguage string `yaml:"target_language"`
}

// SummaryConfig controls post-session summaries and titles
type SummaryConfig struct {
	Engine      string `yaml:"engine"`
	Prompt      string `yaml:"prompt"`
	TitlePrompt string `yaml:"title_prompt"`
}

// OptimizeConfig controls text optimization
type OptimizeConfig struct {
	Engine string `yaml:"engine"`
	Prompt string `yaml:"prompt"`
}

// OpenAIConfig contains OpenAI credentials and models
type OpenAIConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	TranscribeModel string `yaml:"transcribe_model"`
	TranslateModel  string `yaml:"translate_model"`
	SummaryModel    string `yaml:"summary_model"`
	OptimizeModel   string `yaml:"optimize_model"`
}

// GeminiConfig contains Gemini credentials and models
type GeminiConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"` // empty uses the SDK default
	TranslateModel  string `yaml:"translate_model"`
	SummaryModel    string `yaml:"summary_model"`
	OptimizeModel   string `yaml:"optimize_model"`
	TranslatePrompt string `yaml:"translate_prompt"`
}

// SonioxConfig contains Soniox credentials
type SonioxConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

// DashScopeConfig contains DashScope (Qwen ASR) credentials
type DashScopeConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
}

// ProvidersConfig contains transport settings shared by provider clients
type ProvidersConfig struct {
	Timeout       int `yaml:"timeout"` // seconds
	MaxRetries    int `yaml:"max_retries"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

// SessionConfig contains capture session settings
type SessionConfig struct {
	DrainTimeout int `yaml:"drain_timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file overrides it
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8765,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Audio: AudioConfig{
			PreferredSampleRate: 16000,
			SilenceThreshold:    0.010,
			MinSilenceSeconds:   1.0,
			MaxSegmentSeconds:   12.0,
			SilenceDetector:     "amplitude",
			RMSWindowMs:         30,
			FramesPerBuffer:     1024,
			HandoffQueueSize:    64,
		},
		Media: MediaConfig{
			FFmpegPath: "ffmpeg",
		},
		Storage: StorageConfig{
			Path: "voicetranscript.db",
		},
		Recognition: RecognitionConfig{
			Engine:   "openai",
			Language: "auto",
		},
		Translation: TranslationConfig{
			Enabled:        false,
			Engine:         "openai",
			TargetLanguage: "Chinese",
		},
		Summary: SummaryConfig{
			Engine:      "openai",
			Prompt:      DefaultSummaryPrompt,
			TitlePrompt: DefaultTitlePrompt,
		},
		Optimize: OptimizeConfig{
			Engine: "openai",
			Prompt: DefaultOptimizePrompt,
		},
		OpenAI: OpenAIConfig{
			BaseURL:         "https://api.openai.com/v1",
			TranscribeModel: "gpt-4o-transcribe",
			TranslateModel:  "gpt-4o-mini",
			SummaryModel:    "gpt-4o-mini",
			OptimizeModel:   "gpt-4o-mini",
		},
		Gemini: GeminiConfig{
			TranslateModel:  "gemini-2.0-flash",
			SummaryModel:    "gemini-2.0-flash",
			OptimizeModel:   "gemini-2.0-flash",
			TranslatePrompt: DefaultGeminiTranslatePrompt,
		},
		Soniox: SonioxConfig{
			Endpoint: "https://api.soniox.com/v1/audio:transcribe",
		},
		DashScope: DashScopeConfig{
			Model:    "qwen3-asr-flash",
			Endpoint: "https://dashscope.aliyuncs.com/api/v1/services/speech_recognition/recognize",
		},
		Providers: ProvidersConfig{
			Timeout:       60,
			MaxRetries:    0,
			MaxConcurrent: 8,
		},
		Session: SessionConfig{
			DrainTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file on top of the defaults. An empty path
// returns the defaults. API keys left empty are read from the environment.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnv fills empty API keys from environment variables
func (c *Config) ApplyEnv(getenv func(string) string) {
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(getenv(key))
		}
	}

	fill(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&c.Gemini.APIKey, "GEMINI_API_KEY")
	fill(&c.Soniox.APIKey, "SONIOX_API_KEY")
	fill(&c.DashScope.APIKey, "DASHSCOPE_API_KEY")
}

// Validate performs comprehensive validation of the configuration.
// Missing provider credentials are not an error here; they are checked
// when a provider is called.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Media.Validate(); err != nil {
		return fmt.Errorf("media config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Providers.Validate(); err != nil {
		return fmt.Errorf("providers config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.PreferredSampleRate < 0 {
		return fmt.Errorf("preferred_sample_rate cannot be negative, got %d", a.PreferredSampleRate)
	}

	if a.SilenceThreshold < 0 || a.SilenceThreshold > 1 {
		return fmt.Errorf("silence_threshold must be between 0 and 1, got %f", a.SilenceThreshold)
	}

	if a.MinSilenceSeconds <= 0 {
		return fmt.Errorf("min_silence_seconds must be positive, got %f", a.MinSilenceSeconds)
	}

	if a.MaxSegmentSeconds <= 0 {
		return fmt.Errorf("max_segment_seconds must be positive, got %f", a.MaxSegmentSeconds)
	}

	switch strings.ToLower(a.SilenceDetector) {
	case "", "amplitude":
	case "rms":
		if a.RMSWindowMs < 1 {
			return fmt.Errorf("rms_window_ms must be at least 1 when silence_detector is rms, got %d", a.RMSWindowMs)
		}
	default:
		return fmt.Errorf("silence_detector must be 'amplitude' or 'rms', got '%s'", a.SilenceDetector)
	}

	if a.FramesPerBuffer < 0 {
		return fmt.Errorf("frames_per_buffer cannot be negative, got %d", a.FramesPerBuffer)
	}

	if a.HandoffQueueSize < 1 {
		return fmt.Errorf("handoff_queue_size must be at least 1, got %d", a.HandoffQueueSize)
	}

	return nil
}

// Validate validates media configuration
func (m *MediaConfig) Validate() error {
	if m.TargetSampleRate < 0 {
		return fmt.Errorf("target_sample_rate cannot be negative, got %d", m.TargetSampleRate)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates provider transport configuration
func (p *ProvidersConfig) Validate() error {
	if p.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", p.Timeout)
	}

	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", p.MaxRetries)
	}

	if p.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", p.MaxConcurrent)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout cannot be negative, got %d", s.DrainTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path
	return nil
}

// GetRMSWindow returns the RMS averaging window as a time.Duration
func (a *AudioConfig) GetRMSWindow() time.Duration {
	return time.Duration(a.RMSWindowMs) * time.Millisecond
}

// GetTimeoutDuration returns the provider timeout as a time.Duration
func (p *ProvidersConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}

// GetDrainTimeoutDuration returns how long stop waits for in-flight segments
func (s *SessionConfig) GetDrainTimeoutDuration() time.Duration {
	return time.Duration(s.DrainTimeout) * time.Second
}

// TranslateLanguage returns the configured target language or the fallback
func (t *TranslationConfig) TranslateLanguage() string {
	if lang := strings.TrimSpace(t.TargetLanguage); lang != "" {
		return lang
	}
	return DefaultTargetLanguage
}
