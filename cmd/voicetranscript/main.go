// Command voicetranscript records speech, cuts it into segments and
// transcribes, translates and summarizes them through cloud providers.
//
// Usage:
//
//	voicetranscript [flags] <command> [args]
//
// Commands:
//
//	serve          - Run the HTTP API and WebSocket event stream
//	record         - Record from the default input device until interrupted
//	transcribe     - Transcribe an audio or video file
//	conversations  - List, show and delete stored conversations
//	watch          - Print events from a running server
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/youtonghy/Voice-transcript/internal/config"
)

const (
	serviceName    = "voicetranscript"
	serviceVersion = "1.0.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "voicetranscript",
	Short: "Voice transcription service",
	Long: `voicetranscript records speech from the default input device or a media
file, splits it on silence and sends each segment to a recognition provider.
Transcripts are stored per conversation in SQLite and can be translated,
summarized and optimized with OpenAI or Gemini.

Configuration is read from a YAML file (--config). API keys left empty are
taken from OPENAI_API_KEY, GEMINI_API_KEY, SONIOX_API_KEY and
DASHSCOPE_API_KEY.

Examples:
  voicetranscript serve -c configs/config.yaml
  voicetranscript record --translate --language German
  voicetranscript transcribe meeting.mp4
  voicetranscript conversations list`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (defaults are used when empty)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and builds the logger from it
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, initLogger(cfg.Logging), nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
