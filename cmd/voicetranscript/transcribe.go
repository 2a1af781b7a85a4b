package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/youtonghy/Voice-transcript/internal/session"
)

var transcribeFlags struct {
	translate   bool
	noTranslate bool
	language    string
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe an audio or video file",
	Long: `Decode a media file, split it on silence and transcribe every segment into
a new conversation. WAV files are read directly; other containers need ffmpeg
(media.ffmpeg_path).`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	f := transcribeCmd.Flags()
	f.BoolVarP(&transcribeFlags.translate, "translate", "t", false, "translate each segment")
	f.BoolVar(&transcribeFlags.noTranslate, "no-translate", false, "never translate, even when enabled in the configuration")
	f.StringVarP(&transcribeFlags.language, "language", "l", "", "translation target language")
	transcribeCmd.MarkFlagsMutuallyExclusive("translate", "no-translate")

	rootCmd.AddCommand(transcribeCmd)
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger, appOptions{emitter: newConsoleEmitter(cmd.OutOrStdout())})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := session.MediaRequest{
		Path:              args[0],
		TranslateLanguage: transcribeFlags.language,
	}
	switch {
	case transcribeFlags.translate:
		req.Translate = boolPtr(true)
	case transcribeFlags.noTranslate:
		req.Translate = boolPtr(false)
	}

	id, err := a.sessions.ProcessMediaFile(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to transcribe %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s\n", id)
	return nil
}
