package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/youtonghy/Voice-transcript/internal/session"
)

var recordFlags struct {
	mode               string
	translate          bool
	noTranslate        bool
	language           string
	engine             string
	transcribeLanguage string
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the default input device until interrupted",
	Long: `Record from the default input device. Each segment is printed as soon as
it is transcribed. Press Ctrl-C to stop; in default mode the session summary
is printed once the remaining segments have finished.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recordFlags.mode, "mode", "m", "default", "session mode (default, voice_input)")
	f.BoolVarP(&recordFlags.translate, "translate", "t", false, "translate each segment")
	f.BoolVar(&recordFlags.noTranslate, "no-translate", false, "never translate, even when enabled in the configuration")
	f.StringVarP(&recordFlags.language, "language", "l", "", "translation target language")
	f.StringVar(&recordFlags.engine, "engine", "", "recognition engine override (openai, soniox, qwen)")
	f.StringVar(&recordFlags.transcribeLanguage, "transcribe-language", "", "recognition language override")
	recordCmd.MarkFlagsMutuallyExclusive("translate", "no-translate")

	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	mode, err := session.ParseMode(recordFlags.mode)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger, appOptions{
		capture: true,
		emitter: newConsoleEmitter(cmd.OutOrStdout()),
	})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.close(ctx)
	}()

	sc := session.Context{
		Mode:               mode,
		TranslateLanguage:  recordFlags.language,
		RecognitionEngine:  recordFlags.engine,
		TranscribeLanguage: recordFlags.transcribeLanguage,
	}
	switch {
	case recordFlags.translate:
		sc.Translate = boolPtr(true)
	case recordFlags.noTranslate:
		sc.Translate = boolPtr(false)
	}

	id, err := a.sessions.Start(cmd.Context(), sc)
	if err != nil {
		if errors.Is(err, session.ErrNoAudioInputDevice) {
			return fmt.Errorf("no microphone available: %w", err)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recording into conversation %s, press Ctrl-C to stop\n", id)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-cmd.Context().Done():
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Stopping...")

	// Summarizing waits on providers; the drain timeout bounds the rest
	summary, err := a.sessions.Stop(context.Background())
	if err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	if summary == "" && mode == session.ModeDefault {
		fmt.Fprintln(cmd.OutOrStdout(), "No speech recorded")
	}
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
