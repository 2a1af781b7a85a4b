// Command mockprovider is a local stand-in for the recognition and chat
// providers. Point the provider endpoints at it to exercise the service
// without credentials:
//
//	soniox.endpoint:    http://127.0.0.1:9000/soniox
//	dashscope.endpoint: http://127.0.0.1:9000/dashscope
//	openai.base_url:    http://127.0.0.1:9000/v1
//
// Any non-empty API key is accepted.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	addr    string
	mockCfg = mockConfig{}
)

var rootCmd = &cobra.Command{
	Use:           "mockprovider",
	Short:         "Serve canned recognition and chat responses",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:9000", "listen address")
	f.StringVar(&mockCfg.Text, "text", "This is a test transcription.", "text returned for every segment")
	f.StringVar(&mockCfg.Language, "language", "en", "language reported when the request names none")
	f.Float64Var(&mockCfg.Confidence, "confidence", 0.95, "confidence reported for every segment")
	f.DurationVar(&mockCfg.Latency, "latency", 200*time.Millisecond, "delay before each response")
	f.IntVar(&mockCfg.FailEvery, "fail-every", 0, "answer every n-th request with 503 (0 disables)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	srv := &http.Server{
		Addr:        addr,
		Handler:     newMockServer(mockCfg, logger).Handler(),
		ReadTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Mock provider listening",
			slog.String("address", addr),
			slog.Duration("latency", mockCfg.Latency),
			slog.Int("fail_every", mockCfg.FailEvery),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
