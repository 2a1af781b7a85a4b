package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/youtonghy/Voice-transcript/internal/protocol"
)

var watchFlags struct {
	addr string
	raw  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print events from a running server",
	Long: `Connect to the /events WebSocket of a running "serve" instance and print
each event. --raw prints the JSON envelopes unchanged.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchFlags.addr, "addr", "", "server address host:port (defaults to the configured HTTP address)")
	f.BoolVar(&watchFlags.raw, "raw", false, "print raw JSON envelopes")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	addr := watchFlags.addr
	if addr == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		addr = fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	u := url.URL{Scheme: "ws", Host: addr, Path: "/events"}
	return watchEvents(ctx, u.String(), watchFlags.raw, cmd.OutOrStdout())
}

// watchEvents prints envelopes from the event stream at wsURL until ctx is
// done or the server closes the connection
func watchEvents(ctx context.Context, wsURL string, raw bool, out io.Writer) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("failed to read event: %w", err)
		}

		if raw {
			fmt.Fprintln(out, string(data))
			continue
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			fmt.Fprintf(out, "invalid event: %v\n", err)
			continue
		}
		payload, err := env.Decode()
		if err != nil {
			fmt.Fprintf(out, "invalid %s event: %v\n", env.Topic, err)
			continue
		}
		if line := formatEvent(payload); line != "" {
			fmt.Fprintf(out, "%s %s\n", env.Timestamp.Local().Format("15:04:05"), line)
		}
	}
}
