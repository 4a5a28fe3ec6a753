package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"speedprobe/internal/config"
	"speedprobe/internal/payload"
)

var (
	sendHex    string // payload as a hex literal
	sendPreset string // named built-in payload
)

// presets maps the built-in payload names to their hex literals.
var presets = map[string]string{
	"camera":     payload.DefaultHex,
	"camera9":    payload.CameraMile9Hex,
	"dispatcher": payload.DispatcherHex,
}

// sendCmd replays a raw byte sequence against the target
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a hex payload and print the replies",
	Long: `Connect to the target, transmit a payload given as whitespace-separated
hex byte pairs, then print every chunk the server sends back until it closes
the connection (or Ctrl+C).

The payload comes from --hex, from a --preset, from the PAYLOAD_HEX
environment variable, or from stdin when --hex is "-". Without any of those
the default camera payload is sent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig()
		if err != nil {
			return err
		}

		hexLiteral, err := resolvePayloadHex(cfg)
		if err != nil {
			return err
		}

		data, err := payload.Decode(hexLiteral)
		if err != nil {
			return err
		}

		p := buildProbe(cmd, cfg, data)

		fmt.Printf("📡 Sending %d bytes to %s\n", len(data), p.Addr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runErr := p.Run(ctx)

		stats := p.Stats()
		fmt.Printf("\n   Sent: %d bytes   Received: %d bytes in %d chunks   Duration: %s\n",
			stats.BytesSent, stats.BytesReceived, stats.Chunks, stats.Duration.Round(time.Millisecond))

		if runErr != nil && ctx.Err() == nil {
			return runErr
		}
		return nil
	},
}

// resolvePayloadHex picks the payload source: flag, preset, env, stdin.
func resolvePayloadHex(cfg *config.Config) (string, error) {
	if sendHex == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return string(b), nil
	}
	if sendHex != "" {
		return sendHex, nil
	}
	if sendPreset != "" {
		hexLiteral, ok := presets[sendPreset]
		if !ok {
			return "", fmt.Errorf("unknown preset %q (want camera, camera9 or dispatcher)", sendPreset)
		}
		return hexLiteral, nil
	}

	if cfg.PayloadHex != "" {
		return cfg.PayloadHex, nil
	}
	return payload.DefaultHex, nil
}

func init() {
	sendCmd.Flags().StringVar(&sendHex, "hex", "", `payload as hex byte pairs ("-" reads stdin)`)
	sendCmd.Flags().StringVar(&sendPreset, "preset", "", "built-in payload: camera, camera9 or dispatcher")
	rootCmd.AddCommand(sendCmd)
}
