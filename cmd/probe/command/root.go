package command

// root.go defines the root command for the speedprobe CLI.
// Global connection flags live here; values not set on the command line
// fall back to the environment configuration.

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"speedprobe/internal/config"
	"speedprobe/internal/probe"
)

var (
	targetHost    string        // probe target host
	targetPort    int           // probe target port
	dialTimeout   time.Duration // connect timeout
	idleTimeout   time.Duration // give up after this long without data (0 = wait forever)
	chunkSize     int           // receive buffer size
	decodeReplies bool          // pretty-print replies as protocol messages
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "speedprobe",
	Short: "speedprobe - TCP probe for speed daemon servers",
	Long: `speedprobe sends hand-crafted binary payloads to a speed daemon server
and prints whatever comes back. Use it to:
- Replay captured byte sequences against a local server
- Pose as a camera or ticket dispatcher with a single command
- Decode reply streams into readable protocol messages

Use "speedprobe command -h" to see all available commands.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&targetHost, "host", "127.0.0.1", "target host")
	rootCmd.PersistentFlags().IntVar(&targetPort, "port", 32767, "target port")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "timeout", 10*time.Second, "connect timeout")
	rootCmd.PersistentFlags().DurationVar(&idleTimeout, "idle-timeout", 0, "stop after this long without data (0 = wait forever)")
	rootCmd.PersistentFlags().IntVar(&chunkSize, "chunk-size", probe.DefaultChunkSize, "receive buffer size in bytes")
	rootCmd.PersistentFlags().BoolVar(&decodeReplies, "decode", false, "decode replies as protocol messages instead of raw bytes")
}

// loadRunConfig loads and validates the environment configuration exactly
// once per command invocation. Callers share the returned config so .env
// handling happens a single time.
func loadRunConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildProbe merges the loaded configuration with any flags the user set
// explicitly and returns a ready-to-run probe.
func buildProbe(cmd *cobra.Command, cfg *config.Config, data []byte) *probe.Probe {
	// Flags win over the environment when given on the command line.
	if cmd.Flags().Changed("host") {
		cfg.TargetHost = targetHost
	}
	if cmd.Flags().Changed("port") {
		cfg.TargetPort = targetPort
	}
	if cmd.Flags().Changed("timeout") {
		cfg.DialTimeout = dialTimeout
	}
	if cmd.Flags().Changed("idle-timeout") {
		cfg.IdleTimeout = idleTimeout
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}

	p := probe.New(cfg.TargetAddr(), data)
	p.ChunkSize = cfg.ChunkSize
	p.DialTimeout = cfg.DialTimeout
	p.IdleTimeout = cfg.IdleTimeout
	p.DecodeReplies = decodeReplies
	return p
}
