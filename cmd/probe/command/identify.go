package command

// identify.go = commands that build identification payloads from flags
// instead of hand-written hex.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"speedprobe/internal/wire"
)

var (
	cameraRoad  uint16
	cameraMile  uint16
	cameraLimit uint16
	cameraPlate string
	cameraTime  uint32

	dispatcherRoads []uint

	heartbeatInterval uint32 // deciseconds, 0 = none
)

// cameraCmd poses as a camera and optionally reports one plate
var cameraCmd = &cobra.Command{
	Use:   "camera",
	Short: "Pose as a camera and optionally report a plate",
	Long: `Identify to the server as a camera at a fixed road position, optionally
report a single plate observation, then print the replies. With --heartbeat
the server is asked for periodic heartbeats, which keeps the connection
open until Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data := (&wire.IAmCamera{Road: cameraRoad, Mile: cameraMile, Limit: cameraLimit}).Encode()
		if cameraPlate != "" {
			data = append(data, (&wire.Plate{Plate: cameraPlate, Timestamp: cameraTime}).Encode()...)
		}
		if heartbeatInterval > 0 {
			data = append(data, (&wire.WantHeartbeat{Interval: heartbeatInterval}).Encode()...)
		}
		return runIdentify(cmd, data)
	},
}

// dispatcherCmd poses as a ticket dispatcher
var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Pose as a ticket dispatcher and wait for tickets",
	Long: `Identify to the server as a ticket dispatcher for the given roads and
print every ticket the server delivers. Combine with --decode to see the
tickets as readable messages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		roads := make([]uint16, 0, len(dispatcherRoads))
		for _, r := range dispatcherRoads {
			if r > 65535 {
				return fmt.Errorf("road %d does not fit in 16 bits", r)
			}
			roads = append(roads, uint16(r))
		}

		data := (&wire.IAmDispatcher{Roads: roads}).Encode()
		if heartbeatInterval > 0 {
			data = append(data, (&wire.WantHeartbeat{Interval: heartbeatInterval}).Encode()...)
		}
		return runIdentify(cmd, data)
	},
}

// runIdentify runs the probe with a built payload, treating Ctrl+C as a
// clean exit.
func runIdentify(cmd *cobra.Command, data []byte) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	p := buildProbe(cmd, cfg, data)

	fmt.Printf("📡 Sending %d bytes to %s\n", len(data), p.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func init() {
	cameraCmd.Flags().Uint16Var(&cameraRoad, "road", 123, "road number")
	cameraCmd.Flags().Uint16Var(&cameraMile, "mile", 8, "camera position in miles")
	cameraCmd.Flags().Uint16Var(&cameraLimit, "limit", 60, "speed limit in mph")
	cameraCmd.Flags().StringVar(&cameraPlate, "plate", "", "plate to report (empty = none)")
	cameraCmd.Flags().Uint32Var(&cameraTime, "time", 0, "observation timestamp in seconds")
	cameraCmd.Flags().Uint32Var(&heartbeatInterval, "heartbeat", 0, "heartbeat interval in deciseconds (0 = none)")

	dispatcherCmd.Flags().UintSliceVar(&dispatcherRoads, "roads", []uint{123}, "roads this dispatcher is responsible for")
	dispatcherCmd.Flags().Uint32Var(&heartbeatInterval, "heartbeat", 0, "heartbeat interval in deciseconds (0 = none)")

	rootCmd.AddCommand(cameraCmd)
	rootCmd.AddCommand(dispatcherCmd)
}
