package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"speedprobe/internal/payload"
	"speedprobe/internal/wire"
)

// decodeCmd decodes a hex literal offline, without connecting anywhere
var decodeCmd = &cobra.Command{
	Use:   "decode <hex bytes...>",
	Short: "Decode a hex literal into protocol messages",
	Long: `Decode whitespace-separated hex byte pairs into readable speed daemon
protocol messages without opening a connection. Useful for checking a
payload before sending it, or for reading captured server replies.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := payload.Decode(strings.Join(args, " "))
		if err != nil {
			return err
		}

		for len(data) > 0 {
			msg, n, err := wire.Decode(data)
			if errors.Is(err, wire.ErrIncomplete) {
				return fmt.Errorf("trailing %d bytes do not form a complete message: %x", len(data), data)
			}
			if err != nil {
				return err
			}
			fmt.Printf("%v\n", msg)
			data = data[n:]
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
