package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oac1771/iot-sdk/central"
	"github.com/oac1771/iot-sdk/internal/platform"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <name> <uuid> <data>",
	Short: "Write to a characteristic",
	Long: `Finds a peripheral by advertised name, connects, and writes data to the
given characteristic. The write is sent without response.

Examples:
  # Write a string
  bluectl write MySensor 2a06 "high"

  # Write hex bytes
  bluectl write MySensor 2a06 0102 --hex`,
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

var (
	writeHex     bool
	writeTimeout time.Duration
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Parse input as hex string; raw bytes by default")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 0, "Give up the search after this long (0 waits forever)")
}

func runWrite(cmd *cobra.Command, args []string) error {
	name, uuid, dataStr := args[0], args[1], args[2]

	data, err := parseDataArg(dataStr, writeHex)
	if err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}

	cmd.SilenceUsage = true

	return withPeripheral(cmd, name, writeTimeout, func(ctx context.Context, c *central.Central, p platform.Peripheral) error {
		if err := c.Write(ctx, p, uuid, data); err != nil {
			return err
		}
		fmt.Println("Write successful")
		return nil
	})
}
