package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/oac1771/iot-sdk/central"
	"github.com/oac1771/iot-sdk/internal/platform"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <name> <uuid>",
	Short: "Read a characteristic value",
	Long: `Finds a peripheral by advertised name, connects, and reads the given
characteristic once.

Examples:
  # Read Battery Level from a peripheral advertising "MySensor"
  bluectl read MySensor 2a19 --hex

  # Raw bytes to stdout
  bluectl read MySensor 2a19 > value.bin`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

var (
	readHex     bool
	readTimeout time.Duration
)

func init() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string; raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 0, "Give up the search after this long (0 waits forever)")
}

func runRead(cmd *cobra.Command, args []string) error {
	name, uuid := args[0], args[1]

	cmd.SilenceUsage = true

	return withPeripheral(cmd, name, readTimeout, func(ctx context.Context, c *central.Central, p platform.Peripheral) error {
		data, err := c.Read(ctx, p, uuid)
		if err != nil {
			return err
		}
		return outputData(data, readHex)
	})
}

// withPeripheral runs op against a connected, service-resolved peripheral
// located by advertised name. Shared by the characteristic commands.
func withPeripheral(cmd *cobra.Command, name string, timeout time.Duration, op func(context.Context, *central.Central, platform.Peripheral) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	c, err := central.New(logger)
	if err != nil {
		return err
	}

	findCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		findCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p, err := c.FindPeripheral(findCtx, name)
	if err != nil {
		return err
	}

	return op(ctx, c, p)
}
