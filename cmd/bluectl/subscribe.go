package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oac1771/iot-sdk/central"
	"github.com/oac1771/iot-sdk/internal/platform"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <name> <uuid>",
	Short: "Stream characteristic notifications",
	Long: `Finds a peripheral by advertised name, connects, subscribes to the given
characteristic, and prints each notification as it arrives. Runs until
interrupted with Ctrl+C.

Examples:
  # Heart Rate Measurement notifications
  bluectl subscribe HRMonitor 2a37 --hex`,
	Args: cobra.ExactArgs(2),
	RunE: runSubscribe,
}

var (
	subscribeHex     bool
	subscribeTimeout time.Duration
)

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output as hex string; raw bytes by default")
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 0, "Give up the search after this long (0 waits forever)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	name, uuid := args[0], args[1]

	cmd.SilenceUsage = true

	return withPeripheral(cmd, name, subscribeTimeout, func(ctx context.Context, c *central.Central, p platform.Peripheral) error {
		stream, err := c.Subscribe(ctx, p, uuid)
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "Subscribed. Press Ctrl+C to stop...")

		tsColor := color.New(color.FgYellow)
		for n := range stream {
			ts := tsColor.Sprint(time.Now().Format(time.RFC3339Nano))
			if subscribeHex {
				fmt.Printf("%s %s\n", ts, hex.EncodeToString(n.Data))
				continue
			}
			fmt.Printf("%s ", ts)
			_, _ = os.Stdout.Write(n.Data)
			fmt.Println()
		}
		return nil
	})
}
