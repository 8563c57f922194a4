package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oac1771/iot-sdk/central"
	"github.com/oac1771/iot-sdk/internal/platform"
)

// findCmd represents the find command
var findCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Find a peripheral by advertised name and list its characteristics",
	Long: `Scans until a peripheral whose advertised local name contains <name>
appears, connects to it, resolves its services, and prints the discovered
characteristics with their property flags.

The match is a case-sensitive substring: "find Foo" matches a peripheral
advertising "FooBar". Without --timeout the search waits indefinitely;
press Ctrl+C to abandon it.`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

var findTimeout time.Duration

func init() {
	findCmd.Flags().DurationVar(&findTimeout, "timeout", 0, "Give up after this long (0 waits forever)")
}

func runFind(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	if findTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, findTimeout)
		defer cancel()
	}

	c, err := central.New(logger)
	if err != nil {
		return err
	}

	p, err := c.FindPeripheral(ctx, name)
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s\n\n", color.CyanString(p.ID()))
	return printCharacteristics(p)
}

func printCharacteristics(p platform.Peripheral) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	_, _ = color.New(color.Bold).Fprintln(w, "SERVICE\tCHARACTERISTIC\tPROPERTIES")
	for _, char := range p.Characteristics() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", char.ServiceUUID, char.UUID, char.Properties)
	}
	return w.Flush()
}
