package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oac1771/iot-sdk/central"
	"github.com/oac1771/iot-sdk/internal/platform"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE peripherals",
	Long: `Scan for Bluetooth Low Energy peripherals and stream their advertised
properties as they are discovered: address, local name, RSSI, TX power, and
advertised service UUIDs.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (0 uses the configured default)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

// scanRecord is the JSON shape of one properties snapshot.
type scanRecord struct {
	Address   string   `json:"address"`
	LocalName string   `json:"local_name,omitempty"`
	RSSI      int      `json:"rssi"`
	TxPower   *int     `json:"tx_power,omitempty"`
	Services  []string `json:"services,omitempty"`
	ManufData string   `json:"manufacturer_data,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format %q: must be table or json", scanFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	duration := cfg.ScanDuration
	if scanDuration > 0 {
		duration = scanDuration
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	c, err := central.New(logger)
	if err != nil {
		return err
	}

	stream, err := c.PeripheralProperties(ctx)
	if err != nil {
		return fmt.Errorf("start scan: %w", err)
	}

	if scanFormat == "json" {
		return printScanJSON(stream)
	}
	return printScanTable(stream)
}

func printScanJSON(stream <-chan platform.Properties) error {
	enc := json.NewEncoder(os.Stdout)
	for props := range stream {
		rec := scanRecord{
			Address:   props.Address,
			LocalName: props.LocalName,
			RSSI:      props.RSSI,
			TxPower:   props.TxPower,
			Services:  props.Services,
		}
		if len(props.ManufacturerData) > 0 {
			rec.ManufData = hex.EncodeToString(props.ManufacturerData)
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func printScanTable(stream <-chan platform.Properties) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	header := color.New(color.Bold)
	_, _ = header.Fprintln(w, "ADDRESS\tNAME\tRSSI\tSERVICES")
	_ = w.Flush()

	nameColor := color.New(color.FgCyan)
	for props := range stream {
		name := props.LocalName
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			props.Address,
			nameColor.Sprint(name),
			props.RSSI,
			strings.Join(props.Services, ","))
		_ = w.Flush()
	}
	return nil
}
