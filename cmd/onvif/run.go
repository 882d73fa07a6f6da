package main

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/quocson95/onvif-inventory/credentials"
	"github.com/quocson95/onvif-inventory/discovery"
	"github.com/quocson95/onvif-inventory/inventory"
)

// loadTable reads the credential table and attaches the fallback candidates.
func loadTable(o *options) (*credentials.Table, error) {
	table, err := credentials.NewLoader(o.configPath).Load()
	if err != nil {
		return nil, err
	}

	fallback, err := credentials.ParseFallbacks(o.fallbacks)
	if err != nil {
		return nil, err
	}
	if o.fallbackFile != "" {
		fromFile, err := credentials.ReadFallbackFile(o.fallbackFile)
		if err != nil {
			return nil, err
		}
		fallback = append(fallback, fromFile...)
	}

	table = table.WithFallback(fallback)
	glog.V(1).Infof("Loaded %d devices from %s, %d fallback credentials", table.Len(), o.configPath, len(table.Fallback()))
	return table, nil
}

func runInventory(cmd *cobra.Command, o *options) error {
	table, err := loadTable(o)
	if err != nil {
		return err
	}
	format, err := inventory.ParseFormat(o.format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	stream, err := discovery.Discover(ctx, o.discoveryOptions())
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	controller := &inventory.Controller{
		Table:          table,
		Attempt:        inventory.SessionAttempter(o.soapOptions()...),
		Sink:           inventory.NewPrinter(cmd.OutOrStdout(), format),
		Concurrency:    o.concurrency,
		AttemptTimeout: o.attemptTimeout,
		DeviceTimeout:  o.deviceTimeout,
	}
	summary := controller.Run(ctx, stream.Devices())

	glog.Infof("Discovered %d devices (%d matched, %d unmatched): %d succeeded with %d streams, %d exhausted, at most %d at once",
		summary.Discovered, summary.Matched, summary.Unmatched, summary.Succeeded, summary.Streams, summary.Exhausted, summary.PeakInFlight)

	if err := stream.Err(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	return nil
}
