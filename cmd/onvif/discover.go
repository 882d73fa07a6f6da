package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quocson95/onvif-inventory/discovery"
	"github.com/quocson95/onvif-inventory/inventory"
)

type deviceRecord struct {
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	EndpointID string   `json:"endpoint_id,omitempty"`
	Hardware   string   `json:"hardware,omitempty"`
	Location   string   `json:"location,omitempty"`
	MACAddress string   `json:"mac_address,omitempty"`
	XAddrs     []string `json:"xaddrs"`
	From       string   `json:"from"`
}

func newDiscoverCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List the devices answering WS-Discovery, without connecting to them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := inventory.ParseFormat(o.format)
			if err != nil {
				return err
			}

			stream, err := discovery.Discover(cmd.Context(), o.discoveryOptions())
			if err != nil {
				return fmt.Errorf("discovery: %w", err)
			}

			out := cmd.OutOrStdout()
			for device := range stream.Devices() {
				if format == inventory.FormatJSON {
					line, err := json.Marshal(deviceRecord{
						Name:       device.Name,
						Address:    device.BaseAddress(),
						EndpointID: device.EndpointID,
						Hardware:   device.Hardware,
						Location:   device.Location,
						MACAddress: device.MACAddress,
						XAddrs:     device.XAddrs,
						From:       device.From,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\n", line)
					continue
				}
				fmt.Fprintln(out, strings.Join([]string{device.Name, device.BaseAddress(), device.Hardware, device.EndpointID}, "\t"))
			}

			if err := stream.Err(); err != nil {
				return fmt.Errorf("discovery: %w", err)
			}
			return nil
		},
	}
}
