package main

import (
	"fmt"
	"net/url"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	onvif "github.com/quocson95/onvif-inventory"
	"github.com/quocson95/onvif-inventory/credentials"
	"github.com/quocson95/onvif-inventory/discovery"
	"github.com/quocson95/onvif-inventory/inventory"
)

func newStreamsCmd(o *options) *cobra.Command {
	var (
		username string
		password string
		info     bool
	)

	cmd := &cobra.Command{
		Use:   "streams BASE_ADDRESS",
		Short: "Print the stream URIs of one device, e.g. streams http://192.168.1.64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := inventory.ParseFormat(o.format)
			if err != nil {
				return err
			}
			candidate, err := credentials.NewCandidate(username, password)
			if err != nil {
				return fmt.Errorf("--user/--pass: %w", err)
			}

			ctx := cmd.Context()
			session, err := onvif.NewSession(ctx, args[0], candidate.SOAP(), o.soapOptions()...)
			if err != nil {
				return err
			}

			if info {
				di, err := session.DeviceInformation(ctx)
				if err != nil {
					glog.Warningf("GetDeviceInformation from %s: %v", session.Base(), err)
				} else {
					glog.Infof("%s: %s %s, firmware %s, serial %s, hardware %s",
						session.Base(), di.Manufacturer, di.Model, di.FirmwareVersion, di.SerialNumber, di.HardwareID)
				}
			}

			results, err := onvif.GetStreamURIs(ctx, session)
			if err != nil {
				return err
			}

			base, _ := url.Parse(session.Base())
			return inventory.NewPrinter(cmd.OutOrStdout(), format).Print(discovery.Device{Address: base}, candidate, results)
		},
	}

	cmd.Flags().StringVar(&username, "user", "", "username, empty for anonymous")
	cmd.Flags().StringVar(&password, "pass", "", "password")
	cmd.Flags().BoolVar(&info, "info", false, "also log the device information")
	return cmd
}
