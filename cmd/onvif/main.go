package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/quocson95/onvif-inventory/discovery"
	"github.com/quocson95/onvif-inventory/inventory"
	"github.com/quocson95/onvif-inventory/soap"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

type options struct {
	configPath     string
	duration       time.Duration
	concurrency    int64
	iface          string
	probes         []string
	noMulticast    bool
	fallbacks      []string
	fallbackFile   string
	attemptTimeout time.Duration
	deviceTimeout  time.Duration
	httpTimeout    time.Duration
	rate           float64
	insecure       bool
	format         string
}

func newRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "onvif",
		Short: "Discover ONVIF devices and print their stream URIs",
		Long: `onvif probes the local network with WS-Discovery, tries the credentials
configured for each device name until one opens a session, and prints one
line per media profile: name, RTSP URI, resolution and frame rate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInventory(cmd, o)
		},
	}

	flags := root.PersistentFlags()
	flags.DurationVar(&o.duration, "duration", time.Second, "how long to listen for discovery replies")
	flags.StringVar(&o.iface, "interface", "", "send the multicast probe on this interface only")
	flags.StringArrayVar(&o.probes, "probe", nil, "also probe this host[:port] by unicast (repeatable)")
	flags.BoolVar(&o.noMulticast, "no-multicast", false, "only send unicast probes")
	flags.DurationVar(&o.httpTimeout, "http-timeout", soap.DefaultTimeout, "timeout of one SOAP request")
	flags.Float64Var(&o.rate, "rate", 0, "maximum SOAP requests per second across all devices, 0 for no limit")
	flags.BoolVar(&o.insecure, "insecure", false, "skip TLS certificate verification for https devices")
	flags.StringVar(&o.format, "format", string(inventory.FormatTSV), "output format: tsv or json")

	local := root.Flags()
	local.StringVar(&o.configPath, "config", "conf.yaml", "credential table, device name -> {username: password}")
	local.Int64Var(&o.concurrency, "concurrency", inventory.DefaultConcurrency, "devices handled at once")
	local.StringArrayVar(&o.fallbacks, "fallback", nil, "username:password tried on devices missing from the config, \":\" for anonymous (repeatable)")
	local.StringVar(&o.fallbackFile, "fallback-file", "", "file of fallback username:password lines")
	local.DurationVar(&o.attemptTimeout, "attempt-timeout", 0, "timeout of one credential attempt, 0 for none")
	local.DurationVar(&o.deviceTimeout, "device-timeout", 0, "timeout of all attempts on one device, 0 for none")

	root.AddCommand(newDiscoverCmd(o), newStreamsCmd(o), newVersionCmd())
	return root
}

func (o *options) soapOptions() []soap.Option {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if o.insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	opts := []soap.Option{
		soap.WithHTTPClient(&http.Client{Timeout: o.httpTimeout, Transport: transport}),
	}
	if o.rate > 0 {
		opts = append(opts, soap.WithLimiter(rate.NewLimiter(rate.Limit(o.rate), max(1, int(o.rate)))))
	}
	return opts
}

func (o *options) discoveryOptions() discovery.Options {
	return discovery.Options{
		Duration:         o.duration,
		Interface:        o.iface,
		DisableMulticast: o.noMulticast,
		Targets:          o.probes,
	}
}

func main() {
	// glog registers its flags on the standard flag set; expose them through
	// cobra and log to stderr unless told otherwise.
	flag.Set("logtostderr", "true")
	root := newRootCmd()
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	glog.Flush()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
