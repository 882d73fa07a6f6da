// Package discovery finds ONVIF devices with WS-Discovery probes and streams
// them to the caller as they answer.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

const (
	// DefaultMulticastAddr is the WS-Discovery multicast group.
	DefaultMulticastAddr = "239.255.255.250:3702"

	defaultPort = "3702"
	readBuffer  = 10 * 1024
)

// Device is one ProbeMatch. Duplicates are not filtered: a device answering
// on two interfaces is reported twice.
type Device struct {
	// Address is the base address, scheme://host[:port], of the first usable XAddr.
	Address *url.URL
	// Name is the onvif://www.onvif.org/name/ scope, empty when not advertised.
	Name string

	EndpointID string
	XAddrs     []string
	Scopes     []string
	Hardware   string
	Location   string
	MACAddress string
	// From is the UDP address the reply came from.
	From string
}

// BaseAddress returns Address as a string.
func (d Device) BaseAddress() string {
	if d.Address == nil {
		return ""
	}
	return d.Address.String()
}

// Options configures one discovery window.
type Options struct {
	// Duration is how long replies are collected.
	Duration time.Duration
	// Interface restricts the multicast probe to one network interface.
	Interface string
	// MulticastAddr overrides DefaultMulticastAddr.
	MulticastAddr string
	// DisableMulticast only probes Targets.
	DisableMulticast bool
	// Targets are probed by unicast, "host" or "host:port" (port defaults to 3702).
	Targets []string
}

// Stream delivers discovered devices until the window closes.
type Stream struct {
	devices chan Device

	mu  sync.Mutex
	err error
}

// Devices is closed once the discovery window has elapsed, or ctx is done,
// and all received replies have been delivered.
func (s *Stream) Devices() <-chan Device {
	return s.devices
}

// Err returns the first fatal socket error. Only meaningful after Devices is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Discover sends the probes and starts collecting replies. Socket setup
// errors are returned immediately.
func Discover(ctx context.Context, opts Options) (*Stream, error) {
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("discovery duration must be > 0, got %v", opts.Duration)
	}
	messageID := "uuid:" + uuid.New().String()
	probe := buildProbe(messageID)

	conns, err := openProbes(opts, probe)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(opts.Duration)
	for _, conn := range conns {
		if err := conn.SetReadDeadline(deadline); err != nil {
			closeAll(conns)
			return nil, err
		}
	}

	stream := &Stream{devices: make(chan Device)}
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			closeAll(conns)
		case <-finished:
		}
	}()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *net.UDPConn) {
			defer wg.Done()
			stream.listen(ctx, conn, messageID)
		}(conn)
	}
	go func() {
		wg.Wait()
		close(finished)
		closeAll(conns)
		close(stream.devices)
	}()

	return stream, nil
}

func (s *Stream) listen(ctx context.Context, conn *net.UDPConn, messageID string) {
	buffer := make([]byte, readBuffer)
	for {
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
			case ctx.Err() != nil:
			default:
				s.setErr(fmt.Errorf("reading discovery replies on %s: %w", conn.LocalAddr(), err))
			}
			return
		}

		devices, err := parseProbeMatches(messageID, buffer[:n])
		if err != nil {
			if err != errWrongDiscoveryResponse {
				glog.Warningf("Parse discovery response from %s error %v", from, err)
			}
			continue
		}

		for _, device := range devices {
			device.From = from.String()
			select {
			case s.devices <- device:
			case <-ctx.Done():
				return
			}
		}
	}
}

// openProbes opens one socket per local IPv4 address for the multicast probe
// and one wildcard socket for unicast targets, sending the probe on each.
func openProbes(opts Options, probe []byte) ([]*net.UDPConn, error) {
	var conns []*net.UDPConn
	fail := func(err error) ([]*net.UDPConn, error) {
		closeAll(conns)
		return nil, err
	}

	if !opts.DisableMulticast {
		group := opts.MulticastAddr
		if group == "" {
			group = DefaultMulticastAddr
		}
		multicastAddress, err := net.ResolveUDPAddr("udp4", group)
		if err != nil {
			return fail(err)
		}

		ips, err := localIPv4s(opts.Interface)
		if err != nil {
			return fail(err)
		}
		if len(ips) == 0 {
			// No configured interface address, let the kernel route the probe.
			ips = []net.IP{net.IPv4zero}
		}
		for _, ip := range ips {
			conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip})
			if err != nil {
				return fail(err)
			}
			conns = append(conns, conn)
			if _, err := conn.WriteToUDP(probe, multicastAddress); err != nil {
				return fail(fmt.Errorf("sending probe from %s: %w", ip, err))
			}
			glog.V(1).Infof("Sent WS-Discovery probe from %s to %s", ip, multicastAddress)
		}
	}

	if len(opts.Targets) > 0 {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
		if err != nil {
			return fail(err)
		}
		conns = append(conns, conn)
		for _, target := range opts.Targets {
			addr, err := resolveTarget(target)
			if err != nil {
				return fail(err)
			}
			if _, err := conn.WriteToUDP(probe, addr); err != nil {
				return fail(fmt.Errorf("sending probe to %s: %w", target, err))
			}
			glog.V(1).Infof("Sent unicast WS-Discovery probe to %s", addr)
		}
	}

	if len(conns) == 0 {
		return nil, errors.New("discovery has nothing to probe: multicast disabled and no targets")
	}
	return conns, nil
}

func resolveTarget(target string) (*net.UDPAddr, error) {
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, defaultPort)
	}
	return net.ResolveUDPAddr("udp4", target)
}

// localIPv4s lists the non-loopback IPv4 addresses of iface, or of every
// interface when iface is empty.
func localIPv4s(iface string) ([]net.IP, error) {
	var addrs []net.Addr
	if iface != "" {
		itf, err := net.InterfaceByName(iface)
		if err != nil {
			return nil, err
		}
		if addrs, err = itf.Addrs(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if addrs, err = net.InterfaceAddrs(); err != nil {
			return nil, err
		}
	}

	var ips []net.IP
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			ips = append(ips, ipNet.IP.To4())
		}
	}
	if iface != "" && len(ips) == 0 {
		return nil, fmt.Errorf("could not find an IPv4 address on %s", iface)
	}
	return ips, nil
}

func closeAll(conns []*net.UDPConn) {
	for _, conn := range conns {
		conn.Close()
	}
}
