package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/semaphore"

	onvif "github.com/quocson95/onvif-inventory"
	"github.com/quocson95/onvif-inventory/credentials"
	"github.com/quocson95/onvif-inventory/discovery"
)

// DefaultConcurrency is the default number of devices handled at once.
const DefaultConcurrency = 100

// Sink receives the results of every device that succeeded.
type Sink interface {
	Print(device discovery.Device, candidate credentials.Candidate, results []onvif.StreamResult) error
}

// Controller runs one Trial per discovered device, at most Concurrency at
// a time.
type Controller struct {
	Table   *credentials.Table
	Attempt Attempter
	Sink    Sink

	// Concurrency caps the devices in flight. <= 0 means DefaultConcurrency.
	Concurrency int64
	// AttemptTimeout bounds one credential attempt, DeviceTimeout a whole
	// trial. Zero means no bound.
	AttemptTimeout time.Duration
	DeviceTimeout  time.Duration
}

// Summary counts what happened during a Run.
type Summary struct {
	Discovered   int64
	Matched      int64
	Unmatched    int64
	Succeeded    int64
	Exhausted    int64
	Streams      int64
	PeakInFlight int64
}

type counters struct {
	discovered, matched, unmatched, succeeded, exhausted, streams atomic.Int64

	inFlight, peak atomic.Int64
}

func (c *counters) enter() {
	n := c.inFlight.Add(1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (c *counters) summary() Summary {
	return Summary{
		Discovered:   c.discovered.Load(),
		Matched:      c.matched.Load(),
		Unmatched:    c.unmatched.Load(),
		Succeeded:    c.succeeded.Load(),
		Exhausted:    c.exhausted.Load(),
		Streams:      c.streams.Load(),
		PeakInFlight: c.peak.Load(),
	}
}

// Run consumes devices until the channel is closed or ctx ends and returns
// once every dispatched trial has finished. A device waits in the channel
// until a slot is free. Device failures never make Run fail.
func (c *Controller) Run(ctx context.Context, devices <-chan discovery.Device) Summary {
	limit := c.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	sem := semaphore.NewWeighted(limit)

	var (
		wg    sync.WaitGroup
		stats counters
	)

loop:
	for {
		var (
			device discovery.Device
			ok     bool
		)
		select {
		case device, ok = <-devices:
			if !ok {
				break loop
			}
		case <-ctx.Done():
			break loop
		}
		stats.discovered.Add(1)

		candidates, matched := c.Table.Lookup(device.Name)
		if matched {
			stats.matched.Add(1)
			glog.Warningf("Device found match: %s\t%s %d", device.Name, device.BaseAddress(), len(candidates))
		} else {
			stats.unmatched.Add(1)
			glog.Errorf("Device found no match config: %s\t%s, trying %d fallback credentials", device.Name, device.BaseAddress(), len(candidates))
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break loop
		}
		stats.enter()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer stats.inFlight.Add(-1)
			c.handle(ctx, device, candidates, &stats)
		}()
	}

	wg.Wait()
	return stats.summary()
}

func (c *Controller) handle(ctx context.Context, device discovery.Device, candidates []credentials.Candidate, stats *counters) {
	if c.DeviceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.DeviceTimeout)
		defer cancel()
	}

	outcome := NewTrial(device.BaseAddress(), candidates, c.Attempt, c.AttemptTimeout).Run(ctx)
	if outcome.State != Succeeded {
		stats.exhausted.Add(1)
		glog.Errorf("No credentials worked for %s\t%s after %d attempts: %v", device.Name, device.BaseAddress(), outcome.Tried(), outcome.Err())
		return
	}

	stats.succeeded.Add(1)
	stats.streams.Add(int64(len(outcome.Results)))
	glog.V(1).Infof("Device %s\t%s answered to %s with %d streams", device.Name, device.BaseAddress(), outcome.Candidate, len(outcome.Results))
	if err := c.Sink.Print(device, outcome.Candidate, outcome.Results); err != nil {
		glog.Errorf("Write results of %s: %v", device.BaseAddress(), err)
	}
}
