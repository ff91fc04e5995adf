package poller

import (
	"context"
	"sync"
	"time"

	"axectl/internal/axeapi"
	"axectl/internal/fleet"
	"axectl/internal/logging"
)

const (
	// DefaultParallel caps concurrent device fetches.
	DefaultParallel = 10

	// DefaultTimeout bounds a single stats fetch.
	DefaultTimeout = 5 * time.Second
)

// FetchFunc retrieves the live payload for one device. Injected in tests;
// the default implementation queries the device over HTTP.
type FetchFunc func(ctx context.Context, dev fleet.Device) (*axeapi.SystemInfo, error)

// Sample is the outcome of polling one device. Err is nil exactly when
// Snapshot and Info are populated; an unreachable device is a Sample with an
// error, never a missing entry.
type Sample struct {
	Device   fleet.Device
	Snapshot fleet.StatsSnapshot
	Info     *axeapi.SystemInfo
	Err      error
}

// Online reports whether the device answered this poll.
func (s Sample) Online() bool {
	return s.Err == nil
}

// Poller fetches stats from many devices with bounded concurrency.
type Poller struct {
	parallel int
	timeout  time.Duration
	fetch    FetchFunc
}

// New creates a poller that fetches over HTTP. Non-positive arguments
// select the defaults.
func New(parallel int, timeout time.Duration) *Poller {
	if parallel <= 0 {
		parallel = DefaultParallel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithFetch(parallel, timeout, func(ctx context.Context, dev fleet.Device) (*axeapi.SystemInfo, error) {
		return axeapi.NewClient(dev.IP, timeout).SystemInfo(ctx)
	})
}

// NewWithFetch creates a poller with a custom fetch implementation.
func NewWithFetch(parallel int, timeout time.Duration, fetch FetchFunc) *Poller {
	if parallel <= 0 {
		parallel = DefaultParallel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{parallel: parallel, timeout: timeout, fetch: fetch}
}

// Poll fetches stats for every device and returns one Sample per input
// device, in input order. Fetches run concurrently up to the parallelism
// cap; per-device failures are recorded in the Sample, not returned.
func (p *Poller) Poll(ctx context.Context, devices []fleet.Device) []Sample {
	samples := make([]Sample, len(devices))

	// Results land at the input index, so completion order never shows.
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				samples[i] = p.pollOne(ctx, devices[i])
			}
		}()
	}
	for i := range devices {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return samples
}

// PollRegistry polls the devices matching f and records every successful
// snapshot into the registry's history.
func (p *Poller) PollRegistry(ctx context.Context, reg *fleet.Registry, f fleet.Filter) []Sample {
	samples := p.Poll(ctx, reg.List(f))
	for _, s := range samples {
		if s.Err == nil {
			reg.RecordStats(s.Snapshot)
		}
	}
	return samples
}

func (p *Poller) pollOne(ctx context.Context, dev fleet.Device) Sample {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	info, err := p.fetch(fetchCtx, dev)
	if err != nil {
		logging.LogProbe(dev.IP, false, err.Error())
		return Sample{Device: dev, Err: err}
	}
	return Sample{
		Device:   dev,
		Snapshot: info.Snapshot(dev.ID),
		Info:     info,
	}
}
