package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"axectl/internal/axeapi"
	"axectl/internal/fleet"
	"axectl/internal/logging"
)

const (
	// DefaultProbeTimeout bounds a single host probe. Miners answer the
	// info endpoint in tens of milliseconds; half a second is generous.
	DefaultProbeTimeout = 500 * time.Millisecond

	// DefaultParallel is the number of concurrent host probes.
	DefaultParallel = 50
)

// ProbeFunc fetches the identity payload from one address. Injected in
// tests; the default implementation performs a real HTTP probe.
type ProbeFunc func(ctx context.Context, ip string) (*axeapi.SystemInfo, error)

// BrowseFunc produces mDNS candidates. Injected in tests.
type BrowseFunc func(ctx context.Context) []Candidate

// Config controls a discovery run.
type Config struct {
	// Network is the CIDR to sweep. Empty means auto-detect the local
	// IPv4 networks from the machine's interfaces.
	Network string

	// Timeout is the per-host probe timeout.
	Timeout time.Duration

	// Parallel caps concurrent probes.
	Parallel int

	// DisableMDNS skips the multicast browse phase.
	DisableMDNS bool

	// KnownIPs are addresses worth probing even if outside the swept
	// network, typically from the device cache.
	KnownIPs []string
}

// Report summarizes a completed discovery run.
type Report struct {
	AddressesScanned int
	Found            int
	Inserted         int
	Updated          int
	Duration         time.Duration
}

// Engine discovers miners by combining an mDNS browse with a bounded
// concurrent subnet sweep. Every confirmed device is merged into the
// registry; the engine itself holds no device state between runs.
type Engine struct {
	cfg    Config
	probe  ProbeFunc
	browse BrowseFunc
}

// NewEngine creates an engine that probes over HTTP and browses with a real
// mDNS resolver.
func NewEngine(cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeTimeout
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = DefaultParallel
	}
	return &Engine{
		cfg: cfg,
		probe: func(ctx context.Context, ip string) (*axeapi.SystemInfo, error) {
			return axeapi.NewClient(ip, cfg.Timeout).SystemInfo(ctx)
		},
		browse: func(ctx context.Context) []Candidate {
			return NewMDNSBrowser().Browse(ctx)
		},
	}
}

// candidate pairs an address with the path that produced it.
type candidate struct {
	ip     string
	source fleet.Source
}

// Run executes one discovery pass and merges every responding miner into
// reg. mDNS candidates and the subnet sweep feed a shared probe pool; an
// address heard on both paths is probed once.
func (e *Engine) Run(ctx context.Context, reg *fleet.Registry) (Report, error) {
	start := time.Now()

	networks, err := e.targetNetworks()
	if err != nil {
		return Report{}, err
	}

	jobs := make(chan candidate)
	var produced sync.WaitGroup

	var mu sync.Mutex
	queued := make(map[string]bool)
	enqueue := func(c candidate) bool {
		mu.Lock()
		if queued[c.ip] {
			mu.Unlock()
			return false
		}
		queued[c.ip] = true
		mu.Unlock()
		select {
		case jobs <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Producer: cache-known addresses first, then the subnet sweep.
	produced.Add(1)
	go func() {
		defer produced.Done()
		for _, ip := range e.cfg.KnownIPs {
			enqueue(candidate{ip: ip, source: fleet.SourceScan})
		}
		for _, network := range networks {
			hosts, err := EnumerateHosts(network)
			if err != nil {
				logging.Warn(fmt.Sprintf("skipping network %s: %v", network, err))
				continue
			}
			for _, ip := range hosts {
				if ctx.Err() != nil {
					return
				}
				enqueue(candidate{ip: ip, source: fleet.SourceScan})
			}
		}
	}()

	// Producer: mDNS browse, running alongside the sweep. Candidates whose
	// hostname hints at a miner are enqueued ahead of the rest.
	if !e.cfg.DisableMDNS {
		produced.Add(1)
		go func() {
			defer produced.Done()
			heard := e.browse(ctx)
			for _, hinted := range []bool{true, false} {
				for _, c := range heard {
					if c.LooksLikeMiner() == hinted {
						enqueue(candidate{ip: c.IP, source: fleet.SourceMDNS})
					}
				}
			}
		}()
	}

	go func() {
		produced.Wait()
		close(jobs)
	}()

	var scanned, found, inserted, updated int
	var counts sync.Mutex
	var workers sync.WaitGroup
	for i := 0; i < e.cfg.Parallel; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for c := range jobs {
				counts.Lock()
				scanned++
				counts.Unlock()

				probeCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
				info, err := e.probe(probeCtx, c.ip)
				cancel()
				if err != nil {
					logging.LogProbe(c.ip, false, err.Error())
					continue
				}

				dev := info.Device(c.ip, c.source)
				outcome := reg.Merge(dev)
				logging.LogMergeOutcome(dev.ID, c.ip, outcome.String())
				if d, err := reg.Get(c.ip); err == nil {
					reg.RecordStats(info.Snapshot(d.ID))
				}

				counts.Lock()
				found++
				switch outcome {
				case fleet.MergeInserted:
					inserted++
				case fleet.MergeUpdated:
					updated++
				}
				counts.Unlock()
			}
		}()
	}
	workers.Wait()

	report := Report{
		AddressesScanned: scanned,
		Found:            found,
		Inserted:         inserted,
		Updated:          updated,
		Duration:         time.Since(start),
	}
	if err := ctx.Err(); err != nil && report.Found == 0 {
		return report, err
	}
	return report, nil
}

// targetNetworks resolves the configured network, or falls back to the
// machine's local IPv4 networks.
func (e *Engine) targetNetworks() ([]string, error) {
	if e.cfg.Network != "" {
		if _, err := EnumerateHosts(e.cfg.Network); err != nil {
			return nil, err
		}
		return []string{e.cfg.Network}, nil
	}
	return LocalNetworks()
}
