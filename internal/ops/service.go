package ops

import (
	"context"
	"fmt"
	"time"

	"axectl/internal/axeapi"
	"axectl/internal/config"
	"axectl/internal/discovery"
	"axectl/internal/dispatch"
	"axectl/internal/fleet"
	"axectl/internal/monitor"
	"axectl/internal/poller"
)

// Service wires the registry, cache, and the engines behind them into one
// façade shared by the CLI commands and the embedded server. The registry
// is the only mutable state; everything handed out is a snapshot.
type Service struct {
	Prefs    *config.Preferences
	Registry *fleet.Registry
	Cache    *fleet.Cache
}

// NewService loads the device cache, prunes entries past their TTL, and
// seeds the registry with what remains.
func NewService(prefs *config.Preferences) (*Service, error) {
	if prefs == nil {
		prefs = config.Default()
	}

	cacheDir := prefs.CacheDir
	if cacheDir == "" {
		dir, err := fleet.DefaultCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolving cache directory: %w", err)
		}
		cacheDir = dir
	}

	cache := fleet.LoadCache(cacheDir)
	cache.Prune(time.Now(), fleet.CacheTTL)

	reg := fleet.NewRegistry()
	cache.SeedRegistry(reg)

	return &Service{Prefs: prefs, Registry: reg, Cache: cache}, nil
}

// DiscoverOptions are per-run overrides for a discovery pass. Zero values
// fall back to preferences.
type DiscoverOptions struct {
	Network     string
	Timeout     time.Duration
	Parallel    int
	DisableMDNS bool
}

// Discover runs one discovery pass, merges the results into the registry,
// and persists the updated cache.
func (s *Service) Discover(ctx context.Context, opts DiscoverOptions) (discovery.Report, error) {
	cfg := discovery.Config{
		Network:     opts.Network,
		Timeout:     opts.Timeout,
		Parallel:    opts.Parallel,
		DisableMDNS: opts.DisableMDNS || s.Prefs.Discovery.DisableMDNS,
		KnownIPs:    s.Cache.KnownIPs(),
	}
	if cfg.Network == "" {
		cfg.Network = s.Prefs.Network
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = s.Prefs.DiscoveryTimeout()
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = s.Prefs.Discovery.Parallel
	}

	report, err := discovery.NewEngine(cfg).Run(ctx, s.Registry)
	if err != nil {
		return report, err
	}

	// Eviction runs after the pass so a device missed by one sweep is not
	// dropped prematurely; only entries stale past the TTL go.
	s.Registry.EvictExpired(time.Now(), fleet.CacheTTL)
	return report, s.SaveCache()
}

// Devices returns the registered devices matching the filter.
func (s *Service) Devices(f fleet.Filter) []fleet.Device {
	return s.Registry.List(f)
}

// Device resolves a single device by ID or IP.
func (s *Service) Device(idOrIP string) (fleet.Device, error) {
	return s.Registry.Get(idOrIP)
}

// Poll fetches live stats for the matching devices, records the snapshots,
// and persists the cache so the history survives the process.
func (s *Service) Poll(ctx context.Context, f fleet.Filter, parallel int, timeout time.Duration) ([]poller.Sample, poller.SwarmSummary, error) {
	samples := poller.New(parallel, timeout).PollRegistry(ctx, s.Registry, f)
	return samples, poller.Summarize(samples), s.SaveCache()
}

// Bulk applies one command to the matching devices. Without confirmation a
// destructive command returns a dry-run outcome and touches nothing.
func (s *Service) Bulk(ctx context.Context, f fleet.Filter, cmd dispatch.Command, confirmed bool, parallel int) (dispatch.Outcome, error) {
	return dispatch.New(parallel, 0).Dispatch(ctx, s.Registry.List(f), cmd, confirmed)
}

// Monitor runs the continuous health loop until the context is cancelled.
func (s *Service) Monitor(ctx context.Context, cfg monitor.Config, onTick monitor.TickFunc) error {
	p := poller.New(s.Prefs.Discovery.Parallel, 0)
	if cfg.Interval <= 0 {
		cfg.Interval = s.Prefs.MonitorInterval()
	}
	if cfg.TempThresholdC <= 0 {
		cfg.TempThresholdC = s.Prefs.Monitor.TempThresholdC
	}
	if cfg.HashrateDropPct <= 0 {
		cfg.HashrateDropPct = s.Prefs.Monitor.HashrateDropPct
	}
	return monitor.NewLoop(cfg, s.Registry, p, onTick).Run(ctx)
}

// WifiScan asks one device to scan for nearby networks.
func (s *Service) WifiScan(ctx context.Context, idOrIP string) (*axeapi.WifiScanResult, error) {
	dev, err := s.Registry.Get(idOrIP)
	if err != nil {
		return nil, err
	}
	return axeapi.NewClient(dev.IP, 0).ScanWifi(ctx)
}

// Forget removes a device from the registry and the persisted cache.
func (s *Service) Forget(idOrIP string) (bool, error) {
	if !s.Registry.Deregister(idOrIP) {
		return false, nil
	}
	return true, s.SaveCache()
}

// SaveCache captures the registry into the cache and writes it to disk.
func (s *Service) SaveCache() error {
	s.Cache.CaptureRegistry(s.Registry)
	return s.Cache.Save()
}
