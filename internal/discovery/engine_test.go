package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"axectl/internal/axeapi"
	"axectl/internal/fleet"
)

// fakeFleet maps IPs to canned identity payloads; every other address
// refuses the probe.
func fakeFleet(miners map[string]*axeapi.SystemInfo) ProbeFunc {
	return func(ctx context.Context, ip string) (*axeapi.SystemInfo, error) {
		if info, ok := miners[ip]; ok {
			return info, nil
		}
		return nil, axeapi.NewUnreachableError(ip, nil)
	}
}

func newTestEngine(cfg Config, probe ProbeFunc, browse BrowseFunc) *Engine {
	e := NewEngine(cfg)
	e.probe = probe
	if browse != nil {
		e.browse = browse
	} else {
		e.browse = func(ctx context.Context) []Candidate { return nil }
	}
	return e
}

func TestRunSweepFindsMiners(t *testing.T) {
	miners := map[string]*axeapi.SystemInfo{
		"192.168.1.2": {ASICModel: "BM1366", Hostname: "garage", MACAddress: "AA:00:00:00:00:02", HashRate: 500000},
		"192.168.1.5": {DeviceModel: "NerdQAxe+", Hostname: "shed", MACAddress: "AA:00:00:00:00:05", HashRate: 4800000},
	}
	e := newTestEngine(Config{Network: "192.168.1.0/28", DisableMDNS: true}, fakeFleet(miners), nil)

	reg := fleet.NewRegistry()
	report, err := e.Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// /28 has 14 probeable hosts.
	if report.AddressesScanned != 14 {
		t.Errorf("AddressesScanned = %d, want 14", report.AddressesScanned)
	}
	if report.Found != 2 || report.Inserted != 2 {
		t.Errorf("Found/Inserted = %d/%d, want 2/2", report.Found, report.Inserted)
	}
	if reg.Len() != 2 {
		t.Fatalf("registry has %d devices, want 2", reg.Len())
	}

	dev, err := reg.Get("192.168.1.5")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if dev.Type != fleet.TypeNerdqaxePlus {
		t.Errorf("Type = %v, want %v", dev.Type, fleet.TypeNerdqaxePlus)
	}
	if dev.Source != fleet.SourceScan {
		t.Errorf("Source = %v, want %v", dev.Source, fleet.SourceScan)
	}
	if snap, ok := reg.LatestStats(dev.ID); !ok || snap.HashrateMHS != 4800000 {
		t.Errorf("latest stats = %+v (ok=%v), want hashrate 4800000", snap, ok)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	miners := map[string]*axeapi.SystemInfo{
		"192.168.1.2": {ASICModel: "BM1366", Hostname: "garage", MACAddress: "AA:00:00:00:00:02"},
	}
	e := newTestEngine(Config{Network: "192.168.1.0/29", DisableMDNS: true}, fakeFleet(miners), nil)

	reg := fleet.NewRegistry()
	if _, err := e.Run(context.Background(), reg); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	report, err := e.Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if reg.Len() != 1 {
		t.Errorf("registry has %d devices after two runs, want 1", reg.Len())
	}
	if report.Inserted != 0 {
		t.Errorf("second run Inserted = %d, want 0", report.Inserted)
	}
}

func TestRunMergesMDNSAndSweep(t *testing.T) {
	// The same device is heard via mDNS and swept over the subnet; it must
	// be probed and registered exactly once.
	var probes atomic.Int64
	miners := map[string]*axeapi.SystemInfo{
		"192.168.1.2": {ASICModel: "BM1368", Hostname: "garage", MACAddress: "AA:00:00:00:00:02"},
	}
	probe := func(ctx context.Context, ip string) (*axeapi.SystemInfo, error) {
		if ip == "192.168.1.2" {
			probes.Add(1)
		}
		return fakeFleet(miners)(ctx, ip)
	}
	browse := func(ctx context.Context) []Candidate {
		return []Candidate{{IP: "192.168.1.2", Hostname: "garage.local"}}
	}

	e := newTestEngine(Config{Network: "192.168.1.0/29"}, probe, browse)
	reg := fleet.NewRegistry()
	if _, err := e.Run(context.Background(), reg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := probes.Load(); got != 1 {
		t.Errorf("device probed %d times, want 1", got)
	}
	if reg.Len() != 1 {
		t.Errorf("registry has %d devices, want 1", reg.Len())
	}
}

func TestRunProbesHintedMDNSCandidatesFirst(t *testing.T) {
	// Hostnames carrying a miner hint go to the probe pool ahead of the
	// other mDNS candidates.
	var mu sync.Mutex
	var order []string
	probe := func(ctx context.Context, ip string) (*axeapi.SystemInfo, error) {
		mu.Lock()
		order = append(order, ip)
		mu.Unlock()
		return nil, axeapi.NewUnreachableError(ip, nil)
	}
	browse := func(ctx context.Context) []Candidate {
		return []Candidate{
			{IP: "10.0.0.5", Hostname: "printer.local"},
			{IP: "10.0.0.6", Hostname: "bitaxe-garage.local"},
			{IP: "10.0.0.7", Hostname: "nas.local"},
			{IP: "10.0.0.8", Hostname: "nerdqaxe-shed.local"},
		}
	}

	e := newTestEngine(Config{Network: "192.168.1.1/32", Parallel: 1}, probe, browse)
	if _, err := e.Run(context.Background(), fleet.NewRegistry()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	pos := make(map[string]int)
	for i, ip := range order {
		pos[ip] = i
	}
	for _, ip := range []string{"10.0.0.5", "10.0.0.6", "10.0.0.7", "10.0.0.8"} {
		if _, ok := pos[ip]; !ok {
			t.Fatalf("mDNS candidate %s never probed (order %v)", ip, order)
		}
	}
	for _, hinted := range []string{"10.0.0.6", "10.0.0.8"} {
		for _, plain := range []string{"10.0.0.5", "10.0.0.7"} {
			if pos[hinted] > pos[plain] {
				t.Errorf("hinted %s probed at %d, after unhinted %s at %d", hinted, pos[hinted], plain, pos[plain])
			}
		}
	}
}

func TestRunProbesKnownIPsOutsideNetwork(t *testing.T) {
	miners := map[string]*axeapi.SystemInfo{
		"10.9.9.9": {ASICModel: "BM1366", Hostname: "attic", MACAddress: "AA:00:00:00:00:09"},
	}
	e := newTestEngine(Config{
		Network:     "192.168.1.0/29",
		DisableMDNS: true,
		KnownIPs:    []string{"10.9.9.9"},
	}, fakeFleet(miners), nil)

	reg := fleet.NewRegistry()
	if _, err := e.Run(context.Background(), reg); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := reg.Get("10.9.9.9"); err != nil {
		t.Errorf("cache-known device not registered: %v", err)
	}
}

func TestRunRespectsParallelCap(t *testing.T) {
	const limit = 4
	var mu sync.Mutex
	inflight, peak := 0, 0

	probe := func(ctx context.Context, ip string) (*axeapi.SystemInfo, error) {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		inflight--
		mu.Unlock()
		return nil, axeapi.NewUnreachableError(ip, nil)
	}

	e := newTestEngine(Config{Network: "192.168.1.0/26", Parallel: limit, DisableMDNS: true}, probe, nil)
	if _, err := e.Run(context.Background(), fleet.NewRegistry()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if peak > limit {
		t.Errorf("peak concurrent probes = %d, exceeds cap %d", peak, limit)
	}
	if peak == 0 {
		t.Error("no probes ran")
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(Config{Network: "192.168.1.0/24", DisableMDNS: true}, fakeFleet(nil), nil)
	report, err := e.Run(ctx, fleet.NewRegistry())
	if err == nil && report.Found > 0 {
		t.Errorf("cancelled run reported success with findings: %+v", report)
	}
}

func TestRunInvalidNetwork(t *testing.T) {
	e := newTestEngine(Config{Network: "bogus", DisableMDNS: true}, fakeFleet(nil), nil)
	if _, err := e.Run(context.Background(), fleet.NewRegistry()); err == nil {
		t.Error("Run with invalid network succeeded, want error")
	}
}
