package poller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"axectl/internal/axeapi"
	"axectl/internal/fleet"
)

func testDevices(n int) []fleet.Device {
	devices := make([]fleet.Device, n)
	for i := range devices {
		devices[i] = fleet.Device{
			ID:   fmt.Sprintf("miner-%02d", i),
			IP:   fmt.Sprintf("192.168.1.%d", i+10),
			Type: fleet.TypeBitaxe,
		}
	}
	return devices
}

func newTestPoller(parallel int, fetch FetchFunc) *Poller {
	p := New(parallel, time.Second)
	p.fetch = fetch
	return p
}

func TestPollPreservesInputOrder(t *testing.T) {
	devices := testDevices(8)

	// Earlier devices answer slower, so completion order is reversed.
	fetch := func(ctx context.Context, dev fleet.Device) (*axeapi.SystemInfo, error) {
		var idx int
		fmt.Sscanf(dev.ID, "miner-%02d", &idx)
		time.Sleep(time.Duration(len(devices)-idx) * time.Millisecond)
		return &axeapi.SystemInfo{Hostname: dev.ID, HashRate: float64(idx)}, nil
	}

	samples := newTestPoller(8, fetch).Poll(context.Background(), devices)
	if len(samples) != len(devices) {
		t.Fatalf("len(samples) = %d, want %d", len(samples), len(devices))
	}
	for i, s := range samples {
		if s.Device.ID != devices[i].ID {
			t.Errorf("samples[%d] is %q, want %q", i, s.Device.ID, devices[i].ID)
		}
		if s.Snapshot.DeviceID != devices[i].ID {
			t.Errorf("samples[%d].Snapshot.DeviceID = %q, want %q", i, s.Snapshot.DeviceID, devices[i].ID)
		}
	}
}

func TestPollReportsFailuresInPlace(t *testing.T) {
	devices := testDevices(4)
	fetch := func(ctx context.Context, dev fleet.Device) (*axeapi.SystemInfo, error) {
		if dev.ID == "miner-02" {
			return nil, axeapi.NewUnreachableError(dev.IP, nil)
		}
		return &axeapi.SystemInfo{Hostname: dev.ID}, nil
	}

	samples := newTestPoller(4, fetch).Poll(context.Background(), devices)
	if len(samples) != 4 {
		t.Fatalf("len(samples) = %d, want 4", len(samples))
	}
	for i, s := range samples {
		wantErr := i == 2
		if (s.Err != nil) != wantErr {
			t.Errorf("samples[%d].Err = %v, want error=%v", i, s.Err, wantErr)
		}
		if s.Online() == wantErr {
			t.Errorf("samples[%d].Online() = %v", i, s.Online())
		}
	}
}

func TestPollRespectsParallelCap(t *testing.T) {
	const limit = 3
	var mu sync.Mutex
	inflight, peak := 0, 0

	fetch := func(ctx context.Context, dev fleet.Device) (*axeapi.SystemInfo, error) {
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
		return &axeapi.SystemInfo{Hostname: dev.ID}, nil
	}

	newTestPoller(limit, fetch).Poll(context.Background(), testDevices(20))
	if peak > limit {
		t.Errorf("peak concurrent fetches = %d, exceeds cap %d", peak, limit)
	}
}

func TestPollEmptyFleet(t *testing.T) {
	samples := newTestPoller(4, nil).Poll(context.Background(), nil)
	if len(samples) != 0 {
		t.Errorf("len(samples) = %d, want 0", len(samples))
	}
}

func TestPollRegistryRecordsHistory(t *testing.T) {
	reg := fleet.NewRegistry()
	reg.Merge(fleet.Device{ID: "garage", IP: "192.168.1.2", Type: fleet.TypeBitaxe})
	reg.Merge(fleet.Device{ID: "shed", IP: "192.168.1.3", Type: fleet.TypeNerdqaxe})

	fetch := func(ctx context.Context, dev fleet.Device) (*axeapi.SystemInfo, error) {
		if dev.ID == "shed" {
			return nil, axeapi.NewUnreachableError(dev.IP, nil)
		}
		return &axeapi.SystemInfo{Hostname: dev.ID, HashRate: 123}, nil
	}

	p := newTestPoller(2, fetch)
	p.PollRegistry(context.Background(), reg, fleet.FilterAll())

	if snap, ok := reg.LatestStats("garage"); !ok || snap.HashrateMHS != 123 {
		t.Errorf("garage stats = %+v (ok=%v), want hashrate 123", snap, ok)
	}
	// Failed polls must not write history.
	if _, ok := reg.LatestStats("shed"); ok {
		t.Error("shed has stats despite failed poll")
	}
}

func TestSummarize(t *testing.T) {
	samples := []Sample{
		{
			Device:   fleet.Device{ID: "a", Type: fleet.TypeBitaxe},
			Snapshot: fleet.StatsSnapshot{HashrateMHS: 500_000, TempC: 60, PowerW: 15},
		},
		{
			Device:   fleet.Device{ID: "b", Type: fleet.TypeNerdqaxePlus},
			Snapshot: fleet.StatsSnapshot{HashrateMHS: 4_500_000, TempC: 64, PowerW: 72},
		},
		{
			Device: fleet.Device{ID: "c", Type: fleet.TypeBitaxe},
			Err:    axeapi.NewUnreachableError("192.0.2.9", nil),
		},
	}

	s := Summarize(samples)
	if s.Total != 3 || s.Online != 2 || s.Unreachable != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", s.Total, s.Online, s.Unreachable)
	}
	if s.TotalHashrateMHS != 5_000_000 {
		t.Errorf("TotalHashrateMHS = %v, want 5000000", s.TotalHashrateMHS)
	}
	if s.AvgTempC != 62 {
		t.Errorf("AvgTempC = %v, want 62", s.AvgTempC)
	}
	if s.TotalPowerW != 87 {
		t.Errorf("TotalPowerW = %v, want 87", s.TotalPowerW)
	}
	// 87 W over 5 TH/s.
	if got, want := s.EfficiencyJTH, 87.0/5.0; got != want {
		t.Errorf("EfficiencyJTH = %v, want %v", got, want)
	}

	bit := s.PerType[fleet.TypeBitaxe]
	if bit.Count != 1 || bit.TotalHashrateMHS != 500_000 {
		t.Errorf("bitaxe summary = %+v", bit)
	}
	if _, ok := s.PerType[fleet.TypeNerdqaxe]; ok {
		t.Error("PerType contains a type with no online devices")
	}
}

func TestSummarizeAllOffline(t *testing.T) {
	samples := []Sample{
		{Device: fleet.Device{ID: "a"}, Err: axeapi.NewUnreachableError("192.0.2.1", nil)},
	}
	s := Summarize(samples)
	if s.Online != 0 || s.Unreachable != 1 {
		t.Errorf("counts = %d online / %d unreachable", s.Online, s.Unreachable)
	}
	if s.AvgTempC != 0 || s.EfficiencyJTH != 0 {
		t.Errorf("averages should be zero with no online devices: %+v", s)
	}
}
