package fleet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()

	c := LoadCache(dir)
	if c.Len() != 0 {
		t.Fatalf("fresh cache Len() = %d, want 0", c.Len())
	}

	d := Device{ID: "bitaxe1", IP: "192.168.1.10", MAC: "AA:BB:CC:DD:EE:01", Type: TypeBitaxe, Source: SourceScan, LastSeen: time.Now()}
	latest := &StatsSnapshot{DeviceID: "bitaxe1", TakenAt: time.Now(), HashrateMHS: 485.2}
	c.Put(d, latest, []StatsSnapshot{*latest})
	if err := c.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded := LoadCache(dir)
	if reloaded.Len() != 1 {
		t.Fatalf("reloaded Len() = %d, want 1", reloaded.Len())
	}
	entries := reloaded.Entries()
	if entries[0].Device.ID != "bitaxe1" {
		t.Errorf("Device.ID = %s, want bitaxe1", entries[0].Device.ID)
	}
	if entries[0].LatestStats == nil || entries[0].LatestStats.HashrateMHS != 485.2 {
		t.Error("latest stats not preserved through save/load")
	}
	if entries[0].Device.Type != TypeBitaxe {
		t.Errorf("Device.Type = %s, want bitaxe", entries[0].Device.Type)
	}
}

func TestCachePrune(t *testing.T) {
	c := LoadCache(t.TempDir())
	now := time.Now()

	c.entries["old"] = CacheEntry{
		Device:    Device{ID: "old", IP: "192.168.1.10"},
		WrittenAt: now.Add(-8 * 24 * time.Hour),
	}
	c.entries["recent"] = CacheEntry{
		Device:    Device{ID: "recent", IP: "192.168.1.11"},
		WrittenAt: now.Add(-time.Hour),
	}

	removed := c.Prune(now, CacheTTL)
	if removed != 1 {
		t.Errorf("Prune() = %d, want 1", removed)
	}
	if _, ok := c.entries["old"]; ok {
		t.Error("8-day-old entry survived the prune")
	}
	if _, ok := c.entries["recent"]; !ok {
		t.Error("recent entry was pruned")
	}
}

func TestCacheCorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "devices.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := LoadCache(dir)
	if c.Len() != 0 {
		t.Errorf("corrupt cache Len() = %d, want 0", c.Len())
	}
}

func TestCacheUnsupportedVersionStartsFresh(t *testing.T) {
	dir := t.TempDir()
	content := `{"version": 99, "devices": [{"device": {"id": "x", "ip_address": "192.168.1.1"}}]}`
	if err := os.WriteFile(filepath.Join(dir, "devices.json"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c := LoadCache(dir)
	if c.Len() != 0 {
		t.Errorf("unsupported-version cache Len() = %d, want 0", c.Len())
	}
}

func TestCacheIgnoresUnknownFields(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"version": 2,
		"last_updated": "2026-01-01T00:00:00Z",
		"some_future_field": {"nested": true},
		"devices": [
			{
				"device": {"id": "bitaxe1", "ip_address": "192.168.1.10", "device_type": "bitaxe", "extra": 42},
				"written_at": "2026-01-01T00:00:00Z",
				"another_future_field": "x"
			}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, "devices.json"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c := LoadCache(dir)
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (unknown fields must be ignored)", c.Len())
	}
}

func TestCacheKnownIPs(t *testing.T) {
	c := LoadCache(t.TempDir())
	c.Put(Device{ID: "b", IP: "192.168.1.20"}, nil, nil)
	c.Put(Device{ID: "a", IP: "192.168.1.10"}, nil, nil)

	ips := c.KnownIPs()
	if len(ips) != 2 || ips[0] != "192.168.1.10" || ips[1] != "192.168.1.20" {
		t.Errorf("KnownIPs() = %v, want sorted pair", ips)
	}
}

func TestCacheSeedRegistry(t *testing.T) {
	c := LoadCache(t.TempDir())
	seen := time.Now().Add(-time.Hour)
	c.Put(Device{ID: "bitaxe1", IP: "192.168.1.10", Type: TypeBitaxe, Source: SourceScan, LastSeen: seen}, nil,
		[]StatsSnapshot{{DeviceID: "bitaxe1", TakenAt: seen, HashrateMHS: 400}})

	reg := NewRegistry()
	c.SeedRegistry(reg)

	d, err := reg.Get("bitaxe1")
	if err != nil {
		t.Fatalf("seeded device missing: %v", err)
	}
	if d.Source != SourceCache {
		t.Errorf("Source = %s, want cache", d.Source)
	}
	if len(reg.History("bitaxe1")) != 1 {
		t.Error("stats history not seeded")
	}
}

func TestCaptureRegistry(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	reg.Merge(Device{ID: "bitaxe1", IP: "192.168.1.10", Type: TypeBitaxe, LastSeen: now})
	reg.RecordStats(StatsSnapshot{DeviceID: "bitaxe1", TakenAt: now, HashrateMHS: 500})

	c := LoadCache(t.TempDir())
	c.CaptureRegistry(reg)

	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].LatestStats == nil || entries[0].LatestStats.HashrateMHS != 500 {
		t.Error("latest stats not captured from registry")
	}
}

func TestCacheFileIsValidJSON(t *testing.T) {
	dir := t.TempDir()
	c := LoadCache(dir)
	c.Put(Device{ID: "bitaxe1", IP: "192.168.1.10"}, nil, nil)
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "devices.json"))
	if err != nil {
		t.Fatal(err)
	}
	var f map[string]any
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("saved cache is not valid JSON: %v", err)
	}
	if f["version"] != float64(CacheVersion) {
		t.Errorf("version = %v, want %d", f["version"], CacheVersion)
	}
}
