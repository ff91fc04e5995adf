package fleet

import (
	"testing"
	"time"
)

func newDevice(id, ip, mac string, t DeviceType, seen time.Time) Device {
	return Device{ID: id, IP: ip, MAC: mac, Type: t, Source: SourceScan, LastSeen: seen}
}

func TestRegistryMergeInsert(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	outcome := reg.Merge(newDevice("bitaxe1", "192.168.1.10", "AA:BB:CC:DD:EE:01", TypeBitaxe, now))
	if outcome != MergeInserted {
		t.Errorf("Merge() = %v, want MergeInserted", outcome)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistryMergeIdempotent(t *testing.T) {
	reg := NewRegistry()
	first := time.Now().Add(-time.Minute)
	second := time.Now()

	reg.Merge(newDevice("bitaxe1", "192.168.1.10", "AA:BB:CC:DD:EE:01", TypeBitaxe, first))
	outcome := reg.Merge(newDevice("bitaxe1", "192.168.1.10", "AA:BB:CC:DD:EE:01", TypeBitaxe, second))

	if outcome != MergeUpdated {
		t.Errorf("second Merge() = %v, want MergeUpdated", outcome)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want exactly 1 entry after duplicate merge", reg.Len())
	}
	d, err := reg.Get("bitaxe1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !d.LastSeen.Equal(second) {
		t.Errorf("LastSeen = %v, want updated to %v", d.LastSeen, second)
	}
}

func TestRegistryMergeUnchanged(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	d := newDevice("bitaxe1", "192.168.1.10", "AA:BB:CC:DD:EE:01", TypeBitaxe, now)

	reg.Merge(d)
	if outcome := reg.Merge(d); outcome != MergeUnchanged {
		t.Errorf("identical Merge() = %v, want MergeUnchanged", outcome)
	}
}

func TestRegistryMergeDedupByMAC(t *testing.T) {
	// Same physical unit found via mDNS and scan under different IPs:
	// MAC wins, newest address is kept, original ID preserved.
	reg := NewRegistry()
	now := time.Now()

	reg.Merge(Device{ID: "bitaxe1", IP: "192.168.1.10", MAC: "AA:BB:CC:DD:EE:01", Type: TypeBitaxe, Source: SourceMDNS, LastSeen: now})
	outcome := reg.Merge(Device{ID: "bitaxe1-renamed", IP: "192.168.1.99", MAC: "aa:bb:cc:dd:ee:01", Type: TypeBitaxe, Source: SourceScan, LastSeen: now.Add(time.Second)})

	if outcome != MergeUpdated {
		t.Errorf("Merge() = %v, want MergeUpdated", outcome)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (MAC dedup failed)", reg.Len())
	}
	d, err := reg.Get("bitaxe1")
	if err != nil {
		t.Fatalf("original ID not preserved: %v", err)
	}
	if d.IP != "192.168.1.99" {
		t.Errorf("IP = %s, want newest address 192.168.1.99", d.IP)
	}
	if d.Source != SourceScan {
		t.Errorf("Source = %s, want scan", d.Source)
	}
}

func TestRegistryMergeAbsorbsStaleEntryOnIPTakeover(t *testing.T) {
	// DHCP reshuffle: unit A reappears on the address unit B used to
	// hold. The MAC match moves A; B's entry is now stale and must go,
	// or two devices would share one IP.
	reg := NewRegistry()
	now := time.Now()

	reg.Merge(Device{ID: "unitA", IP: "192.168.1.10", MAC: "AA:BB:CC:DD:EE:01", Type: TypeBitaxe, Source: SourceScan, LastSeen: now})
	reg.Merge(Device{ID: "unitB", IP: "192.168.1.20", MAC: "AA:BB:CC:DD:EE:02", Type: TypeBitaxe, Source: SourceScan, LastSeen: now})
	reg.Merge(Device{ID: "unitA", IP: "192.168.1.20", MAC: "AA:BB:CC:DD:EE:01", Type: TypeBitaxe, Source: SourceScan, LastSeen: now.Add(time.Second)})

	byIP := make(map[string]int)
	for _, d := range reg.Snapshot() {
		byIP[d.IP]++
	}
	if byIP["192.168.1.20"] != 1 {
		t.Fatalf("%d entries hold 192.168.1.20, want exactly 1", byIP["192.168.1.20"])
	}
	d, err := reg.Get("192.168.1.20")
	if err != nil {
		t.Fatalf("Get(ip) error = %v", err)
	}
	if d.ID != "unitA" {
		t.Errorf("address holder = %s, want unitA", d.ID)
	}
	if _, err := reg.Get("unitB"); err != ErrNotFound {
		t.Errorf("stale entry unitB still present, Get error = %v", err)
	}
}

func TestRegistryMergeDedupByIPWithoutMAC(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	reg.Merge(Device{ID: "mystery", IP: "192.168.1.20", Type: TypeUnknown, Source: SourceScan, LastSeen: now})
	reg.Merge(Device{ID: "mystery", IP: "192.168.1.20", Type: TypeNerdqaxe, Source: SourceScan, LastSeen: now.Add(time.Second)})

	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
	d, _ := reg.Get("mystery")
	if d.Type != TypeNerdqaxe {
		t.Errorf("Type = %s, want classification upgraded to nerdqaxe", d.Type)
	}
}

func TestRegistryMergeUnknownNeverDowngrades(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	reg.Merge(newDevice("bitaxe1", "192.168.1.10", "", TypeBitaxeUltra, now))
	reg.Merge(newDevice("bitaxe1", "192.168.1.10", "", TypeUnknown, now.Add(time.Second)))

	d, _ := reg.Get("bitaxe1")
	if d.Type != TypeBitaxeUltra {
		t.Errorf("Type = %s, unknown candidate must not downgrade classification", d.Type)
	}
}

func TestRegistryMergeIDCollision(t *testing.T) {
	// Two distinct physical units with the same hostname must both be
	// kept, with unique IDs.
	reg := NewRegistry()
	now := time.Now()

	reg.Merge(Device{ID: "bitaxe", IP: "192.168.1.10", MAC: "AA:BB:CC:DD:EE:01", LastSeen: now})
	reg.Merge(Device{ID: "bitaxe", IP: "192.168.1.11", MAC: "AA:BB:CC:DD:EE:02", LastSeen: now})

	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}
	if _, err := reg.Get("bitaxe-11"); err != nil {
		t.Errorf("suffixed ID not found: %v", err)
	}
}

func TestRegistryGetByIP(t *testing.T) {
	reg := NewRegistry()
	reg.Merge(newDevice("bitaxe1", "192.168.1.10", "", TypeBitaxe, time.Now()))

	if _, err := reg.Get("192.168.1.10"); err != nil {
		t.Errorf("Get(ip) error = %v", err)
	}
	if _, err := reg.Get("192.168.1.200"); err != ErrNotFound {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRegistryListFilter(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	reg.Merge(newDevice("a-bitaxe", "192.168.1.10", "", TypeBitaxe, now))
	reg.Merge(newDevice("b-ultra", "192.168.1.11", "", TypeBitaxeUltra, now))
	reg.Merge(newDevice("c-nerd", "192.168.1.12", "", TypeNerdqaxePlus, now))

	if got := len(reg.List(FilterAll())); got != 3 {
		t.Errorf("List(all) = %d devices, want 3", got)
	}
	if got := len(reg.List(FilterTypes(TypeBitaxe, TypeBitaxeUltra))); got != 2 {
		t.Errorf("List(bitaxe family) = %d devices, want 2", got)
	}
	if got := len(reg.List(FilterIPs("192.168.1.12"))); got != 1 {
		t.Errorf("List(ip) = %d devices, want 1", got)
	}
	if got := len(reg.List(Filter{})); got != 0 {
		t.Errorf("List(zero filter) = %d devices, want 0", got)
	}

	// Ordered by ID.
	all := reg.List(FilterAll())
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Errorf("List not ordered: %s before %s", all[i-1].ID, all[i].ID)
		}
	}
}

func TestRegistryEvictExpired(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	reg.Merge(newDevice("fresh", "192.168.1.10", "", TypeBitaxe, now.Add(-time.Hour)))
	reg.Merge(newDevice("stale", "192.168.1.11", "", TypeBitaxe, now.Add(-8*24*time.Hour)))

	removed := reg.EvictExpired(now, CacheTTL)
	if removed != 1 {
		t.Errorf("EvictExpired() = %d, want 1", removed)
	}
	if _, err := reg.Get("stale"); err != ErrNotFound {
		t.Error("stale device should be gone")
	}
	d, err := reg.Get("fresh")
	if err != nil {
		t.Fatal("fresh device should be preserved")
	}
	if !d.LastSeen.Equal(now.Add(-time.Hour)) {
		t.Error("unaffected entry was modified by eviction")
	}
}

func TestRegistryStatsHistoryBounded(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	reg.Merge(newDevice("bitaxe1", "192.168.1.10", "", TypeBitaxe, now))

	for i := 0; i < HistoryLimit+5; i++ {
		reg.RecordStats(StatsSnapshot{
			DeviceID:    "bitaxe1",
			TakenAt:     now.Add(time.Duration(i) * time.Second),
			HashrateMHS: float64(i),
		})
	}

	h := reg.History("bitaxe1")
	if len(h) != HistoryLimit {
		t.Fatalf("History length = %d, want %d", len(h), HistoryLimit)
	}
	latest, ok := reg.LatestStats("bitaxe1")
	if !ok {
		t.Fatal("LatestStats() reported none")
	}
	if latest.HashrateMHS != float64(HistoryLimit+4) {
		t.Errorf("latest snapshot = %v, want most recent", latest.HashrateMHS)
	}
	// Oldest retained entry is shifted, not truncated from the tail.
	if h[0].HashrateMHS != 5 {
		t.Errorf("oldest retained = %v, want 5", h[0].HashrateMHS)
	}
}

func TestRegistryRecordStatsBumpsLastSeen(t *testing.T) {
	reg := NewRegistry()
	seen := time.Now().Add(-time.Hour)
	reg.Merge(newDevice("bitaxe1", "192.168.1.10", "", TypeBitaxe, seen))

	polled := time.Now()
	reg.RecordStats(StatsSnapshot{DeviceID: "bitaxe1", TakenAt: polled})

	d, _ := reg.Get("bitaxe1")
	if !d.LastSeen.Equal(polled) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, polled)
	}
}

func TestRegistryDeregister(t *testing.T) {
	reg := NewRegistry()
	reg.Merge(newDevice("bitaxe1", "192.168.1.10", "", TypeBitaxe, time.Now()))

	if !reg.Deregister("192.168.1.10") {
		t.Error("Deregister(ip) = false, want true")
	}
	if reg.Len() != 0 {
		t.Error("device still present after deregistration")
	}
	if reg.Deregister("bitaxe1") {
		t.Error("Deregister(missing) = true, want false")
	}
}

func TestExpandTypeToken(t *testing.T) {
	tests := []struct {
		token string
		want  int
		fails bool
	}{
		{"bitaxe", 2, false},
		{"nerdqaxe", 2, false},
		{"bitaxe-ultra", 1, false},
		{"nerdqaxe-plus", 1, false},
		{"unknown", 1, false},
		{"antminer", 0, true},
	}
	for _, tt := range tests {
		types, err := ExpandTypeToken(tt.token)
		if tt.fails {
			if err == nil {
				t.Errorf("ExpandTypeToken(%q) expected error", tt.token)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExpandTypeToken(%q) error = %v", tt.token, err)
			continue
		}
		if len(types) != tt.want {
			t.Errorf("ExpandTypeToken(%q) = %d types, want %d", tt.token, len(types), tt.want)
		}
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(false, "bitaxe,nerdqaxe-plus", "192.168.1.5")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if len(f.Types) != 3 {
		t.Errorf("Types = %d, want 3 (bitaxe family + nerdqaxe-plus)", len(f.Types))
	}
	if len(f.IPs) != 1 {
		t.Errorf("IPs = %d, want 1", len(f.IPs))
	}

	if _, err := ParseFilter(false, "whatsminer", ""); err == nil {
		t.Error("ParseFilter with bogus type should fail")
	}
}
