package ops

import (
	"context"
	"testing"
	"time"

	"axectl/internal/config"
	"axectl/internal/dispatch"
	"axectl/internal/fleet"
)

func testPrefs(t *testing.T) *config.Preferences {
	t.Helper()
	prefs := config.Default()
	prefs.CacheDir = t.TempDir()
	return prefs
}

func TestNewServiceSeedsFromCache(t *testing.T) {
	prefs := testPrefs(t)

	// A prior session leaves a cache behind.
	cache := fleet.LoadCache(prefs.CacheDir)
	cache.Put(fleet.Device{
		ID:       "garage",
		IP:       "192.168.1.2",
		Type:     fleet.TypeBitaxe,
		LastSeen: time.Now(),
	}, nil, nil)
	if err := cache.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	svc, err := NewService(prefs)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	devices := svc.Devices(fleet.FilterAll())
	if len(devices) != 1 || devices[0].ID != "garage" {
		t.Fatalf("devices = %+v, want seeded garage", devices)
	}
	if devices[0].Source != fleet.SourceCache {
		t.Errorf("Source = %v, want %v", devices[0].Source, fleet.SourceCache)
	}
}

func TestNewServiceEmptyCache(t *testing.T) {
	svc, err := NewService(testPrefs(t))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if got := len(svc.Devices(fleet.FilterAll())); got != 0 {
		t.Errorf("fresh service has %d devices", got)
	}
}

func TestForgetPersists(t *testing.T) {
	prefs := testPrefs(t)
	svc, err := NewService(prefs)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	svc.Registry.Merge(fleet.Device{ID: "garage", IP: "192.168.1.2", Type: fleet.TypeBitaxe})
	if err := svc.SaveCache(); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}

	removed, err := svc.Forget("192.168.1.2")
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if !removed {
		t.Fatal("Forget found nothing")
	}

	// A new session must not resurrect the device.
	svc2, err := NewService(prefs)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if got := len(svc2.Devices(fleet.FilterAll())); got != 0 {
		t.Errorf("forgotten device came back: %d devices", got)
	}
}

func TestForgetUnknownDevice(t *testing.T) {
	svc, err := NewService(testPrefs(t))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	removed, err := svc.Forget("10.0.0.1")
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if removed {
		t.Error("Forget removed a device that was never registered")
	}
}

func TestBulkDryRunTouchesNothing(t *testing.T) {
	svc, err := NewService(testPrefs(t))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	// Unroutable documentation addresses: any attempted request would
	// error, but the dry run must not even try.
	svc.Registry.Merge(fleet.Device{ID: "a", IP: "192.0.2.1", Type: fleet.TypeBitaxe})
	svc.Registry.Merge(fleet.Device{ID: "b", IP: "192.0.2.2", Type: fleet.TypeNerdqaxe})

	out, err := svc.Bulk(context.Background(), fleet.FilterAll(), dispatch.Command{Action: dispatch.ActionRestart}, false, 2)
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	if !out.DryRun {
		t.Fatal("destructive unconfirmed bulk did not dry-run")
	}
	if len(out.Targets) != 2 {
		t.Errorf("len(Targets) = %d, want 2", len(out.Targets))
	}
}
