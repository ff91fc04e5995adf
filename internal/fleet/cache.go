package fleet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"axectl/internal/logging"
)

const (
	// cacheFileName is the registry persistence file inside the cache dir.
	cacheFileName = "devices.json"

	// CacheVersion is the current on-disk cache format version.
	CacheVersion = 2

	// CacheTTL is the age after which a cached entry is considered stale
	// and dropped by a prune sweep.
	CacheTTL = 7 * 24 * time.Hour
)

// CacheEntry wraps a persisted device with its write timestamp and the
// stats retained at save time.
type CacheEntry struct {
	Device      Device          `json:"device"`
	LatestStats *StatsSnapshot  `json:"latest_stats,omitempty"`
	History     []StatsSnapshot `json:"stats_history,omitempty"`
	WrittenAt   time.Time       `json:"written_at"`
}

// cacheFile is the on-disk structure. Unknown fields are ignored on read so
// the format stays forward-compatible; the file is fully rewritten on save.
type cacheFile struct {
	Version   int          `json:"version"`
	UpdatedAt time.Time    `json:"last_updated"`
	Devices   []CacheEntry `json:"devices"`
}

// Cache is the persisted wrapper around the registry. It is advisory: a
// stale or missing cache never blocks discovery, it only pre-seeds
// candidate addresses to probe first.
type Cache struct {
	dir     string
	entries map[string]CacheEntry // keyed by device ID
}

// LoadCache reads the cache from dir. A missing, corrupt, or
// unsupported-version file degrades to an empty cache; read failures are
// logged, never returned, so a broken cache cannot block discovery.
func LoadCache(dir string) *Cache {
	c := &Cache{dir: dir, entries: make(map[string]CacheEntry)}

	data, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Failed to read device cache", zap.Error(err))
		}
		return c
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		logging.Warn("Failed to parse device cache, starting fresh", zap.Error(err))
		return c
	}
	if f.Version != CacheVersion {
		logging.Warn("Unsupported cache version, starting fresh",
			zap.Int("version", f.Version))
		return c
	}

	for _, e := range f.Devices {
		if e.Device.ID == "" {
			continue
		}
		c.entries[e.Device.ID] = e
	}
	return c
}

// Dir returns the directory the cache persists into.
func (c *Cache) Dir() string { return c.dir }

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }

// KnownIPs returns the cached device addresses, used by discovery as a
// priority probe queue ahead of the full address range.
func (c *Cache) KnownIPs() []string {
	ips := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Device.IP != "" {
			ips = append(ips, e.Device.IP)
		}
	}
	sort.Strings(ips)
	return ips
}

// Entries returns the cached entries ordered by device ID.
func (c *Cache) Entries() []CacheEntry {
	out := make([]CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device.ID < out[j].Device.ID })
	return out
}

// Put records a device (and its stats history, if any) with the current
// time as the write timestamp.
func (c *Cache) Put(d Device, latest *StatsSnapshot, history []StatsSnapshot) {
	c.entries[d.ID] = CacheEntry{
		Device:      d,
		LatestStats: latest,
		History:     history,
		WrittenAt:   time.Now(),
	}
}

// CaptureRegistry replaces the cache contents with the registry's current
// devices and their retained stats.
func (c *Cache) CaptureRegistry(reg *Registry) {
	c.entries = make(map[string]CacheEntry, reg.Len())
	for _, d := range reg.Snapshot() {
		var latest *StatsSnapshot
		if s, ok := reg.LatestStats(d.ID); ok {
			latest = &s
		}
		c.Put(d, latest, reg.History(d.ID))
	}
}

// SeedRegistry merges the cached devices into the registry with
// Source=cache, preserving their persisted last-seen timestamps. Used by
// read paths (list, monitor) when no discovery has run this session.
func (c *Cache) SeedRegistry(reg *Registry) {
	for _, e := range c.Entries() {
		d := e.Device
		d.Source = SourceCache
		reg.Merge(d)
		for _, s := range e.History {
			reg.RecordStats(s)
		}
	}
}

// Prune drops entries older than ttl relative to now and returns the count
// removed.
func (c *Cache) Prune(now time.Time, ttl time.Duration) int {
	removed := 0
	for id, e := range c.entries {
		if now.Sub(e.WrittenAt) > ttl {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Save writes the full cache to disk, creating the directory if needed.
// The write is atomic: a temp file is renamed over the previous cache so a
// crash never leaves a truncated file behind.
func (c *Cache) Save() error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	f := cacheFile{
		Version:   CacheVersion,
		UpdatedAt: time.Now(),
		Devices:   c.Entries(),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize cache: %w", err)
	}

	path := filepath.Join(c.dir, cacheFileName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save cache file: %w", err)
	}
	return nil
}

// DefaultCacheDir returns the platform cache directory for axectl.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine cache directory: %w", err)
	}
	return filepath.Join(base, "axectl"), nil
}
