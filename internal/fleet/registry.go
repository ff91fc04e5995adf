package fleet

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"axectl/internal/logging"
)

// ErrNotFound is returned when a target id/ip is not in the registry.
var ErrNotFound = errors.New("device not found")

// HistoryLimit bounds the per-device stats history retained in memory.
// The history feeds hashrate-drop detection; it is never persisted beyond
// the cache file.
const HistoryLimit = 10

// MergeOutcome describes what a Registry.Merge call did.
type MergeOutcome int

const (
	MergeUnchanged MergeOutcome = iota
	MergeInserted
	MergeUpdated
)

// String returns the lowercase name of the outcome.
func (o MergeOutcome) String() string {
	switch o {
	case MergeInserted:
		return "inserted"
	case MergeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Registry is the table of known devices. It is the only mutable shared
// state in the system: all mutations go through Merge, RecordStats,
// EvictExpired and Deregister under a single lock, and readers take
// immutable snapshots via List/Snapshot.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by device ID
	history map[string][]StatsSnapshot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		history: make(map[string][]StatsSnapshot),
	}
}

// Merge folds a discovered candidate into the registry. The dedup key is
// the MAC address when present, the IP address otherwise; a candidate that
// matches an existing entry updates its mutable fields in place and
// preserves the original ID. Discovery via multiple methods therefore never
// creates duplicates for the same physical unit.
func (r *Registry) Merge(candidate Device) MergeOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.findLocked(candidate)
	if existing == nil {
		d := candidate
		if d.ID == "" {
			d.ID = "device-" + d.IP
		}
		// Hostname collisions between distinct physical units get an
		// IP-derived suffix so the ID stays unique.
		if _, taken := r.devices[d.ID]; taken {
			d.ID = d.ID + "-" + lastOctet(d.IP)
		}
		if d.Type == "" {
			d.Type = TypeUnknown
		}
		if d.FirstSeen.IsZero() {
			d.FirstSeen = d.LastSeen
		}
		r.devices[d.ID] = &d
		logging.LogMergeOutcome(d.ID, d.IP, "inserted")
		return MergeInserted
	}

	changed := false
	// Favor the newest address when the same unit reappears elsewhere. A
	// DHCP reshuffle can land it on an address another entry still holds;
	// that entry is stale, so absorb it to keep one device per IP.
	if candidate.IP != "" && candidate.IP != existing.IP {
		for id, d := range r.devices {
			if d.IP == candidate.IP && id != existing.ID {
				delete(r.devices, id)
				delete(r.history, id)
				logging.LogMergeOutcome(id, candidate.IP, "absorbed")
			}
		}
		existing.IP = candidate.IP
		changed = true
	}
	if candidate.MAC != "" && !strings.EqualFold(candidate.MAC, existing.MAC) {
		existing.MAC = candidate.MAC
		changed = true
	}
	// Unknown never downgrades an established classification.
	if candidate.Type != "" && candidate.Type != TypeUnknown && candidate.Type != existing.Type {
		existing.Type = candidate.Type
		changed = true
	}
	if candidate.Source != "" && candidate.Source != existing.Source {
		existing.Source = candidate.Source
		changed = true
	}
	if candidate.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = candidate.LastSeen
		changed = true
	}
	if changed {
		logging.LogMergeOutcome(existing.ID, existing.IP, "updated")
		return MergeUpdated
	}
	return MergeUnchanged
}

// findLocked locates the entry the candidate deduplicates against: first by
// dedup key (MAC when the candidate has one, IP otherwise), then by plain IP
// so a candidate that gained a MAC still folds into its MAC-less entry. The
// IP fallback also enforces the at-most-one-device-per-IP invariant.
func (r *Registry) findLocked(candidate Device) *Device {
	if key := candidate.DedupKey(); key != "" {
		for _, d := range r.devices {
			if d.DedupKey() == key {
				return d
			}
		}
	}
	if candidate.IP != "" {
		for _, d := range r.devices {
			if d.IP == candidate.IP {
				return d
			}
		}
	}
	return nil
}

// Get resolves a device by logical ID or IP address.
func (r *Registry) Get(idOrIP string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.devices[idOrIP]; ok {
		return *d, nil
	}
	for _, d := range r.devices {
		if d.IP == idOrIP {
			return *d, nil
		}
	}
	return Device{}, ErrNotFound
}

// List returns the devices matching the filter, ordered by ID. The result
// is a copy; callers own it for the duration of their operation.
func (r *Registry) List(f Filter) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		if f.Matches(*d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns a copy of every device, ordered by ID.
func (r *Registry) Snapshot() []Device {
	return r.List(FilterAll())
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// EvictExpired removes devices not seen within ttl of now and returns the
// count removed. Unaffected entries are preserved unchanged. This is the
// only implicit removal path; a failed poll never drops a device.
func (r *Registry) EvictExpired(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, d := range r.devices {
		if now.Sub(d.LastSeen) > ttl {
			delete(r.devices, id)
			delete(r.history, id)
			removed++
		}
	}
	return removed
}

// Deregister explicitly removes a device by ID or IP.
func (r *Registry) Deregister(idOrIP string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[idOrIP]; ok {
		delete(r.devices, idOrIP)
		delete(r.history, idOrIP)
		return true
	}
	for id, d := range r.devices {
		if d.IP == idOrIP {
			delete(r.devices, id)
			delete(r.history, id)
			return true
		}
	}
	return false
}

// RecordStats appends a snapshot to the device's bounded history and bumps
// its last-seen timestamp. Snapshots for unknown devices are dropped.
func (r *Registry) RecordStats(s StatsSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[s.DeviceID]
	if !ok {
		return
	}
	if s.TakenAt.After(d.LastSeen) {
		d.LastSeen = s.TakenAt
	}
	h := append(r.history[s.DeviceID], s)
	if len(h) > HistoryLimit {
		h = h[len(h)-HistoryLimit:]
	}
	r.history[s.DeviceID] = h
}

// LatestStats returns the most recent snapshot for a device, if any.
func (r *Registry) LatestStats(deviceID string) (StatsSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := r.history[deviceID]
	if len(h) == 0 {
		return StatsSnapshot{}, false
	}
	return h[len(h)-1], true
}

// History returns a copy of the retained snapshots for a device, oldest
// first.
func (r *Registry) History(deviceID string) []StatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := r.history[deviceID]
	out := make([]StatsSnapshot, len(h))
	copy(out, h)
	return out
}

func lastOctet(ip string) string {
	if i := strings.LastIndex(ip, "."); i >= 0 && i+1 < len(ip) {
		return ip[i+1:]
	}
	return ip
}
