package fleet

import (
	"fmt"
	"strings"
	"time"
)

// DeviceType is the closed set of miner variants axectl can classify.
// Classification happens at merge time from API response content; anything
// that answers the identity endpoint but cannot be classified stays
// TypeUnknown rather than being dropped.
type DeviceType string

const (
	TypeBitaxe       DeviceType = "bitaxe"
	TypeBitaxeUltra  DeviceType = "bitaxe-ultra"
	TypeNerdqaxe     DeviceType = "nerdqaxe"
	TypeNerdqaxePlus DeviceType = "nerdqaxe-plus"
	TypeUnknown      DeviceType = "unknown"
)

// AllTypes enumerates every classification in display order.
var AllTypes = []DeviceType{TypeBitaxe, TypeBitaxeUltra, TypeNerdqaxe, TypeNerdqaxePlus, TypeUnknown}

// IsBitaxe reports whether the type is a Bitaxe variant.
func (t DeviceType) IsBitaxe() bool {
	return t == TypeBitaxe || t == TypeBitaxeUltra
}

// IsNerdqaxe reports whether the type is a NerdQAxe variant.
func (t DeviceType) IsNerdqaxe() bool {
	return t == TypeNerdqaxe || t == TypeNerdqaxePlus
}

// familyTypes selects the concrete types a family predicate covers.
func familyTypes(in func(DeviceType) bool) []DeviceType {
	var out []DeviceType
	for _, t := range AllTypes {
		if in(t) {
			out = append(out, t)
		}
	}
	return out
}

// ParseDeviceType parses a single specific device type name.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bitaxe":
		return TypeBitaxe, nil
	case "bitaxe-ultra", "bitaxe_ultra":
		return TypeBitaxeUltra, nil
	case "nerdqaxe":
		return TypeNerdqaxe, nil
	case "nerdqaxe-plus", "nerdqaxe_plus", "nerdqaxe++":
		return TypeNerdqaxePlus, nil
	case "unknown":
		return TypeUnknown, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown device type: %q", s)
	}
}

// ExpandTypeToken expands a CLI filter token into the device types it
// covers. "bitaxe" and "nerdqaxe" act as family selectors covering their
// variants; specific names select exactly one type.
func ExpandTypeToken(s string) ([]DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bitaxe":
		return familyTypes(DeviceType.IsBitaxe), nil
	case "nerdqaxe":
		return familyTypes(DeviceType.IsNerdqaxe), nil
	default:
		t, err := ParseDeviceType(s)
		if err != nil {
			return nil, err
		}
		return []DeviceType{t}, nil
	}
}

// Source records how a device was found. It is informational only and never
// affects device identity.
type Source string

const (
	SourceMDNS  Source = "mdns"
	SourceScan  Source = "scan"
	SourceCache Source = "cache"
)

// Device is the identity and last-known state of one physical unit.
type Device struct {
	// ID is the stable logical identifier (hostname or user-assigned
	// name), unique within the registry.
	ID string `json:"id"`

	// IP is the device's IPv4 address.
	IP string `json:"ip_address"`

	// MAC is the device MAC address when the device reported one. Used
	// for dedup across discovery methods.
	MAC string `json:"mac_address,omitempty"`

	// Type is the classified device variant.
	Type DeviceType `json:"device_type"`

	// Source records which discovery method found the device.
	Source Source `json:"source"`

	// FirstSeen is when the device first entered the registry.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is the timestamp of the most recent successful contact.
	LastSeen time.Time `json:"last_seen"`
}

// DedupKey is the identity key used by the registry merge: MAC when the
// device reported one, IP otherwise.
func (d Device) DedupKey() string {
	if d.MAC != "" {
		return strings.ToLower(d.MAC)
	}
	return d.IP
}

// String returns a human-readable one-liner for the device.
func (d Device) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.ID, d.Type, d.IP)
}

// StatsSnapshot is an immutable point-in-time read of one device. A new
// poll produces a new snapshot; old snapshots are retained only in the
// registry's bounded per-device history.
type StatsSnapshot struct {
	DeviceID       string    `json:"device_id"`
	TakenAt        time.Time `json:"taken_at"`
	HashrateMHS    float64   `json:"hashrate_mhs"`
	TempC          float64   `json:"temperature_celsius"`
	PowerW         float64   `json:"power_watts"`
	FanRPM         int       `json:"fan_speed_rpm"`
	SharesAccepted uint64    `json:"shares_accepted"`
	SharesRejected uint64    `json:"shares_rejected"`
	UptimeSeconds  uint64    `json:"uptime_seconds"`
}
