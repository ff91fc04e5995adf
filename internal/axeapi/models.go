package axeapi

import (
	"strings"
	"time"

	"axectl/internal/fleet"
)

// SystemInfo is the unified view of a device's /api/system/info payload.
// Bitaxe and NerdQAxe firmwares return slightly different shapes; the JSON
// tags below cover both dialects and unknown fields are ignored, so newer
// firmware revisions keep parsing.
type SystemInfo struct {
	// DeviceModel is only present on NerdQAxe firmware and is the
	// discriminator between the two dialects.
	DeviceModel     string  `json:"deviceModel"`
	ASICModel       string  `json:"ASICModel"`
	BoardVersion    string  `json:"boardVersion"`
	FirmwareVersion string  `json:"version"`
	MACAddress      string  `json:"macAddr"`
	Hostname        string  `json:"hostname"`
	SSID            string  `json:"ssid"`
	WifiStatus      string  `json:"wifiStatus"`
	WifiRSSI        int     `json:"wifiRSSI"`
	PoolURL         string  `json:"stratumURL"`
	PoolPort        int     `json:"stratumPort"`
	PoolUser        string  `json:"stratumUser"`
	Frequency       int     `json:"frequency"`
	Voltage         float64 `json:"voltage"`
	Fanspeed        int     `json:"fanspeed"`
	FanRPM          int     `json:"fanrpm"`
	Temp            float64 `json:"temp"`
	Power           float64 `json:"power"`
	HashRate        float64 `json:"hashRate"`
	UptimeSeconds   uint64  `json:"uptimeSeconds"`
	SharesAccepted  uint64  `json:"sharesAccepted"`
	SharesRejected  uint64  `json:"sharesRejected"`
	BestDifficulty  string  `json:"bestDiff"`
}

// Identified reports whether the payload carried enough fields to be
// treated as a miner identity response at all. Anything else that answered
// still classifies as unknown rather than being dropped.
func (s *SystemInfo) Identified() bool {
	return s.Hostname != "" && (s.ASICModel != "" || s.DeviceModel != "")
}

// Classify maps the response content onto the closed device-type set.
//
// NerdQAxe firmware always reports deviceModel; a "+" in the model string
// marks the plus variant. Bitaxe firmware reports only ASICModel: BM1366
// boards are the Ultra, any other BM-series ASIC is a plain Bitaxe. A
// response that answers the endpoint but matches neither shape is unknown.
func (s *SystemInfo) Classify() fleet.DeviceType {
	if s.DeviceModel != "" {
		if strings.Contains(s.DeviceModel, "+") || strings.Contains(strings.ToLower(s.DeviceModel), "plus") {
			return fleet.TypeNerdqaxePlus
		}
		return fleet.TypeNerdqaxe
	}
	if s.ASICModel != "" && s.Hostname != "" {
		if strings.Contains(strings.ToLower(s.ASICModel), "bm1366") {
			return fleet.TypeBitaxeUltra
		}
		if strings.HasPrefix(strings.ToUpper(s.ASICModel), "BM") {
			return fleet.TypeBitaxe
		}
	}
	return fleet.TypeUnknown
}

// Device converts the identity payload into a registry candidate.
func (s *SystemInfo) Device(ip string, source fleet.Source) fleet.Device {
	id := s.Hostname
	if id == "" {
		id = "device-" + ip
	}
	return fleet.Device{
		ID:       id,
		IP:       ip,
		MAC:      s.MACAddress,
		Type:     s.Classify(),
		Source:   source,
		LastSeen: time.Now(),
	}
}

// Snapshot converts the stats fields into an immutable snapshot for the
// given registry device.
func (s *SystemInfo) Snapshot(deviceID string) fleet.StatsSnapshot {
	fan := s.FanRPM
	if fan == 0 {
		fan = s.Fanspeed
	}
	return fleet.StatsSnapshot{
		DeviceID:       deviceID,
		TakenAt:        time.Now(),
		HashrateMHS:    s.HashRate,
		TempC:          s.Temp,
		PowerW:         s.Power,
		FanRPM:         fan,
		SharesAccepted: s.SharesAccepted,
		SharesRejected: s.SharesRejected,
		UptimeSeconds:  s.UptimeSeconds,
	}
}

// UpdateRequest is the PATCH /api/system body. Only non-nil fields are
// sent; field names follow the AxeOS contract.
type UpdateRequest struct {
	SSID      *string  `json:"ssid,omitempty"`
	Password  *string  `json:"password,omitempty"`
	Hostname  *string  `json:"hostname,omitempty"`
	PoolURL   *string  `json:"poolurl,omitempty"`
	PoolPort  *int     `json:"poolport,omitempty"`
	PoolUser  *string  `json:"pooluser,omitempty"`
	Frequency *int     `json:"frequencyvalue,omitempty"`
	Voltage   *float64 `json:"voltagevalue,omitempty"`
	FanSpeed  *int     `json:"fanspeed,omitempty"`
}

// IsEmpty reports whether the request would send no fields.
func (r UpdateRequest) IsEmpty() bool {
	return r.SSID == nil && r.Password == nil && r.Hostname == nil &&
		r.PoolURL == nil && r.PoolPort == nil && r.PoolUser == nil &&
		r.Frequency == nil && r.Voltage == nil && r.FanSpeed == nil
}

// WifiNetwork is one network from a device-side WiFi scan.
type WifiNetwork struct {
	SSID       string `json:"ssid"`
	RSSI       int    `json:"rssi"`
	Channel    int    `json:"channel"`
	Encryption string `json:"encryption"`
}

// WifiScanResult is the GET /api/system/wifi/scan payload.
type WifiScanResult struct {
	Networks []WifiNetwork `json:"networks"`
}
