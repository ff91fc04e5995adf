package poller

import (
	"axectl/internal/fleet"
)

// TypeSummary aggregates the online devices of one device type.
type TypeSummary struct {
	Count            int
	TotalHashrateMHS float64
	TotalPowerW      float64
}

// SwarmSummary aggregates one poll across the fleet. Only online devices
// contribute to the hashrate, power, and temperature figures.
type SwarmSummary struct {
	Total            int
	Online           int
	Unreachable      int
	TotalHashrateMHS float64
	TotalPowerW      float64
	AvgTempC         float64
	// EfficiencyJTH is joules per terahash across the online fleet, the
	// usual comparison figure for small miners. Zero when no hashrate.
	EfficiencyJTH float64
	PerType       map[fleet.DeviceType]TypeSummary
}

// Summarize folds a poll result into fleet-wide totals.
func Summarize(samples []Sample) SwarmSummary {
	s := SwarmSummary{
		Total:   len(samples),
		PerType: make(map[fleet.DeviceType]TypeSummary),
	}

	var tempSum float64
	for _, sample := range samples {
		if sample.Err != nil {
			s.Unreachable++
			continue
		}
		s.Online++
		s.TotalHashrateMHS += sample.Snapshot.HashrateMHS
		s.TotalPowerW += sample.Snapshot.PowerW
		tempSum += sample.Snapshot.TempC

		ts := s.PerType[sample.Device.Type]
		ts.Count++
		ts.TotalHashrateMHS += sample.Snapshot.HashrateMHS
		ts.TotalPowerW += sample.Snapshot.PowerW
		s.PerType[sample.Device.Type] = ts
	}

	if s.Online > 0 {
		s.AvgTempC = tempSum / float64(s.Online)
	}
	if s.TotalHashrateMHS > 0 {
		// MH/s to TH/s is a factor of 1e6; watts per TH/s equals J/TH.
		s.EfficiencyJTH = s.TotalPowerW / (s.TotalHashrateMHS / 1e6)
	}
	return s
}
