package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"axectl/internal/dispatch"
	"axectl/internal/fleet"
	"axectl/internal/poller"
)

// fleetMetrics exposes fleet health on /metrics. A private registry keeps
// the endpoint free of Go runtime noise.
type fleetMetrics struct {
	registry *prometheus.Registry

	devices      *prometheus.GaugeVec
	online       prometheus.Gauge
	unreachable  prometheus.Gauge
	hashrateMHS  prometheus.Gauge
	powerWatts   prometheus.Gauge
	avgTempC     prometheus.Gauge
	polls        prometheus.Counter
	discoveries  prometheus.Counter
	bulkCommands *prometheus.CounterVec
}

func newFleetMetrics() *fleetMetrics {
	m := &fleetMetrics{
		registry: prometheus.NewRegistry(),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "axectl_devices",
			Help: "Registered devices by type.",
		}, []string{"type"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "axectl_devices_online",
			Help: "Devices that answered the most recent poll.",
		}),
		unreachable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "axectl_devices_unreachable",
			Help: "Devices that failed the most recent poll.",
		}),
		hashrateMHS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "axectl_fleet_hashrate_mhs",
			Help: "Total fleet hashrate in MH/s from the most recent poll.",
		}),
		powerWatts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "axectl_fleet_power_watts",
			Help: "Total fleet power draw in watts from the most recent poll.",
		}),
		avgTempC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "axectl_fleet_avg_temp_celsius",
			Help: "Average chip temperature across online devices.",
		}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axectl_polls_total",
			Help: "Completed stats polls.",
		}),
		discoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axectl_discoveries_total",
			Help: "Completed discovery passes.",
		}),
		bulkCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "axectl_bulk_commands_total",
			Help: "Bulk commands by action and result.",
		}, []string{"action", "result"}),
	}

	m.registry.MustRegister(
		m.devices,
		m.online,
		m.unreachable,
		m.hashrateMHS,
		m.powerWatts,
		m.avgTempC,
		m.polls,
		m.discoveries,
		m.bulkCommands,
	)
	return m
}

func (m *fleetMetrics) observeFleet(devices []fleet.Device) {
	counts := make(map[fleet.DeviceType]int)
	for _, d := range devices {
		counts[d.Type]++
	}
	m.devices.Reset()
	for typ, n := range counts {
		m.devices.WithLabelValues(string(typ)).Set(float64(n))
	}
}

func (m *fleetMetrics) observePoll(s poller.SwarmSummary) {
	m.polls.Inc()
	m.online.Set(float64(s.Online))
	m.unreachable.Set(float64(s.Unreachable))
	m.hashrateMHS.Set(s.TotalHashrateMHS)
	m.powerWatts.Set(s.TotalPowerW)
	m.avgTempC.Set(s.AvgTempC)
}

func (m *fleetMetrics) observeBulk(o dispatch.Outcome) {
	action := string(o.Command.Action)
	if o.DryRun {
		m.bulkCommands.WithLabelValues(action, "dry_run").Inc()
		return
	}
	if o.Succeeded > 0 {
		m.bulkCommands.WithLabelValues(action, "ok").Add(float64(o.Succeeded))
	}
	if o.Failed > 0 {
		m.bulkCommands.WithLabelValues(action, "error").Add(float64(o.Failed))
	}
}
