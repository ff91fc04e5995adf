package monitor

import (
	"context"
	"fmt"
	"time"

	"axectl/internal/fleet"
	"axectl/internal/logging"
	"axectl/internal/poller"
)

const (
	// DefaultInterval is the monitoring poll cadence.
	DefaultInterval = 30 * time.Second

	// DefaultTempThresholdC is the chip temperature above which a device
	// is considered running hot.
	DefaultTempThresholdC = 70.0

	// DefaultHashrateDropPct flags a device whose current hashrate fell
	// this far below its recent baseline.
	DefaultHashrateDropPct = 25.0
)

// AlertKind classifies a monitoring alert.
type AlertKind string

const (
	AlertTempHigh     AlertKind = "temp_high"
	AlertHashrateDrop AlertKind = "hashrate_drop"
	AlertUnreachable  AlertKind = "unreachable"
)

// Alert is one firing condition on one device. Alerts are level-triggered:
// the same alert is emitted on every tick the condition holds, and simply
// stops appearing once it clears.
type Alert struct {
	Kind     AlertKind
	DeviceID string
	Message  string
	At       time.Time
}

// TickReport is the outcome of one monitoring tick.
type TickReport struct {
	At      time.Time
	Samples []poller.Sample
	Summary poller.SwarmSummary
	Alerts  []Alert
}

// TickFunc receives each tick's report. Rendering is the caller's concern;
// the loop only produces data.
type TickFunc func(TickReport)

// Config controls the monitoring loop.
type Config struct {
	Interval        time.Duration
	TempThresholdC  float64
	HashrateDropPct float64
	Filter          fleet.Filter
}

// Loop polls the fleet on a fixed cadence, records history, and evaluates
// alert conditions against it.
type Loop struct {
	cfg    Config
	reg    *fleet.Registry
	poller *poller.Poller
	onTick TickFunc
}

// NewLoop creates a monitoring loop over the given registry. Zero config
// fields select the defaults.
func NewLoop(cfg Config, reg *fleet.Registry, p *poller.Poller, onTick TickFunc) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TempThresholdC <= 0 {
		cfg.TempThresholdC = DefaultTempThresholdC
	}
	if cfg.HashrateDropPct <= 0 {
		cfg.HashrateDropPct = DefaultHashrateDropPct
	}
	return &Loop{cfg: cfg, reg: reg, poller: p, onTick: onTick}
}

// Run ticks immediately, then on every interval until the context is
// cancelled. Cancellation is only observed between ticks; an in-flight poll
// finishes its bounded work first.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// Tick runs a single monitoring pass. Exposed for one-shot checks.
func (l *Loop) Tick(ctx context.Context) TickReport {
	return l.tick(ctx)
}

func (l *Loop) tick(ctx context.Context) TickReport {
	devices := l.reg.List(l.cfg.Filter)
	samples := l.poller.Poll(ctx, devices)

	// Alerts are evaluated before the new snapshots are recorded, so the
	// hashrate baseline covers recent history but never the tick being
	// judged.
	report := TickReport{
		At:      time.Now(),
		Samples: samples,
		Summary: poller.Summarize(samples),
		Alerts:  l.evaluate(samples),
	}

	for _, s := range samples {
		if s.Err == nil {
			l.reg.RecordStats(s.Snapshot)
		}
	}
	for _, a := range report.Alerts {
		logging.Warn(fmt.Sprintf("alert %s: %s", a.Kind, a.Message))
	}
	if l.onTick != nil {
		l.onTick(report)
	}
	return report
}

// evaluate derives the alerts for one tick. Pure with respect to the
// registry: it reads history, never writes it.
func (l *Loop) evaluate(samples []poller.Sample) []Alert {
	now := time.Now()
	var alerts []Alert
	for _, s := range samples {
		if s.Err != nil {
			alerts = append(alerts, Alert{
				Kind:     AlertUnreachable,
				DeviceID: s.Device.ID,
				Message:  fmt.Sprintf("%s (%s) did not answer: %v", s.Device.ID, s.Device.IP, s.Err),
				At:       now,
			})
			continue
		}

		if s.Snapshot.TempC > l.cfg.TempThresholdC {
			alerts = append(alerts, Alert{
				Kind:     AlertTempHigh,
				DeviceID: s.Device.ID,
				Message: fmt.Sprintf("%s at %.1f°C, above %.1f°C threshold",
					s.Device.ID, s.Snapshot.TempC, l.cfg.TempThresholdC),
				At: now,
			})
		}

		if baseline, ok := hashrateBaseline(l.reg.History(s.Device.ID)); ok && baseline > 0 {
			dropPct := (baseline - s.Snapshot.HashrateMHS) / baseline * 100
			if dropPct >= l.cfg.HashrateDropPct {
				alerts = append(alerts, Alert{
					Kind:     AlertHashrateDrop,
					DeviceID: s.Device.ID,
					Message: fmt.Sprintf("%s hashrate %.0f MH/s is %.0f%% below its %.0f MH/s baseline",
						s.Device.ID, s.Snapshot.HashrateMHS, dropPct, baseline),
					At: now,
				})
			}
		}
	}
	return alerts
}

// hashrateBaseline is the mean hashrate over the retained history. Returns
// false when there is no history to judge against.
func hashrateBaseline(history []fleet.StatsSnapshot) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	var sum float64
	for _, snap := range history {
		sum += snap.HashrateMHS
	}
	return sum / float64(len(history)), true
}
