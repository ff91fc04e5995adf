package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"axectl/internal/axeapi"
	"axectl/internal/fleet"
	"axectl/internal/logging"
)

const (
	// DefaultParallel caps concurrent device commands. Bulk writes are
	// deliberately slower than polling; a misfired command hurts more
	// than a slow one.
	DefaultParallel = 5

	// DefaultTimeout bounds one device command. OTA uploads are handed
	// off to the device, so even firmware updates return quickly.
	DefaultTimeout = 15 * time.Second
)

// ExecFunc applies one resolved command to one device. Injected in tests;
// the default implementation talks to the device over HTTP.
type ExecFunc func(ctx context.Context, dev fleet.Device, cmd Command) error

// Result is the outcome for a single target.
type Result struct {
	Device fleet.Device
	Err    error
}

// Outcome summarizes a bulk run. When DryRun is set, no device was
// contacted and Results is empty; Targets still lists what would have been
// touched.
type Outcome struct {
	RunID     string
	Command   Command
	DryRun    bool
	Targets   []fleet.Device
	Results   []Result
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// ConfirmationRequired reports whether this outcome is a dry run awaiting
// explicit confirmation.
func (o Outcome) ConfirmationRequired() bool {
	return o.DryRun
}

// Dispatcher applies one command across many devices with bounded
// concurrency.
type Dispatcher struct {
	parallel int
	timeout  time.Duration
	exec     ExecFunc
}

// New creates a dispatcher that executes over HTTP. Non-positive arguments
// select the defaults.
func New(parallel int, timeout time.Duration) *Dispatcher {
	if parallel <= 0 {
		parallel = DefaultParallel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		parallel: parallel,
		timeout:  timeout,
		exec: func(ctx context.Context, dev fleet.Device, cmd Command) error {
			return execHTTP(ctx, dev, cmd, timeout)
		},
	}
}

// Dispatch applies cmd to every device. The command is validated before
// any network traffic; a destructive command without confirmation returns
// a dry-run Outcome listing the targets, again without network traffic.
//
// Execution order across devices is unspecified, but Results always lines
// up with the input slice.
func (d *Dispatcher) Dispatch(ctx context.Context, devices []fleet.Device, cmd Command, confirmed bool) (Outcome, error) {
	if err := cmd.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("invalid command: %w", err)
	}

	outcome := Outcome{
		RunID:   uuid.NewString(),
		Command: cmd,
		Targets: devices,
	}
	if len(devices) == 0 {
		return outcome, fmt.Errorf("no matching devices")
	}

	if cmd.Destructive() && !confirmed {
		outcome.DryRun = true
		return outcome, nil
	}

	start := time.Now()
	logging.Info(fmt.Sprintf("bulk run %s: %s across %d devices", outcome.RunID, cmd.Describe(), len(devices)))

	results := make([]Result, len(devices))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < d.parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				dev := devices[i]
				execCtx, cancel := context.WithTimeout(ctx, d.timeout)
				err := d.exec(execCtx, dev, cmd.resolveFor(dev))
				cancel()
				results[i] = Result{Device: dev, Err: err}
			}
		}()
	}
	for i := range devices {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	outcome.Results = results
	outcome.Duration = time.Since(start)
	for _, r := range results {
		if r.Err == nil {
			outcome.Succeeded++
		} else {
			outcome.Failed++
			logging.Warn(fmt.Sprintf("bulk run %s: %s failed: %v", outcome.RunID, r.Device.ID, r.Err))
		}
	}
	return outcome, nil
}

// execHTTP is the production executor.
func execHTTP(ctx context.Context, dev fleet.Device, cmd Command, timeout time.Duration) error {
	client := axeapi.NewClient(dev.IP, timeout)
	switch cmd.Action {
	case ActionRestart:
		return client.Restart(ctx)
	case ActionSetFanSpeed:
		if err := client.SetFanSpeed(ctx, cmd.FanSpeed); err != nil {
			return err
		}
		if cmd.RestartAfter {
			return client.Restart(ctx)
		}
		return nil
	case ActionSetPool:
		req := axeapi.UpdateRequest{
			PoolURL:  &cmd.PoolURL,
			PoolPort: &cmd.PoolPort,
			PoolUser: &cmd.PoolUser,
		}
		if err := client.UpdateSystem(ctx, req); err != nil {
			return err
		}
		return client.Restart(ctx)
	case ActionUpdateFirmware:
		return client.UpdateFirmware(ctx, cmd.ImageURL)
	case ActionUpdateWebUI:
		return client.UpdateWebUI(ctx, cmd.ImageURL)
	case ActionWifiScan:
		_, err := client.ScanWifi(ctx)
		return err
	}
	return fmt.Errorf("unknown action %q", cmd.Action)
}
