package dispatch

import (
	"fmt"
	"strings"

	"axectl/internal/fleet"
)

// Action names a bulk operation applied uniformly across targets.
type Action string

const (
	ActionRestart        Action = "restart"
	ActionSetFanSpeed    Action = "set-fan-speed"
	ActionSetPool        Action = "set-pool"
	ActionUpdateFirmware Action = "update-firmware"
	ActionUpdateWebUI    Action = "update-webui"
	ActionWifiScan       Action = "wifi-scan"
)

// Command is one bulk operation. Only the fields relevant to the Action
// are consulted.
type Command struct {
	Action Action

	// FanSpeed is the duty cycle percentage for ActionSetFanSpeed.
	FanSpeed int

	// Pool settings for ActionSetPool. PoolUser is the base worker
	// identity; each device gets its own ".{device-id}" suffix so the
	// pool dashboard can tell the miners apart.
	PoolURL  string
	PoolPort int
	PoolUser string

	// ImageURL is the OTA image for the firmware and web UI updates.
	ImageURL string

	// RestartAfter reboots each device after a successful settings
	// change, making it take effect immediately.
	RestartAfter bool
}

// Destructive reports whether the command interrupts mining or rewrites
// firmware. Destructive commands require explicit confirmation before any
// device is touched.
func (c Command) Destructive() bool {
	switch c.Action {
	case ActionRestart, ActionUpdateFirmware, ActionUpdateWebUI:
		return true
	case ActionSetPool:
		// A pool change only takes effect through a restart.
		return true
	case ActionSetFanSpeed:
		return c.RestartAfter
	}
	return false
}

// Validate checks the command before anything is dispatched. A bulk run
// with an invalid command fails as a whole; no device sees a partial or
// out-of-range request.
func (c Command) Validate() error {
	switch c.Action {
	case ActionRestart, ActionWifiScan:
		return nil
	case ActionSetFanSpeed:
		if c.FanSpeed < 0 || c.FanSpeed > 100 {
			return fmt.Errorf("fan speed %d%% out of range 0-100", c.FanSpeed)
		}
		return nil
	case ActionSetPool:
		if c.PoolURL == "" {
			return fmt.Errorf("pool URL is required")
		}
		if c.PoolPort < 1 || c.PoolPort > 65535 {
			return fmt.Errorf("pool port %d out of range 1-65535", c.PoolPort)
		}
		if c.PoolUser == "" {
			return fmt.Errorf("pool user is required")
		}
		if strings.Contains(c.PoolUser, " ") {
			return fmt.Errorf("pool user %q must not contain spaces", c.PoolUser)
		}
		return nil
	case ActionUpdateFirmware, ActionUpdateWebUI:
		if c.ImageURL == "" {
			return fmt.Errorf("image URL is required")
		}
		if !strings.HasPrefix(c.ImageURL, "http://") && !strings.HasPrefix(c.ImageURL, "https://") {
			return fmt.Errorf("image URL %q must be http or https", c.ImageURL)
		}
		return nil
	case "":
		return fmt.Errorf("no action specified")
	}
	return fmt.Errorf("unknown action %q", c.Action)
}

// resolveFor specializes the command for one target. The pool user suffix
// is applied here, exactly once per device.
func (c Command) resolveFor(dev fleet.Device) Command {
	if c.Action == ActionSetPool {
		c.PoolUser = c.PoolUser + "." + dev.ID
	}
	return c
}

// Describe renders the command for confirmation prompts and dry-run output.
func (c Command) Describe() string {
	switch c.Action {
	case ActionRestart:
		return "restart device"
	case ActionSetFanSpeed:
		s := fmt.Sprintf("set fan speed to %d%%", c.FanSpeed)
		if c.RestartAfter {
			s += " and restart"
		}
		return s
	case ActionSetPool:
		return fmt.Sprintf("point at pool %s:%d as %s.{device} and restart", c.PoolURL, c.PoolPort, c.PoolUser)
	case ActionUpdateFirmware:
		return fmt.Sprintf("flash firmware from %s", c.ImageURL)
	case ActionUpdateWebUI:
		return fmt.Sprintf("flash web UI from %s", c.ImageURL)
	case ActionWifiScan:
		return "scan for WiFi networks"
	}
	return string(c.Action)
}
