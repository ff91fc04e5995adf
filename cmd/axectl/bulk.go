package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"axectl/internal/dispatch"
	"axectl/internal/fleet"
	"axectl/internal/ops"
	"axectl/internal/output"
	"axectl/internal/ui"
)

// Bulk command flags
var (
	bulkAll      bool
	bulkTypes    string
	bulkIPs      string
	bulkYes      bool
	bulkParallel int

	fanSpeed     int
	fanRestart   bool
	poolURL      string
	poolPort     int
	poolUser     string
	firmwareURL  string
	webUIURL     string
)

func init() {
	for _, cmd := range []*cobra.Command{restartCmd, setFanCmd, setPoolCmd, updateFirmwareCmd, updateWebUICmd} {
		cmd.Flags().BoolVar(&bulkAll, "all", false, "Target every known device")
		cmd.Flags().StringVar(&bulkTypes, "type", "", "Target by device type (comma-separated)")
		cmd.Flags().StringVar(&bulkIPs, "ip", "", "Target by IP address (comma-separated)")
		cmd.Flags().BoolVar(&bulkYes, "yes", false, "Skip the confirmation prompt")
		cmd.Flags().IntVar(&bulkParallel, "parallel", 0, "Concurrent device operations")
		rootCmd.AddCommand(cmd)
	}

	setFanCmd.Flags().IntVar(&fanSpeed, "speed", -1, "Fan duty cycle percentage (0-100)")
	setFanCmd.Flags().BoolVar(&fanRestart, "restart", false, "Restart each device after applying")
	_ = setFanCmd.MarkFlagRequired("speed")

	setPoolCmd.Flags().StringVar(&poolURL, "url", "", "Stratum URL, e.g. stratum+tcp://pool.example.com")
	setPoolCmd.Flags().IntVar(&poolPort, "port", 0, "Stratum port")
	setPoolCmd.Flags().StringVar(&poolUser, "user", "", "Base worker name; each device appends its own ID")

	updateFirmwareCmd.Flags().StringVar(&firmwareURL, "url", "", "Firmware image URL")
	_ = updateFirmwareCmd.MarkFlagRequired("url")

	updateWebUICmd.Flags().StringVar(&webUIURL, "url", "", "Web UI image URL")
	_ = updateWebUICmd.MarkFlagRequired("url")
}

// bulkFilter builds the target filter for control commands. Unlike the
// read commands there is no default: the caller must name targets.
func bulkFilter() (fleet.Filter, error) {
	f, err := fleet.ParseFilter(bulkAll, bulkTypes, bulkIPs)
	if err != nil {
		return fleet.Filter{}, err
	}
	if f.IsZero() {
		return fleet.Filter{}, fmt.Errorf("no targets: pass --all, --type, or --ip")
	}
	return f, nil
}

// runBulk dispatches a command with the dry-run-then-confirm flow. The
// first dispatch of a destructive command never touches the network; only
// after the user (or --yes) approves the listed targets does it run for
// real.
func runBulk(svc *ops.Service, cmd dispatch.Command) error {
	f, err := bulkFilter()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	outcome, err := svc.Bulk(ctx, f, cmd, bulkYes, bulkParallel)
	if err != nil {
		return err
	}
	if outcome.ConfirmationRequired() {
		if !ui.ConfirmBulkOperation(cmd.Describe(), outcome.Targets) {
			fmt.Println("Aborted.")
			return nil
		}
		outcome, err = svc.Bulk(ctx, f, cmd, true, bulkParallel)
		if err != nil {
			return err
		}
	}
	return printOutcome(outcome)
}

func printOutcome(o dispatch.Outcome) error {
	if outputFormat == "json" {
		rows := make([]map[string]any, 0, len(o.Results))
		for _, r := range o.Results {
			row := map[string]any{"id": r.Device.ID, "ip": r.Device.IP, "ok": r.Err == nil}
			if r.Err != nil {
				row["error"] = r.Err.Error()
			}
			rows = append(rows, row)
		}
		out, err := output.RenderJSON(map[string]any{
			"run_id":    o.RunID,
			"action":    o.Command.Action,
			"succeeded": o.Succeeded,
			"failed":    o.Failed,
			"results":   rows,
		})
		if err != nil {
			return err
		}
		fmt.Print(out)
	} else {
		for _, r := range o.Results {
			if r.Err != nil {
				fmt.Println(ui.ErrorStyle.Render(fmt.Sprintf("  %s %s (%s): %v", ui.FailureMarker, r.Device.ID, r.Device.IP, r.Err)))
			} else {
				fmt.Println(ui.SuccessStyle.Render(fmt.Sprintf("  %s %s (%s)", ui.SuccessMarker, r.Device.ID, r.Device.IP)))
			}
		}
		fmt.Printf("\n%d succeeded, %d failed (run %s)\n", o.Succeeded, o.Failed, o.RunID)
	}
	if o.Failed > 0 {
		return fmt.Errorf("%d of %d devices failed", o.Failed, len(o.Results))
	}
	return nil
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart devices",
	Long: `Restart every targeted device. Destructive: without --yes you get a
dry run listing the targets and a confirmation prompt before anything is
sent.`,
	Example: `  # Restart one device
  axectl restart --ip 192.168.1.50 --yes

  # Restart all NerdQAxes after confirming
  axectl restart --type nerdqaxe`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		return runBulk(svc, dispatch.Command{Action: dispatch.ActionRestart})
	},
}

var setFanCmd = &cobra.Command{
	Use:   "set-fan",
	Short: "Set fan speed on devices",
	Long: `Pin the fan duty cycle on every targeted device. Safe on its own;
with --restart it reboots the devices too and requires confirmation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		return runBulk(svc, dispatch.Command{
			Action:       dispatch.ActionSetFanSpeed,
			FanSpeed:     fanSpeed,
			RestartAfter: fanRestart,
		})
	},
}

var setPoolCmd = &cobra.Command{
	Use:   "set-pool",
	Short: "Point devices at a mining pool",
	Long: `Update the stratum pool on every targeted device and restart it so
the change takes effect. Each device mines as <user>.<device-id> so the
pool can tell workers apart.

Omitted flags fall back to the pool section of the preferences file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		c := dispatch.Command{
			Action:   dispatch.ActionSetPool,
			PoolURL:  poolURL,
			PoolPort: poolPort,
			PoolUser: poolUser,
		}
		if c.PoolURL == "" {
			c.PoolURL = svc.Prefs.Pool.URL
		}
		if c.PoolPort == 0 {
			c.PoolPort = svc.Prefs.Pool.Port
		}
		if c.PoolUser == "" {
			c.PoolUser = svc.Prefs.Pool.User
		}
		return runBulk(svc, c)
	},
}

var updateFirmwareCmd = &cobra.Command{
	Use:   "update-firmware",
	Short: "Flash firmware over the air",
	Long: `Send an OTA firmware image URL to every targeted device. The device
downloads and flashes it, then reboots. Destructive and unrecoverable if
the image is wrong, so the confirmation prompt always applies without
--yes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		return runBulk(svc, dispatch.Command{
			Action:   dispatch.ActionUpdateFirmware,
			ImageURL: firmwareURL,
		})
	},
}

var updateWebUICmd = &cobra.Command{
	Use:   "update-webui",
	Short: "Flash the web interface over the air",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		return runBulk(svc, dispatch.Command{
			Action:   dispatch.ActionUpdateWebUI,
			ImageURL: webUIURL,
		})
	},
}
