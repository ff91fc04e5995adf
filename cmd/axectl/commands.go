package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"axectl/internal/config"
	"axectl/internal/fleet"
	"axectl/internal/monitor"
	"axectl/internal/ops"
	"axectl/internal/output"
	"axectl/internal/server"
	"axectl/internal/ui"
)

// Shared command flags
var (
	cacheDir     string
	outputFormat string

	// target selection
	filterTypes string
	filterIPs   string

	// discover
	discoverNetwork string
	discoverTimeout int
	discoverWorkers int
	discoverNoMDNS  bool

	// stats
	statsParallel int
	statsWatch    int

	// monitor
	monitorInterval  int
	monitorTempC     float64
	monitorDropPct   float64
	monitorDashboard bool

	// serve
	serveListen string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Override the device cache directory")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format (table, json)")

	for _, cmd := range []*cobra.Command{listCmd, statsCmd, monitorCmd} {
		cmd.Flags().StringVar(&filterTypes, "type", "", "Filter by device type (bitaxe, bitaxe-ultra, nerdqaxe, nerdqaxe-plus; family names match all variants)")
		cmd.Flags().StringVar(&filterIPs, "ip", "", "Filter by IP address (comma-separated)")
	}

	discoverCmd.Flags().StringVar(&discoverNetwork, "network", "", "CIDR to scan (default: auto-detect local networks)")
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout-ms", 0, "Per-host probe timeout in milliseconds")
	discoverCmd.Flags().IntVar(&discoverWorkers, "parallel", 0, "Concurrent probes")
	discoverCmd.Flags().BoolVar(&discoverNoMDNS, "no-mdns", false, "Skip the mDNS browse phase")

	statsCmd.Flags().IntVar(&statsParallel, "parallel", 0, "Concurrent device fetches")
	statsCmd.Flags().IntVar(&statsWatch, "watch", 0, "Re-poll every N seconds until interrupted")

	monitorCmd.Flags().IntVar(&monitorInterval, "interval", 0, "Seconds between polls")
	monitorCmd.Flags().Float64Var(&monitorTempC, "temp-threshold", 0, "Temperature alert threshold in °C")
	monitorCmd.Flags().Float64Var(&monitorDropPct, "drop-pct", 0, "Hashrate drop alert threshold in percent")
	monitorCmd.Flags().BoolVar(&monitorDashboard, "dashboard", false, "Render a live terminal dashboard instead of log lines")

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to bind the API server (default 127.0.0.1:8720)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(wifiScanCmd)
	rootCmd.AddCommand(serveCmd)
}

// newService loads preferences and the cached fleet.
func newService() (*ops.Service, error) {
	prefs, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cacheDir != "" {
		prefs.CacheDir = cacheDir
	}
	return ops.NewService(prefs)
}

// targetFilter builds the device filter from --type/--ip. Read commands
// default to everything.
func targetFilter() (fleet.Filter, error) {
	if filterTypes == "" && filterIPs == "" {
		return fleet.FilterAll(), nil
	}
	return fleet.ParseFilter(false, filterTypes, filterIPs)
}

// signalContext returns a context cancelled by Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find miners on the local network",
	Long: `Discover Bitaxe and NerdQAxe devices via mDNS and a subnet scan.

Both paths run concurrently and every responding address is probed over
HTTP to confirm it is actually a miner. Results merge into the device
cache, so repeated runs update rather than duplicate.`,
	Example: `  # Scan the auto-detected local network
  axectl discover

  # Scan an explicit range without mDNS
  axectl discover --network 192.168.1.0/24 --no-mdns`,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	fmt.Println("Scanning for miners...")
	report, err := svc.Discover(ctx, ops.DiscoverOptions{
		Network:     discoverNetwork,
		Timeout:     time.Duration(discoverTimeout) * time.Millisecond,
		Parallel:    discoverWorkers,
		DisableMDNS: discoverNoMDNS,
	})
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if outputFormat == "json" {
		out, err := output.RenderJSON(map[string]any{
			"addresses_scanned": report.AddressesScanned,
			"found":             report.Found,
			"inserted":          report.Inserted,
			"updated":           report.Updated,
			"duration_ms":       report.Duration.Milliseconds(),
			"devices":           svc.Devices(fleet.FilterAll()),
		})
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	fmt.Printf("Scanned %d addresses in %s: %d miners (%d new, %d updated)\n\n",
		report.AddressesScanned, report.Duration.Round(time.Millisecond),
		report.Found, report.Inserted, report.Updated)
	fmt.Print(output.DeviceTable(svc.Devices(fleet.FilterAll()), time.Now()))
	return nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known devices",
	Long: `List devices from the local cache without touching the network.

Devices unseen for more than seven days age out of the cache; run a
discover to refresh.`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	f, err := targetFilter()
	if err != nil {
		return err
	}

	devices := svc.Devices(f)
	if outputFormat == "json" {
		out, err := output.RenderJSON(map[string]any{"devices": devices})
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}
	fmt.Print(output.DeviceTable(devices, time.Now()))
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Poll live stats from the fleet",
	Long: `Fetch current hashrate, temperature, power, and share counts from
every known device. Unreachable devices are listed as offline rather than
omitted.`,
	Example: `  # Poll everything
  axectl stats

  # Only the NerdQAxe family, as JSON
  axectl stats --type nerdqaxe --format json`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	f, err := targetFilter()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	if err := pollOnce(ctx, svc, f); err != nil {
		return err
	}
	if statsWatch <= 0 {
		return nil
	}

	ticker := time.NewTicker(time.Duration(statsWatch) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := pollOnce(ctx, svc, f); err != nil {
				return err
			}
		}
	}
}

func pollOnce(ctx context.Context, svc *ops.Service, f fleet.Filter) error {
	samples, summary, err := svc.Poll(ctx, f, statsParallel, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist cache: %v\n", err)
	}

	if outputFormat == "json" {
		out, err := output.RenderJSON(map[string]any{"devices": samples, "summary": summary})
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	if statsWatch > 0 {
		fmt.Printf("--- %s ---\n", time.Now().Format("15:04:05"))
	}
	fmt.Print(output.StatsTable(samples))
	fmt.Print(output.SummaryBlock(summary))
	return nil
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Continuously watch fleet health",
	Long: `Poll the fleet on an interval and alert on overheating, hashrate
drops relative to recent history, and unreachable devices. Alerts repeat
every tick while their condition holds.

With --dashboard the terminal shows a live view instead of log lines.`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	f, err := targetFilter()
	if err != nil {
		return err
	}
	if len(svc.Devices(f)) == 0 {
		return fmt.Errorf("no devices to monitor; run a discover first")
	}

	ctx, cancel := signalContext()
	defer cancel()

	cfg := monitor.Config{
		Interval:        time.Duration(monitorInterval) * time.Second,
		TempThresholdC:  monitorTempC,
		HashrateDropPct: monitorDropPct,
		Filter:          f,
	}

	if monitorDashboard {
		return runMonitorDashboard(ctx, cancel, svc, cfg)
	}

	err = svc.Monitor(ctx, cfg, func(r monitor.TickReport) {
		fmt.Printf("[%s] %d online, %d unreachable, %s\n",
			r.At.Format("15:04:05"), r.Summary.Online, r.Summary.Unreachable,
			output.FormatHashrate(r.Summary.TotalHashrateMHS))
		for _, a := range r.Alerts {
			fmt.Println(ui.AlertStyle.Render("  " + ui.AlertMarker + " " + a.Message))
		}
	})
	if err == context.Canceled {
		return nil
	}
	return err
}

// runMonitorDashboard drives the bubbletea view from the monitor loop.
func runMonitorDashboard(ctx context.Context, cancel context.CancelFunc, svc *ops.Service, cfg monitor.Config) error {
	reports := make(chan monitor.TickReport, 1)
	go func() {
		defer close(reports)
		_ = svc.Monitor(ctx, cfg, func(r monitor.TickReport) {
			select {
			case reports <- r:
			case <-ctx.Done():
			}
		})
	}()

	program := tea.NewProgram(ui.NewDashboard(reports), tea.WithAltScreen())
	_, err := program.Run()
	cancel()
	return err
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id-or-ip>",
	Short: "Remove a device from the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		removed, err := svc.Forget(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no device matching %q", args[0])
		}
		fmt.Printf("%s forgotten\n", args[0])
		return nil
	},
}

var wifiScanCmd = &cobra.Command{
	Use:   "wifi-scan <id-or-ip>",
	Short: "Ask a device to scan for WiFi networks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		result, err := svc.WifiScan(ctx, args[0])
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			out, err := output.RenderJSON(result)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		}
		if len(result.Networks) == 0 {
			fmt.Println("No networks found.")
			return nil
		}
		for _, n := range result.Networks {
			fmt.Printf("  %-32s %4d dBm  ch %d\n", n.SSID, n.RSSI, n.Channel)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local fleet API server",
	Long: `Expose the fleet over a local HTTP API: device listing, discovery,
stats polls, bulk commands, a websocket stats stream, and Prometheus
metrics on /metrics.

The server has no authentication and binds loopback by default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		listen := serveListen
		if listen == "" {
			listen = svc.Prefs.Server.Listen
		}
		srv, err := server.New(&server.Config{Listen: listen}, svc)
		if err != nil {
			return err
		}
		return srv.Start()
	},
}
