// Axectl manages a fleet of Bitaxe and NerdQAxe miners on the local
// network.
//
// It discovers devices via mDNS and subnet scanning, polls live stats,
// applies bulk commands (restarts, pool changes, fan speed, firmware
// updates), runs a continuous health monitor, and can expose the same
// operations over a local HTTP API.
//
// Usage:
//
//	axectl [command] [flags]
//
// See 'axectl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"axectl/internal/logging"
	"axectl/internal/version"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "axectl",
	Short: "Bitaxe and NerdQAxe fleet management",
	Long: `Manage a fleet of open-source ASIC miners on the local network.

axectl discovers Bitaxe and NerdQAxe devices, polls their stats, applies
bulk commands across the fleet, and monitors device health continuously.

Set AXECTL_LOG_LEVEL (debug, info, warn, error) to enable diagnostics on
stderr.`,
	Version: version.Full(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("axectl %s\n", version.Full())
	},
}
