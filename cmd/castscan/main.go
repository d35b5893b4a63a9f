// Castscan discovers smart TVs and media renderers on the local network.
//
// It searches with SSDP and mDNS, consolidates the services it finds into
// devices, and can list them once, watch them live, or serve them over an
// HTTP API with a WebSocket event stream.
//
// Usage:
//
//	castscan [command] [flags]
//
// See 'castscan --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	logLevel     string
	configPath   string
	outputFormat string
	ifaceName    string
)

var rootCmd = &cobra.Command{
	Use:   "castscan",
	Short: "Smart TV discovery",
	Long: `Discover smart TVs and media renderers on the local network.

castscan searches with SSDP (DIAL and DLNA renderers) and mDNS (Google Cast,
AirPlay and any configured service type), merges the services it finds into
devices, and remembers them between runs.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return err
		}
		return validateFormat(outputFormat)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to $"+logging.LogLevelEnvVar)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: OS config directory)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatAuto, "Output format (auto, table, plain, json)")
	rootCmd.PersistentFlags().StringVar(&ifaceName, "interface", "", "Network interface for multicast (overrides preferences)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("castscan %s\n", version.Full())
	},
}
