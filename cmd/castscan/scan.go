package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/ui"
)

// Scan command flags
var (
	scanTimeout time.Duration
	scanAll     bool
	scanMDNS    []string
)

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 10*time.Second, "How long to search")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Include devices that do not match the capability filters")
	scanCmd.Flags().StringSliceVar(&scanMDNS, "mdns", nil, "mDNS service types to browse (\"none\" disables mDNS)")

	rootCmd.AddCommand(scanCmd)
}

// scanCmd searches for a fixed time and prints what was found
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Search the network for devices once",
	Long: `Search the network with SSDP and mDNS for a fixed time and print the
devices that were found.

Only devices matching the configured capability filters are printed unless
--all is given.`,
	Example: `  # Scan for 10 seconds (default)
  castscan scan

  # Longer scan, JSON output for scripting
  castscan scan --timeout 30s --format json

  # Google Cast only, no AirPlay browsing
  castscan scan --mdns _googlecast._tcp.local.`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(scanMDNS)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	format := resolveFormat(outputFormat)
	interactive := format == formatTable && ui.IsTerminal()

	start := time.Now()
	if interactive {
		err = scanInteractive(ctx, a)
	} else {
		err = scanQuiet(ctx, a)
	}
	if err != nil {
		return err
	}
	if serr := a.manager.Stop(); serr != nil {
		logging.Warn("Failed to stop discovery", zap.Error(serr))
	}
	a.manager.Flush()

	devices := a.manager.CompatibleDevices()
	if scanAll {
		devices = a.manager.AllDevices()
	}
	logging.Info("Scan finished",
		zap.Int("devices", len(devices)),
		zap.Duration("elapsed", time.Since(start)))

	out := cmd.OutOrStdout()
	if len(devices) == 0 && format != formatJSON {
		if format == formatTable {
			fmt.Fprintln(out, ui.NewFailureResult("No devices found",
				fmt.Errorf("nothing answered within %s", scanTimeout),
				ui.DiscoveryTroubleshooting...).Render())
		}
		return nil
	}

	if err := printDevices(out, viewsOf(devices), format); err != nil {
		return err
	}
	if format == formatTable {
		fmt.Fprintln(out, ui.NewSuccessResult(
			fmt.Sprintf("Found %d device(s)", len(devices)),
			ui.Param{Key: "Duration", Value: time.Since(start).Round(time.Second).String()},
			ui.Param{Key: "Next", Value: "castscan watch"},
		).Render())
	}
	return nil
}

// scanInteractive shows the progress screen while discovery runs
func scanInteractive(ctx context.Context, a *app) error {
	sub := a.manager.Subscribe(subscriptionBuffer)
	defer sub.Close()

	if err := a.manager.Start(ctx); err != nil {
		logging.Warn("Some providers failed to start", zap.Error(err))
	}

	header := ui.NewHeader("Device scan", "castscan scan", scanParams()...)
	model, err := ui.RunScan(sub.C, scanTimeout, header)
	if err != nil {
		return fmt.Errorf("scan screen failed: %w", err)
	}
	if model.Cancelled() {
		logging.Info("Scan cancelled", zap.Int("found", len(model.Found())))
	}
	return nil
}

// scanQuiet waits for the timeout or a signal without drawing anything
func scanQuiet(ctx context.Context, a *app) error {
	if err := a.manager.Start(ctx); err != nil {
		logging.Warn("Some providers failed to start", zap.Error(err))
	}

	timer := time.NewTimer(scanTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		logging.Info("Scan interrupted")
	}
	return nil
}

func scanParams() []ui.Param {
	params := []ui.Param{{Key: "Timeout", Value: scanTimeout.String()}}
	if ifaceName != "" {
		params = append(params, ui.Param{Key: "Interface", Value: ifaceName})
	}
	if len(scanMDNS) > 0 {
		params = append(params, ui.Param{Key: "mDNS", Value: strings.Join(scanMDNS, ", ")})
	}
	if scanAll {
		params = append(params, ui.Param{Key: "Filters", Value: "ignored (--all)"})
	}
	return params
}
