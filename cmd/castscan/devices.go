package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/store"
)

func init() {
	devicesCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(devicesCmd)
}

// devicesCmd lists remembered devices without searching
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List remembered devices",
	Long: `List the devices held in the device store without searching the network.

IP addresses are the last ones seen; services are attached again only when
the device is rediscovered.`,
	Example: `  castscan devices
  castscan devices --format json
  castscan devices forget 4f6c1d9e-...`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Remove a remembered device",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

// openStore opens the configured store, failing when persistence is off
func openStore() (store.Store, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	st, err := store.Open(reg)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("device store is disabled (store: none)")
	}
	return st, nil
}

func runDevices(cmd *cobra.Command, args []string) (err error) {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	records, err := st.Records()
	if err != nil {
		return fmt.Errorf("failed to read devices: %w", err)
	}
	views := make([]device.View, 0, len(records))
	for _, rec := range records {
		v := device.FromRecord(rec).View()
		// Restored devices have no services, so the last known address is all there is.
		if v.IPAddress == "" {
			v.IPAddress = rec.LastKnownIPAddress
		}
		views = append(views, v)
	}
	return printDevices(cmd.OutOrStdout(), views, outputFormat)
}

func runForget(cmd *cobra.Command, args []string) (err error) {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	records, err := st.Records()
	if err != nil {
		return fmt.Errorf("failed to read devices: %w", err)
	}
	for _, rec := range records {
		if rec.ID != args[0] {
			continue
		}
		if err := st.Remove(device.FromRecord(rec)); err != nil {
			return fmt.Errorf("failed to forget %s: %w", rec.ID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s (last seen %s)\n",
			displayName(rec), rec.LastDetection.Format(time.RFC3339))
		return nil
	}
	return fmt.Errorf("no remembered device with ID %s", args[0])
}

func displayName(rec device.Record) string {
	if rec.FriendlyName == "" {
		return rec.ID
	}
	return rec.FriendlyName
}
