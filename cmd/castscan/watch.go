package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/ui"
)

// subscriptionBuffer is the event buffer for CLI subscriptions
const subscriptionBuffer = 64

var watchMDNS []string

func init() {
	watchCmd.Flags().StringSliceVar(&watchMDNS, "mdns", nil, "mDNS service types to browse (\"none\" disables mDNS)")

	rootCmd.AddCommand(watchCmd)
}

// watchCmd follows discovery until interrupted
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch devices appear and disappear",
	Long: `Keep searching and show devices as they are added, updated and removed.

On a terminal this opens a live table; press r to rescan and q to quit.
Otherwise every event is printed on its own line, as JSON with --format json.`,
	Example: `  # Live table
  castscan watch

  # Event log for another program
  castscan watch --format json | jq .`,
	RunE: runWatch,
}

// eventLine is the JSON form of an event printed by watch
type eventLine struct {
	Type   string       `json:"type"`
	Time   time.Time    `json:"time"`
	Device *device.View `json:"device,omitempty"`
	Error  string       `json:"error,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(watchMDNS)
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

	sub := a.manager.Subscribe(subscriptionBuffer)
	defer sub.Close()

	if err := a.manager.Start(ctx); err != nil {
		logging.Warn("Some providers failed to start", zap.Error(err))
	}
	defer func() {
		if serr := a.manager.Stop(); serr != nil {
			logging.Warn("Failed to stop discovery", zap.Error(serr))
		}
	}()

	format := resolveFormat(outputFormat)
	if format == formatTable && ui.IsTerminal() {
		var params []ui.Param
		if ifaceName != "" {
			params = append(params, ui.Param{Key: "Interface", Value: ifaceName})
		}
		return ui.RunWatch(ui.WatchOptions{
			Events:  sub.C,
			Rescan:  a.manager.Rescan,
			Command: "castscan watch",
			Params:  params,
		})
	}

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := printEvent(out, ev, format); err != nil {
				return err
			}
		}
	}
}

// printEvent writes one event line, tab separated or as JSON
func printEvent(w io.Writer, ev discovery.Event, format string) error {
	line := eventLine{Type: ev.Kind.String(), Time: time.Now().UTC()}
	if ev.Device != nil {
		v := ev.Device.View()
		line.Device = &v
	}
	if ev.Err != nil {
		line.Error = ev.Err.Error()
	}

	if format == formatJSON {
		data, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if line.Device == nil {
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\n", line.Time.Format(time.RFC3339), line.Type, line.Error)
		return err
	}
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		line.Time.Format(time.RFC3339), line.Type, line.Device.ID, line.Device.FriendlyName, line.Device.IPAddress)
	return err
}
