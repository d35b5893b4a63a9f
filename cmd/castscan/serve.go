package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/server"
)

// Serve command flags
var (
	listenAddr string
	certPath   string
	keyPath    string
	serveMDNS  []string
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Address to listen on (default: listen_addr preference)")
	serveCmd.Flags().StringVar(&certPath, "cert", "", "Path to TLS certificate file (serves HTTPS with --key)")
	serveCmd.Flags().StringVar(&keyPath, "key", "", "Path to TLS private key file")
	serveCmd.Flags().StringSliceVar(&serveMDNS, "mdns", nil, "mDNS service types to browse (\"none\" disables mDNS)")

	rootCmd.AddCommand(serveCmd)
}

// serveCmd runs discovery behind the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve discovered devices over HTTP",
	Long: `Run discovery continuously and expose it over an HTTP API.

Devices are listed at /devices, events stream over a WebSocket at /events,
and Prometheus metrics are served at /metrics.`,
	Example: `  # Serve on the configured address (127.0.0.1:8765 by default)
  castscan serve

  # Listen on every interface with HTTPS
  castscan serve --listen :8443 --cert cert.pem --key key.pem

  # Follow events
  websocat ws://127.0.0.1:8765/events`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	if (certPath == "") != (keyPath == "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}

	a, err := newApp(serveMDNS)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	addr := listenAddr
	if addr == "" {
		addr = a.registry.Preferences.ListenAddr
	}
	srv, err := server.New(&server.Config{Addr: addr, CertPath: certPath, KeyPath: keyPath}, a.manager, a.metrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.manager.Start(ctx); err != nil {
		logging.Warn("Some providers failed to start", zap.Error(err))
	}
	defer func() {
		if serr := a.manager.Stop(); serr != nil {
			logging.Warn("Failed to stop discovery", zap.Error(serr))
		}
	}()

	logging.Info("Starting castscan server",
		zap.String("addr", addr),
		zap.Bool("tls", certPath != ""),
	)
	return srv.Start(ctx)
}
