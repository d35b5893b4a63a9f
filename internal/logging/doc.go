// Package logging provides structured logging for castscan.
//
// The package wraps a global zap logger with convenience functions used by
// the discovery providers, the device manager, the HTTP server and the CLI.
//
// # Log Levels
//
//   - Debug: raw SSDP datagrams, service sightings, description fetches
//   - Info: device lifecycle events, server start/stop
//   - Warn: rejected filters, slow subscribers, fetch failures
//   - Error: transport failures that stop a receive loop
//
// # Configuration
//
// Logging is silent unless a level is given explicitly or through the
// CASTSCAN_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Packet Dumps
//
//	logging.LogPacket("received", addr.String(), datagram)
//
// Dumps are limited to the first 256 bytes and only built when debug
// logging is enabled.
package logging
