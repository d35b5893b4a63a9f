// Package config provides user configuration management for castscan.
//
// This package manages a YAML configuration file holding discovery
// preferences (rescan interval, pairing level, capability filters, network
// interface, store backend) and, when the YAML store is selected, the
// devices remembered between runs. The file follows OS-specific
// conventions for its location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/castscan/config.yaml or $HOME/.config/castscan/config.yaml
//   - macOS: $HOME/.config/castscan/config.yaml
//   - Windows: %LOCALAPPDATA%\castscan\config.yaml
//
// # Usage Example
//
//	registry, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	opts, err := registry.Preferences.ManagerOptions()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m := discovery.NewManager(opts...)
//
//	registry.Preferences.PairingLevel = "protected"
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// File writes are protected by a mutex and go through a temporary file
// that is renamed into place. A Registry value itself is not safe for
// concurrent use; the YAML store serializes access to the one it owns.
package config
