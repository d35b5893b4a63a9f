package config

import (
	"fmt"
	"time"

	"github.com/muurk/castscan/internal/capability"
	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/discovery"
)

// Store backends selectable in preferences
const (
	StoreYAML   = "yaml"
	StoreSQLite = "sqlite"
	StoreNone   = "none"
)

// Registry represents the entire configuration file: preferences plus the
// devices persisted by the YAML store.
type Registry struct {
	Version     int                       `yaml:"version"`
	Preferences *Preferences              `yaml:"preferences,omitempty"`
	Devices     map[string]*device.Record `yaml:"devices,omitempty"` // Keyed by device ID

	path string
}

// Preferences represents discovery and application preferences.
type Preferences struct {
	RescanInterval     time.Duration `yaml:"rescan_interval"`              // Search period handed to providers
	ServiceIntegration bool          `yaml:"service_integration"`          // Merge services on friendly name and IP
	PairingLevel       string        `yaml:"pairing_level"`                // off, protected or on
	CapabilityFilters  []string      `yaml:"capability_filters,omitempty"` // Comma separated, OR-ed
	Interface          string        `yaml:"interface,omitempty"`          // Network interface for multicast
	MDNSTypes          []string      `yaml:"mdns_types,omitempty"`         // Extra mDNS service types to browse
	ListenAddr         string        `yaml:"listen_addr"`                  // HTTP API address for serve
	Store              string        `yaml:"store"`                        // yaml, sqlite or none
	SQLitePath         string        `yaml:"sqlite_path,omitempty"`        // Defaults to devices.db next to the config
}

// DefaultPreferences returns the preferences used when none are saved.
func DefaultPreferences() *Preferences {
	return &Preferences{
		RescanInterval: discovery.DefaultRescanInterval,
		PairingLevel:   discovery.PairingOff.String(),
		ListenAddr:     "127.0.0.1:8765",
		Store:          StoreYAML,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Preferences: DefaultPreferences(),
		Devices:     make(map[string]*device.Record),
	}
}

// Validate checks the preference values.
func (p *Preferences) Validate() error {
	if p.RescanInterval < time.Second {
		return fmt.Errorf("rescan_interval %s is shorter than 1s", p.RescanInterval)
	}
	if _, err := discovery.ParsePairingLevel(p.PairingLevel); err != nil {
		return fmt.Errorf("pairing_level: %w", err)
	}
	switch p.Store {
	case StoreYAML, StoreSQLite, StoreNone:
	default:
		return fmt.Errorf("unknown store %q (expected yaml, sqlite or none)", p.Store)
	}
	return nil
}

// Filters parses CapabilityFilters. Empty entries are skipped.
func (p *Preferences) Filters() []capability.Filter {
	var out []capability.Filter
	for _, s := range p.CapabilityFilters {
		f := capability.ParseFilter(s)
		if len(f.Capabilities) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// ManagerOptions converts the preferences into discovery manager options.
func (p *Preferences) ManagerOptions() ([]discovery.Option, error) {
	level, err := discovery.ParsePairingLevel(p.PairingLevel)
	if err != nil {
		return nil, err
	}
	return []discovery.Option{
		discovery.WithRescanInterval(p.RescanInterval),
		discovery.WithServiceIntegration(p.ServiceIntegration),
		discovery.WithPairingLevel(level),
		discovery.WithCapabilityFilters(p.Filters()...),
	}, nil
}

// GetDevice retrieves a persisted device by ID.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(id string) *device.Record {
	return r.Devices[id]
}

// PutDevice stores or replaces a device record.
func (r *Registry) PutDevice(rec device.Record) {
	if r.Devices == nil {
		r.Devices = make(map[string]*device.Record)
	}
	r.Devices[rec.ID] = &rec
}

// DeleteDevice removes a device record. It reports whether one existed.
func (r *Registry) DeleteDevice(id string) bool {
	if _, ok := r.Devices[id]; !ok {
		return false
	}
	delete(r.Devices, id)
	return true
}

// DeviceByServiceUUID returns the record owning a service UUID.
func (r *Registry) DeviceByServiceUUID(serviceUUID string) *device.Record {
	for _, rec := range r.Devices {
		if _, ok := rec.Services[serviceUUID]; ok {
			return rec
		}
	}
	return nil
}
