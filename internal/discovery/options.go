package discovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/castscan/internal/capability"
	"github.com/muurk/castscan/internal/metrics"
)

// DefaultRescanInterval is the search period handed to providers
const DefaultRescanInterval = 10 * time.Second

// PairingLevel controls whether services that require pairing may prompt
// for it when connecting.
type PairingLevel int

const (
	// PairingOff avoids pairing; services are attached with no pairing type.
	PairingOff PairingLevel = iota
	// PairingProtected keeps the service's own pairing type.
	PairingProtected
	// PairingOn keeps the service's own pairing type and lets it prompt.
	PairingOn
)

// String returns the pairing level name
func (p PairingLevel) String() string {
	switch p {
	case PairingOff:
		return "off"
	case PairingProtected:
		return "protected"
	case PairingOn:
		return "on"
	default:
		return fmt.Sprintf("PairingLevel(%d)", int(p))
	}
}

// ParsePairingLevel parses "off", "protected" or "on".
func ParsePairingLevel(s string) (PairingLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return PairingOff, nil
	case "protected":
		return PairingProtected, nil
	case "on":
		return PairingOn, nil
	default:
		return PairingOff, fmt.Errorf("unknown pairing level %q", s)
	}
}

// Option configures a Manager
type Option func(*Manager)

// WithStore sets the device store
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithCapabilityFilters sets the initial capability filters
func WithCapabilityFilters(filters ...capability.Filter) Option {
	return func(m *Manager) { m.capabilityFilters = append([]capability.Filter(nil), filters...) }
}

// WithServiceIntegration merges sightings of different services on the
// same friendly name and IP into one device.
func WithServiceIntegration(enabled bool) Option {
	return func(m *Manager) { m.serviceIntegration = enabled }
}

// WithPairingLevel sets the initial pairing level
func WithPairingLevel(level PairingLevel) Option {
	return func(m *Manager) { m.pairingLevel = level }
}

// WithRescanInterval sets the interval providers are created with
func WithRescanInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.rescanInterval = d
		}
	}
}

// WithProviderFactory makes a provider kind available to
// RegisterDeviceService and RegisterDefaultServices.
func WithProviderFactory(kind string, f ProviderFactory) Option {
	return func(m *Manager) { m.factories[kind] = f }
}

// WithMetrics records device counts and events
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}
