package service

import (
	"context"
	"fmt"

	"github.com/muurk/castscan/internal/capability"
)

// PairingType describes how a service authenticates a controller.
type PairingType int

const (
	PairingNone PairingType = iota
	PairingFirstScreen
	PairingPinCode
	PairingMixed
)

// String returns the pairing type name
func (p PairingType) String() string {
	switch p {
	case PairingNone:
		return "none"
	case PairingFirstScreen:
		return "first_screen"
	case PairingPinCode:
		return "pin_code"
	case PairingMixed:
		return "mixed"
	default:
		return fmt.Sprintf("PairingType(%d)", int(p))
	}
}

// EventKind is the closed set of notifications a service emits.
type EventKind int

const (
	// CapabilitiesUpdated carries an added/removed capability delta.
	CapabilitiesUpdated EventKind = iota + 1
	// Connected is emitted after Connect succeeds.
	Connected
	// Disconnected is emitted after Disconnect, with Err set on failure.
	Disconnected
	// PairingRequired asks the application for a pairing key.
	PairingRequired
)

// Event is delivered to the single listener of a service, normally the
// device that owns it.
type Event struct {
	Kind    EventKind
	Added   []string
	Removed []string
	Pairing PairingType
	Err     error
}

// Listener receives service events.
type Listener func(Event)

// Service is a protocol-specific capability provider bound to one
// Description and one Config.
type Service interface {
	// Name is the logical service ID, e.g. "DIAL".
	Name() string
	Description() *Description
	SetDescription(desc *Description)
	Config() *Config

	Capabilities() []string
	HasCapability(name string) bool
	// Implementation returns the registered implementation for a capability
	// interface and its priority. A nil implementation means unsupported.
	Implementation(tag capability.Tag) (any, capability.Priority)

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	IsConnectable() bool

	PairingType() PairingType
	SetPairingType(p PairingType)
	SendPairingKey(key string) error

	SetListener(l Listener)
}

// Provider creates services of one kind. It is registered with the
// discovery manager under DiscoveryFilter().ServiceID.
type Provider interface {
	DiscoveryFilter() DiscoveryFilter
	// New builds a service for a sighting. Returning an error (for example
	// ErrMissingLocationXML) makes the manager ignore the sighting.
	New(desc *Description, cfg *Config) (Service, error)
}

// Prober is implemented by services that refine their capabilities over
// the network after being attached to a device.
type Prober interface {
	Probe(ctx context.Context) error
}
