package device

import (
	"fmt"

	"github.com/muurk/castscan/internal/service"
)

// EventKind is the closed set of device-level notifications.
type EventKind int

const (
	// CapabilityUpdated carries the capability delta caused by a service
	// being attached, detached, or changing its own capability set.
	CapabilityUpdated EventKind = iota + 1
	ServiceConnected
	ServiceDisconnected
	// Disconnected follows ConnectableDevice.Disconnect.
	Disconnected
	PairingRequired
)

func (k EventKind) String() string {
	switch k {
	case CapabilityUpdated:
		return "capability_updated"
	case ServiceConnected:
		return "service_connected"
	case ServiceDisconnected:
		return "service_disconnected"
	case Disconnected:
		return "disconnected"
	case PairingRequired:
		return "pairing_required"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to device listeners.
type Event struct {
	Kind    EventKind
	Device  *ConnectableDevice
	Service service.Service
	Added   []string
	Removed []string
	Pairing service.PairingType
	Err     error
}

// Listener receives device events. It is called on the goroutine that
// caused the change and must not block.
type Listener func(Event)

// AddListener registers l and returns a function that removes it.
func (d *ConnectableDevice) AddListener(l Listener) (remove func()) {
	d.mu.Lock()
	id := d.nextListen
	d.nextListen++
	d.listeners[id] = l
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

func (d *ConnectableDevice) emit(ev Event) {
	ev.Device = d

	d.mu.RLock()
	ls := make([]Listener, 0, len(d.listeners))
	for _, l := range d.listeners {
		ls = append(ls, l)
	}
	d.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}
