package discovery

import (
	"fmt"

	"github.com/muurk/castscan/internal/device"
)

// EventKind is the closed set of manager notifications
type EventKind int

const (
	DeviceAdded EventKind = iota + 1
	DeviceUpdated
	DeviceRemoved
	DiscoveryFailed
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case DeviceAdded:
		return "device_added"
	case DeviceUpdated:
		return "device_updated"
	case DeviceRemoved:
		return "device_removed"
	case DiscoveryFailed:
		return "discovery_failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to listeners and subscriptions. Device is nil for
// DiscoveryFailed.
type Event struct {
	Kind   EventKind
	Device *device.ConnectableDevice
	Err    error
}

// Listener receives manager events on the manager's event goroutine. It
// does not need to be safe for concurrent use but must not block.
type Listener interface {
	HandleEvent(ev Event)
}

// Subscription is a buffered channel of manager events. Events are dropped
// (with a warning) while the buffer is full.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	m      *Manager
	closed bool
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.m.unsubscribe(s)
}
