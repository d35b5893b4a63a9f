package discovery

import (
	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/service"
)

// Store persists devices across sessions. The manager only relies on these
// operations; the encoding is up to the implementation.
type Store interface {
	// Get returns the persisted device owning the service with the given
	// UUID, or nil if none is known.
	Get(serviceUUID string) (*device.ConnectableDevice, error)
	Add(d *device.ConnectableDevice) error
	Update(d *device.ConnectableDevice) error
	Remove(d *device.ConnectableDevice) error
	// ServiceConfig returns the persisted config for a sighting, or nil.
	ServiceConfig(desc *service.Description) (*service.Config, error)
}
