package store

import (
	"sort"
	"sync"

	"github.com/muurk/castscan/internal/config"
	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/service"
)

// YAML persists devices in the devices section of the configuration file.
// Every change is saved immediately.
type YAML struct {
	mu  sync.Mutex
	reg *config.Registry
}

var _ Store = (*YAML)(nil)

// NewYAML creates a store writing through reg
func NewYAML(reg *config.Registry) *YAML {
	return &YAML{reg: reg}
}

// Get implements discovery.Store
func (s *YAML) Get(serviceUUID string) (*device.ConnectableDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.reg.DeviceByServiceUUID(serviceUUID)
	if rec == nil {
		return nil, nil
	}
	return device.FromRecord(*rec), nil
}

// Add implements discovery.Store
func (s *YAML) Add(d *device.ConnectableDevice) error {
	return s.put(d)
}

// Update implements discovery.Store
func (s *YAML) Update(d *device.ConnectableDevice) error {
	return s.put(d)
}

func (s *YAML) put(d *device.ConnectableDevice) error {
	rec := d.Record()

	s.mu.Lock()
	defer s.mu.Unlock()
	// A service UUID belongs to one device.
	for id, other := range s.reg.Devices {
		if id == rec.ID {
			continue
		}
		for uuid := range rec.Services {
			delete(other.Services, uuid)
		}
	}
	s.reg.PutDevice(rec)
	return s.reg.Save()
}

// Remove implements discovery.Store
func (s *YAML) Remove(d *device.ConnectableDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reg.DeleteDevice(d.ID()) {
		return nil
	}
	return s.reg.Save()
}

// ServiceConfig implements discovery.Store
func (s *YAML) ServiceConfig(desc *service.Description) (*service.Config, error) {
	if desc == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return serviceConfig(s.reg.DeviceByServiceUUID(desc.UUID), desc), nil
}

// Records implements Store
func (s *YAML) Records() ([]device.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]device.Record, 0, len(s.reg.Devices))
	for _, rec := range s.reg.Devices {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close implements Store. Changes are already saved.
func (s *YAML) Close() error {
	return nil
}
