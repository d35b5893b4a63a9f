package device

import (
	"time"

	"github.com/muurk/castscan/internal/service"
)

// ServiceRecord is the persisted part of one attached service.
type ServiceRecord struct {
	ServiceID     string            `json:"service_id" yaml:"service_id"`
	LastDetection time.Time         `json:"last_detection,omitempty" yaml:"last_detection,omitempty"`
	Values        map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
}

// Record is the persisted form of a device, keyed by service UUID for its
// services. Stores choose their own encoding for it.
type Record struct {
	ID                 string                   `json:"id" yaml:"id"`
	FriendlyName       string                   `json:"friendly_name,omitempty" yaml:"friendly_name,omitempty"`
	Manufacturer       string                   `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	ModelName          string                   `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	ModelNumber        string                   `json:"model_number,omitempty" yaml:"model_number,omitempty"`
	LastKnownIPAddress string                   `json:"last_ip,omitempty" yaml:"last_ip,omitempty"`
	LastDetection      time.Time                `json:"last_detection,omitempty" yaml:"last_detection,omitempty"`
	LastConnected      time.Time                `json:"last_connected,omitempty" yaml:"last_connected,omitempty"`
	Services           map[string]ServiceRecord `json:"services,omitempty" yaml:"services,omitempty"`
}

// Record captures the device for persistence.
func (d *ConnectableDevice) Record() Record {
	d.mu.RLock()
	r := Record{
		ID:                 d.id,
		FriendlyName:       d.friendlyName,
		Manufacturer:       d.manufacturer,
		ModelName:          d.modelName,
		ModelNumber:        d.modelNumber,
		LastKnownIPAddress: d.lastKnownIPAddress,
		LastDetection:      d.lastDetection,
		LastConnected:      d.lastConnected,
	}
	d.mu.RUnlock()

	for _, s := range d.Services() {
		cfg := s.Config()
		if cfg == nil || cfg.ServiceUUID() == "" {
			continue
		}
		if r.Services == nil {
			r.Services = make(map[string]ServiceRecord)
		}
		r.Services[cfg.ServiceUUID()] = ServiceRecord{
			ServiceID:     s.Name(),
			LastDetection: cfg.LastDetection(),
			Values:        cfg.Values(),
		}
	}
	return r
}

// FromRecord restores a device without services. Services are attached
// again when they are rediscovered.
func FromRecord(r Record) *ConnectableDevice {
	d := NewWithID(r.ID)
	d.friendlyName = r.FriendlyName
	d.manufacturer = r.Manufacturer
	d.modelName = r.ModelName
	d.modelNumber = r.ModelNumber
	d.lastKnownIPAddress = r.LastKnownIPAddress
	d.lastDetection = r.LastDetection
	d.lastConnected = r.LastConnected
	return d
}

// ServiceConfig rebuilds the persisted config for a service UUID.
func (r Record) ServiceConfig(serviceUUID string) (*service.Config, bool) {
	sr, ok := r.Services[serviceUUID]
	if !ok {
		return nil, false
	}
	return service.RestoreConfig(serviceUUID, sr.LastDetection, sr.Values), true
}

// ServiceView is the JSON form of an attached service.
type ServiceView struct {
	Name         string   `json:"name"`
	UUID         string   `json:"uuid"`
	Capabilities []string `json:"capabilities"`
	Connectable  bool     `json:"connectable"`
	Connected    bool     `json:"connected"`
}

// View is the JSON form of a device used by the HTTP API and the CLI.
type View struct {
	ID            string        `json:"id"`
	FriendlyName  string        `json:"friendly_name"`
	IPAddress     string        `json:"ip_address"`
	Manufacturer  string        `json:"manufacturer,omitempty"`
	ModelName     string        `json:"model_name,omitempty"`
	ModelNumber   string        `json:"model_number,omitempty"`
	Connected     bool          `json:"connected"`
	LastDetection time.Time     `json:"last_detection"`
	Capabilities  []string      `json:"capabilities"`
	Services      []ServiceView `json:"services"`
}

// View returns a snapshot suitable for encoding.
func (d *ConnectableDevice) View() View {
	v := View{
		ID:            d.id,
		FriendlyName:  d.FriendlyName(),
		IPAddress:     d.IPAddress(),
		Manufacturer:  d.Manufacturer(),
		ModelName:     d.ModelName(),
		ModelNumber:   d.ModelNumber(),
		Connected:     d.IsConnected(),
		LastDetection: d.LastDetection(),
		Capabilities:  d.Capabilities(),
		Services:      []ServiceView{},
	}
	if v.Capabilities == nil {
		v.Capabilities = []string{}
	}
	for _, s := range d.Services() {
		sv := ServiceView{
			Name:         s.Name(),
			Capabilities: s.Capabilities(),
			Connectable:  s.IsConnectable(),
			Connected:    s.IsConnected(),
		}
		if desc := s.Description(); desc != nil {
			sv.UUID = desc.UUID
		}
		v.Services = append(v.Services, sv)
	}
	return v
}
