package mdns

import (
	"strings"

	"github.com/muurk/castscan/internal/service"
)

// Well-known service types browsed by default
const (
	GoogleCastType = "_googlecast._tcp.local."
	AirPlayType    = "_airplay._tcp.local."
)

// DefaultTypes are browsed when no types are configured
var DefaultTypes = []string{GoogleCastType, AirPlayType}

// ServiceProvider attaches a plain service to every sighting of an mDNS
// service type. The services carry no capabilities of their own.
type ServiceProvider struct {
	id     string
	filter string
}

// NewServiceProvider creates a provider for serviceType. The service ID is
// the bare type name, so "_googlecast._tcp.local." becomes "googlecast".
func NewServiceProvider(serviceType string) *ServiceProvider {
	return &ServiceProvider{id: ServiceID(serviceType), filter: serviceType}
}

// ServiceID derives a service ID from a service type
func ServiceID(serviceType string) string {
	name := browseType(serviceType)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimPrefix(name, "_")
}

// DiscoveryFilter implements service.Provider
func (p *ServiceProvider) DiscoveryFilter() service.DiscoveryFilter {
	return service.DiscoveryFilter{ServiceID: p.id, Filter: p.filter}
}

// New implements service.Provider
func (p *ServiceProvider) New(desc *service.Description, cfg *service.Config) (service.Service, error) {
	return service.NewBase(p.id, desc, cfg), nil
}
