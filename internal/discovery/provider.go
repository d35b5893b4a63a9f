package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/muurk/castscan/internal/service"
)

// Provider kinds used to register device services and provider factories
const (
	KindSSDP = "ssdp"
	KindMDNS = "mdns"
)

// Provider is a protocol-specific discovery source. It searches for every
// registered DiscoveryFilter and reports sightings to its listeners.
type Provider interface {
	// Start is idempotent while running.
	Start(ctx context.Context) error
	// Stop cancels all loops and returns once they have exited.
	Stop() error
	Restart(ctx context.Context) error
	// Reset stops the provider and forgets every tracked service.
	Reset() error
	// Rescan triggers an out-of-cycle search.
	Rescan()

	AddFilter(f service.DiscoveryFilter) error
	RemoveFilter(f service.DiscoveryFilter)
	// IsEmpty reports whether no filters are registered.
	IsEmpty() bool
	ServiceIDsForFilter(filter string) []string
	IsSearchingForFilter(f service.DiscoveryFilter) bool

	AddListener(l ServiceListener)
	RemoveListener(l ServiceListener)
}

// ProviderFactory creates a provider of one kind that searches every
// rescanInterval.
type ProviderFactory func(rescanInterval time.Duration) Provider

// ServiceEventKind is the closed set of provider notifications
type ServiceEventKind int

const (
	ServiceAdded ServiceEventKind = iota + 1
	ServiceRemoved
	ServiceDiscoveryFailed
)

// String returns the event kind name
func (k ServiceEventKind) String() string {
	switch k {
	case ServiceAdded:
		return "service_added"
	case ServiceRemoved:
		return "service_removed"
	case ServiceDiscoveryFailed:
		return "service_discovery_failed"
	default:
		return fmt.Sprintf("ServiceEventKind(%d)", int(k))
	}
}

// ServiceEvent is a sighting change reported by a provider. Description is
// a clone with ServiceID set to the matching filter; it is nil for
// ServiceDiscoveryFailed.
type ServiceEvent struct {
	Kind        ServiceEventKind
	Provider    Provider
	Description *service.Description
	Err         error
}

// ServiceListener receives provider events. Providers call it from their
// own goroutines, so implementations must be safe for concurrent use and
// must not block.
type ServiceListener interface {
	HandleServiceEvent(ev ServiceEvent)
}
