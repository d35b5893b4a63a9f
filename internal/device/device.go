package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/capability"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/service"
)

// ConnectableDevice is the logical device exposed to applications. It
// aggregates the services discovered for one physical box and holds at most
// one service per service name.
type ConnectableDevice struct {
	mu sync.RWMutex

	id                 string
	ipAddress          string
	friendlyName       string
	manufacturer       string
	modelName          string
	modelNumber        string
	lastKnownIPAddress string
	serviceID          string
	lastDetection      time.Time
	lastConnected      time.Time
	description        *service.Description

	services map[string]service.Service
	order    []string // service names in attach order

	listeners  map[int]Listener
	nextListen int
}

// New creates a device with a fresh UUID from a sighting.
func New(desc *service.Description) *ConnectableDevice {
	d := newDevice(uuid.NewString())
	if desc != nil {
		d.Update(desc)
	}
	return d
}

// NewWithID creates an empty device with a known identity. Stores use it
// to restore persisted devices.
func NewWithID(id string) *ConnectableDevice {
	if id == "" {
		id = uuid.NewString()
	}
	return newDevice(id)
}

func newDevice(id string) *ConnectableDevice {
	return &ConnectableDevice{
		id:        id,
		services:  make(map[string]service.Service),
		listeners: make(map[int]Listener),
	}
}

// ID returns the stable device identity.
func (d *ConnectableDevice) ID() string { return d.id }

// Update copies the identifying fields of a sighting onto the device.
func (d *ConnectableDevice) Update(desc *service.Description) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ipAddress = desc.IPAddress
	d.lastKnownIPAddress = desc.IPAddress
	d.friendlyName = desc.FriendlyName
	if desc.Manufacturer != "" {
		d.manufacturer = desc.Manufacturer
	}
	if desc.ModelName != "" {
		d.modelName = desc.ModelName
	}
	if desc.ModelNumber != "" {
		d.modelNumber = desc.ModelNumber
	}
	d.serviceID = desc.ServiceID
	d.description = desc
}

// Detected records a sighting time.
func (d *ConnectableDevice) Detected(t time.Time) {
	d.mu.Lock()
	d.lastDetection = t
	d.mu.Unlock()
}

func (d *ConnectableDevice) IPAddress() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ipAddress
}

func (d *ConnectableDevice) FriendlyName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.friendlyName
}

func (d *ConnectableDevice) ModelName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.modelName
}

func (d *ConnectableDevice) ModelNumber() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.modelNumber
}

func (d *ConnectableDevice) Manufacturer() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.manufacturer
}

func (d *ConnectableDevice) LastKnownIPAddress() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastKnownIPAddress
}

// ServiceID returns the service ID of the latest sighting.
func (d *ConnectableDevice) ServiceID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.serviceID
}

func (d *ConnectableDevice) LastDetection() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastDetection
}

func (d *ConnectableDevice) LastConnected() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastConnected
}

// Description returns the latest sighting attached to the device.
func (d *ConnectableDevice) Description() *service.Description {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.description
}

// SetDescription replaces the latest sighting without touching other fields.
func (d *ConnectableDevice) SetDescription(desc *service.Description) {
	d.mu.Lock()
	d.description = desc
	d.mu.Unlock()
}

// AddService attaches s. An existing service with the same name is removed
// (and disconnected) first.
func (d *ConnectableDevice) AddService(ctx context.Context, s service.Service) {
	if d.ServiceByName(s.Name()) != nil {
		d.RemoveServiceByName(ctx, s.Name())
	}

	before := d.Capabilities()

	d.mu.Lock()
	d.services[s.Name()] = s
	d.order = append(d.order, s.Name())
	d.mu.Unlock()

	s.SetListener(func(ev service.Event) { d.handleServiceEvent(s, ev) })

	added, _ := capability.Diff(before, d.Capabilities())
	if len(added) > 0 {
		d.emit(Event{Kind: CapabilityUpdated, Service: s, Added: added})
	}
}

// RemoveServiceByName disconnects and detaches the named service. It reports
// whether a service was removed.
func (d *ConnectableDevice) RemoveServiceByName(ctx context.Context, name string) bool {
	s := d.ServiceByName(name)
	if s == nil {
		return false
	}

	// The disconnect event is still forwarded to device listeners.
	_ = s.Disconnect(ctx)

	d.mu.Lock()
	if d.services[name] != s {
		d.mu.Unlock()
		return false
	}
	delete(d.services, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i:i], d.order[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	s.SetListener(nil)

	removed, _ := capability.Diff(d.Capabilities(), s.Capabilities())
	if len(removed) > 0 {
		d.emit(Event{Kind: CapabilityUpdated, Service: s, Removed: removed})
	}
	return true
}

// ServiceByName returns the service with the given name, or nil.
func (d *ConnectableDevice) ServiceByName(name string) service.Service {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.services[name]
}

// ServiceWithUUID returns the service whose sighting has the given UUID.
func (d *ConnectableDevice) ServiceWithUUID(uuid string) service.Service {
	for _, s := range d.Services() {
		if desc := s.Description(); desc != nil && desc.UUID == uuid {
			return s
		}
	}
	return nil
}

// Services returns the attached services in attach order.
func (d *ConnectableDevice) Services() []service.Service {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]service.Service, 0, len(d.order))
	for _, n := range d.order {
		out = append(out, d.services[n])
	}
	return out
}

// HasServices reports whether any service is attached.
func (d *ConnectableDevice) HasServices() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.services) > 0
}

// Capabilities returns the union of all service capabilities.
func (d *ConnectableDevice) Capabilities() []string {
	var caps []string
	seen := make(map[string]struct{})
	for _, s := range d.Services() {
		for _, c := range s.Capabilities() {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			caps = append(caps, c)
		}
	}
	return caps
}

// HasCapability reports whether any service holds name (wildcards allowed).
func (d *ConnectableDevice) HasCapability(name string) bool {
	for _, s := range d.Services() {
		if s.HasCapability(name) {
			return true
		}
	}
	return false
}

// HasCapabilities reports whether the device holds every name.
func (d *ConnectableDevice) HasCapabilities(names ...string) bool {
	for _, n := range names {
		if !d.HasCapability(n) {
			return false
		}
	}
	return true
}

// HasAnyCapability reports whether the device holds at least one name.
func (d *ConnectableDevice) HasAnyCapability(names ...string) bool {
	for _, n := range names {
		if d.HasCapability(n) {
			return true
		}
	}
	return false
}

// Satisfies reports whether the device matches a capability filter.
func (d *ConnectableDevice) Satisfies(f capability.Filter) bool {
	return f.Satisfied(d.HasCapability)
}

// Capability returns the implementation of tag from the service with the
// strictly highest priority. Ties go to the service attached first. The
// first implementation found is kept even at NotSupported until a higher
// priority replaces it.
func (d *ConnectableDevice) Capability(tag capability.Tag) any {
	var best any
	bestPriority := capability.NotSupported
	for _, s := range d.Services() {
		impl, p := s.Implementation(tag)
		if impl == nil {
			continue
		}
		if best == nil {
			if p == capability.NotSupported {
				logging.Warn("Capability implementation has no priority",
					zap.String("service", s.Name()),
					zap.Stringer("capability", tag))
			}
			best, bestPriority = impl, p
			continue
		}
		if p > bestPriority {
			best, bestPriority = impl, p
		}
	}
	return best
}

// CapabilityAs resolves tag and asserts the implementation to T.
func CapabilityAs[T any](d *ConnectableDevice, tag capability.Tag) (T, bool) {
	impl, ok := d.Capability(tag).(T)
	return impl, ok
}

// Connect connects every connectable service that is not yet connected.
func (d *ConnectableDevice) Connect(ctx context.Context) error {
	var err error
	for _, s := range d.Services() {
		if s.IsConnected() {
			continue
		}
		if cerr := s.Connect(ctx); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("connect %s: %w", s.Name(), cerr))
		}
	}
	if err == nil {
		d.mu.Lock()
		d.lastConnected = time.Now()
		d.mu.Unlock()
	}
	return err
}

// Disconnect disconnects every service and notifies listeners.
func (d *ConnectableDevice) Disconnect(ctx context.Context) error {
	var err error
	for _, s := range d.Services() {
		if derr := s.Disconnect(ctx); derr != nil {
			err = multierr.Append(err, fmt.Errorf("disconnect %s: %w", s.Name(), derr))
		}
	}
	d.emit(Event{Kind: Disconnected, Err: err})
	return err
}

// IsConnected is true when at least one service counts as connected. A
// service without a connection lifecycle always counts.
func (d *ConnectableDevice) IsConnected() bool {
	for _, s := range d.Services() {
		if !s.IsConnectable() || s.IsConnected() {
			return true
		}
	}
	return false
}

// IsConnectable reports whether any service has a connection lifecycle.
func (d *ConnectableDevice) IsConnectable() bool {
	for _, s := range d.Services() {
		if s.IsConnectable() {
			return true
		}
	}
	return false
}

// SetPairingType applies p to every service.
func (d *ConnectableDevice) SetPairingType(p service.PairingType) {
	for _, s := range d.Services() {
		s.SetPairingType(p)
	}
}

// SendPairingKey forwards a pairing key to every service that pairs.
func (d *ConnectableDevice) SendPairingKey(key string) error {
	var err error
	for _, s := range d.Services() {
		if s.PairingType() == service.PairingNone {
			continue
		}
		err = multierr.Append(err, s.SendPairingKey(key))
	}
	return err
}

// String returns a short human-readable form.
func (d *ConnectableDevice) String() string {
	return fmt.Sprintf("%q at %s (%s)", d.FriendlyName(), d.IPAddress(), d.id)
}

func (d *ConnectableDevice) handleServiceEvent(s service.Service, ev service.Event) {
	switch ev.Kind {
	case service.CapabilitiesUpdated:
		d.emit(Event{Kind: CapabilityUpdated, Service: s, Added: ev.Added, Removed: ev.Removed})
	case service.Connected:
		d.mu.Lock()
		d.lastConnected = time.Now()
		d.mu.Unlock()
		d.emit(Event{Kind: ServiceConnected, Service: s})
	case service.Disconnected:
		d.emit(Event{Kind: ServiceDisconnected, Service: s, Err: ev.Err})
	case service.PairingRequired:
		d.emit(Event{Kind: PairingRequired, Service: s, Pairing: ev.Pairing})
	}
}
