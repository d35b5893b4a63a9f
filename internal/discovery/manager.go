package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/capability"
	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/metrics"
	"github.com/muurk/castscan/internal/service"
	"github.com/muurk/castscan/internal/service/dial"
	"github.com/muurk/castscan/internal/service/dlna"
)

var (
	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("discovery manager is closed")

	// ErrNoProviderFactory is returned when a service is registered for a
	// provider kind the manager has no factory for.
	ErrNoProviderFactory = errors.New("no discovery provider factory")
)

// Manager merges the sightings of its discovery providers into
// ConnectableDevices and reports device lifecycle events.
//
// Every state change runs on one goroutine fed by an unbounded queue:
// provider events, device capability updates and filter changes are all
// applied there, in order, and listeners are called from it.
type Manager struct {
	mu sync.RWMutex

	factories        map[string]ProviderFactory
	providers        map[string]Provider
	kinds            []string // provider kinds in creation order
	serviceProviders map[string]service.Provider

	allDevices map[string]*device.ConnectableDevice
	compatible map[string]*device.ConnectableDevice
	untrack    map[*device.ConnectableDevice]func()
	unstored   map[*device.ConnectableDevice]struct{} // never written to the store

	capabilityFilters  []capability.Filter
	pairingLevel       PairingLevel
	serviceIntegration bool
	rescanInterval     time.Duration
	store              Store
	metrics            *metrics.Metrics

	searching bool
	runCtx    context.Context
	runCancel context.CancelFunc

	// Owned by the loop goroutine.
	listeners []Listener
	subs      map[*Subscription]struct{}

	serviceListener *serviceListener
	queue           *workQueue
	done            chan struct{}
	baseCtx         context.Context
	baseCancel      context.CancelFunc
	probes          sync.WaitGroup
	closeOnce       sync.Once
}

// serviceListener receives provider events on behalf of the manager.
type serviceListener struct {
	m *Manager
}

func (l *serviceListener) HandleServiceEvent(ev ServiceEvent) {
	l.m.enqueue(func() { l.m.handleServiceEvent(ev) })
}

// NewManager creates a manager and starts its event goroutine. Call Close
// to release it.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		factories:        make(map[string]ProviderFactory),
		providers:        make(map[string]Provider),
		serviceProviders: make(map[string]service.Provider),
		allDevices:       make(map[string]*device.ConnectableDevice),
		compatible:       make(map[string]*device.ConnectableDevice),
		untrack:          make(map[*device.ConnectableDevice]func()),
		unstored:         make(map[*device.ConnectableDevice]struct{}),
		rescanInterval:   DefaultRescanInterval,
		subs:             make(map[*Subscription]struct{}),
		queue:            newWorkQueue(),
		done:             make(chan struct{}),
	}
	m.serviceListener = &serviceListener{m: m}
	m.baseCtx, m.baseCancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(m)
	}

	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		fn, closed := m.queue.pop()
		if fn == nil {
			if closed {
				for s := range m.subs {
					m.closeSubscription(s)
				}
				return
			}
			<-m.queue.wake
			continue
		}
		fn()
		m.recordDeviceCounts()
	}
}

func (m *Manager) enqueue(fn func()) bool {
	return m.queue.push(fn)
}

// Flush waits until every queued provider event has been applied,
// including work queued by the work itself. Call it after Stop to read
// devices resolved just before stopping.
func (m *Manager) Flush() {
	for {
		idle := make(chan bool, 1)
		if !m.enqueue(func() { idle <- m.queue.len() == 0 }) {
			return
		}
		if <-idle {
			return
		}
	}
}

// Close stops discovery, stops the event goroutine and closes every
// subscription.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.Stop()
		m.baseCancel()
		m.queue.close()
		<-m.done
		m.probes.Wait()
	})
	return err
}

// RegisterDeviceService registers sp for its service ID and adds its filter
// to the provider of the given kind, creating that provider on first use.
// A running provider is restarted so it searches for the new filter.
func (m *Manager) RegisterDeviceService(sp service.Provider, kind string) error {
	f := sp.DiscoveryFilter()
	if !f.Valid() {
		return fmt.Errorf("register %T: invalid discovery filter %+v", sp, f)
	}

	m.mu.Lock()
	p, ok := m.providers[kind]
	if !ok {
		factory, ok := m.factories[kind]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNoProviderFactory, kind)
		}
		p = factory(m.rescanInterval)
		m.providers[kind] = p
		m.kinds = append(m.kinds, kind)
		p.AddListener(m.serviceListener)
	}
	m.serviceProviders[f.ServiceID] = sp
	searching, runCtx := m.searching, m.runCtx
	m.mu.Unlock()

	logging.Debug("Registered device service",
		zap.String("service_id", f.ServiceID),
		zap.String("filter", f.Filter),
		zap.String("provider", kind))

	if err := p.AddFilter(f); err != nil {
		return fmt.Errorf("register %s: %w", f.ServiceID, err)
	}
	if searching {
		return p.Restart(runCtx)
	}
	return nil
}

// UnregisterDeviceService removes sp and its filter. A provider left with
// no filters is stopped and dropped.
func (m *Manager) UnregisterDeviceService(sp service.Provider, kind string) error {
	f := sp.DiscoveryFilter()

	m.mu.Lock()
	if _, ok := m.serviceProviders[f.ServiceID]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.serviceProviders, f.ServiceID)
	p, ok := m.providers[kind]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	p.RemoveFilter(f)
	if !p.IsEmpty() {
		return nil
	}

	m.mu.Lock()
	delete(m.providers, kind)
	for i, k := range m.kinds {
		if k == kind {
			m.kinds = append(m.kinds[:i:i], m.kinds[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	p.RemoveListener(m.serviceListener)
	return p.Stop()
}

// RegisterDefaultServices registers DIAL and DLNA on the SSDP provider.
func (m *Manager) RegisterDefaultServices() error {
	var err error
	err = multierr.Append(err, m.RegisterDeviceService(dial.NewProvider(), KindSSDP))
	err = multierr.Append(err, m.RegisterDeviceService(dlna.NewProvider(), KindSSDP))
	return err
}

// Start starts every provider. Default services are registered first when
// nothing is registered yet. Start is a no-op while searching.
func (m *Manager) Start(ctx context.Context) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	m.mu.RLock()
	searching, empty := m.searching, len(m.providers) == 0
	m.mu.RUnlock()
	if searching {
		return nil
	}
	if empty {
		if err := m.RegisterDefaultServices(); err != nil {
			logging.Warn("Failed to register default services", zap.Error(err))
		}
	}

	m.mu.Lock()
	if m.searching {
		m.mu.Unlock()
		return nil
	}
	m.searching = true
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx, m.runCancel = runCtx, cancel
	m.mu.Unlock()

	var err error
	for _, p := range m.Providers() {
		if perr := p.Start(runCtx); perr != nil {
			err = multierr.Append(err, perr)
			m.enqueue(func() {
				m.dispatch([]Event{{Kind: DiscoveryFailed, Err: perr}})
			})
		}
	}
	return err
}

// Stop stops every provider. Errors from all providers are combined.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.searching {
		m.mu.Unlock()
		return nil
	}
	m.searching = false
	cancel := m.runCancel
	m.runCtx, m.runCancel = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	for _, p := range m.Providers() {
		err = multierr.Append(err, p.Stop())
	}
	return err
}

// Rescan asks every provider for an immediate search.
func (m *Manager) Rescan() {
	for _, p := range m.Providers() {
		p.Rescan()
	}
}

// IsSearching reports whether Start has been called without Stop.
func (m *Manager) IsSearching() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searching
}

// Providers returns the active providers in creation order.
func (m *Manager) Providers() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Provider, 0, len(m.kinds))
	for _, k := range m.kinds {
		out = append(out, m.providers[k])
	}
	return out
}

// AddListener registers l. The current compatible devices are replayed to
// it as DeviceAdded before any later event.
func (m *Manager) AddListener(l Listener) {
	m.enqueue(func() {
		m.listeners = append(m.listeners, l)
		for _, d := range m.CompatibleDevices() {
			l.HandleEvent(Event{Kind: DeviceAdded, Device: d})
		}
	})
}

// RemoveListener unregisters l.
func (m *Manager) RemoveListener(l Listener) {
	m.enqueue(func() {
		for i, x := range m.listeners {
			if x == l {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	})
}

// Subscribe returns a subscription with a buffer of size buf. Like
// AddListener, it first receives the current compatible devices.
func (m *Manager) Subscribe(buf int) *Subscription {
	ch := make(chan Event, buf)
	s := &Subscription{C: ch, ch: ch, m: m}
	if !m.enqueue(func() {
		m.subs[s] = struct{}{}
		for _, d := range m.CompatibleDevices() {
			m.send(s, Event{Kind: DeviceAdded, Device: d})
		}
	}) {
		s.closed = true
		close(ch)
	}
	return s
}

func (m *Manager) unsubscribe(s *Subscription) {
	m.enqueue(func() {
		delete(m.subs, s)
		m.closeSubscription(s)
	})
}

func (m *Manager) closeSubscription(s *Subscription) {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (m *Manager) send(s *Subscription, ev Event) {
	select {
	case s.ch <- ev:
	default:
		m.metrics.ObserveDroppedEvent()
		logging.Warn("Subscriber is slow, dropping event",
			zap.Stringer("kind", ev.Kind))
	}
}

func (m *Manager) dispatch(events []Event) {
	for _, ev := range events {
		m.metrics.ObserveEvent(ev.Kind.String())
		if ev.Device != nil {
			logging.LogDeviceEvent(ev.Kind.String(), ev.Device.ID(), ev.Device.FriendlyName(), ev.Device.IPAddress())
		}
		for _, l := range m.listeners {
			l.HandleEvent(ev)
		}
		for s := range m.subs {
			m.send(s, ev)
		}
	}
}

// SetCapabilityFilters replaces the filters and re-evaluates every known
// device. Devices that stop matching are reported removed and devices that
// start matching are reported added.
func (m *Manager) SetCapabilityFilters(filters ...capability.Filter) {
	filters = append([]capability.Filter(nil), filters...)
	m.enqueue(func() {
		m.mu.Lock()
		m.capabilityFilters = filters
		var events []Event
		for _, key := range sortedKeys(m.allDevices) {
			d := m.allDevices[key]
			_, was := m.compatible[key]
			now := m.isCompatibleLocked(d)
			switch {
			case now && !was:
				m.compatible[key] = d
				events = append(events, Event{Kind: DeviceAdded, Device: d})
			case !now && was:
				delete(m.compatible, key)
				events = append(events, Event{Kind: DeviceRemoved, Device: d})
			}
		}
		m.mu.Unlock()
		m.dispatch(events)
	})
}

// CapabilityFilters returns a copy of the active filters.
func (m *Manager) CapabilityFilters() []capability.Filter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]capability.Filter(nil), m.capabilityFilters...)
}

// AllDevices returns every known device ordered by key.
func (m *Manager) AllDevices() []*device.ConnectableDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.allDevices)
}

// CompatibleDevices returns the devices matching the capability filters,
// ordered by key.
func (m *Manager) CompatibleDevices() []*device.ConnectableDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.compatible)
}

// DeviceByID returns the known device with the given ID, or nil.
func (m *Manager) DeviceByID(id string) *device.ConnectableDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.allDevices {
		if d.ID() == id {
			return d
		}
	}
	return nil
}

// DeviceByIPAddress returns a known device at ip, or nil.
func (m *Manager) DeviceByIPAddress(ip string) *device.ConnectableDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, key := range sortedKeys(m.allDevices) {
		if d := m.allDevices[key]; d.IPAddress() == ip {
			return d
		}
	}
	return nil
}

func (m *Manager) PairingLevel() PairingLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pairingLevel
}

// SetPairingLevel applies to services attached from now on.
func (m *Manager) SetPairingLevel(level PairingLevel) {
	m.mu.Lock()
	m.pairingLevel = level
	m.mu.Unlock()
}

func (m *Manager) ServiceIntegration() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serviceIntegration
}

// SetServiceIntegration changes how sightings are keyed from now on.
func (m *Manager) SetServiceIntegration(enabled bool) {
	m.mu.Lock()
	m.serviceIntegration = enabled
	m.mu.Unlock()
}

func (m *Manager) Store() Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

func (m *Manager) SetStore(s Store) {
	m.mu.Lock()
	m.store = s
	m.mu.Unlock()
}

// ForgetDevice removes a device from the store. It stays known until its
// services are lost.
func (m *Manager) ForgetDevice(id string) error {
	d := m.DeviceByID(id)
	st := m.Store()
	if d == nil || st == nil {
		return nil
	}
	return st.Remove(d)
}

// deviceKey keys sightings by friendly name and IP, plus the service ID
// unless service integration is enabled.
// TODO: two physical devices sharing a friendly name and IP collide; key on
// the device UUID once stores can migrate existing records.
func (m *Manager) deviceKey(friendlyName, ip, serviceID string) string {
	m.mu.RLock()
	integrated := m.serviceIntegration
	m.mu.RUnlock()
	if integrated {
		return friendlyName + ip
	}
	return friendlyName + ip + serviceID
}

func (m *Manager) keyOf(desc *service.Description) string {
	return m.deviceKey(desc.FriendlyName, desc.IPAddress, desc.ServiceID)
}

func (m *Manager) handleServiceEvent(ev ServiceEvent) {
	switch ev.Kind {
	case ServiceAdded:
		if ev.Description != nil {
			m.dispatch(m.handleServiceAdded(ev.Description))
		}
	case ServiceRemoved:
		if ev.Description == nil {
			logging.Warn("Service removed without description")
			return
		}
		m.dispatch(m.handleServiceRemoved(ev.Description))
	case ServiceDiscoveryFailed:
		logging.Warn("Service discovery failed", zap.Error(ev.Err))
		m.dispatch([]Event{{Kind: DiscoveryFailed, Err: ev.Err}})
	}
}

func (m *Manager) handleServiceAdded(desc *service.Description) []Event {
	logging.LogServiceEvent("added", desc.ServiceID, desc.UUID, desc.IPAddress)

	key := m.keyOf(desc)
	m.mu.RLock()
	d, exists := m.allDevices[key]
	st := m.store
	m.mu.RUnlock()

	// A live device already holding the UUID (one sighting fanned out to
	// several service IDs) owns the stored record. Restoring it again would
	// create a second device with the same ID.
	shared := !exists && m.deviceWithServiceUUID(desc.UUID) != nil

	restored := false
	if !exists && !shared && st != nil {
		sd, err := st.Get(desc.UUID)
		if err != nil {
			logging.Warn("Device store lookup failed", zap.String("uuid", desc.UUID), zap.Error(err))
		}
		if sd != nil {
			d, restored = sd, true
		}
	}
	if d == nil {
		d = device.New(desc)
	}

	d.Update(desc)
	detected := desc.LastDetection
	if detected.IsZero() {
		detected = time.Now()
	}
	d.Detected(detected)

	attached := m.attachService(d, desc)

	if !d.HasServices() {
		if exists {
			return m.handleDeviceLoss(key, d)
		}
		return nil
	}

	if exists {
		m.probe(attached)
		return m.handleDeviceUpdate(key, d)
	}

	m.mu.Lock()
	m.allDevices[key] = d
	if shared {
		m.unstored[d] = struct{}{}
	}
	m.mu.Unlock()
	m.track(d)
	m.probe(attached)

	if st != nil && !shared {
		var err error
		if restored {
			err = st.Update(d)
		} else {
			err = st.Add(d)
		}
		if err != nil {
			logging.Warn("Failed to persist device", zap.String("device", d.ID()), zap.Error(err))
		}
	}
	return m.handleDeviceAdd(key, d)
}

// deviceWithServiceUUID returns a known device with a service for uuid.
func (m *Manager) deviceWithServiceUUID(uuid string) *device.ConnectableDevice {
	for _, d := range m.AllDevices() {
		if d.ServiceWithUUID(uuid) != nil {
			return d
		}
	}
	return nil
}

// attachService creates or refreshes the service for desc on d. It returns
// the newly attached service, if any.
func (m *Manager) attachService(d *device.ConnectableDevice, desc *service.Description) service.Service {
	m.mu.RLock()
	sp := m.serviceProviders[desc.ServiceID]
	st := m.store
	level := m.pairingLevel
	m.mu.RUnlock()

	if sp == nil {
		logging.Debug("No service provider registered", zap.String("service_id", desc.ServiceID))
		return nil
	}

	if existing := d.ServiceByName(desc.ServiceID); existing != nil {
		if ed := existing.Description(); ed != nil && ed.UUID == desc.UUID {
			d.SetDescription(desc)
			existing.SetDescription(desc)
			return nil
		}
		d.RemoveServiceByName(m.baseCtx, desc.ServiceID)
	}

	var cfg *service.Config
	if st != nil {
		c, err := st.ServiceConfig(desc)
		if err != nil {
			logging.Warn("Service config lookup failed", zap.String("uuid", desc.UUID), zap.Error(err))
		}
		cfg = c
	}
	if cfg == nil {
		cfg = service.NewConfig(desc)
	}
	cfg.OnUpdate(func(c *service.Config) {
		m.enqueue(func() { m.handleServiceConfigUpdate(c) })
	})

	svc, err := sp.New(desc, cfg)
	if err != nil {
		logging.Debug("Service provider rejected sighting",
			zap.String("service_id", desc.ServiceID),
			zap.String("uuid", desc.UUID),
			zap.Error(err))
		return nil
	}
	if level == PairingOff {
		svc.SetPairingType(service.PairingNone)
	}

	d.AddService(m.baseCtx, svc)
	return svc
}

// probe refines the capabilities of svc in the background. The resulting
// deltas reach the manager through the device listener.
func (m *Manager) probe(svc service.Service) {
	p, ok := svc.(service.Prober)
	if !ok {
		return
	}
	m.probes.Add(1)
	go func() {
		defer m.probes.Done()
		if err := p.Probe(m.baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Debug("Service probe failed", zap.String("service_id", svc.Name()), zap.Error(err))
		}
	}()
}

func (m *Manager) handleServiceRemoved(desc *service.Description) []Event {
	logging.LogServiceEvent("removed", desc.ServiceID, desc.UUID, desc.IPAddress)

	key := m.keyOf(desc)
	m.mu.RLock()
	d := m.allDevices[key]
	m.mu.RUnlock()
	if d == nil {
		return nil
	}

	// A replaced service may still be reported lost under its old UUID.
	if svc := d.ServiceByName(desc.ServiceID); svc != nil {
		if sd := svc.Description(); sd == nil || sd.UUID == desc.UUID {
			d.RemoveServiceByName(m.baseCtx, desc.ServiceID)
		}
	}

	if !d.HasServices() {
		return m.handleDeviceLoss(key, d)
	}
	return m.handleDeviceUpdate(key, d)
}

// handleDeviceLoss forgets a device whose services are all gone and
// disconnects it.
func (m *Manager) handleDeviceLoss(key string, d *device.ConnectableDevice) []Event {
	m.mu.Lock()
	delete(m.allDevices, key)
	_, wasCompatible := m.compatible[key]
	delete(m.compatible, key)
	delete(m.unstored, d)
	m.mu.Unlock()

	m.release(d)
	if err := d.Disconnect(m.baseCtx); err != nil {
		logging.Debug("Disconnect of lost device failed", zap.String("device", d.ID()), zap.Error(err))
	}

	if wasCompatible {
		return []Event{{Kind: DeviceRemoved, Device: d}}
	}
	return nil
}

func (m *Manager) handleDeviceAdd(key string, d *device.ConnectableDevice) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isCompatibleLocked(d) {
		return nil
	}
	m.compatible[key] = d
	return []Event{{Kind: DeviceAdded, Device: d}}
}

// handleDeviceUpdate re-evaluates compatibility. A device that stops
// matching is reported removed but stays connected.
func (m *Manager) handleDeviceUpdate(key string, d *device.ConnectableDevice) []Event {
	m.mu.Lock()
	compatible := m.isCompatibleLocked(d)
	_, tracked := m.compatible[key]
	if !compatible {
		delete(m.compatible, key)
	}
	m.mu.Unlock()

	switch {
	case compatible && tracked && d.IPAddress() != "":
		return []Event{{Kind: DeviceUpdated, Device: d}}
	case compatible:
		return m.handleDeviceAdd(key, d)
	case tracked:
		return []Event{{Kind: DeviceRemoved, Device: d}}
	default:
		return nil
	}
}

// handleCapabilityUpdate runs for capability deltas reported by a device.
// Updates for devices that are no longer known are ignored.
func (m *Manager) handleCapabilityUpdate(d *device.ConnectableDevice) []Event {
	key := m.deviceKey(d.FriendlyName(), d.IPAddress(), d.ServiceID())
	m.mu.RLock()
	current := m.allDevices[key]
	m.mu.RUnlock()
	if current != d {
		return nil
	}
	return m.handleDeviceUpdate(key, d)
}

func (m *Manager) handleServiceConfigUpdate(cfg *service.Config) {
	st := m.Store()
	if st == nil {
		return
	}
	for _, d := range m.AllDevices() {
		m.mu.RLock()
		_, skip := m.unstored[d]
		m.mu.RUnlock()
		if skip || d.ServiceWithUUID(cfg.ServiceUUID()) == nil {
			continue
		}
		if err := st.Update(d); err != nil {
			logging.Warn("Failed to update stored device", zap.String("device", d.ID()), zap.Error(err))
		}
	}
}

// track subscribes the manager to capability deltas of d.
func (m *Manager) track(d *device.ConnectableDevice) {
	remove := d.AddListener(func(ev device.Event) {
		if ev.Kind != device.CapabilityUpdated {
			return
		}
		m.enqueue(func() { m.dispatch(m.handleCapabilityUpdate(d)) })
	})
	m.mu.Lock()
	m.untrack[d] = remove
	m.mu.Unlock()
}

func (m *Manager) release(d *device.ConnectableDevice) {
	m.mu.Lock()
	remove := m.untrack[d]
	delete(m.untrack, d)
	m.mu.Unlock()
	if remove != nil {
		remove()
	}
}

// isCompatibleLocked is vacuously true with no filters; otherwise d must
// satisfy at least one filter.
func (m *Manager) isCompatibleLocked(d *device.ConnectableDevice) bool {
	if len(m.capabilityFilters) == 0 {
		return true
	}
	for _, f := range m.capabilityFilters {
		if d.Satisfies(f) {
			return true
		}
	}
	return false
}

func (m *Manager) recordDeviceCounts() {
	if m.metrics == nil {
		return
	}
	m.mu.RLock()
	all, compatible := len(m.allDevices), len(m.compatible)
	m.mu.RUnlock()
	m.metrics.SetDevices(all, compatible)
}

func sortedKeys(devices map[string]*device.ConnectableDevice) []string {
	keys := make([]string, 0, len(devices))
	for k := range devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValues(devices map[string]*device.ConnectableDevice) []*device.ConnectableDevice {
	out := make([]*device.ConnectableDevice, 0, len(devices))
	for _, k := range sortedKeys(devices) {
		out = append(out, devices[k])
	}
	return out
}
