package ssdp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/metrics"
	"github.com/muurk/castscan/internal/service"
)

const (
	// Timeout is how long a found service survives without being seen
	Timeout = 60 * time.Second

	searchRepeats = 3
	searchSpacing = time.Second
)

// ErrInvalidFilter is returned by AddFilter for filters missing a service
// ID or search target.
var ErrInvalidFilter = errors.New("invalid discovery filter")

// State is the provider lifecycle state
type State int

const (
	Stopped State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Provider discovers services over SSDP. It searches for every registered
// filter, tracks the devices that answer and reports them to its
// listeners.
type Provider struct {
	life sync.Mutex // serializes Start and Stop

	mu        sync.Mutex
	state     State
	filters   []service.DiscoveryFilter
	found     map[string]*service.Description
	resolving map[string]*service.Description
	listeners []discovery.ServiceListener
	cancel    context.CancelFunc
	transport Transport
	group     *errgroup.Group

	rescan chan struct{}

	clock          clock.Clock
	rescanInterval time.Duration
	timeout        time.Duration
	iface          string
	newTransport   TransportFactory
	fetcher        Fetcher
	metrics        *metrics.Metrics
}

var _ discovery.Provider = (*Provider)(nil)

// Option configures a Provider
type Option func(*Provider)

// WithClock replaces the wall clock, for tests
func WithClock(c clock.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// WithRescanInterval sets the search period
func WithRescanInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.rescanInterval = d
		}
	}
}

// WithTimeout sets how long found services live without a sighting
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithInterface selects the network interface by name
func WithInterface(name string) Option {
	return func(p *Provider) { p.iface = name }
}

// WithTransport replaces the UDP transport
func WithTransport(f TransportFactory) Option {
	return func(p *Provider) { p.newTransport = f }
}

// WithFetcher replaces the HTTP description fetcher
func WithFetcher(f Fetcher) Option {
	return func(p *Provider) { p.fetcher = f }
}

// WithMetrics records packets, searches and fetches
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// New creates a stopped provider
func New(opts ...Option) *Provider {
	p := &Provider{
		found:          make(map[string]*service.Description),
		resolving:      make(map[string]*service.Description),
		rescan:         make(chan struct{}, 1),
		clock:          clock.New(),
		rescanInterval: discovery.DefaultRescanInterval,
		timeout:        Timeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.newTransport == nil {
		iface := p.iface
		p.newTransport = func() (Transport, error) { return NewUDPTransport(iface) }
	}
	if p.fetcher == nil {
		p.fetcher = NewHTTPFetcher(p.metrics)
	}
	return p
}

// Factory returns a discovery.ProviderFactory building providers with opts
func Factory(opts ...Option) discovery.ProviderFactory {
	return func(rescanInterval time.Duration) discovery.Provider {
		return New(append(append([]Option(nil), opts...), WithRescanInterval(rescanInterval))...)
	}
}

// State returns the lifecycle state
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start opens the transport and launches the search, response and notify
// loops. It is a no-op while running.
func (p *Provider) Start(ctx context.Context) error {
	p.life.Lock()
	defer p.life.Unlock()

	p.mu.Lock()
	if p.state != Stopped {
		p.mu.Unlock()
		return nil
	}
	p.state = Starting
	p.mu.Unlock()

	tr, err := p.newTransport()
	if err != nil {
		p.mu.Lock()
		p.state = Stopped
		p.mu.Unlock()
		return fmt.Errorf("open ssdp transport: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g := new(errgroup.Group)

	p.mu.Lock()
	p.state = Running
	p.cancel = cancel
	p.transport = tr
	p.group = g
	p.mu.Unlock()

	// Drop a rescan requested while stopped; the first cycle searches anyway.
	select {
	case <-p.rescan:
	default:
	}

	g.Go(func() error { return p.searchLoop(runCtx, tr) })
	g.Go(func() error { return p.receiveLoop(runCtx, g, "unicast", tr.ReceiveUnicast) })
	g.Go(func() error { return p.receiveLoop(runCtx, g, "multicast", tr.ReceiveMulticast) })

	logging.Info("SSDP discovery started", zap.Int("filters", len(p.Filters())))
	return nil
}

// Stop cancels the loops, closes the transport and waits for every loop
// and pending fetch to return.
func (p *Provider) Stop() error {
	p.life.Lock()
	defer p.life.Unlock()

	p.mu.Lock()
	if p.state == Stopped {
		p.mu.Unlock()
		return nil
	}
	cancel, tr, g := p.cancel, p.transport, p.group
	p.cancel, p.transport, p.group = nil, nil, nil
	p.mu.Unlock()

	cancel()
	err := tr.Close()
	_ = g.Wait()

	p.mu.Lock()
	p.state = Stopped
	p.resolving = make(map[string]*service.Description)
	p.mu.Unlock()

	logging.Info("SSDP discovery stopped")
	return err
}

// Restart stops and starts the provider
func (p *Provider) Restart(ctx context.Context) error {
	if err := p.Stop(); err != nil {
		logging.Debug("SSDP stop before restart failed", zap.Error(err))
	}
	return p.Start(ctx)
}

// Reset stops the provider and forgets every tracked service without
// reporting them lost.
func (p *Provider) Reset() error {
	err := p.Stop()
	p.mu.Lock()
	p.found = make(map[string]*service.Description)
	p.resolving = make(map[string]*service.Description)
	p.mu.Unlock()
	p.metrics.SetTrackedServices(discovery.KindSSDP, 0)
	return err
}

// Rescan requests an immediate search. It is ignored while stopped.
func (p *Provider) Rescan() {
	if p.State() != Running {
		return
	}
	select {
	case p.rescan <- struct{}{}:
	default:
	}
}

// AddFilter registers a search target. Adding a filter while running
// triggers an immediate search.
func (p *Provider) AddFilter(f service.DiscoveryFilter) error {
	if !f.Valid() {
		logging.Warn("Rejected SSDP filter", zap.String("service_id", f.ServiceID), zap.String("filter", f.Filter))
		return fmt.Errorf("%w: %+v", ErrInvalidFilter, f)
	}

	p.mu.Lock()
	for _, x := range p.filters {
		if x == f {
			p.mu.Unlock()
			return nil
		}
	}
	p.filters = append(p.filters, f)
	p.mu.Unlock()

	p.Rescan()
	return nil
}

// RemoveFilter unregisters a search target
func (p *Provider) RemoveFilter(f service.DiscoveryFilter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, x := range p.filters {
		if x == f {
			p.filters = append(p.filters[:i:i], p.filters[i+1:]...)
			return
		}
	}
}

// Filters returns the registered filters
func (p *Provider) Filters() []service.DiscoveryFilter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]service.DiscoveryFilter(nil), p.filters...)
}

// IsEmpty reports whether no filter is registered
func (p *Provider) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.filters) == 0
}

// ServiceIDsForFilter returns the service IDs registered for a search
// target, in registration order.
func (p *Provider) ServiceIDsForFilter(filter string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.serviceIDsLocked(filter)
}

// IsSearchingForFilter reports whether f's search target is registered
func (p *Provider) IsSearchingForFilter(f service.DiscoveryFilter) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.searchingLocked(f.Filter)
}

// AddListener registers l for service events
func (p *Provider) AddListener(l discovery.ServiceListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// RemoveListener unregisters l
func (p *Provider) RemoveListener(l discovery.ServiceListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, x := range p.listeners {
		if x == l {
			p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
			return
		}
	}
}

// Found returns clones of the resolved services, ordered by UUID.
func (p *Provider) Found() []*service.Description {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*service.Description, 0, len(p.found))
	for _, uuid := range sortedUUIDs(p.found) {
		out = append(out, p.found[uuid].Clone())
	}
	return out
}

func (p *Provider) serviceIDsLocked(filter string) []string {
	var ids []string
	for _, f := range p.filters {
		if f.Filter == filter {
			ids = append(ids, f.ServiceID)
		}
	}
	return ids
}

func (p *Provider) searchingLocked(filter string) bool {
	for _, f := range p.filters {
		if f.Filter == filter {
			return true
		}
	}
	return false
}

// searchLoop runs a cycle immediately and then every rescan interval. A
// cycle evicts stale services before searching.
func (p *Provider) searchLoop(ctx context.Context, tr Transport) error {
	ticker := p.clock.Ticker(p.rescanInterval)
	defer ticker.Stop()

	p.evict()
	p.search(ctx, tr)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.evict()
			p.search(ctx, tr)
		case <-p.rescan:
			p.search(ctx, tr)
		}
	}
}

// search sends every filter's M-SEARCH three times, one second apart.
func (p *Provider) search(ctx context.Context, tr Transport) {
	for i := 0; i < searchRepeats; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-p.clock.After(searchSpacing):
			}
		}
		for _, target := range p.searchTargets() {
			if ctx.Err() != nil {
				return
			}
			if err := tr.Send(SearchMessage(target)); err != nil {
				logging.Debug("M-SEARCH send failed", zap.String("target", target), zap.Error(err))
				continue
			}
			p.metrics.ObserveSearch()
		}
	}
}

// searchTargets returns the distinct search targets in registration order
func (p *Provider) searchTargets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]bool, len(p.filters))
	var out []string
	for _, f := range p.filters {
		if !seen[f.Filter] {
			seen[f.Filter] = true
			out = append(out, f.Filter)
		}
	}
	return out
}

// receiveLoop feeds datagrams to the packet handler until the transport
// fails. Failures after Stop are expected and ignored; others end this
// loop only and are reported as discovery failures.
func (p *Provider) receiveLoop(ctx context.Context, g *errgroup.Group, source string, recv func() (Datagram, error)) error {
	for {
		dg, err := recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsClosed(err) {
				err = fmt.Errorf("ssdp %s socket closed while running: %w", source, err)
			} else {
				err = fmt.Errorf("ssdp %s receive: %w", source, err)
			}
			logging.Warn("SSDP receive loop ended", zap.Error(err))
			p.notify(discovery.ServiceEvent{Kind: discovery.ServiceDiscoveryFailed, Provider: p, Err: err})
			return nil
		}

		addr := ""
		if dg.Addr != nil {
			addr = dg.Addr.String()
		}
		logging.LogPacket("received", addr, dg.Data)
		p.handlePacket(ctx, g, Decode(dg.Data, dg.Addr))
	}
}

// handlePacket applies one decoded packet. Packets without headers, our
// own M-SEARCH echoes, unknown targets and packets without a uuid are
// discarded.
func (p *Provider) handlePacket(ctx context.Context, g *errgroup.Group, pkt *Packet) {
	if pkt == nil || len(pkt.Headers) == 0 || pkt.IsSearch() {
		p.metrics.ObservePacket(metrics.PacketDiscarded)
		return
	}

	target := pkt.SearchTarget()
	uuid, hasUUID := pkt.UUID()

	p.mu.Lock()
	searching := target != "" && p.searchingLocked(target)
	p.mu.Unlock()
	if !searching || !hasUUID {
		p.metrics.ObservePacket(metrics.PacketDiscarded)
		return
	}

	if pkt.IsByebye() {
		p.metrics.ObservePacket(metrics.PacketByebye)
		p.handleByebye(uuid)
		return
	}

	location := pkt.Get("LOCATION")
	if location == "" {
		p.metrics.ObservePacket(metrics.PacketDiscarded)
		return
	}
	if pkt.IsNotify() {
		p.metrics.ObservePacket(metrics.PacketNotify)
	} else {
		p.metrics.ObservePacket(metrics.PacketResponse)
	}

	now := p.clock.Now()

	p.mu.Lock()
	if d, ok := p.found[uuid]; ok {
		d.LastDetection = now
		p.mu.Unlock()
		return
	}
	if d, ok := p.resolving[uuid]; ok {
		d.LastDetection = now
		p.mu.Unlock()
		return
	}

	ip := ""
	if pkt.Source != nil {
		ip = pkt.Source.IP.String()
	}
	desc := service.NewDescription(target, uuid, ip, 0)
	desc.LocationURL = location
	desc.LastDetection = now
	p.resolving[uuid] = desc
	p.mu.Unlock()

	g.Go(func() error {
		p.resolve(ctx, desc)
		return nil
	})
}

// resolve fetches the description of a placeholder. On success the
// placeholder is promoted to found and reported added.
func (p *Provider) resolve(ctx context.Context, desc *service.Description) {
	fctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	dd, err := p.fetcher.Fetch(fctx, desc.LocationURL)

	p.mu.Lock()
	current, ok := p.resolving[desc.UUID]
	if ok && current == desc {
		delete(p.resolving, desc.UUID)
	}
	if err != nil || current != desc {
		p.mu.Unlock()
		if err != nil {
			logging.Debug("Dropped SSDP sighting, description fetch failed",
				zap.String("uuid", desc.UUID),
				zap.String("location", desc.LocationURL),
				zap.Error(err))
		}
		return
	}

	dd.Apply(desc)
	p.found[desc.UUID] = desc
	events := p.eventsLocked(discovery.ServiceAdded, desc)
	tracked := len(p.found)
	p.mu.Unlock()

	p.metrics.SetTrackedServices(discovery.KindSSDP, tracked)
	for _, ev := range events {
		logging.LogServiceEvent("found", ev.Description.ServiceID, desc.UUID, desc.IPAddress)
		p.notify(ev)
	}
}

func (p *Provider) handleByebye(uuid string) {
	p.mu.Lock()
	delete(p.resolving, uuid)
	desc, ok := p.found[uuid]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.found, uuid)
	events := p.eventsLocked(discovery.ServiceRemoved, desc)
	tracked := len(p.found)
	p.mu.Unlock()

	p.metrics.SetTrackedServices(discovery.KindSSDP, tracked)
	for _, ev := range events {
		logging.LogServiceEvent("byebye", ev.Description.ServiceID, uuid, desc.IPAddress)
		p.notify(ev)
	}
}

// evict removes found services not seen within the timeout.
func (p *Provider) evict() {
	killPoint := p.clock.Now().Add(-p.timeout)

	p.mu.Lock()
	var events []discovery.ServiceEvent
	for _, uuid := range sortedUUIDs(p.found) {
		desc := p.found[uuid]
		if !desc.LastDetection.Before(killPoint) {
			continue
		}
		delete(p.found, uuid)
		events = append(events, p.eventsLocked(discovery.ServiceRemoved, desc)...)
	}
	tracked := len(p.found)
	p.mu.Unlock()

	if len(events) == 0 {
		return
	}
	p.metrics.SetTrackedServices(discovery.KindSSDP, tracked)
	for _, ev := range events {
		logging.LogServiceEvent("timeout", ev.Description.ServiceID, ev.Description.UUID, ev.Description.IPAddress)
		p.notify(ev)
	}
}

// eventsLocked builds one event per service ID registered for the
// description's search target, each carrying its own clone.
func (p *Provider) eventsLocked(kind discovery.ServiceEventKind, desc *service.Description) []discovery.ServiceEvent {
	ids := p.serviceIDsLocked(desc.ServiceFilter)
	events := make([]discovery.ServiceEvent, 0, len(ids))
	for _, id := range ids {
		c := desc.Clone()
		c.ServiceID = id
		events = append(events, discovery.ServiceEvent{Kind: kind, Provider: p, Description: c})
	}
	return events
}

func (p *Provider) notify(ev discovery.ServiceEvent) {
	p.mu.Lock()
	ls := append([]discovery.ServiceListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range ls {
		l.HandleServiceEvent(ev)
	}
}

func sortedUUIDs(m map[string]*service.Description) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
