package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/grandcat/zeroconf"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/metrics"
	"github.com/muurk/castscan/internal/service"
)

const (
	// Domain is the mDNS browse domain
	Domain = "local."

	// Timeout is how long a found service survives without being seen
	Timeout = 60 * time.Second

	// DefaultBrowseWindow is how long each cycle listens for answers
	DefaultBrowseWindow = 3 * time.Second
)

// ErrInvalidFilter is returned by AddFilter for filters missing a service
// ID or service type.
var ErrInvalidFilter = errors.New("invalid discovery filter")

// Browser browses one service type. Implementations must close entries
// once ctx is done.
type Browser interface {
	Browse(ctx context.Context, serviceType string, entries chan<- *zeroconf.ServiceEntry) error
}

// ZeroconfBrowser browses with a fresh zeroconf resolver per call
type ZeroconfBrowser struct {
	// Interface restricts queries to one network interface by name
	Interface string
}

// Browse implements Browser
func (b ZeroconfBrowser) Browse(ctx context.Context, serviceType string, entries chan<- *zeroconf.ServiceEntry) error {
	opts := []zeroconf.ClientOption{zeroconf.SelectIPTraffic(zeroconf.IPv4)}
	if b.Interface != "" {
		iface, err := net.InterfaceByName(b.Interface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", b.Interface, err)
		}
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
	}

	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	if err := resolver.Browse(ctx, serviceType, Domain, entries); err != nil {
		return fmt.Errorf("failed to browse for %s: %w", serviceType, err)
	}
	return nil
}

// Provider discovers services over mDNS. Every registered filter's service
// type is browsed once per rescan interval; services are keyed by their
// IPv4 address.
type Provider struct {
	life sync.Mutex

	mu        sync.Mutex
	running   bool
	filters   []service.DiscoveryFilter
	found     map[string]*service.Description
	listeners []discovery.ServiceListener
	cancel    context.CancelFunc
	group     *errgroup.Group

	rescan chan struct{}

	clock          clock.Clock
	rescanInterval time.Duration
	timeout        time.Duration
	browseWindow   time.Duration
	browser        Browser
	metrics        *metrics.Metrics
}

var _ discovery.Provider = (*Provider)(nil)

// Option configures a Provider
type Option func(*Provider)

// WithClock replaces the wall clock, for tests
func WithClock(c clock.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// WithRescanInterval sets the browse period
func WithRescanInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.rescanInterval = d
		}
	}
}

// WithBrowseWindow sets how long each browse listens for answers
func WithBrowseWindow(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.browseWindow = d
		}
	}
}

// WithBrowser replaces the zeroconf browser
func WithBrowser(b Browser) Option {
	return func(p *Provider) { p.browser = b }
}

// WithInterface restricts the default browser to one interface
func WithInterface(name string) Option {
	return func(p *Provider) { p.browser = ZeroconfBrowser{Interface: name} }
}

// WithMetrics records tracked services
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// New creates a stopped provider
func New(opts ...Option) *Provider {
	p := &Provider{
		found:          make(map[string]*service.Description),
		rescan:         make(chan struct{}, 1),
		clock:          clock.New(),
		rescanInterval: discovery.DefaultRescanInterval,
		timeout:        Timeout,
		browseWindow:   DefaultBrowseWindow,
		browser:        ZeroconfBrowser{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.browseWindow >= p.rescanInterval {
		p.browseWindow = p.rescanInterval / 2
	}
	return p
}

// Factory returns a discovery.ProviderFactory building providers with opts
func Factory(opts ...Option) discovery.ProviderFactory {
	return func(rescanInterval time.Duration) discovery.Provider {
		return New(append(append([]Option(nil), opts...), WithRescanInterval(rescanInterval))...)
	}
}

// Start launches the browse loop. It is a no-op while running.
func (p *Provider) Start(ctx context.Context) error {
	p.life.Lock()
	defer p.life.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	g := new(errgroup.Group)
	p.running = true
	p.cancel = cancel
	p.group = g

	select {
	case <-p.rescan:
	default:
	}

	g.Go(func() error { return p.browseLoop(runCtx) })
	logging.Info("mDNS discovery started", zap.Int("filters", len(p.filters)))
	return nil
}

// Stop cancels the browse loop and waits for it to return
func (p *Provider) Stop() error {
	p.life.Lock()
	defer p.life.Unlock()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel, g := p.cancel, p.group
	p.cancel, p.group = nil, nil
	p.running = false
	p.mu.Unlock()

	cancel()
	err := g.Wait()
	logging.Info("mDNS discovery stopped")
	return err
}

// Restart stops and starts the provider
func (p *Provider) Restart(ctx context.Context) error {
	if err := p.Stop(); err != nil {
		logging.Debug("mDNS stop before restart failed", zap.Error(err))
	}
	return p.Start(ctx)
}

// Reset stops the provider and forgets every tracked service
func (p *Provider) Reset() error {
	err := p.Stop()
	p.mu.Lock()
	p.found = make(map[string]*service.Description)
	p.mu.Unlock()
	p.metrics.SetTrackedServices(discovery.KindMDNS, 0)
	return err
}

// Rescan requests an immediate browse. It is ignored while stopped.
func (p *Provider) Rescan() {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return
	}
	select {
	case p.rescan <- struct{}{}:
	default:
	}
}

// AddFilter registers a service type such as "_googlecast._tcp.local."
func (p *Provider) AddFilter(f service.DiscoveryFilter) error {
	if !f.Valid() {
		logging.Warn("Rejected mDNS filter", zap.String("service_id", f.ServiceID), zap.String("filter", f.Filter))
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

// RemoveFilter unregisters a service type
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

// IsEmpty reports whether no filter is registered
func (p *Provider) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.filters) == 0
}

// ServiceIDsForFilter returns the service IDs registered for a service type
func (p *Provider) ServiceIDsForFilter(filter string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.serviceIDsLocked(filter)
}

// IsSearchingForFilter reports whether f's service type is registered
func (p *Provider) IsSearchingForFilter(f service.DiscoveryFilter) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, x := range p.filters {
		if x.Filter == f.Filter {
			return true
		}
	}
	return false
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

// Found returns clones of the tracked services, ordered by IP address
func (p *Provider) Found() []*service.Description {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.found))
	for k := range p.found {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*service.Description, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.found[k].Clone())
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

func (p *Provider) browseLoop(ctx context.Context) error {
	ticker := p.clock.Ticker(p.rescanInterval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.cycle(ctx)
		case <-p.rescan:
			p.browseAll(ctx)
		}
	}
}

// cycle evicts stale services, then browses every service type
func (p *Provider) cycle(ctx context.Context) {
	p.evict()
	p.browseAll(ctx)
}

// browseAll browses the distinct registered service types concurrently
// for one browse window. Failures are reported as one discovery failure.
func (p *Provider) browseAll(ctx context.Context) {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for _, filter := range p.serviceTypes() {
		filter := filter
		g.Go(func() error {
			if err := p.browse(ctx, filter); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if errs != nil && ctx.Err() == nil {
		logging.Warn("mDNS browse failed", zap.Error(errs))
		p.notify(discovery.ServiceEvent{Kind: discovery.ServiceDiscoveryFailed, Provider: p, Err: errs})
	}
}

func (p *Provider) browse(ctx context.Context, filter string) error {
	bctx, cancel := context.WithTimeout(ctx, p.browseWindow)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := p.browser.Browse(bctx, browseType(filter), entries); err != nil {
		return err
	}
	for entry := range entries {
		p.handleEntry(filter, entry)
	}
	return nil
}

// handleEntry records a browse result. A new address is reported added;
// a known address only refreshes its detection time unless its name
// changed, which is reported added again.
func (p *Provider) handleEntry(filter string, entry *zeroconf.ServiceEntry) {
	desc := parseServiceEntry(filter, entry, p.clock.Now())
	if desc == nil {
		logging.Debug("Ignored mDNS entry without IPv4 address", zap.String("instance", entryInstance(entry)))
		return
	}

	p.mu.Lock()
	if len(p.serviceIDsLocked(filter)) == 0 {
		p.mu.Unlock()
		return
	}

	existing, ok := p.found[desc.UUID]
	if ok {
		existing.LastDetection = desc.LastDetection
		if existing.FriendlyName == desc.FriendlyName {
			p.mu.Unlock()
			return
		}
		existing.FriendlyName = desc.FriendlyName
		desc = existing
	} else {
		p.found[desc.UUID] = desc
	}
	events := p.eventsLocked(discovery.ServiceAdded, desc)
	tracked := len(p.found)
	p.mu.Unlock()

	p.metrics.SetTrackedServices(discovery.KindMDNS, tracked)
	for _, ev := range events {
		logging.LogServiceEvent("found", ev.Description.ServiceID, desc.UUID, desc.IPAddress)
		p.notify(ev)
	}
}

// evict removes services not seen within the timeout
func (p *Provider) evict() {
	killPoint := p.clock.Now().Add(-p.timeout)

	p.mu.Lock()
	keys := make([]string, 0, len(p.found))
	for k, desc := range p.found {
		if desc.LastDetection.Before(killPoint) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var events []discovery.ServiceEvent
	for _, k := range keys {
		events = append(events, p.eventsLocked(discovery.ServiceRemoved, p.found[k])...)
		delete(p.found, k)
	}
	tracked := len(p.found)
	p.mu.Unlock()

	if len(events) == 0 {
		return
	}
	p.metrics.SetTrackedServices(discovery.KindMDNS, tracked)
	for _, ev := range events {
		logging.LogServiceEvent("timeout", ev.Description.ServiceID, ev.Description.UUID, ev.Description.IPAddress)
		p.notify(ev)
	}
}

func (p *Provider) serviceTypes() []string {
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

func entryInstance(e *zeroconf.ServiceEntry) string {
	if e == nil {
		return ""
	}
	return e.Instance
}
