package mdns

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/grandcat/zeroconf"

	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/service"
)

const castType = "_googlecast._tcp.local."

// fakeBrowser answers each browse with the entries queued for its service
// type and closes the channel.
type fakeBrowser struct {
	mu      sync.Mutex
	entries map[string][]*zeroconf.ServiceEntry
	err     error
	calls   []string
}

func (b *fakeBrowser) Browse(ctx context.Context, serviceType string, entries chan<- *zeroconf.ServiceEntry) error {
	b.mu.Lock()
	b.calls = append(b.calls, serviceType)
	err := b.err
	queued := append([]*zeroconf.ServiceEntry(nil), b.entries[serviceType]...)
	b.mu.Unlock()

	if err != nil {
		return err
	}
	go func() {
		defer close(entries)
		for _, e := range queued {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (b *fakeBrowser) set(serviceType string, entries ...*zeroconf.ServiceEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries == nil {
		b.entries = make(map[string][]*zeroconf.ServiceEntry)
	}
	b.entries[serviceType] = entries
}

func (b *fakeBrowser) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type recorder struct {
	mu     sync.Mutex
	events []discovery.ServiceEvent
}

func (r *recorder) HandleServiceEvent(ev discovery.ServiceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind discovery.ServiceEventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last() discovery.ServiceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func castEntry(instance, ip string, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, "_googlecast._tcp", Domain)
	e.HostName = "cast.local."
	e.Port = 8009
	e.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	e.Text = txt
	return e
}

func newTestProvider(t *testing.T, b Browser) (*Provider, *clock.Mock, *recorder) {
	t.Helper()
	mock := clock.NewMock()
	rec := &recorder{}
	p := New(WithClock(mock), WithBrowser(b), WithBrowseWindow(50*time.Millisecond))
	p.AddListener(rec)
	if err := p.AddFilter(service.DiscoveryFilter{ServiceID: "Chromecast", Filter: castType}); err != nil {
		t.Fatalf("AddFilter() error = %v", err)
	}
	return p, mock, rec
}

func TestBrowseReportsNewAddresses(t *testing.T) {
	b := &fakeBrowser{}
	b.set("_googlecast._tcp",
		castEntry("Chromecast-abc", "192.168.1.20", "fn=Kitchen speaker", "md=Google Home", "ve=05"),
		castEntry("Chromecast-def", "192.168.1.21"),
	)
	p, _, rec := newTestProvider(t, b)

	p.browseAll(context.Background())

	if n := rec.count(discovery.ServiceAdded); n != 2 {
		t.Fatalf("ServiceAdded count = %d, want 2", n)
	}
	found := p.Found()
	if len(found) != 2 {
		t.Fatalf("Found() len = %d, want 2", len(found))
	}

	got := found[0]
	if got.UUID != "192.168.1.20" || got.IPAddress != "192.168.1.20" {
		t.Errorf("UUID, IPAddress = %s, %s, want 192.168.1.20", got.UUID, got.IPAddress)
	}
	if got.FriendlyName != "Kitchen speaker" {
		t.Errorf("FriendlyName = %q, want Kitchen speaker", got.FriendlyName)
	}
	if got.ModelName != "Google Home" || got.Version != "05" {
		t.Errorf("ModelName, Version = %q, %q", got.ModelName, got.Version)
	}
	if got.Port != 8009 || got.ServiceFilter != castType {
		t.Errorf("Port, ServiceFilter = %d, %q", got.Port, got.ServiceFilter)
	}
	if found[1].FriendlyName != "Chromecast-def" {
		t.Errorf("FriendlyName = %q, want instance name", found[1].FriendlyName)
	}
}

func TestKnownAddressRefreshes(t *testing.T) {
	b := &fakeBrowser{}
	b.set("_googlecast._tcp", castEntry("TV", "192.168.1.20"))
	p, mock, rec := newTestProvider(t, b)

	p.browseAll(context.Background())
	mock.Add(30 * time.Second)
	p.browseAll(context.Background())

	if n := rec.count(discovery.ServiceAdded); n != 1 {
		t.Errorf("ServiceAdded count = %d, want 1", n)
	}
	if got := p.Found()[0].LastDetection; !got.Equal(mock.Now()) {
		t.Errorf("LastDetection = %v, want %v", got, mock.Now())
	}

	b.set("_googlecast._tcp", castEntry("Bedroom TV", "192.168.1.20"))
	p.browseAll(context.Background())
	if n := rec.count(discovery.ServiceAdded); n != 2 {
		t.Errorf("ServiceAdded count after rename = %d, want 2", n)
	}
	if got := rec.last().Description.FriendlyName; got != "Bedroom TV" {
		t.Errorf("renamed FriendlyName = %q, want Bedroom TV", got)
	}
}

func TestTimeoutEviction(t *testing.T) {
	b := &fakeBrowser{}
	b.set("_googlecast._tcp", castEntry("TV", "192.168.1.20"))
	p, mock, rec := newTestProvider(t, b)

	p.browseAll(context.Background())
	b.set("_googlecast._tcp")

	mock.Add(Timeout - time.Second)
	p.evict()
	if n := len(p.Found()); n != 1 {
		t.Fatalf("Found() len = %d before timeout, want 1", n)
	}

	mock.Add(2 * time.Second)
	p.evict()
	if n := len(p.Found()); n != 0 {
		t.Errorf("Found() len = %d after timeout, want 0", n)
	}
	if n := rec.count(discovery.ServiceRemoved); n != 1 {
		t.Errorf("ServiceRemoved count = %d, want 1", n)
	}
}

func TestEntriesWithoutIPv4Ignored(t *testing.T) {
	v6 := castEntry("TV", "192.168.1.20")
	v6.AddrIPv4 = nil
	v6.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}

	b := &fakeBrowser{}
	b.set("_googlecast._tcp", v6)
	p, _, rec := newTestProvider(t, b)

	p.browseAll(context.Background())
	if n := rec.count(discovery.ServiceAdded); n != 0 {
		t.Errorf("ServiceAdded count = %d, want 0", n)
	}
}

func TestBrowseFailureReported(t *testing.T) {
	b := &fakeBrowser{err: errors.New("no multicast interface")}
	p, _, rec := newTestProvider(t, b)

	p.browseAll(context.Background())
	if n := rec.count(discovery.ServiceDiscoveryFailed); n != 1 {
		t.Errorf("ServiceDiscoveryFailed count = %d, want 1", n)
	}
}

func TestStartStop(t *testing.T) {
	b := &fakeBrowser{}
	p, mock, _ := newTestProvider(t, b)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	waitFor(t, "first browse", func() bool { return b.callCount() >= 1 })
	waitFor(t, "periodic browse", func() bool {
		mock.Add(discovery.DefaultRescanInterval)
		return b.callCount() >= 2
	})

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	calls := b.callCount()
	mock.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if n := b.callCount(); n != calls {
		t.Errorf("browsed %d times after Stop", n-calls)
	}
	if got := b.calls[0]; got != "_googlecast._tcp" {
		t.Errorf("browsed %q, want _googlecast._tcp", got)
	}
}

func TestFilterValidation(t *testing.T) {
	p := New(WithBrowser(&fakeBrowser{}))
	if err := p.AddFilter(service.DiscoveryFilter{ServiceID: "AirPlay"}); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("AddFilter() error = %v, want ErrInvalidFilter", err)
	}

	f := service.DiscoveryFilter{ServiceID: "AirPlay", Filter: "_airplay._tcp.local."}
	for i := 0; i < 2; i++ {
		if err := p.AddFilter(f); err != nil {
			t.Fatalf("AddFilter() error = %v", err)
		}
	}
	if got := p.ServiceIDsForFilter(f.Filter); len(got) != 1 {
		t.Errorf("ServiceIDsForFilter() = %v, want one ID", got)
	}
	p.RemoveFilter(f)
	if !p.IsEmpty() {
		t.Error("IsEmpty() = false after removing the only filter")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
