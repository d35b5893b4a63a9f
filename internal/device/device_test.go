package device

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/muurk/castscan/internal/capability"
	"github.com/muurk/castscan/internal/service"
)

type fakeService struct {
	*service.Base
	disconnects int
}

func (f *fakeService) Disconnect(ctx context.Context) error {
	f.disconnects++
	return f.Base.Disconnect(ctx)
}

func newFake(name, uuid string, caps ...string) *fakeService {
	desc := &service.Description{UUID: uuid, ServiceID: name}
	f := &fakeService{Base: service.NewBase(name, desc, nil)}
	f.SetCapabilities(caps)
	return f
}

func TestCapabilityPriorityArbitration(t *testing.T) {
	ctx := context.Background()
	d := New(&service.Description{FriendlyName: "TV", IPAddress: "10.0.0.5"})

	low := newFake("Low", "u1")
	low.Register(capability.Launcher, "low-impl", capability.Low)
	high := newFake("High", "u2")
	high.Register(capability.Launcher, "high-impl", capability.High)

	d.AddService(ctx, low)
	d.AddService(ctx, high)

	if got := d.Capability(capability.Launcher); got != "high-impl" {
		t.Errorf("Capability(Launcher) = %v, want high-impl", got)
	}

	d.RemoveServiceByName(ctx, "High")

	if got := d.Capability(capability.Launcher); got != "low-impl" {
		t.Errorf("Capability(Launcher) after removing High = %v, want low-impl", got)
	}

	if got := d.Capability(capability.MediaPlayer); got != nil {
		t.Errorf("Capability(MediaPlayer) = %v, want nil", got)
	}
}

func TestCapabilityTieGoesToFirstAttached(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	a := newFake("A", "u1")
	a.Register(capability.VolumeControl, "a", capability.Normal)
	b := newFake("B", "u2")
	b.Register(capability.VolumeControl, "b", capability.Normal)

	d.AddService(ctx, a)
	d.AddService(ctx, b)

	impl, ok := CapabilityAs[string](d, capability.VolumeControl)
	if !ok || impl != "a" {
		t.Errorf("CapabilityAs(VolumeControl) = %q, %v, want a, true", impl, ok)
	}
}

func TestCapabilityNotSupportedIsFallback(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	unranked := newFake("Unranked", "u1")
	unranked.Register(capability.KeyControl, "unranked", capability.NotSupported)
	d.AddService(ctx, unranked)

	if got := d.Capability(capability.KeyControl); got != "unranked" {
		t.Errorf("Capability(KeyControl) = %v, want unranked", got)
	}

	ranked := newFake("Ranked", "u2")
	ranked.Register(capability.KeyControl, "ranked", capability.VeryLow)
	d.AddService(ctx, ranked)

	if got := d.Capability(capability.KeyControl); got != "ranked" {
		t.Errorf("Capability(KeyControl) with a ranked service = %v, want ranked", got)
	}
}

func TestAddServiceReplacesSameName(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	first := newFake("DIAL", "old")
	second := newFake("DIAL", "new")

	d.AddService(ctx, first)
	d.AddService(ctx, second)

	if len(d.Services()) != 1 {
		t.Fatalf("len(Services()) = %d, want 1", len(d.Services()))
	}
	if d.ServiceByName("DIAL") != second {
		t.Error("second service should replace the first")
	}
	if first.disconnects != 1 {
		t.Errorf("replaced service disconnects = %d, want 1", first.disconnects)
	}
	if d.ServiceWithUUID("new") != second {
		t.Error("ServiceWithUUID(new) should find the replacement")
	}
}

func TestCapabilityEventsFromServices(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	var events []Event
	remove := d.AddListener(func(ev Event) {
		if ev.Kind == CapabilityUpdated {
			events = append(events, ev)
		}
	})

	a := newFake("A", "u1", "X", "Y")
	d.AddService(ctx, a)
	a.AddCapabilities("Z")
	b := newFake("B", "u2", "Y")
	d.AddService(ctx, b)
	d.RemoveServiceByName(ctx, "A")

	remove()
	a.AddCapabilities("ignored")

	if len(events) != 3 {
		t.Fatalf("got %d capability events, want 3", len(events))
	}
	if !reflect.DeepEqual(events[0].Added, []string{"X", "Y"}) {
		t.Errorf("attach delta = %v, want [X Y]", events[0].Added)
	}
	if !reflect.DeepEqual(events[1].Added, []string{"Z"}) {
		t.Errorf("service delta = %v, want [Z]", events[1].Added)
	}
	if !reflect.DeepEqual(events[2].Removed, []string{"X", "Z"}) {
		t.Errorf("detach delta = %v, want [X Z] (Y still served by B)", events[2].Removed)
	}
	if events[2].Device != d {
		t.Error("event should carry the device")
	}
}

func TestIsConnected(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		connectable bool
		connect     bool
		want        bool
	}{
		{"non-connectable counts", false, false, true},
		{"connectable disconnected", true, false, false},
		{"connectable connected", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(nil)
			s := newFake("S", "u")
			s.SetConnectable(tt.connectable)
			d.AddService(ctx, s)
			if tt.connect {
				if err := d.Connect(ctx); err != nil {
					t.Fatalf("Connect() error = %v", err)
				}
			}
			if got := d.IsConnected(); got != tt.want {
				t.Errorf("IsConnected() = %v, want %v", got, tt.want)
			}
		})
	}

	if New(nil).IsConnected() {
		t.Error("device without services should not be connected")
	}
}

func TestDisconnectNotifiesListeners(t *testing.T) {
	ctx := context.Background()
	d := New(nil)
	s := newFake("S", "u")
	s.SetConnectable(true)
	d.AddService(ctx, s)
	_ = d.Connect(ctx)

	var kinds []EventKind
	d.AddListener(func(ev Event) { kinds = append(kinds, ev.Kind) })

	if err := d.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	want := []EventKind{ServiceDisconnected, Disconnected}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
	if s.disconnects != 1 {
		t.Errorf("service disconnects = %d, want 1", s.disconnects)
	}
}

func TestHasCapabilities(t *testing.T) {
	d := New(nil)
	d.AddService(context.Background(), newFake("S", "u", capability.MediaPlayerPlayVideo, capability.MediaControlPlay))

	if !d.HasCapabilities(capability.MediaPlayerPlayVideo, capability.MediaControlAny) {
		t.Error("HasCapabilities() = false, want true")
	}
	if d.HasCapabilities(capability.MediaPlayerPlayVideo, capability.VolumeControlSet) {
		t.Error("HasCapabilities() with a missing name = true")
	}
	if !d.HasAnyCapability(capability.VolumeControlSet, capability.MediaControlPlay) {
		t.Error("HasAnyCapability() = false, want true")
	}
	if !d.Satisfies(capability.NewFilter(capability.MediaPlayerAny)) {
		t.Error("Satisfies(MediaPlayer.Any) = false")
	}
}

func TestRecordRestore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := New(&service.Description{FriendlyName: "Living Room TV", IPAddress: "10.0.0.5", ModelName: "OLED"})
	d.Detected(now)

	s := newFake("DIAL", "uuid-1")
	s.Config().Set("token", "abc")
	d.AddService(context.Background(), s)

	r := d.Record()
	if r.ID != d.ID() || r.LastKnownIPAddress != "10.0.0.5" {
		t.Errorf("Record() = %+v", r)
	}

	restored := FromRecord(r)
	if restored.ID() != d.ID() {
		t.Errorf("restored ID = %q, want %q", restored.ID(), d.ID())
	}
	if restored.FriendlyName() != "Living Room TV" || restored.ModelName() != "OLED" {
		t.Errorf("restored fields = %q, %q", restored.FriendlyName(), restored.ModelName())
	}
	if !restored.LastDetection().Equal(now) {
		t.Errorf("restored LastDetection = %v, want %v", restored.LastDetection(), now)
	}
	if restored.HasServices() {
		t.Error("restored device should have no services")
	}

	cfg, ok := r.ServiceConfig("uuid-1")
	if !ok || cfg.Get("token") != "abc" {
		t.Errorf("ServiceConfig(uuid-1) = %v, %v", cfg, ok)
	}
	if _, ok := r.ServiceConfig("missing"); ok {
		t.Error("ServiceConfig(missing) should not be found")
	}
}

func TestView(t *testing.T) {
	d := New(&service.Description{FriendlyName: "TV", IPAddress: "10.0.0.5"})
	v := d.View()
	if v.Capabilities == nil || v.Services == nil {
		t.Error("View() should use empty slices, not nil")
	}

	d.AddService(context.Background(), newFake("DIAL", "u1", capability.LauncherApp))
	v = d.View()
	if len(v.Services) != 1 || v.Services[0].UUID != "u1" {
		t.Errorf("View().Services = %+v", v.Services)
	}
}
