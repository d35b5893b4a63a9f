package service

import (
	"context"
	"sync"

	"github.com/muurk/castscan/internal/capability"
)

type registration struct {
	impl     any
	priority capability.Priority
}

// Base implements the bookkeeping shared by every Service: the capability
// set, the capability registry, connection state and pairing. Concrete
// services embed *Base and override what they need.
type Base struct {
	mu          sync.RWMutex
	name        string
	desc        *Description
	config      *Config
	caps        []string
	registry    map[capability.Tag]registration
	connectable bool
	connected   bool
	pairing     PairingType
	listener    Listener
}

// NewBase creates the shared state for a service named name.
func NewBase(name string, desc *Description, cfg *Config) *Base {
	if cfg == nil {
		cfg = NewConfig(desc)
	}
	return &Base{
		name:     name,
		desc:     desc,
		config:   cfg,
		registry: make(map[capability.Tag]registration),
	}
}

// Name returns the logical service ID.
func (b *Base) Name() string { return b.name }

// Description returns the current sighting.
func (b *Base) Description() *Description {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.desc
}

// SetDescription replaces the current sighting.
func (b *Base) SetDescription(desc *Description) {
	b.mu.Lock()
	b.desc = desc
	b.mu.Unlock()
}

// Config returns the persisted service config.
func (b *Base) Config() *Config { return b.config }

// Register binds a capability interface to its implementation. Services
// call it while being constructed.
func (b *Base) Register(tag capability.Tag, impl any, priority capability.Priority) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry[tag] = registration{impl: impl, priority: priority}
}

// Implementation returns the registered implementation for tag.
func (b *Base) Implementation(tag capability.Tag) (any, capability.Priority) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.registry[tag]
	if !ok {
		return nil, capability.NotSupported
	}
	return r.impl, r.priority
}

// Capabilities returns a copy of the capability set.
func (b *Base) Capabilities() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.caps))
	copy(out, b.caps)
	return out
}

// HasCapability reports whether the service holds name; see capability.Match.
func (b *Base) HasCapability(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return capability.Match(b.caps, name)
}

// SetCapabilities replaces the capability set and emits the delta.
func (b *Base) SetCapabilities(caps []string) {
	b.mu.Lock()
	added, removed := capability.Diff(b.caps, caps)
	b.caps = dedupe(caps)
	b.mu.Unlock()
	b.emitDelta(added, removed)
}

// AddCapabilities adds names that are not yet present.
func (b *Base) AddCapabilities(names ...string) {
	b.mu.Lock()
	var added []string
	for _, n := range names {
		if n == "" || contains(b.caps, n) {
			continue
		}
		b.caps = append(b.caps, n)
		added = append(added, n)
	}
	b.mu.Unlock()
	b.emitDelta(added, nil)
}

// RemoveCapabilities removes the given names.
func (b *Base) RemoveCapabilities(names ...string) {
	b.mu.Lock()
	var removed []string
	kept := b.caps[:0:0]
	for _, c := range b.caps {
		if contains(names, c) {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	b.caps = kept
	b.mu.Unlock()
	b.emitDelta(nil, removed)
}

func (b *Base) emitDelta(added, removed []string) {
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	b.emit(Event{Kind: CapabilitiesUpdated, Added: added, Removed: removed})
}

// SetConnectable marks the service as requiring Connect before use.
func (b *Base) SetConnectable(v bool) {
	b.mu.Lock()
	b.connectable = v
	b.mu.Unlock()
}

// IsConnectable reports whether the service has a connection lifecycle.
func (b *Base) IsConnectable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectable
}

// IsConnected reports the connection state.
func (b *Base) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Connect marks the service connected.
func (b *Base) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	b.emit(Event{Kind: Connected})
	return nil
}

// Disconnect marks the service disconnected.
func (b *Base) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	b.emit(Event{Kind: Disconnected})
	return nil
}

// PairingType returns the pairing type.
func (b *Base) PairingType() PairingType {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pairing
}

// SetPairingType sets the pairing type.
func (b *Base) SetPairingType(p PairingType) {
	b.mu.Lock()
	b.pairing = p
	b.mu.Unlock()
}

// SendPairingKey is a no-op for services without pairing.
func (b *Base) SendPairingKey(key string) error {
	if b.PairingType() == PairingNone {
		return NotSupported()
	}
	b.config.Set("pairing_key", key)
	return nil
}

// SetListener installs the single listener for this service.
func (b *Base) SetListener(l Listener) {
	b.mu.Lock()
	b.listener = l
	b.mu.Unlock()
}

func (b *Base) emit(ev Event) {
	b.mu.RLock()
	l := b.listener
	b.mu.RUnlock()
	if l != nil {
		l(ev)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedupe(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != "" && !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
