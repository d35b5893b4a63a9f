package service

import (
	"sync"
	"time"
)

// Config holds per-service state that outlives a discovery session, such as
// pairing keys and the last detection time. Stores persist it; services
// mutate it and the owning manager is notified through the update hook.
type Config struct {
	mu            sync.RWMutex
	serviceUUID   string
	lastDetection time.Time
	values        map[string]string
	onUpdate      func(*Config)
}

// NewConfig creates a config for a sighted service.
func NewConfig(desc *Description) *Config {
	c := &Config{values: make(map[string]string)}
	if desc != nil {
		c.serviceUUID = desc.UUID
		c.lastDetection = desc.LastDetection
	}
	return c
}

// RestoreConfig rebuilds a persisted config.
func RestoreConfig(serviceUUID string, lastDetection time.Time, values map[string]string) *Config {
	c := &Config{
		serviceUUID:   serviceUUID,
		lastDetection: lastDetection,
		values:        make(map[string]string, len(values)),
	}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// ServiceUUID returns the UUID of the service this config belongs to.
func (c *Config) ServiceUUID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serviceUUID
}

// LastDetection returns when the service was last sighted.
func (c *Config) LastDetection() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastDetection
}

// Detect records a sighting at t.
func (c *Config) Detect(t time.Time) {
	c.mu.Lock()
	c.lastDetection = t
	c.mu.Unlock()
	c.notify()
}

// Get returns a stored value, or "" if unset.
func (c *Config) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// Set stores a value and notifies the update hook.
func (c *Config) Set(key, value string) {
	c.mu.Lock()
	if c.values == nil {
		c.values = make(map[string]string)
	}
	c.values[key] = value
	c.mu.Unlock()
	c.notify()
}

// Values returns a copy of all stored values.
func (c *Config) Values() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// OnUpdate installs the hook called after every mutation.
func (c *Config) OnUpdate(fn func(*Config)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

func (c *Config) notify() {
	c.mu.RLock()
	fn := c.onUpdate
	c.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
}
