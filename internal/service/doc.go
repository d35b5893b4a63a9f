// Package service defines the protocol-independent service model.
//
// A Description is a single sighting of a network endpoint produced by a
// discovery provider. A Provider turns a Description (plus a persisted
// Config) into a Service, which declares a capability set and registers one
// implementation per capability interface tag:
//
//	b := service.NewBase("DIAL", desc, cfg)
//	b.Register(capability.Launcher, launcher, capability.Normal)
//	b.SetCapabilities([]string{capability.LauncherApp})
//
// Capability changes are reported to the owning device as an added/removed
// delta, never as a full replacement.
//
// # Thread Safety
//
// Base and Config are safe for concurrent use. Listeners are invoked
// synchronously on the goroutine that made the change and must not block.
package service
