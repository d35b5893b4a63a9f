// Package device implements ConnectableDevice, the protocol-agnostic device
// object handed to applications.
//
// A device aggregates the services discovered for one physical box, at most
// one per service name. Capability lookups are answered across services:
//
//	launcher, ok := device.CapabilityAs[dial.Launcher](d, capability.Launcher)
//
// resolves to the implementation registered with the strictly highest
// priority, with the first attached service winning ties.
//
// Devices carry a generated UUID that stays stable across rediscovery when
// a store restores them with FromRecord.
package device
