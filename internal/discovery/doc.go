// Package discovery consolidates network service sightings into devices.
//
// Discovery providers (SSDP, mDNS) search the local network for the
// filters registered with them and report every service they see appear or
// disappear. The Manager turns those reports into ConnectableDevices,
// attaching one service per service ID, and tells its listeners which
// devices are available.
//
// # Lifecycle
//
//	m := discovery.NewManager(
//	    discovery.WithProviderFactory(discovery.KindSSDP, ssdp.Factory()),
//	    discovery.WithCapabilityFilters(capability.NewFilter(capability.LauncherYouTube)),
//	)
//	defer m.Close()
//
//	sub := m.Subscribe(16)
//	if err := m.Start(ctx); err != nil {
//	    log.Printf("discovery: %v", err)
//	}
//	for ev := range sub.C {
//	    fmt.Println(ev.Kind, ev.Device.FriendlyName())
//	}
//
// Start registers the DIAL and DLNA services when nothing has been
// registered yet.
//
// # Compatibility
//
// A device is compatible when it satisfies at least one capability filter,
// or always when no filter is set. Compatibility is re-evaluated whenever a
// device gains or loses capabilities and whenever the filters change.
// DeviceAdded is emitted when a device becomes compatible and
// DeviceRemoved when it stops being compatible or loses its last service.
//
// # Concurrency
//
// Provider events are queued and applied in order on a single goroutine.
// Listeners are called from that goroutine and must not block;
// subscriptions drop events when their buffer is full.
package discovery
