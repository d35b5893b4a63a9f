// Package ssdp implements the SSDP discovery provider.
//
// The provider multicasts an M-SEARCH for every registered search target
// once per rescan interval (three sends, one second apart) and listens for
// both unicast responses and multicast NOTIFY announcements. A sighting is
// keyed by the uuid in its USN header; the first sighting of a uuid
// fetches the LOCATION device description before the service is reported
// to listeners, later sightings only refresh its detection time.
//
// Services not seen for Timeout are reported lost at the start of the
// next search cycle. A ssdp:byebye announcement removes a service
// immediately.
//
// Basic usage:
//
//	m := discovery.NewManager(
//		discovery.WithProviderFactory(discovery.KindSSDP, ssdp.Factory()),
//	)
//	defer m.Close()
//	if err := m.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package ssdp
