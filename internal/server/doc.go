// Package server exposes a discovery manager over HTTP.
//
// # Endpoints
//
//	GET    /status                   manager state and version
//	GET    /devices                  compatible devices (?all=true for every device)
//	GET    /devices/{id}             one device, by ID or IP address
//	DELETE /devices/{id}             forget a stored device
//	POST   /devices/{id}/connect     connect every connectable service
//	POST   /devices/{id}/disconnect
//	POST   /rescan                   trigger an immediate search
//	GET    /events                   WebSocket stream of device events
//	GET    /metrics                  Prometheus metrics
//
// Devices are encoded as device.View. Failed service commands are answered
// with the CommandError code as HTTP status when it is one.
//
// # Event Stream
//
// Each WebSocket message is a JSON EventMessage:
//
//	{"type":"device_added","time":"...","device":{"id":"...","friendly_name":"Living Room TV",...}}
//
// A new stream first receives device_added for every compatible device,
// then device_added, device_updated, device_removed and discovery_failed
// as they happen. The server pings idle streams and drops peers that stop
// answering. Streams are closed with 1001 (going away) on shutdown.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{Addr: "127.0.0.1:8765"}, manager, m)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Setting CertPath and KeyPath serves HTTPS instead.
package server
