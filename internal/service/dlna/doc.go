// Package dlna implements the DLNA media renderer service on top of the
// UPnP AVTransport and RenderingControl SOAP services.
package dlna
