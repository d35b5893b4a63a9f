// Package mdns implements the mDNS discovery provider on top of
// grandcat/zeroconf. Filters name DNS-SD service types such as
// "_googlecast._tcp.local."; every rescan interval each type is browsed for
// a short window and answering hosts are tracked by IPv4 address.
package mdns
