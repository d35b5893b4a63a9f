package ssdp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/muurk/castscan/internal/logging"
)

// maxDatagramSize bounds a single SSDP datagram
const maxDatagramSize = 8192

// multicastTTL is the hop limit of outgoing searches
const multicastTTL = 2

// Datagram is one received packet with its sender
type Datagram struct {
	Data []byte
	Addr *net.UDPAddr
}

// Transport sends searches to the SSDP group and receives both unicast
// responses and multicast notifications. Close unblocks pending receives.
type Transport interface {
	Send(data []byte) error
	ReceiveUnicast() (Datagram, error)
	ReceiveMulticast() (Datagram, error)
	Close() error
}

// TransportFactory opens a transport when a provider starts
type TransportFactory func() (Transport, error)

// UDPTransport is a Transport over two UDP sockets: an ephemeral unicast
// socket that sends searches and receives responses, and a socket joined to
// the multicast group that receives NOTIFY packets.
type UDPTransport struct {
	iface     *net.Interface
	group     *net.UDPAddr
	unicast   *net.UDPConn
	multicast *net.UDPConn
	mpc       *ipv4.PacketConn

	closeOnce sync.Once
	closeErr  error
}

// NewUDPTransport opens the sockets on the named interface, or on the first
// suitable interface when name is empty.
func NewUDPTransport(name string) (*UDPTransport, error) {
	ifi, ip, err := SelectInterface(name)
	if err != nil {
		return nil, err
	}

	group := &net.UDPAddr{IP: net.ParseIP(MulticastAddress), Port: Port}

	unicast, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip})
	if err != nil {
		return nil, fmt.Errorf("listen unicast on %s: %w", ip, err)
	}

	upc := ipv4.NewPacketConn(unicast)
	if err := upc.SetMulticastInterface(ifi); err != nil {
		_ = unicast.Close()
		return nil, fmt.Errorf("set multicast interface %s: %w", ifi.Name, err)
	}
	if err := upc.SetMulticastTTL(multicastTTL); err != nil {
		logging.Debug("Failed to set multicast TTL", zap.Error(err))
	}

	multicast, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		_ = unicast.Close()
		return nil, fmt.Errorf("join %s on %s: %w", group, ifi.Name, err)
	}

	logging.Info("SSDP transport opened",
		zap.String("interface", ifi.Name),
		zap.String("local", unicast.LocalAddr().String()))

	return &UDPTransport{
		iface:     ifi,
		group:     group,
		unicast:   unicast,
		multicast: multicast,
		mpc:       ipv4.NewPacketConn(multicast),
	}, nil
}

// Send writes data to the multicast group
func (t *UDPTransport) Send(data []byte) error {
	_, err := t.unicast.WriteToUDP(data, t.group)
	if err == nil {
		logging.LogPacket("sent", t.group.String(), data)
	}
	return err
}

// ReceiveUnicast blocks for the next search response
func (t *UDPTransport) ReceiveUnicast() (Datagram, error) {
	return receive(t.unicast)
}

// ReceiveMulticast blocks for the next multicast packet
func (t *UDPTransport) ReceiveMulticast() (Datagram, error) {
	return receive(t.multicast)
}

// Close leaves the group and closes both sockets
func (t *UDPTransport) Close() error {
	t.closeOnce.Do(func() {
		if err := t.mpc.LeaveGroup(t.iface, t.group); err != nil {
			logging.Debug("Failed to leave multicast group", zap.Error(err))
		}
		t.closeErr = multierr.Combine(t.multicast.Close(), t.unicast.Close())
	})
	return t.closeErr
}

func receive(conn *net.UDPConn) (Datagram, error) {
	buf := make([]byte, maxDatagramSize)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return Datagram{}, err
	}
	return Datagram{Data: buf[:n], Addr: addr}, nil
}

// IsClosed reports whether err comes from a closed socket
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// SelectInterface returns the named interface, or the first interface that
// is up, multicast capable, not loopback and has an IPv4 address.
func SelectInterface(name string) (*net.Interface, net.IP, error) {
	if name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, nil, fmt.Errorf("interface %q: %w", name, err)
		}
		ip := interfaceIPv4(ifi)
		if ip == nil {
			return nil, nil, fmt.Errorf("interface %q has no IPv4 address", name)
		}
		return ifi, ip, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, fmt.Errorf("list interfaces: %w", err)
	}
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		if ip := interfaceIPv4(ifi); ip != nil {
			return ifi, ip, nil
		}
	}
	return nil, nil, errors.New("no multicast capable IPv4 interface found")
}

func interfaceIPv4(ifi *net.Interface) net.IP {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			if ip4 := ipn.IP.To4(); ip4 != nil {
				return ip4
			}
		}
	}
	return nil
}
