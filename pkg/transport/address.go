package transport

import (
	"net"
	"net/netip"
)

// AddrIP extracts the IP of a TCP or UDP address. Other address types
// return the zero Addr.
func AddrIP(addr net.Addr) netip.Addr {
	switch a := addr.(type) {
	case *net.TCPAddr:
		if ip, ok := netip.AddrFromSlice(a.IP); ok {
			return ip.Unmap()
		}
	case *net.UDPAddr:
		if ip, ok := netip.AddrFromSlice(a.IP); ok {
			return ip.Unmap()
		}
	case nil:
	default:
		if ap, err := netip.ParseAddrPort(addr.String()); err == nil {
			return ap.Addr().Unmap()
		}
	}
	return netip.Addr{}
}

// IsLoopback returns true if addr is a loopback IP address.
func IsLoopback(addr net.Addr) bool {
	ip := AddrIP(addr)
	return ip.IsValid() && ip.IsLoopback()
}

// TCPAddrFromString parses an address string into a TCP address.
func TCPAddrFromString(addr string) (*net.TCPAddr, error) {
	return net.ResolveTCPAddr("tcp", addr)
}
