package transport

import (
	"fmt"
	"net"
	"net/netip"
)

// Endpoint identifies a remote peer by IP address and TCP port.
// Endpoints are comparable and usable as map keys.
type Endpoint struct {
	addr netip.AddrPort
}

// EndpointFromAddrPort returns the Endpoint for ap. IPv4-mapped IPv6
// addresses are unmapped so both spellings compare equal.
func EndpointFromAddrPort(ap netip.AddrPort) Endpoint {
	return Endpoint{addr: netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}
}

// ParseEndpoint parses "host:port". Host names are resolved once, here;
// the first address returned by the resolver is used.
func ParseEndpoint(s string) (Endpoint, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		if ap.Port() == 0 {
			return Endpoint{}, fmt.Errorf("endpoint %q: port must not be zero", s)
		}
		return EndpointFromAddrPort(ap), nil
	}

	addr, err := net.ResolveTCPAddr("tcp", s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", s, err)
	}
	ap := addr.AddrPort()
	if !ap.IsValid() || ap.Port() == 0 {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing address or port", s)
	}
	return EndpointFromAddrPort(ap), nil
}

// MustParseEndpoint is like ParseEndpoint but panics on error.
func MustParseEndpoint(s string) Endpoint {
	ep, err := ParseEndpoint(s)
	if err != nil {
		panic(err)
	}
	return ep
}

// AddrPort returns the endpoint address.
func (e Endpoint) AddrPort() netip.AddrPort {
	return e.addr
}

// IsValid reports whether the endpoint holds an address.
func (e Endpoint) IsValid() bool {
	return e.addr.IsValid()
}

// String returns "ip:port", bracketing IPv6 addresses.
func (e Endpoint) String() string {
	return e.addr.String()
}

// Compare orders endpoints by address, then port.
func (e Endpoint) Compare(other Endpoint) int {
	return e.addr.Compare(other.addr)
}
