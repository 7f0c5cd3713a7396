package discovery

import (
	"errors"
	"net/netip"
	"slices"
	"time"

	"github.com/gyrusdentatus/nym/pkg/transport"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type advertised by mix nodes.
	ServiceType = "_mixnode._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// ProtocolVersion is the value of the "v" TXT record.
	ProtocolVersion = "1"

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyVersion = "v"  // Protocol version
	TXTKeyNodeID  = "id" // Node identifier (optional)
)

// Timing defaults.
const (
	// DefaultTTL is the DNS record TTL used when advertising.
	DefaultTTL = 120 * time.Second

	// DefaultBrowseTimeout bounds Collect when no timeout is given.
	DefaultBrowseTimeout = 2 * time.Second
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("service not found")
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrUnsupportedVersion  = errors.New("unsupported protocol version")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrInvalidPort         = errors.New("invalid port")
)

// NodeInfo is what a node advertises about itself.
type NodeInfo struct {
	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// NodeID identifies the node (optional).
	NodeID string

	// Port is the transport listening port.
	Port uint16
}

// NodeService is a discovered node.
type NodeService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []netip.Addr
	NodeID       string
	Version      string
}

// Endpoints returns one transport endpoint per address, IPv4 first.
func (s *NodeService) Endpoints() []transport.Endpoint {
	addrs := slices.Clone(s.Addresses)
	slices.SortStableFunc(addrs, func(a, b netip.Addr) int {
		switch {
		case a.Is4() && !b.Is4():
			return -1
		case !a.Is4() && b.Is4():
			return 1
		default:
			return 0
		}
	})

	eps := make([]transport.Endpoint, 0, len(addrs))
	for _, addr := range addrs {
		eps = append(eps, transport.EndpointFromAddrPort(netip.AddrPortFrom(addr, s.Port)))
	}
	return eps
}
