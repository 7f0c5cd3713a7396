package discovery

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/gyrusdentatus/nym/pkg/transport"
)

// Browser finds mix nodes on the local network.
type Browser interface {
	// Browse emits a NodeService when a node is first seen and again
	// whenever it announces new addresses. The channel closes when ctx
	// is done or Stop is called.
	Browse(ctx context.Context) (<-chan *NodeService, error)

	// Stop ends every running Browse.
	Stop()
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface (optional).
	Interface string
}

// ServiceEntry is a raw DNS-SD answer, independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []netip.Addr
}

// ToNodeService validates the entry and converts it to a NodeService.
func (e *ServiceEntry) ToNodeService() (*NodeService, error) {
	if e.Port == 0 {
		return nil, ErrInvalidPort
	}
	version, nodeID, err := DecodeNodeTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	return &NodeService{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    slices.Clone(e.Addrs),
		NodeID:       nodeID,
		Version:      version,
	}, nil
}

// ipsToAddrs converts net.IP values, dropping invalid ones and
// unmapping IPv4-in-IPv6.
func ipsToAddrs(ips ...[]net.IP) []netip.Addr {
	var addrs []netip.Addr
	for _, list := range ips {
		for _, ip := range list {
			addr, ok := netip.AddrFromSlice(ip)
			if !ok {
				continue
			}
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs
}

// aggregator tracks services by instance name, combining the addresses
// a node announces on several interfaces.
type aggregator struct {
	services map[string]*NodeService
}

func newAggregator() *aggregator {
	return &aggregator{services: make(map[string]*NodeService)}
}

// add records entry. It returns a snapshot of the service when the
// entry is new or adds addresses, and nil otherwise.
func (a *aggregator) add(entry *ServiceEntry) *NodeService {
	svc, err := entry.ToNodeService()
	if err != nil {
		return nil
	}

	existing, found := a.services[svc.InstanceName]
	if !found {
		a.services[svc.InstanceName] = svc
		return svc.clone()
	}

	n := len(existing.Addresses)
	existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
	if existing.Port != svc.Port {
		existing.Port = svc.Port
		return existing.clone()
	}
	if len(existing.Addresses) == n {
		return nil
	}
	return existing.clone()
}

// remove drops the addresses in entry; a service without addresses is
// forgotten.
func (a *aggregator) remove(entry *ServiceEntry) {
	existing, found := a.services[entry.Instance]
	if !found {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, entry.Addrs)
	if len(existing.Addresses) == 0 {
		delete(a.services, entry.Instance)
	}
}

func (s *NodeService) clone() *NodeService {
	c := *s
	c.Addresses = slices.Clone(s.Addresses)
	return &c
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []netip.Addr) []netip.Addr {
	for _, addr := range added {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

// removeAddresses returns addresses without the ones in gone.
func removeAddresses(addresses, gone []netip.Addr) []netip.Addr {
	return slices.DeleteFunc(addresses, func(addr netip.Addr) bool {
		return slices.Contains(gone, addr)
	})
}

// Collect browses for timeout (DefaultBrowseTimeout if zero) and returns
// the endpoints of every node seen, in discovery order without
// duplicates.
func Collect(ctx context.Context, b Browser, timeout time.Duration) ([]transport.Endpoint, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var (
		endpoints []transport.Endpoint
		seen      = make(map[transport.Endpoint]struct{})
	)
	for svc := range results {
		for _, ep := range svc.Endpoints() {
			if _, ok := seen[ep]; ok {
				continue
			}
			seen[ep] = struct{}{}
			endpoints = append(endpoints, ep)
		}
	}

	if len(endpoints) == 0 {
		return nil, ErrNotFound
	}
	return endpoints, nil
}
