package cli

import (
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// ParseAllowList parses a comma-separated list of IPs and CIDR prefixes.
// An empty list returns nil, which allows every peer.
func ParseAllowList(s string) (*netipx.IPSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var b netipx.IPSetBuilder
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			prefix, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("allow list: %w", err)
			}
			b.AddPrefix(prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("allow list: %w", err)
		}
		b.Add(addr.Unmap())
	}
	return b.IPSet()
}
