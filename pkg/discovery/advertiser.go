package discovery

import (
	"context"
	"time"
)

// Advertiser announces this node on the local network.
type Advertiser interface {
	// Advertise starts announcing the node, replacing any earlier
	// announcement.
	Advertise(ctx context.Context, info *NodeInfo) error

	// Update replaces the TXT records of the running announcement.
	Update(info *NodeInfo) error

	// Stop withdraws the announcement.
	Stop() error
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface (optional).
	Interface string

	// TTL for DNS records (default: DefaultTTL).
	TTL time.Duration
}
