// Package discovery finds mix node endpoints with mDNS/DNS-SD.
//
// Nodes accepting transport connections advertise the _mixnode._tcp
// service. The instance name is free-form; TXT records carry:
//
//	v   protocol version (required, currently "1")
//	id  node identifier (optional)
//
// Browsing aggregates the addresses a node announces on several
// interfaces into one NodeService, which converts to transport
// endpoints with Endpoints. Collect gathers endpoints for a bounded
// window, which is how mixtcp-send bootstraps its peer list.
package discovery
