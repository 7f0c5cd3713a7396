// Package transport implements a resilient multi-destination TCP client.
//
// A Client keeps one connection per remote Endpoint. Payloads are written
// verbatim, in submission order per endpoint; no framing is added.
//
// # Failure handling
//
// Every Write first probes the socket without consuming data. A peer that
// has closed its side is reported as ErrConnectionClosed before any bytes
// are written. Any write failure discards the connection and starts a
// connection.Reconnector for that endpoint:
//
//	Send --> Writer.Write --ok--> done
//	              |
//	            fail --> Reconnector --ok--> new Writer --> retry once
//	                         |
//	                       exhausted --> endpoint evicted, ErrDestinationUnreachable
//
// Once evicted, an endpoint is unknown: further sends return
// ErrUnknownDestination without I/O.
//
// # Concurrency
//
// Sends to one endpoint are serialized. Sends to different endpoints run
// independently, so a reconnection in progress for one endpoint never
// delays traffic to another.
//
// # Sink
//
// Server is a plain TCP listener that records what it receives. It backs
// the mixtcp-sink command and the package tests.
package transport
