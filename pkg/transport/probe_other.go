//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package transport

import "net"

func probe(conn net.Conn) error {
	return probeDeadline(conn)
}
