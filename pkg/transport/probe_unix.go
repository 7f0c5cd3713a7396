//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// probe reports ErrConnectionClosed if the peer has closed its write side.
// It peeks without blocking and never consumes data. Errors other than
// end-of-stream are left for the write to surface.
func probe(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return probeDeadline(conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return probeDeadline(conn)
	}

	var (
		buf  [1]byte
		n    int
		rerr error
	)
	err = raw.Read(func(fd uintptr) bool {
		n, _, rerr = unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return nil
	}
	if rerr == nil && n == 0 {
		return ErrConnectionClosed
	}
	return nil
}
