package transport

import (
	"errors"
	"io"
	"net"
	"time"
)

// probeWindow bounds the fallback probe read.
const probeWindow = time.Millisecond

// probeDeadline checks liveness with a short read deadline. It is used for
// connections that expose no file descriptor, such as net.Pipe. Unlike the
// socket probe it consumes one byte if the peer sent data; peers of this
// transport are not expected to send any.
func probeDeadline(conn net.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(probeWindow)); err != nil {
		// net.Pipe refuses deadlines once either end is closed.
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
			return ErrConnectionClosed
		}
		return nil
	}
	defer conn.SetReadDeadline(time.Time{})

	var buf [1]byte
	_, err := conn.Read(buf[:])
	if errors.Is(err, io.EOF) {
		return ErrConnectionClosed
	}
	return nil
}
