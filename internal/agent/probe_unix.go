// ABOUTME: Non-consuming liveness probe using MSG_PEEK on the raw socket.
// ABOUTME: Unix-only; other platforms fall back to error-driven detection.

//go:build unix

package agent

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

type probeResult int

const (
	probeAlive probeResult = iota
	probeClosed
	probeError
	probeSkipped
)

// probeConn peeks one byte off the socket without consuming it.
// No pending data means the peer is presumed alive; a zero-byte read means
// it closed gracefully; a reset or abort means it is gone. Connections
// that do not expose a raw socket (net.Pipe in tests) are skipped.
func probeConn(conn net.Conn) probeResult {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return probeSkipped
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return probeError
	}

	result := probeAlive
	ctrlErr := raw.Control(func(fd uintptr) {
		buf := make([]byte, 1)
		n, _, err := unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case err == nil && n == 0:
			result = probeClosed
		case err == nil:
			result = probeAlive
		case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR):
			result = probeAlive
		case errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EPIPE):
			result = probeError
		default:
			result = probeError
		}
	})
	if ctrlErr != nil {
		return probeError
	}
	return result
}
