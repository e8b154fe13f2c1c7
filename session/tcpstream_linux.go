//go:build linux

package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// maxIovecs caps the number of segments handed to a single writev call.
const maxIovecs = 1024

// TCPStream drives a connected *net.TCPConn with raw non-blocking syscalls on
// its descriptor, bypassing the Go runtime's blocking wrappers.
type TCPStream struct {
	conn *net.TCPConn
	raw  syscall.RawConn
	fd   int
}

// NewTCPStream wraps conn. The connection must not be used directly afterwards.
//
// Parameters:
//   - conn: A connected TCP connection
//
// Returns:
//   - The new *TCPStream, or an error if the raw descriptor is unavailable
func NewTCPStream(conn *net.TCPConn) (*TCPStream, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("syscall conn: %w", err)
	}

	fd := -1
	if err := raw.Control(func(d uintptr) { fd = int(d) }); err != nil {
		return nil, fmt.Errorf("raw control: %w", err)
	}

	return &TCPStream{conn: conn, raw: raw, fd: fd}, nil
}

// Fd returns the socket descriptor for reactor registration.
func (s *TCPStream) Fd() int {
	return s.fd
}

// RemoteAddr returns the peer address.
func (s *TCPStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Read implements Stream.
func (s *TCPStream) Read(p []byte) (int, error) {
	var (
		n     int
		opErr error
	)
	err := s.raw.Read(func(fd uintptr) bool {
		for {
			n, opErr = unix.Read(int(fd), p)
			if !errors.Is(opErr, unix.EINTR) {
				return true
			}
		}
	})
	if err != nil {
		return 0, err
	}

	return classify(n, opErr)
}

// Writev implements Stream.
func (s *TCPStream) Writev(bufs [][]byte) (int, error) {
	if len(bufs) > maxIovecs {
		bufs = bufs[:maxIovecs]
	}

	var (
		n     int
		opErr error
	)
	err := s.raw.Write(func(fd uintptr) bool {
		for {
			n, opErr = unix.Writev(int(fd), bufs)
			if !errors.Is(opErr, unix.EINTR) {
				return true
			}
		}
	})
	if err != nil {
		return 0, err
	}

	return classify(n, opErr)
}

// Flush implements Stream. TCP sockets have no user-space buffer to flush.
func (s *TCPStream) Flush() error {
	return nil
}

// Close implements Stream.
func (s *TCPStream) Close() error {
	return s.conn.Close()
}

func classify(n int, err error) (int, error) {
	if n < 0 {
		n = 0
	}

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, unix.EAGAIN):
		return n, iox.ErrWouldBlock
	case errors.Is(err, unix.ECONNRESET), errors.Is(err, unix.EPIPE):
		return n, fmt.Errorf("%w: %w", io.ErrClosedPipe, err)
	default:
		return n, err
	}
}
