//go:build !linux

package session

import (
	"errors"
	"net"
)

// ErrUnsupported is returned by NewTCPStream outside Linux.
var ErrUnsupported = errors.New("session: raw tcp streams are not supported on this platform")

// TCPStream is unavailable on this platform.
type TCPStream struct{}

// NewTCPStream always fails outside Linux.
func NewTCPStream(*net.TCPConn) (*TCPStream, error) {
	return nil, ErrUnsupported
}

func (s *TCPStream) Fd() int { return -1 }
func (s *TCPStream) RemoteAddr() net.Addr { return nil }
func (s *TCPStream) Read([]byte) (int, error) { return 0, ErrUnsupported }
func (s *TCPStream) Writev([][]byte) (int, error) { return 0, ErrUnsupported }
func (s *TCPStream) Flush() error { return nil }
func (s *TCPStream) Close() error { return nil }
