//go:build !linux

package reactor

import "time"

// Epoll is unavailable on this platform; NewPoller always fails.
type Epoll struct{}

// NewPoller returns ErrUnsupported outside Linux.
func NewPoller(maxEvents int) (*Epoll, error) {
	return nil, ErrUnsupported
}

// Register implements Poller.
func (p *Epoll) Register(Source, Token, Interest) error { return ErrUnsupported }

// Deregister implements Poller.
func (p *Epoll) Deregister(Source) error { return ErrUnsupported }

// Wait implements Poller.
func (p *Epoll) Wait(events []Event, _ time.Duration) ([]Event, error) {
	return events[:0], ErrUnsupported
}

// Close implements Poller.
func (p *Epoll) Close() error { return nil }
