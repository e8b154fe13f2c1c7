//go:build linux

package reactor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLRDHUP
	writeEvents = unix.EPOLLOUT
	hangEvents  = unix.EPOLLHUP | unix.EPOLLERR | unix.EPOLLRDHUP
)

// Epoll is the Linux Poller.
type Epoll struct {
	fd     int
	events []unix.EpollEvent
}

// NewPoller creates an epoll instance that returns at most maxEvents events per
// Wait call.
//
// Parameters:
//   - maxEvents: Batch capacity; DefaultMaxEvents when not positive
//
// Returns:
//   - The new *Epoll, or an error if the epoll descriptor could not be created
func NewPoller(maxEvents int) (*Epoll, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	return &Epoll{fd: fd, events: make([]unix.EpollEvent, maxEvents)}, nil
}

// Register implements Poller.
func (p *Epoll) Register(src Source, token Token, interest Interest) error {
	if p.fd < 0 {
		return ErrClosed
	}

	if uint64(token) > math.MaxInt32 {
		return fmt.Errorf("%w: token %d out of range", ErrRegister, token)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLET, Fd: int32(token)}
	if interest.Has(Readable) {
		ev.Events |= readEvents
	}

	if interest.Has(Writable) {
		ev.Events |= writeEvents
	}

	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, src.Fd(), &ev); err != nil {
		return fmt.Errorf("%w: fd %d token %d: %w", ErrRegister, src.Fd(), token, err)
	}

	return nil
}

// Deregister implements Poller.
func (p *Epoll) Deregister(src Source) error {
	if p.fd < 0 {
		return ErrClosed
	}

	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, src.Fd(), nil); err != nil {
		return fmt.Errorf("%w: fd %d: %w", ErrRegister, src.Fd(), err)
	}

	return nil
}

// Wait implements Poller.
func (p *Epoll) Wait(events []Event, timeout time.Duration) ([]Event, error) {
	if p.fd < 0 {
		return events[:0], ErrClosed
	}

	msec := -1
	if timeout >= 0 {
		msec = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}

	var (
		n   int
		err error
	)
	for {
		n, err = unix.EpollWait(p.fd, p.events, msec)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}

	if err != nil {
		return events[:0], fmt.Errorf("%w: %w", ErrWait, err)
	}

	events = events[:0]
	for _, ev := range p.events[:n] {
		hang := ev.Events&hangEvents != 0
		events = append(events, Event{
			Token:    Token(ev.Fd),
			Readable: ev.Events&unix.EPOLLIN != 0 || hang,
			Writable: ev.Events&unix.EPOLLOUT != 0 || hang,
		})
	}

	return events, nil
}

// Close implements Poller. It is safe to call more than once.
func (p *Epoll) Close() error {
	if p.fd < 0 {
		return nil
	}

	err := unix.Close(p.fd)
	p.fd = -1
	return err
}
