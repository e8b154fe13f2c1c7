// Package reactor provides a readiness-based I/O multiplexer. Streams are
// registered under a Token; a single blocking Wait call returns a batch of
// events saying which tokens became readable or writable.
//
// Readiness is a hint: a consumer must still expect the following I/O call to
// report that it would block.
package reactor

import (
	"errors"
	"time"
)

// Token names a registered source. It is chosen by the caller and echoed back
// in every Event for that source.
type Token uint32

// Interest is the set of readiness kinds a registration asks for.
type Interest uint8

const (
	Readable Interest = 1 << iota // Notify when a read would make progress
	Writable                      // Notify when a write would make progress
)

// Has reports whether i contains every bit of other.
func (i Interest) Has(other Interest) bool {
	return i&other == other
}

// String returns a compact representation such as "RW", "R-" or "--".
func (i Interest) String() string {
	b := []byte("--")
	if i.Has(Readable) {
		b[0] = 'R'
	}

	if i.Has(Writable) {
		b[1] = 'W'
	}

	return string(b)
}

// Event is one readiness report.
type Event struct {
	Token    Token
	Readable bool
	Writable bool
}

// Source is anything that can be registered with a Poller.
type Source interface {
	// Fd returns the operating system descriptor to watch.
	Fd() int
}

// Poller multiplexes readiness for many sources.
type Poller interface {
	// Register asks for notifications on src under token. Registration is
	// edge-triggered: a consumer must drain a source until it would block.
	Register(src Source, token Token, interest Interest) error

	// Deregister stops notifications for src. It must be called before the
	// descriptor is closed.
	Deregister(src Source) error

	// Wait blocks until at least one registered source is ready or timeout
	// elapses; a negative timeout waits forever. Ready events are appended to
	// events[:0] and returned. Interrupted waits are retried internally.
	Wait(events []Event, timeout time.Duration) ([]Event, error)

	// Close releases the poller.
	Close() error
}

var (
	// ErrRegister wraps failures to add or remove a registration.
	ErrRegister = errors.New("reactor: registration failed")

	// ErrWait wraps failures of the blocking wait call.
	ErrWait = errors.New("reactor: wait failed")

	// ErrClosed is returned by operations on a closed poller.
	ErrClosed = errors.New("reactor: poller is closed")

	// ErrUnsupported is returned by NewPoller on platforms without a backend.
	ErrUnsupported = errors.New("reactor: platform not supported")
)

// DefaultMaxEvents is the batch capacity used when NewPoller is given a
// non-positive size.
const DefaultMaxEvents = 128
