// Package session wraps a non-blocking duplex stream with an outbound byte
// queue and a fixed-size inbound scratch buffer. Writes are queued and drained
// by FlushIfPending with correct partial-write accounting; reads translate
// "would block" into iox.ErrWouldBlock so the caller can suspend instead of
// stalling the thread.
package session

import (
	"errors"
	"fmt"
	"io"

	"code.hybscloud.com/iox"
)

// DefaultScratchSize is the inbound scratch buffer size used when New is given
// a non-positive size. A protocol line must fit in one read of this size.
const DefaultScratchSize = 2048

// FlushStatus is the result of FlushIfPending.
type FlushStatus int

const (
	FlushComplete FlushStatus = iota // Outbound queue is empty
	FlushPending                     // Bytes remain queued
)

// String returns a human-readable name for the flush status.
func (f FlushStatus) String() string {
	switch f {
	case FlushComplete:
		return "Complete"
	case FlushPending:
		return "Pending"
	default:
		return "Unknown"
	}
}

// ErrTruncated is matched by every *TruncatedError.
var ErrTruncated = errors.New("session: stream shut down with unsent data")

// TruncatedError reports that the peer shut the stream down while outbound
// bytes were still queued. Those bytes can no longer be delivered.
type TruncatedError struct {
	Unsent int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("session: stream shut down with %d unsent bytes", e.Unsent)
}

// Is reports whether target is ErrTruncated.
func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

// Session owns a Stream exclusively. It is not safe for concurrent use; a
// single event loop drives it.
//
// The outbound queue is unbounded: a peer that never reads makes it grow
// without limit.
type Session struct {
	stream  Stream
	queue   [][]byte
	pending int
	scratch []byte
}

// New wraps stream in a Session.
//
// Parameters:
//   - stream: The non-blocking stream to own
//   - scratchSize: Inbound scratch buffer size; DefaultScratchSize when not positive
//
// Returns:
//   - A new *Session with an empty outbound queue
func New(stream Stream, scratchSize int) *Session {
	if scratchSize <= 0 {
		scratchSize = DefaultScratchSize
	}

	return &Session{stream: stream, scratch: make([]byte, scratchSize)}
}

// Stream returns the wrapped stream.
func (s *Session) Stream() Stream {
	return s.stream
}

// Pending returns the number of queued outbound bytes.
func (s *Session) Pending() int {
	return s.pending
}

// EnqueueWrite copies p to the tail of the outbound queue. It never blocks and
// never performs I/O.
//
// Parameters:
//   - p: Bytes to send; copied, so the caller may reuse the slice
func (s *Session) EnqueueWrite(p []byte) {
	if len(p) == 0 {
		return
	}

	seg := make([]byte, len(p))
	copy(seg, p)
	s.queue = append(s.queue, seg)
	s.pending += len(seg)
}

// FlushIfPending writes as much of the outbound queue as the stream accepts in
// one vectored write. An empty queue returns FlushComplete without any I/O.
//
// Returns:
//   - FlushComplete once the queue is empty and the stream has been flushed,
//     FlushPending if bytes remain (including when the write would block)
//   - A connection-fatal error from the stream
func (s *Session) FlushIfPending() (FlushStatus, error) {
	if s.pending == 0 {
		return FlushComplete, nil
	}

	n, err := s.stream.Writev(s.queue)
	s.consume(n)

	if err != nil {
		if errors.Is(err, iox.ErrWouldBlock) {
			return FlushPending, nil
		}

		return FlushPending, fmt.Errorf("session write: %w", err)
	}

	if s.pending > 0 {
		return FlushPending, nil
	}

	if err := s.stream.Flush(); err != nil {
		return FlushPending, fmt.Errorf("session flush: %w", err)
	}

	return FlushComplete, nil
}

// consume drops exactly n bytes from the head of the queue.
func (s *Session) consume(n int) {
	if n > s.pending {
		n = s.pending
	}

	s.pending -= n
	for n > 0 {
		head := s.queue[0]
		if n < len(head) {
			s.queue[0] = head[n:]
			return
		}

		n -= len(head)
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}

	if len(s.queue) == 0 {
		s.queue = nil
	}
}

// Read reads into p without blocking.
//
// Parameters:
//   - p: Destination buffer; must not be empty
//
// Returns:
//   - The number of bytes read
//   - iox.ErrWouldBlock if no data is available yet, io.EOF on a clean
//     shutdown, a *TruncatedError on a clean shutdown with queued output, or a
//     connection-fatal error
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.stream.Read(p)
	switch {
	case err == nil && n > 0:
		return n, nil
	case err == nil:
		if s.pending > 0 {
			return 0, &TruncatedError{Unsent: s.pending}
		}

		return 0, io.EOF
	case errors.Is(err, iox.ErrWouldBlock):
		return n, iox.ErrWouldBlock
	default:
		return n, fmt.Errorf("session read: %w", err)
	}
}

// ReadChunk reads into the scratch buffer. The returned slice is only valid
// until the next call.
//
// Returns:
//   - The bytes read
//   - The same errors as Read
func (s *Session) ReadChunk() ([]byte, error) {
	n, err := s.Read(s.scratch)
	return s.scratch[:n], err
}

// Close closes the underlying stream. Queued bytes are discarded.
func (s *Session) Close() error {
	s.queue = nil
	s.pending = 0
	return s.stream.Close()
}
