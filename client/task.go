package client

import (
	"errors"
	"io"

	"code.hybscloud.com/iox"
	"github.com/cyberinferno/linereactor/driver"
	"github.com/cyberinferno/linereactor/logger"
	"github.com/cyberinferno/linereactor/protocol"
	"github.com/cyberinferno/linereactor/reactor"
	"github.com/cyberinferno/linereactor/session"
)

// LineTask is the per-connection computation: it drains every readable byte,
// feeds each line through the protocol state machine, queues replies and then
// flushes until the queue is empty or the stream stops accepting bytes. It keeps its own protocol state between resumptions.
type LineTask struct {
	token      reactor.Token
	policy     protocol.ReplyPolicy
	logger     logger.Logger
	state      protocol.State
	violations []error

	// OnTransition, when set, observes every state change.
	OnTransition func(token reactor.Token, from, to protocol.State)
}

// NewLineTask creates a task in the AwaitingHandshake state.
//
// Parameters:
//   - policy: Reply policy for established peers; nil sends nothing
//   - log: Logger for diagnostics; nil discards
//
// Returns:
//   - A new *LineTask ready to be spawned on a driver.Loop
func NewLineTask(policy protocol.ReplyPolicy, log logger.Logger) *LineTask {
	if log == nil {
		log = logger.NewNop()
	}

	return &LineTask{policy: policy, logger: log, state: protocol.Initial()}
}

// Bind records the token the loop assigned to this task; it only affects
// diagnostics.
func (t *LineTask) Bind(token reactor.Token) {
	t.token = token
	t.logger = t.logger.With(logger.Conn(uint32(token)))
}

// State returns the current protocol state.
func (t *LineTask) State() protocol.State {
	return t.state
}

// Violations returns the protocol violations recorded so far.
func (t *LineTask) Violations() []error {
	return t.violations
}

// Resume implements driver.Task.
func (t *LineTask) Resume(s *session.Session) (driver.Status, error) {
read:
	for {
		chunk, err := s.ReadChunk()
		switch {
		case err == nil:
			t.consume(s, chunk)
		case errors.Is(err, iox.ErrWouldBlock):
			break read
		case errors.Is(err, io.EOF):
			t.logger.Info("peer closed connection", t.peerField(),
				logger.Field{Key: "state", Value: t.state.String()})
			return driver.Done, nil
		default:
			return driver.Done, err
		}
	}

	before := s.Pending()
	status, err := flush(s)
	if err != nil {
		return driver.Done, err
	}

	if written := before - s.Pending(); written > 0 {
		t.logger.Debug("written", t.peerField(),
			logger.Field{Key: "bytes", Value: written},
			logger.Field{Key: "flush", Value: status.String()})
	}

	return driver.Pending, nil
}

// flush repeats FlushIfPending while each call makes progress. A single call
// may be short without the socket being full (writev takes a bounded number of
// segments), and an edge-triggered registration reports no new writable edge
// for a socket that never filled up.
func flush(s *session.Session) (session.FlushStatus, error) {
	for {
		before := s.Pending()
		status, err := s.FlushIfPending()
		if err != nil || status == session.FlushComplete || s.Pending() == before {
			return status, err
		}
	}
}

// consume processes every line of chunk in order.
func (t *LineTask) consume(s *session.Session, chunk []byte) {
	for _, raw := range protocol.SplitLines(chunk) {
		line := protocol.ParseLine(raw)
		out := protocol.Transition(t.state, line, t.policy)

		if out.Violation != nil {
			t.violations = append(t.violations, out.Violation)
			t.logger.Warn("protocol violation", logger.Err(out.Violation))
		}

		if out.Next != t.state {
			if t.state.Phase != out.Next.Phase {
				t.logger.Info("peer established", logger.Peer(out.Next.Peer))
			}

			if t.OnTransition != nil {
				t.OnTransition(t.token, t.state, out.Next)
			}

			t.state = out.Next
		}

		for _, reply := range out.Replies {
			s.EnqueueWrite(reply)
		}
	}
}

func (t *LineTask) peerField() logger.Field {
	return logger.Peer(t.state.Peer)
}
