// Package driver runs the single-threaded cooperative loop that resumes each
// connection's suspended task when the reactor reports readiness for it.
//
// A readiness report does not say which operation a task was waiting for;
// the task is simply resumed once and re-checks everything itself.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cyberinferno/linereactor/conntable"
	"github.com/cyberinferno/linereactor/logger"
	"github.com/cyberinferno/linereactor/reactor"
	"github.com/cyberinferno/linereactor/session"
)

// Status is the result of resuming a task.
type Status int

const (
	Pending Status = iota // Task is suspended and waits for the next readiness report
	Done                  // Task ran to completion
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Task is one connection's computation. Resume runs it until it can make no
// further progress without waiting. A non-nil error ends the task.
type Task interface {
	Resume(s *session.Session) (Status, error)
}

// Conn is a stream that can be registered with the reactor.
type Conn interface {
	session.Stream
	reactor.Source
}

// ConnError records a connection that ended with an error.
type ConnError struct {
	Token reactor.Token
	Err   error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection %d: %v", e.Token, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// Config holds the loop settings.
type Config struct {
	// PollTimeout bounds a single reactor wait; negative waits forever. A
	// finite value lets Run notice context cancellation.
	PollTimeout time.Duration
	// ScratchSize is the per-session inbound buffer size.
	ScratchSize int
	// AbortOnError ends the whole run on the first connection error instead
	// of isolating the failure to that connection.
	AbortOnError bool
}

// DefaultConfig returns the loop defaults: 1s poll timeout, 2048-byte scratch
// buffers and per-connection error isolation.
func DefaultConfig() Config {
	return Config{
		PollTimeout: time.Second,
		ScratchSize: session.DefaultScratchSize,
	}
}

type slot struct {
	conn    Conn
	session *session.Session
	task    Task
}

// Loop owns the connection table and the poller. It must be driven from a
// single goroutine.
type Loop struct {
	config  Config
	poller  reactor.Poller
	logger  logger.Logger
	table   *conntable.Table[*slot]
	events  []reactor.Event
	errs    []*ConnError
	running bool

	// OnClose, when set, is called after a slot has been cleared. err is nil
	// for a normal completion.
	OnClose func(token reactor.Token, err error)
}

// New creates a Loop around poller.
//
// Parameters:
//   - config: Loop settings (e.g. from DefaultConfig)
//   - poller: The reactor to wait on; owned by the caller
//   - log: Logger for lifecycle and failure reports; nil discards
//
// Returns:
//   - A new *Loop with an empty connection table
func New(config Config, poller reactor.Poller, log logger.Logger) *Loop {
	if log == nil {
		log = logger.NewNop()
	}

	return &Loop{
		config: config,
		poller: poller,
		logger: log,
		table:  conntable.New[*slot](8),
		events: make([]reactor.Event, 0, reactor.DefaultMaxEvents),
	}
}

// Spawn wraps conn in a session, stores it with task in a fresh slot and
// registers it for read and write readiness. Spawn must not be called from
// inside a task's Resume.
//
// Parameters:
//   - conn: The connected, non-blocking stream
//   - task: The computation driving conn
//
// Returns:
//   - The token naming the new slot
//   - An error wrapping reactor.ErrRegister if registration fails; the slot is
//     cleared in that case and conn is left open
func (l *Loop) Spawn(conn Conn, task Task) (reactor.Token, error) {
	if l.running {
		return 0, errors.New("driver: spawn from inside a resumption")
	}

	s := &slot{conn: conn, session: session.New(conn, l.config.ScratchSize), task: task}
	token := reactor.Token(l.table.Insert(s))

	if err := l.poller.Register(conn, token, reactor.Readable|reactor.Writable); err != nil {
		l.table.Clear(conntable.Index(token))
		return 0, err
	}

	l.logger.Debug("connection registered", logger.Conn(uint32(token)))
	return token, nil
}

// Len returns the number of live connections.
func (l *Loop) Len() int {
	return l.table.Len()
}

// Errors returns the connection errors recorded so far.
func (l *Loop) Errors() []*ConnError {
	return l.errs
}

// Run drives the loop until every slot is vacant.
//
// Parameters:
//   - ctx: Cancelling ctx closes every remaining connection and ends the run
//
// Returns:
//   - A reactor error if waiting failed; the first connection error when
//     AbortOnError is set; ctx.Err() on cancellation; otherwise the joined
//     connection errors recorded during the run, or nil
func (l *Loop) Run(ctx context.Context) error {
	for l.table.Len() > 0 {
		if err := ctx.Err(); err != nil {
			l.closeAll(err)
			return err
		}

		events, err := l.poller.Wait(l.events[:0], l.config.PollTimeout)
		if err != nil {
			l.closeAll(err)
			return err
		}

		l.events = events
		for _, ev := range events {
			cerr := l.resume(ev)
			if cerr != nil && l.config.AbortOnError {
				l.closeAll(cerr)
				return cerr
			}
		}
	}

	if len(l.errs) == 0 {
		return nil
	}

	errs := make([]error, len(l.errs))
	for i, e := range l.errs {
		errs[i] = e
	}

	return errors.Join(errs...)
}

// resume runs one task step for ev and clears its slot if the task ended.
func (l *Loop) resume(ev reactor.Event) *ConnError {
	s, ok := l.table.Get(conntable.Index(ev.Token))
	if !ok {
		l.logger.Debug("event for vacant slot", logger.Conn(uint32(ev.Token)))
		return nil
	}

	l.logger.Debug("handling event", logger.Conn(uint32(ev.Token)),
		logger.Field{Key: "readable", Value: ev.Readable},
		logger.Field{Key: "writable", Value: ev.Writable})

	l.running = true
	status, err := s.task.Resume(s.session)
	l.running = false

	if err == nil && status == Pending {
		return nil
	}

	l.release(ev.Token, s)

	if err == nil {
		l.logger.Info("connection shut down", logger.Conn(uint32(ev.Token)))
		l.notifyClose(ev.Token, nil)
		return nil
	}

	cerr := &ConnError{Token: ev.Token, Err: err}
	l.errs = append(l.errs, cerr)
	l.logger.Error("connection failed", logger.Conn(uint32(ev.Token)), logger.Err(err))
	l.notifyClose(ev.Token, err)
	return cerr
}

// release deregisters and closes the slot's stream, then clears the slot.
func (l *Loop) release(token reactor.Token, s *slot) {
	if err := l.poller.Deregister(s.conn); err != nil {
		l.logger.Warn("deregister failed", logger.Conn(uint32(token)), logger.Err(err))
	}

	if err := s.session.Close(); err != nil {
		l.logger.Debug("close failed", logger.Conn(uint32(token)), logger.Err(err))
	}

	l.table.Clear(conntable.Index(token))
}

func (l *Loop) notifyClose(token reactor.Token, err error) {
	if l.OnClose != nil {
		l.OnClose(token, err)
	}
}

// Shutdown releases every live connection without running the loop. OnClose
// observes each with cause.
func (l *Loop) Shutdown(cause error) {
	l.closeAll(cause)
}

// closeAll releases every remaining slot because the run is ending with cause.
func (l *Loop) closeAll(cause error) {
	var live []conntable.Index
	l.table.Range(func(i conntable.Index, _ *slot) bool {
		live = append(live, i)
		return true
	})

	for _, i := range live {
		s, _ := l.table.Get(i)
		l.release(reactor.Token(i), s)
		l.notifyClose(reactor.Token(i), cause)
	}
}
