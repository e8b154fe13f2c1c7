// Package peersim is a scripted line-protocol peer for demos and tests. Each
// accepted connection is played the same script, one line at a time, and
// whatever the client sends back is recorded.
package peersim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/linereactor/logger"
	"github.com/rs/xid"
	"github.com/sourcegraph/conc"
)

// DefaultLinger is how long a peer keeps reading replies after its script.
const DefaultLinger = time.Second

// Server accepts connections on Addr and plays Script to each of them.
//
// A "sleep <seconds>" line is sent like any other line and then pauses the
// peer for that long. After the last line the peer half-closes its side and
// reads replies until the client closes or Linger expires.
type Server struct {
	Logger logger.Logger
	Name   string
	Addr   string
	Script []string
	Linger time.Duration

	listener net.Listener
	running  atomic.Bool
	stopped  chan struct{}
	wg       conc.WaitGroup

	mu       sync.Mutex
	order    []string
	sessions map[string]*peerSession
}

type peerSession struct {
	id       string
	conn     net.Conn
	received bytes.Buffer
}

// Start binds Addr and begins accepting in a goroutine.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *Server) Start() error {
	if s.Logger == nil {
		s.Logger = logger.NewNop()
	}

	if s.running.Load() {
		return fmt.Errorf("peer %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("peer failed to start", logger.Err(err))
		return fmt.Errorf("peer %s failed to start: %w", s.Name, err)
	}

	s.listener = ln
	s.stopped = make(chan struct{})
	s.sessions = map[string]*peerSession{}
	s.running.Store(true)

	s.Logger.Info("peer started", logger.Peer(s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	s.wg.Go(s.acceptLoop)
	return nil
}

// Address returns the bound listen address, or the configured one before Start.
func (s *Server) Address() string {
	if s.listener == nil {
		return s.Addr
	}

	return s.listener.Addr().String()
}

// Stop closes the listener and every open connection, then waits for all
// session goroutines to return. Safe to call when not running.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	close(s.stopped)
	_ = s.listener.Close()

	s.mu.Lock()
	for _, ps := range s.sessions {
		_ = ps.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("peer stopped", logger.Peer(s.Name))
}

// Sessions returns the ids of all accepted connections in accept order.
func (s *Server) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Received returns a copy of the bytes the client sent on session id.
func (s *Server) Received(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.sessions[id]
	if !ok {
		return nil
	}

	return bytes.Clone(ps.received.Bytes())
}

func (s *Server) acceptLoop() {
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}

			s.Logger.Error("peer accept error", logger.Peer(s.Name), logger.Err(err))
			continue
		}

		ps := &peerSession{id: xid.New().String(), conn: conn}
		s.mu.Lock()
		s.sessions[ps.id] = ps
		s.order = append(s.order, ps.id)
		s.mu.Unlock()

		s.wg.Go(func() { s.play(ps) })
	}
}

// play sends the script to one connection and records the replies.
func (s *Server) play(ps *peerSession) {
	log := s.Logger.With(logger.Peer(s.Name), logger.Field{Key: "session", Value: ps.id})
	defer ps.conn.Close()

	for _, line := range s.Script {
		if _, err := io.WriteString(ps.conn, line+"\n"); err != nil {
			log.Warn("peer write failed", logger.Err(err))
			return
		}

		if d, ok := SleepDuration(line); ok && !s.pause(d) {
			return
		}
	}

	if tcp, ok := ps.conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	linger := s.Linger
	if linger <= 0 {
		linger = DefaultLinger
	}

	_ = ps.conn.SetReadDeadline(time.Now().Add(linger))
	buf := make([]byte, 1024)
	for {
		n, err := ps.conn.Read(buf)
		if n > 0 {
			s.mu.Lock()
			ps.received.Write(buf[:n])
			s.mu.Unlock()
		}

		if err == nil {
			continue
		}

		if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrDeadlineExceeded) {
			log.Debug("peer read ended", logger.Err(err))
		}

		break
	}

	log.Debug("peer session finished")
}

// pause sleeps for d or until Stop; it reports whether the script should go on.
func (s *Server) pause(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.stopped:
		return false
	}
}

// SleepDuration parses a "sleep <seconds>" line. Fractional seconds are allowed.
func SleepDuration(line string) (time.Duration, bool) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	if cmd != "sleep" {
		return 0, false
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil || secs < 0 {
		return 0, false
	}

	return time.Duration(secs * float64(time.Second)), true
}

// DemoScript returns the demo exchange for a peer called name. Every line the
// client answers is followed by a pause so the answer goes out before the
// peer closes.
func DemoScript(name string) []string {
	return []string{
		"name " + name,
		"echo hello from " + name,
		"keepalive",
		"sleep 0.1",
		"echo still here",
		"sleep 0.1",
		"exit",
	}
}
