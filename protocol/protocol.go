// Package protocol implements the newline-delimited handshake protocol spoken
// over each connection: a peer names itself with "name <identifier>" and every
// line after that is counted. The state is a closed set of phases driven by an
// explicit, side-effect free transition function.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Phase is the protocol phase of a connection.
type Phase uint8

const (
	AwaitingHandshake Phase = iota // No peer name received yet
	Established                    // Peer has named itself
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case AwaitingHandshake:
		return "AwaitingHandshake"
	case Established:
		return "Established"
	default:
		return "Unknown"
	}
}

// State is the per-connection protocol state. Peer and Count are only
// meaningful when Phase is Established.
type State struct {
	Phase Phase
	Peer  string
	Count int
}

// Initial returns the state of a freshly opened connection.
func Initial() State {
	return State{Phase: AwaitingHandshake}
}

// String returns the state in the form AwaitingHandshake or Established(peer, n).
func (s State) String() string {
	if s.Phase == Established {
		return fmt.Sprintf("Established(%q, %d)", s.Peer, s.Count)
	}

	return s.Phase.String()
}

// HandshakeCommand is the command a peer uses to name itself.
const HandshakeCommand = "name"

// ErrProtocolViolation is matched by every *ViolationError.
var ErrProtocolViolation = errors.New("protocol violation")

// ViolationError reports a line that is not acceptable in the current phase.
type ViolationError struct {
	Phase Phase
	Line  Line
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("protocol violation in %s: unexpected %q", e.Phase, e.Line.String())
}

// Is reports whether target is ErrProtocolViolation.
func (e *ViolationError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// Line is a parsed protocol line.
type Line struct {
	Command  string
	Argument string
}

// Empty reports whether the line carried nothing but whitespace or NUL bytes.
func (l Line) Empty() bool {
	return l.Command == "" && l.Argument == ""
}

// String reassembles the line as it would appear on the wire, without the newline.
func (l Line) String() string {
	if l.Argument == "" {
		return l.Command
	}

	return l.Command + " " + l.Argument
}

// ParseLine strips every NUL byte and the surrounding whitespace from raw,
// then splits it at the first space into a command and a trimmed argument.
//
// Parameters:
//   - raw: One line of input, with or without its trailing newline
//
// Returns:
//   - The parsed Line; Empty() is true for blank input
func ParseLine(raw []byte) Line {
	text := strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", ""))
	command, argument, _ := strings.Cut(text, " ")
	return Line{Command: command, Argument: strings.TrimSpace(argument)}
}

// SplitLines splits a chunk read from the wire at '\n'. A trailing fragment
// without a terminator is returned as a line of its own; fragments are never
// joined with data from a later read.
//
// Parameters:
//   - chunk: Bytes from a single read
//
// Returns:
//   - The lines in order, without their terminators; nil for an empty chunk
func SplitLines(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}

	lines := bytes.Split(chunk, []byte{'\n'})
	if len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}

	return lines
}

// Outcome is the result of one transition.
type Outcome struct {
	Next      State
	Replies   [][]byte
	Violation error
}

// Transition computes the next state for line in state s. Replies are only
// produced in the Established phase, by policy. A nil policy sends nothing.
//
// Parameters:
//   - s: The current state
//   - line: The parsed input line
//   - policy: Decides which replies to enqueue for established connections
//
// Returns:
//   - The Outcome holding the next state, replies and an optional *ViolationError
func Transition(s State, line Line, policy ReplyPolicy) Outcome {
	switch s.Phase {
	case AwaitingHandshake:
		if line.Empty() {
			return Outcome{Next: s}
		}

		if line.Command == HandshakeCommand && line.Argument != "" {
			return Outcome{Next: State{Phase: Established, Peer: line.Argument, Count: 1}}
		}

		return Outcome{Next: s, Violation: &ViolationError{Phase: s.Phase, Line: line}}
	case Established:
		next := State{Phase: Established, Peer: s.Peer, Count: s.Count + 1}
		if policy == nil {
			return Outcome{Next: next}
		}

		return Outcome{Next: next, Replies: policy(next, line)}
	default:
		panic(fmt.Sprintf("protocol: unknown phase %d", s.Phase))
	}
}
