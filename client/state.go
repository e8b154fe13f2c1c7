package client

import (
	"time"

	"github.com/cyberinferno/linereactor/reactor"
)

// ConnectionState is the lifecycle state of one peer connection.
type ConnectionState int

const (
	Connecting ConnectionState = iota // Resolving and dialing
	Connected                         // Registered with the loop
	Closed                            // Peer shut the connection down cleanly
	Failed                            // Dial or I/O error ended the connection
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is passed to the handler registered with OnConnectionState.
type ConnectionStateEvent struct {
	State     ConnectionState
	Address   string        // The "host:port" that was dialed
	Token     reactor.Token // Valid from Connected on
	Peer      string        // Handshake name, if the peer got that far
	Timestamp time.Time
	Error     error // Non-nil for Failed
}

// ErrorEvent is passed to the handler registered with OnError.
type ErrorEvent struct {
	Address   string
	Error     error
	Timestamp time.Time
}

// ConnectionStateHandler is called on every connection state change.
// Handlers run on the loop goroutine and must not block.
type ConnectionStateHandler func(event ConnectionStateEvent)

// ErrorHandler is called for dial failures and connection errors.
// Handlers run on the loop goroutine and must not block.
type ErrorHandler func(event ErrorEvent)
