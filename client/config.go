package client

import (
	"time"

	"github.com/cyberinferno/linereactor/driver"
	"github.com/cyberinferno/linereactor/protocol"
	"github.com/cyberinferno/linereactor/reactor"
	"github.com/cyberinferno/linereactor/session"
)

// Config holds configuration for the line client.
type Config struct {
	// Addresses are the "host:port" peers to connect to, one connection each.
	Addresses []string `yaml:"addresses"`
	// ReadBufferSize is the per-connection scratch buffer; a line must fit in one read.
	ReadBufferSize int `yaml:"readBufferSize"`
	// PollTimeout bounds a single reactor wait; negative waits forever.
	PollTimeout time.Duration `yaml:"pollTimeout"`
	// MaxEvents is the reactor batch capacity.
	MaxEvents int `yaml:"maxEvents"`
	// ConnectionTimeout is the max duration for establishing one connection.
	ConnectionTimeout time.Duration `yaml:"connectionTimeout"`
	// DialAttempts is how many times a failed dial is tried in total.
	DialAttempts uint `yaml:"dialAttempts"`
	// DialDelay is the base delay between dial attempts.
	DialDelay time.Duration `yaml:"dialDelay"`
	// AbortOnError ends the run on the first connection failure.
	AbortOnError bool `yaml:"abortOnError"`
	// EchoReplies answers "echo" and "keepalive" lines from established peers.
	EchoReplies bool `yaml:"echoReplies"`
	// GreetAt sends "hello <peer>" when the message count reaches this value; 0 disables.
	GreetAt int `yaml:"greetAt"`
}

// DefaultConfig returns a Config with default values for the given addresses.
//
// Parameters:
//   - addresses: The "host:port" peers to connect to
//
// Returns:
//   - A Config with defaults: ReadBufferSize 2048, PollTimeout 1s,
//     MaxEvents 128, ConnectionTimeout 10s, DialAttempts 3, DialDelay 200ms,
//     per-connection error isolation, no replies.
func DefaultConfig(addresses ...string) Config {
	return Config{
		Addresses:         addresses,
		ReadBufferSize:    session.DefaultScratchSize,
		PollTimeout:       time.Second,
		MaxEvents:         reactor.DefaultMaxEvents,
		ConnectionTimeout: 10 * time.Second,
		DialAttempts:      3,
		DialDelay:         200 * time.Millisecond,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig. Addresses and the
// boolean switches are left as they are.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}

	if c.PollTimeout == 0 {
		c.PollTimeout = d.PollTimeout
	}

	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}

	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = d.ConnectionTimeout
	}

	if c.DialAttempts == 0 {
		c.DialAttempts = d.DialAttempts
	}

	if c.DialDelay <= 0 {
		c.DialDelay = d.DialDelay
	}

	return c
}

// Policy builds the reply policy selected by the config.
func (c Config) Policy() protocol.ReplyPolicy {
	var policies []protocol.ReplyPolicy
	if c.EchoReplies {
		policies = append(policies, protocol.EchoReplies)
	}

	if c.GreetAt > 0 {
		policies = append(policies, protocol.GreetAt(c.GreetAt))
	}

	if len(policies) == 0 {
		return protocol.NoReplies
	}

	return protocol.Chain(policies...)
}

func (c Config) loopConfig() driver.Config {
	return driver.Config{
		PollTimeout:  c.PollTimeout,
		ScratchSize:  c.ReadBufferSize,
		AbortOnError: c.AbortOnError,
	}
}
