// Package client connects to a set of line-protocol peers and drives every
// connection on one reactor loop until all of them have shut down.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/avast/retry-go"
	"github.com/cyberinferno/linereactor/driver"
	"github.com/cyberinferno/linereactor/logger"
	"github.com/cyberinferno/linereactor/reactor"
	"github.com/cyberinferno/linereactor/resolver"
	"github.com/cyberinferno/linereactor/session"
	"github.com/rs/xid"
	"github.com/sourcegraph/conc"
)

// ErrNoAddresses is returned by Run when the config names no peers.
var ErrNoAddresses = errors.New("client: no addresses configured")

// Client owns the reactor, the task loop and one LineTask per peer.
// A Client is single-use: call Run once.
type Client struct {
	config   Config
	logger   logger.Logger
	resolver *resolver.Resolver

	tasks     map[reactor.Token]*LineTask
	addresses map[reactor.Token]string

	onConnectionState ConnectionStateHandler
	onError           ErrorHandler
}

// New creates a Client.
//
// Parameters:
//   - config: Client settings (e.g. from DefaultConfig); zero fields take defaults
//   - log: Logger for lifecycle and protocol diagnostics; nil discards
//   - res: Resolver used to dial peers; nil resolves without caching
//
// Returns:
//   - A new *Client ready to Run
func New(config Config, log logger.Logger, res *resolver.Resolver) *Client {
	if log == nil {
		log = logger.NewNop()
	}

	if res == nil {
		res = resolver.New(nil, 0, nil)
	}

	return &Client{
		config:    config.WithDefaults(),
		logger:    log,
		resolver:  res,
		tasks:     map[reactor.Token]*LineTask{},
		addresses: map[reactor.Token]string{},
	}
}

// OnConnectionState registers the handler for connection state changes.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.onConnectionState = handler
}

// OnError registers the handler for dial and connection errors.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnError(handler ErrorHandler) {
	c.onError = handler
}

// Tasks returns the spawned tasks by token. The map stays valid after Run
// returns so callers can inspect final protocol states.
func (c *Client) Tasks() map[reactor.Token]*LineTask {
	return c.tasks
}

// Run dials every configured address, spawns a LineTask per connection and
// drives the loop until all connections are done.
//
// All addresses are dialed concurrently, each with its own retries, and the
// loop starts once every dial has finished. Handlers still run on the calling
// goroutine, in address order. Dial failures are reported like connection
// errors: they are isolated to that address unless AbortOnError is set.
//
// Parameters:
//   - ctx: Cancelling ctx stops dialing and closes every open connection
//
// Returns:
//   - nil if every connection shut down cleanly
//   - A reactor error, the first failure under AbortOnError, or the joined
//     dial and connection errors otherwise
func (c *Client) Run(ctx context.Context) error {
	if len(c.config.Addresses) == 0 {
		return ErrNoAddresses
	}

	log := c.logger.With(logger.Field{Key: "run", Value: xid.New().String()})

	poller, err := reactor.NewPoller(c.config.MaxEvents)
	if err != nil {
		return err
	}
	defer poller.Close()

	loop := driver.New(c.config.loopConfig(), poller, log)
	loop.OnClose = c.closed

	dialed := c.dialAll(ctx, log)

	var dialErrs []error
	for i, address := range c.config.Addresses {
		token, err := c.spawn(loop, log, address, dialed[i])
		if err == nil {
			log.Info("connected", logger.Conn(uint32(token)),
				logger.Field{Key: "address", Value: address})
			continue
		}

		c.emitError(address, err)
		c.emitState(ConnectionStateEvent{State: Failed, Address: address, Error: err})

		if errors.Is(err, reactor.ErrRegister) || c.config.AbortOnError || ctx.Err() != nil {
			for _, rest := range dialed[i+1:] {
				if rest.conn != nil {
					rest.conn.Close()
				}
			}

			loop.Shutdown(err)
			return err
		}

		dialErrs = append(dialErrs, err)
	}

	runErr := loop.Run(ctx)
	return errors.Join(append(dialErrs, runErr)...)
}

type dialResult struct {
	conn *net.TCPConn
	err  error
}

// dialAll dials every configured address concurrently, so a slow peer only
// delays the loop by its own dial time. Results are in address order.
func (c *Client) dialAll(ctx context.Context, log logger.Logger) []dialResult {
	for _, address := range c.config.Addresses {
		c.emitState(ConnectionStateEvent{State: Connecting, Address: address})
	}

	results := make([]dialResult, len(c.config.Addresses))
	var wg conc.WaitGroup
	for i, address := range c.config.Addresses {
		wg.Go(func() {
			results[i].conn, results[i].err = c.dial(ctx, log, address)
		})
	}
	wg.Wait()

	return results
}

// spawn registers a dialed connection and its task on loop.
func (c *Client) spawn(loop *driver.Loop, log logger.Logger, address string, dialed dialResult) (reactor.Token, error) {
	if dialed.err != nil {
		return 0, dialed.err
	}

	stream, err := session.NewTCPStream(dialed.conn)
	if err != nil {
		dialed.conn.Close()
		return 0, err
	}

	task := NewLineTask(c.config.Policy(), log)
	token, err := loop.Spawn(stream, task)
	if err != nil {
		stream.Close()
		return 0, fmt.Errorf("spawn %s: %w", address, err)
	}

	task.Bind(token)
	c.tasks[token] = task
	c.addresses[token] = address
	c.emitState(ConnectionStateEvent{State: Connected, Address: address, Token: token})
	return token, nil
}

func (c *Client) dial(ctx context.Context, log logger.Logger, address string) (*net.TCPConn, error) {
	var conn *net.TCPConn
	err := retry.Do(
		func() error {
			var err error
			conn, err = c.resolver.Dial(ctx, address, c.config.ConnectionTimeout)
			return err
		},
		retry.Attempts(c.config.DialAttempts),
		retry.Delay(c.config.DialDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("dial failed, retrying", logger.Err(err),
				logger.Field{Key: "address", Value: address},
				logger.Field{Key: "attempt", Value: n + 1})
		}),
	)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// closed is the loop's OnClose hook.
func (c *Client) closed(token reactor.Token, err error) {
	address := c.addresses[token]
	var peer string
	if task, ok := c.tasks[token]; ok {
		peer = task.State().Peer
	}

	if err != nil {
		c.emitError(address, err)
		c.emitState(ConnectionStateEvent{State: Failed, Address: address, Token: token, Peer: peer, Error: err})
		return
	}

	c.emitState(ConnectionStateEvent{State: Closed, Address: address, Token: token, Peer: peer})
}

func (c *Client) emitState(event ConnectionStateEvent) {
	if c.onConnectionState == nil {
		return
	}

	event.Timestamp = time.Now()
	c.onConnectionState(event)
}

func (c *Client) emitError(address string, err error) {
	if c.onError != nil {
		c.onError(ErrorEvent{Address: address, Error: err, Timestamp: time.Now()})
	}
}
