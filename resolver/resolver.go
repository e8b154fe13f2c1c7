// Package resolver turns "host:port" addresses into connected TCP sockets,
// caching host lookups in a Cache.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// ErrNoAddresses is returned when a host resolves to nothing.
var ErrNoAddresses = errors.New("resolver: no addresses")

// LookupFunc resolves a host name to its addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver resolves and dials peer addresses.
type Resolver struct {
	cache  Cache[[]string]
	ttl    time.Duration
	lookup LookupFunc
	dialer net.Dialer
}

// New creates a Resolver.
//
// Parameters:
//   - cache: Where lookups are cached; nil disables caching
//   - ttl: How long a lookup stays cached
//   - lookup: Host lookup; nil uses net.DefaultResolver.LookupHost
//
// Returns:
//   - A new *Resolver
func New(cache Cache[[]string], ttl time.Duration, lookup LookupFunc) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}

	return &Resolver{cache: cache, ttl: ttl, lookup: lookup}
}

// Resolve returns the addresses of host. Literal IPs are returned as is and
// never cached.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]string, error) {
	if _, err := netip.ParseAddr(host); err == nil {
		return []string{host}, nil
	}

	fetch := func(ctx context.Context) ([]string, error) {
		addrs, err := r.lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", host, err)
		}

		if len(addrs) == 0 {
			return nil, fmt.Errorf("lookup %s: %w", host, ErrNoAddresses)
		}

		return addrs, nil
	}

	if r.cache == nil {
		return fetch(ctx)
	}

	return r.cache.GetOrFetch(ctx, host, r.ttl, fetch)
}

// Dial resolves address and connects to the first reachable result. When
// every candidate fails the cached lookup is dropped so the next attempt
// resolves afresh.
//
// Parameters:
//   - ctx: Context for cancellation
//   - address: "host:port"
//   - timeout: Per-candidate connect timeout; zero means none
//
// Returns:
//   - The connected *net.TCPConn
//   - The joined dial errors if no candidate accepted
func (r *Resolver) Dial(ctx context.Context, address string, timeout time.Duration) (*net.TCPConn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}

	addrs, err := r.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	d := r.dialer
	d.Timeout = timeout

	var errs []error
	for _, a := range addrs {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(a, port))
		if err != nil {
			errs = append(errs, err)
			continue
		}

		return conn.(*net.TCPConn), nil
	}

	if r.cache != nil {
		_ = r.cache.Delete(ctx, host)
	}

	return nil, fmt.Errorf("dial %s: %w", address, errors.Join(errs...))
}
