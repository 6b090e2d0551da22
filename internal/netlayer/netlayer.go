// Package netlayer implements the transport-agnostic listener/stream
// contract a CapTP session is built on top of, and the drivers that plug
// into it: TCP, an in-memory driver for tests, and an anonymized overlay.
package netlayer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/dantte-lp/gocaptp/internal/captp"
	"github.com/dantte-lp/gocaptp/internal/locator"
)

// Sentinel errors for the netlayer package.
var (
	// ErrNoListeners indicates Accept was called on a Netlayer with no
	// bound listeners.
	ErrNoListeners = errors.New("netlayer: no listeners bound")

	// ErrClosed indicates an operation was attempted after Close.
	ErrClosed = errors.New("netlayer: closed")
)

// Listener accepts incoming byte-stream connections for one bound address
// and describes itself as a NodeLocator.
type Listener interface {
	// Accept blocks until a peer connects or ctx is cancelled.
	Accept(ctx context.Context) (net.Conn, error)

	// Locator describes this listener's bind address as a NodeLocator.
	Locator() locator.NodeLocator

	// Close stops accepting new connections.
	Close() error
}

// Driver is a transport that can bind a listening address and dial a peer
// by locator. The TCP, mock, and overlay drivers each satisfy this
// contract identically, so the session code above never branches on
// transport kind.
type Driver interface {
	// Bind starts listening on addr and returns a Listener describing
	// itself with designator as the advertised locator's host.
	Bind(ctx context.Context, designator, addr string) (Listener, error)

	// Dial connects to the peer described by loc.
	Dial(ctx context.Context, loc locator.NodeLocator) (net.Conn, error)
}

// Netlayer wraps one or more listeners plus a session manager, handing out
// already-handshaken sessions to callers (spec §4.3).
type Netlayer struct {
	driver    Driver
	builder   *captp.Builder
	manager   *captp.Manager
	listeners []Listener
	logger    *slog.Logger

	closed chan struct{}
}

// New constructs a Netlayer over driver, using builder to perform the
// handshake on every accepted or dialed connection, and manager to
// deduplicate and register the resulting sessions.
func New(driver Driver, builder *captp.Builder, manager *captp.Manager, logger *slog.Logger) *Netlayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Netlayer{
		driver:  driver,
		builder: builder,
		manager: manager,
		logger:  logger.With(slog.String("component", "netlayer")),
		closed:  make(chan struct{}),
	}
}

// Bind adds a bound listener on addr, advertised under designator.
func (n *Netlayer) Bind(ctx context.Context, designator, addr string) error {
	ln, err := n.driver.Bind(ctx, designator, addr)
	if err != nil {
		return fmt.Errorf("netlayer: bind %s: %w", addr, err)
	}
	n.listeners = append(n.listeners, ln)
	return nil
}

// Locators returns the NodeLocator each bound listener advertises.
func (n *Netlayer) Locators() []locator.NodeLocator {
	locs := make([]locator.NodeLocator, 0, len(n.listeners))
	for _, ln := range n.listeners {
		locs = append(locs, ln.Locator())
	}
	return locs
}

// Connect dials loc, deduplicating against any session the manager already
// has registered for loc's designator, and performs the handshake on a
// fresh dial.
func (n *Netlayer) Connect(ctx context.Context, loc locator.NodeLocator) (*captp.Session, error) {
	if existing, err := n.manager.Lookup(loc.Designator); err == nil {
		return existing, nil
	}

	conn, err := n.driver.Dial(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("netlayer: dial %s: %w", loc.String(), err)
	}

	session, err := n.builder.AndConnect(conn, n.logger)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("netlayer: handshake with %s: %w", loc.String(), err)
	}

	return n.manager.Register(loc, session), nil
}

// Accept waits on every bound listener and returns the first session to
// complete its handshake. Accept may be called repeatedly from a single
// goroutine to drive a server's accept loop.
func (n *Netlayer) Accept(ctx context.Context) (*captp.Session, error) {
	if len(n.listeners) == 0 {
		return nil, ErrNoListeners
	}

	type result struct {
		conn net.Conn
		err  error
	}
	results := make(chan result, len(n.listeners))

	acceptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, ln := range n.listeners {
		go func(ln Listener) {
			conn, err := ln.Accept(acceptCtx)
			select {
			case results <- result{conn, err}:
			case <-acceptCtx.Done():
				if conn != nil {
					_ = conn.Close()
				}
			}
		}(ln)
	}

	var r result
	select {
	case r = <-results:
	case <-ctx.Done():
		return nil, fmt.Errorf("netlayer: accept: %w", ctx.Err())
	case <-n.closed:
		return nil, ErrClosed
	}
	if r.err != nil {
		return nil, fmt.Errorf("netlayer: accept: %w", r.err)
	}

	session, err := n.builder.AndAccept(r.conn, n.logger)
	if err != nil {
		_ = r.conn.Close()
		return nil, fmt.Errorf("netlayer: handshake from %s: %w", r.conn.RemoteAddr(), err)
	}

	return n.manager.Register(session.Peer(), session), nil
}

// Close stops every bound listener and unblocks any pending Accept calls.
func (n *Netlayer) Close() error {
	select {
	case <-n.closed:
		return nil
	default:
		close(n.closed)
	}

	var errs []error
	for _, ln := range n.listeners {
		if err := ln.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
