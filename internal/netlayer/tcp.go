package netlayer

import (
	"context"
	"fmt"
	"net"

	"github.com/dantte-lp/gocaptp/internal/locator"
)

// TCPDriver dials and binds plain TCP connections. The listen/dial address
// carries the port as the locator's "port" hint (spec §4.3).
type TCPDriver struct {
	dialer net.Dialer
}

// NewTCPDriver constructs a TCPDriver.
func NewTCPDriver() *TCPDriver {
	return &TCPDriver{}
}

// Bind listens on addr (host:port, or :port for all interfaces) and
// advertises designator.tcp with the bound port as a hint.
func (d *TCPDriver) Bind(ctx context.Context, designator, addr string) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netlayer/tcp: listen on %s: %w", addr, err)
	}

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("netlayer/tcp: split listen addr %s: %w", ln.Addr(), err)
	}

	loc := locator.NewNodeLocator(designator, "tcp").WithHint("port", port)
	return &tcpListener{ln: ln, loc: loc}, nil
}

// Dial connects to loc's host using the "port" hint, defaulting to the
// designator alone as the dial target if no port hint is present.
func (d *TCPDriver) Dial(ctx context.Context, loc locator.NodeLocator) (net.Conn, error) {
	addr := loc.Designator
	if port, ok := loc.Hint("port"); ok {
		addr = net.JoinHostPort(loc.Designator, port)
	}
	conn, err := d.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netlayer/tcp: dial %s: %w", addr, err)
	}
	return conn, nil
}

// tcpListener adapts a net.Listener to the netlayer.Listener contract.
type tcpListener struct {
	ln  net.Listener
	loc locator.NodeLocator
}

func (l *tcpListener) Accept(ctx context.Context) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("netlayer/tcp: accept: %w", r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("netlayer/tcp: accept: %w", ctx.Err())
	}
}

func (l *tcpListener) Locator() locator.NodeLocator { return l.loc }

func (l *tcpListener) Close() error {
	if err := l.ln.Close(); err != nil {
		return fmt.Errorf("netlayer/tcp: close: %w", err)
	}
	return nil
}
