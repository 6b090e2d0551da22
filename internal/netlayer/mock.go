package netlayer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/dantte-lp/gocaptp/internal/locator"
)

// ErrDesignatorInUse indicates Bind was called twice for the same
// designator against the same registry.
var ErrDesignatorInUse = errors.New("netlayer/mock: designator already bound")

// ErrNoSuchListener indicates Dial targeted a designator nothing has
// bound in the registry.
var ErrNoSuchListener = errors.New("netlayer/mock: no listener for designator")

// Registry is an in-memory directory of bound mock listeners, keyed by
// designator, mirroring the "registry mapping name -> mpsc of connect
// requests" test driver described in spec §4.3. Every MockDriver sharing a
// Registry can dial every other's bound designators without touching a
// real socket.
type Registry struct {
	mu        sync.Mutex
	listeners map[string]chan net.Conn
}

// NewRegistry constructs an empty mock registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[string]chan net.Conn)}
}

// MockDriver is the in-memory stream-transport driver used in tests: Bind
// registers a connect-request channel under designator, and Dial from any
// driver sharing the same Registry pushes one half of a net.Pipe into it.
type MockDriver struct {
	registry *Registry
}

// NewMockDriver constructs a MockDriver backed by registry.
func NewMockDriver(registry *Registry) *MockDriver {
	return &MockDriver{registry: registry}
}

// Bind registers designator in the shared registry and returns a Listener
// that receives connections Dialed to that designator. addr is ignored;
// mock binds are addressed purely by designator.
func (d *MockDriver) Bind(ctx context.Context, designator, addr string) (Listener, error) {
	d.registry.mu.Lock()
	defer d.registry.mu.Unlock()

	if _, exists := d.registry.listeners[designator]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDesignatorInUse, designator)
	}

	ch := make(chan net.Conn)
	d.registry.listeners[designator] = ch

	return &mockListener{
		registry:   d.registry,
		designator: designator,
		conns:      ch,
		loc:        locator.NewNodeLocator(designator, "mock"),
	}, nil
}

// Dial connects to whatever designator loc names, if it has a bound
// listener in the registry.
func (d *MockDriver) Dial(ctx context.Context, loc locator.NodeLocator) (net.Conn, error) {
	d.registry.mu.Lock()
	ch, ok := d.registry.listeners[loc.Designator]
	d.registry.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchListener, loc.Designator)
	}

	clientConn, serverConn := net.Pipe()
	select {
	case ch <- serverConn:
		return clientConn, nil
	case <-ctx.Done():
		_ = clientConn.Close()
		_ = serverConn.Close()
		return nil, fmt.Errorf("netlayer/mock: dial %s: %w", loc.Designator, ctx.Err())
	}
}

// mockListener hands out the server half of a net.Pipe for every Dial
// directed at its designator.
type mockListener struct {
	registry   *Registry
	designator string
	conns      chan net.Conn
	loc        locator.NodeLocator

	closeOnce sync.Once
}

func (l *mockListener) Accept(ctx context.Context) (net.Conn, error) {
	select {
	case conn, ok := <-l.conns:
		if !ok {
			return nil, fmt.Errorf("netlayer/mock: accept: %w", ErrClosed)
		}
		return conn, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("netlayer/mock: accept: %w", ctx.Err())
	}
}

func (l *mockListener) Locator() locator.NodeLocator { return l.loc }

func (l *mockListener) Close() error {
	l.closeOnce.Do(func() {
		l.registry.mu.Lock()
		delete(l.registry.listeners, l.designator)
		l.registry.mu.Unlock()
		close(l.conns)
	})
	return nil
}
