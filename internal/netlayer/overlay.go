package netlayer

import (
	"context"
	"net"

	"github.com/dantte-lp/gocaptp/internal/locator"
)

// OverlayDriver wraps an inner Driver and relabels every locator it
// produces under the "onion" transport symbol, mirroring how an
// anonymized-overlay netlayer is just another byte-stream driver from the
// session code's point of view (spec §4.3).
//
// The inner driver supplies the actual bind/dial mechanics. No Tor control
// or onion-service library is present in this codebase's dependency set,
// so OverlayDriver does not itself speak the onion-service protocol; it
// exists to keep the transport symbol and locator shape correct for a
// deployment that substitutes a real onion-capable inner Driver.
type OverlayDriver struct {
	inner          Driver
	innerTransport string
}

// NewOverlayDriver constructs an OverlayDriver delegating to inner, whose
// own locators advertise innerTransport (e.g. "tcp").
func NewOverlayDriver(inner Driver, innerTransport string) *OverlayDriver {
	return &OverlayDriver{inner: inner, innerTransport: innerTransport}
}

func (d *OverlayDriver) Bind(ctx context.Context, designator, addr string) (Listener, error) {
	ln, err := d.inner.Bind(ctx, designator, addr)
	if err != nil {
		return nil, err
	}
	return &overlayListener{inner: ln}, nil
}

func (d *OverlayDriver) Dial(ctx context.Context, loc locator.NodeLocator) (net.Conn, error) {
	dialLoc := loc
	dialLoc.Transport = d.innerTransport
	return d.inner.Dial(ctx, dialLoc)
}

// overlayListener relabels the inner listener's advertised locator onto
// the "onion" transport symbol.
type overlayListener struct {
	inner Listener
}

func (l *overlayListener) Accept(ctx context.Context) (net.Conn, error) {
	return l.inner.Accept(ctx)
}

func (l *overlayListener) Locator() locator.NodeLocator {
	loc := l.inner.Locator()
	loc.Transport = "onion"
	return loc
}

func (l *overlayListener) Close() error { return l.inner.Close() }
