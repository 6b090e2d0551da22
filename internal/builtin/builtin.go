// Package builtin provides the captp.Object kinds a daemon can register
// statically on its bootstrap object via configuration, keyed by a short
// kind name (config.SwissRegistration.Kind).
package builtin

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dantte-lp/gocaptp/internal/captp"
	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// ErrUnknownKind indicates a configured swiss registration names a kind
// with no builtin constructor.
var ErrUnknownKind = fmt.Errorf("builtin: unrecognized object kind")

// New constructs the captp.Object named by kind, for wiring a statically
// configured swiss registration at daemon startup.
func New(kind string, logger *slog.Logger) (captp.Object, error) {
	switch kind {
	case "echo":
		return NewEcho(logger), nil
	case "counter":
		return NewCounter(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Echo is a captp.Object that replies to every deliver with the same
// arguments it was sent, for exercising the wire path end to end without
// any application logic in the way.
type Echo struct {
	captp.BaseObject
	logger *slog.Logger
	calls  atomic.Uint64
}

// NewEcho constructs an Echo object.
func NewEcho(logger *slog.Logger) *Echo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Echo{logger: logger.With(slog.String("object", "echo"))}
}

// Calls returns the number of deliveries this object has handled.
func (e *Echo) Calls() uint64 { return e.calls.Load() }

// DeliverOnly implements captp.Object by logging and discarding args.
func (e *Echo) DeliverOnly(_ *captp.Session, args []syrup.Value) error {
	e.calls.Add(1)
	e.logger.Debug("echo deliver-only", slog.Int("args", len(args)))
	return nil
}

// Deliver implements captp.Object by fulfilling the resolver with the same
// arguments it received.
func (e *Echo) Deliver(_ *captp.Session, args []syrup.Value, resolver captp.Resolver) error {
	e.calls.Add(1)
	return resolver.Fulfill(args)
}
