package builtin

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dantte-lp/gocaptp/internal/captp"
	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// verbIncrement and verbValue are the two deliver verbs Counter recognizes.
const (
	verbIncrement = "increment"
	verbValue     = "value"
)

// ErrUnrecognizedVerb indicates a deliver to a Counter named a verb other
// than "increment" or "value".
var ErrUnrecognizedVerb = fmt.Errorf("builtin: unrecognized counter verb")

// Counter is a captp.Object holding a single atomic integer, incremented by
// "increment" deliveries and read by "value" deliveries. It exists to give
// the bootstrap registry a stateful object to exercise alongside the
// stateless Echo.
type Counter struct {
	captp.BaseObject
	logger *slog.Logger
	value  atomic.Int64
}

// NewCounter constructs a Counter starting at zero.
func NewCounter(logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{logger: logger.With(slog.String("object", "counter"))}
}

// Value returns the counter's current value.
func (c *Counter) Value() int64 { return c.value.Load() }

// DeliverOnly implements captp.Object: only "increment" is meaningful
// without a resolver to report back to.
func (c *Counter) DeliverOnly(_ *captp.Session, args []syrup.Value) error {
	if verbOf(args) != verbIncrement {
		return fmt.Errorf("%w: %q", ErrUnrecognizedVerb, verbOf(args))
	}
	c.value.Add(1)
	return nil
}

// Deliver implements captp.Object, resolving with the counter's value for
// "value" and the post-increment value for "increment".
func (c *Counter) Deliver(_ *captp.Session, args []syrup.Value, resolver captp.Resolver) error {
	switch verbOf(args) {
	case verbIncrement:
		v := c.value.Add(1)
		return resolver.Fulfill([]syrup.Value{syrup.Int64(v)})
	case verbValue:
		return resolver.Fulfill([]syrup.Value{syrup.Int64(c.value.Load())})
	default:
		err := fmt.Errorf("%w: %q", ErrUnrecognizedVerb, verbOf(args))
		_ = resolver.Break(syrup.Str(err.Error()))
		return err
	}
}

func verbOf(args []syrup.Value) string {
	if len(args) == 0 || args[0].Kind != syrup.KindSymbol {
		return ""
	}
	return string(args[0].Symbol)
}
