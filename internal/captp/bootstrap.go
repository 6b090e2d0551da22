package captp

import (
	"context"
	"fmt"
	"sync"

	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// Bootstrap verb symbols, the leading argument of a deliver(-only) to
// position 0 (spec §3, §9 Glossary).
const (
	verbFetch         = "fetch"
	verbDepositGift   = "deposit-gift"
	verbWithdrawGift  = "withdraw-gift"
)

// Bootstrap is the object every session exports at position 0: the entry
// point the peer uses to look up application objects by swiss number.
// Applications register objects with RegisterSwiss before (or while)
// sessions are live; Bootstrap itself is transport/session agnostic.
type Bootstrap struct {
	mu     sync.RWMutex
	swiss  map[string]Object
}

// NewBootstrap constructs an empty bootstrap registry.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{swiss: make(map[string]Object)}
}

// RegisterSwiss makes obj reachable to any peer that fetches the given
// swiss number. Overwrites any previous registration under the same
// number.
func (b *Bootstrap) RegisterSwiss(swissNum []byte, obj Object) {
	b.mu.Lock()
	b.swiss[string(swissNum)] = obj
	b.mu.Unlock()
}

// UnregisterSwiss removes a previously registered swiss number.
func (b *Bootstrap) UnregisterSwiss(swissNum []byte) {
	b.mu.Lock()
	delete(b.swiss, string(swissNum))
	b.mu.Unlock()
}

func (b *Bootstrap) lookup(swissNum []byte) (Object, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.swiss[string(swissNum)]
	return obj, ok
}

// DeliverOnly implements Object. The only one-shot bootstrap verb is
// deposit-gift, which is reserved and not yet wired (spec §4.5, §1
// Non-goals: handoff beyond the record schema). Any other verb is
// unrecognized.
func (b *Bootstrap) DeliverOnly(_ *Session, args []syrup.Value) error {
	verb := verbOf(args)
	switch verb {
	case verbDepositGift:
		return nil
	default:
		return fmt.Errorf("bootstrap deliver-only verb %q: %w", verb, ErrUnrecognizedBootstrapVerb)
	}
}

// Deliver implements Object. fetch resolves a swiss number to a locally
// exported position; withdraw-gift is reserved and breaks the resolver
// until it is wired.
func (b *Bootstrap) Deliver(session *Session, args []syrup.Value, resolver Resolver) error {
	verb := verbOf(args)
	switch verb {
	case verbFetch:
		return b.handleFetch(session, args, resolver)
	case verbWithdrawGift:
		return resolver.Break(syrup.Str("withdraw-gift is reserved and not implemented"))
	default:
		err := fmt.Errorf("bootstrap deliver verb %q: %w", verb, ErrUnrecognizedBootstrapVerb)
		_ = resolver.Break(syrup.Str(err.Error()))
		return err
	}
}

func (b *Bootstrap) handleFetch(session *Session, args []syrup.Value, resolver Resolver) error {
	if len(args) != 2 || args[1].Kind != syrup.KindBytes {
		err := fmt.Errorf("bootstrap fetch: %w: expected a swiss number byte-string argument", ErrUnrecognizedBootstrapVerb)
		_ = resolver.Break(syrup.Str(err.Error()))
		return err
	}

	swissNum := args[1].Bytes
	fr, isFetch := resolver.(FetchResolver)

	obj, ok := b.lookup(swissNum)
	if !ok {
		// Surface the miss as an event for observability/logging (spec
		// §4.5: bootstrap verbs surface as events), but still resolve the
		// caller's promise immediately: nothing re-delivers this fetch if
		// the application registers the swiss number later, so leaving the
		// resolver open would hang the peer's DeliverAnd forever (spec §8
		// scenario: "fetch of an unknown swiss errors").
		if isFetch {
			session.emitEvent(FetchEvent{SwissNum: swissNum})
		}
		_ = resolver.Break(syrup.Str(ErrSwissNumNotFound.Error()))
		return ErrSwissNumNotFound
	}

	position := session.ExportObject(obj)
	if isFetch {
		return fr.FulfillExport(position)
	}
	return resolver.Fulfill([]syrup.Value{DescExport{Position: position}.ToValue()})
}

// Exported implements Object with a no-op: the bootstrap object's position
// is always the fixed constant bootstrapPosition, never reserved
// dynamically.
func (b *Bootstrap) Exported([]byte, uint64) {}

func verbOf(args []syrup.Value) string {
	if len(args) == 0 || args[0].Kind != syrup.KindSymbol {
		return ""
	}
	return string(args[0].Symbol)
}

// RemoteBootstrap is the client-side handle for a peer's bootstrap object:
// a RemoteObject fixed at bootstrapPosition.
type RemoteBootstrap struct {
	RemoteObject
}

// newRemoteBootstrap returns the handle for session's peer's bootstrap
// object.
func newRemoteBootstrap(session *Session) RemoteBootstrap {
	return RemoteBootstrap{RemoteObject: RemoteObject{Session: session, Position: bootstrapPosition}}
}

// Fetch looks up swissNum on the peer's bootstrap object and returns a
// RemoteObject naming the resulting export (spec §8 scenario 1).
func (rb RemoteBootstrap) Fetch(ctx context.Context, swissNum []byte) (RemoteObject, error) {
	args, err := rb.DeliverAnd(ctx, []syrup.Value{syrup.Sym(verbFetch), syrup.Bytes(swissNum)})
	if err != nil {
		return RemoteObject{}, err
	}
	if len(args) != 1 {
		return RemoteObject{}, fmt.Errorf("bootstrap fetch reply: expected a single desc:export argument, got %d", len(args))
	}
	desc, err := DescExportFromValue(args[0])
	if err != nil {
		return RemoteObject{}, fmt.Errorf("bootstrap fetch reply: %w", err)
	}
	rb.Session.imports.add(desc.Position)
	return RemoteObject{Session: rb.Session, Position: desc.Position}, nil
}
