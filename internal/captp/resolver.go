package captp

import (
	"sync"

	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// GenericResolver is the Resolver handle an object's Deliver method
// receives for an incoming op:deliver: calling Fulfill or Break sends a
// message back to the peer addressed at the position the peer gave us in
// resolve_me_desc (spec §4.7 steps 2-3).
type GenericResolver struct {
	session *Session
	desc    DescImport
}

func newGenericResolver(session *Session, desc DescImport) GenericResolver {
	return GenericResolver{session: session, desc: desc}
}

// Fulfill sends an op:deliver to the peer's resolve_me_desc position,
// carrying args as the reply.
func (r GenericResolver) Fulfill(args []syrup.Value) error {
	return r.session.fulfillRemote(r.desc, args)
}

// Break sends an op:deliver-only to the peer's resolve_me_desc position,
// carrying reason as its sole argument.
func (r GenericResolver) Break(reason syrup.Value) error {
	return r.session.breakRemote(r.desc, reason)
}

// FetchResolver specializes GenericResolver for the bootstrap fetch verb
// (spec §4.7): it fulfills with a single desc:export argument, or breaks
// with an arbitrary token.
type FetchResolver struct {
	GenericResolver
}

func newFetchResolver(session *Session, desc DescImport) FetchResolver {
	return FetchResolver{GenericResolver: newGenericResolver(session, desc)}
}

// FulfillExport fulfills the fetch with a reference to the object now
// exported at position.
func (r FetchResolver) FulfillExport(position uint64) error {
	return r.Fulfill([]syrup.Value{DescExport{Position: position}.ToValue()})
}

// GenericResolver's wire messages carry no verb symbol. Per spec §4.5, a
// deliver-only arriving at a resolver's position IS the break; a deliver
// arriving at a resolver's position IS the fulfill — the operation kind
// alone distinguishes them.

// localPromise is the Object installed at the position a Session reserves
// for itself when making a deliver_and-style call (spec §4.7 step 1): a
// single-use slot that resolves exactly once, whichever of Deliver (peer's
// fulfill) or DeliverOnly (peer's break) arrives first.
type localPromise struct {
	mu       sync.Mutex
	resultCh chan promiseResult
	taken    bool
}

type promiseResult struct {
	args []syrup.Value
	err  error
}

func newLocalPromise() *localPromise {
	return &localPromise{resultCh: make(chan promiseResult, 1)}
}

// take moves the one-shot result channel out atomically, matching spec
// §3's "Option<Sender>::take()" invariant: at most one of Deliver /
// DeliverOnly succeeds in sending a result.
func (p *localPromise) take() (chan promiseResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.taken {
		return nil, false
	}
	p.taken = true
	return p.resultCh, true
}

// Deliver implements Object: the peer is fulfilling the promise with args.
func (p *localPromise) Deliver(_ *Session, args []syrup.Value, resolver Resolver) error {
	ch, ok := p.take()
	if !ok {
		_ = resolver.Break(syrup.Str(ErrAlreadyResolved.Error()))
		return ErrAlreadyResolved
	}
	ch <- promiseResult{args: args}
	return nil
}

// DeliverOnly implements Object: the peer is breaking the promise. The
// break reason is the leading argument, if present.
func (p *localPromise) DeliverOnly(_ *Session, args []syrup.Value) error {
	ch, ok := p.take()
	if !ok {
		return ErrAlreadyResolved
	}
	reason := "broken"
	if len(args) > 0 && args[0].Kind == syrup.KindString {
		reason = args[0].Str
	}
	ch <- promiseResult{err: &DeliverError{Reason: reason}}
	return nil
}

// Exported implements Object with a no-op; localPromise does not need to
// remember its own position.
func (p *localPromise) Exported([]byte, uint64) {}
