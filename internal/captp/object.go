package captp

import (
	"context"

	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// Object is the capability interface every exported object implements
// (spec §9 "Dynamic dispatch"): two entry points, matching the two
// deliver operations on the wire. No reflection is involved — dispatch is
// by ordinary Go interface method call once the dispatcher has resolved a
// position to an Object.
type Object interface {
	// DeliverOnly handles an incoming op:deliver-only addressed to this
	// object. There is no resolver to report failure to; implementations
	// should return an error only for logging purposes (spec §4.5: "if
	// the handler errors, log but keep the session alive").
	DeliverOnly(session *Session, args []syrup.Value) error

	// Deliver handles an incoming op:deliver addressed to this object.
	// The resolver is how the object reports its result back to the
	// peer; resolver may be a no-op Resolver if the peer did not ask for
	// one.
	Deliver(session *Session, args []syrup.Value, resolver Resolver) error

	// Exported is called once, during the two-phase export described in
	// spec §4.5, after a position has been reserved for this object but
	// before it is reachable from dispatch. Implementations that want to
	// remember where they live (e.g. to unexport themselves later) should
	// record remoteVkey/position here.
	Exported(remoteVkey []byte, position uint64)
}

// Resolver answers a peer's op:deliver by Fulfill or by Break. The Resolver
// itself keeps no state: each call sends a reply to the peer. The one-shot
// slot lives on the receiving side, whose localPromise accepts the first
// reply and fails later ones with ErrAlreadyResolved.
type Resolver interface {
	// Fulfill resolves the promise successfully with the given reply
	// arguments (the args of the peer's op:deliver to this resolver, or a
	// single desc:export for FetchResolver).
	Fulfill(args []syrup.Value) error

	// Break resolves the promise with a failure reason.
	Break(reason syrup.Value) error
}

// BaseObject is an embeddable no-op Object: DeliverOnly and Deliver both
// return ErrUnrecognizedBootstrapVerb, Exported does nothing. Application
// objects embed it and override the methods they actually implement.
type BaseObject struct{}

// DeliverOnly implements Object with an unrecognized-verb error.
func (BaseObject) DeliverOnly(*Session, []syrup.Value) error {
	return ErrUnrecognizedBootstrapVerb
}

// Deliver implements Object with an unrecognized-verb error, breaking the
// resolver so the caller does not hang.
func (BaseObject) Deliver(_ *Session, _ []syrup.Value, resolver Resolver) error {
	_ = resolver.Break(syrup.Str(ErrUnrecognizedBootstrapVerb.Error()))
	return ErrUnrecognizedBootstrapVerb
}

// Exported implements Object with a no-op.
func (BaseObject) Exported([]byte, uint64) {}

// RemoteObject is the local handle to an object the peer has exported to
// us: either a settled object or an unsettled promise at Position in our
// import set, on the named Session.
type RemoteObject struct {
	Session  *Session
	Position uint64
	Promise  bool
}

// DeliverOnly sends an op:deliver-only addressed to r to the peer.
func (r RemoteObject) DeliverOnly(args []syrup.Value) error {
	return r.Session.sendDeliverOnly(r.Position, args)
}

// DeliverAnd sends an op:deliver addressed to r and blocks until the peer
// fulfills or breaks the accompanying resolver or ctx is done (spec §4.7,
// §5). An abort while it waits does not end the wait.
func (r RemoteObject) DeliverAnd(ctx context.Context, args []syrup.Value) ([]syrup.Value, error) {
	return r.Session.deliverAnd(ctx, r.Position, args)
}

// desc returns the DescImport the peer must have used (or will use) to
// name this remote object, for embedding as a resolve_me_desc/to_desc
// field in outbound messages that reference it.
func (r RemoteObject) desc() DescImport {
	kind := DescImportKindObject
	if r.Promise {
		kind = DescImportKindPromise
	}
	return DescImport{Kind: kind, Position: r.Position}
}
