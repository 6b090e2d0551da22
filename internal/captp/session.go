package captp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dantte-lp/gocaptp/internal/locator"
	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// SessionOption customizes a Session at construction time.
type SessionOption func(*Session)

// WithLogger attaches a structured logger to the session. The default is
// slog.Default().
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithBootstrap installs the local Bootstrap object the session exports at
// position 0. The default is a freshly-constructed, empty Bootstrap.
func WithBootstrap(bootstrap *Bootstrap) SessionOption {
	return func(s *Session) { s.bootstrap = bootstrap }
}

// WithEventBuffer sets the capacity of the channel RecvEvent drains. The
// default is 64; events beyond capacity are dropped with a logged warning
// rather than blocking the read loop (spec §4.5 error-handling table).
func WithEventBuffer(n int) SessionOption {
	return func(s *Session) { s.events = make(chan Event, n) }
}

// Session is one established CapTP connection: a read half driven by Run,
// a write half serialized by a mutex, and the export/import bookkeeping
// described in spec §3 and §4.
type Session struct {
	conn   io.ReadWriteCloser
	reader *syrupReader

	writeMu sync.Mutex
	writer  io.Writer

	exports *exportTable
	imports *importSet

	bootstrap       *Bootstrap
	remoteBootstrap RemoteBootstrap

	// RemoteVKey identifies the peer's signing key, recorded at handshake
	// time and handed to each object's Exported hook.
	RemoteVKey []byte

	// peerLocation is the locator the peer advertised in its
	// op:start-session, recorded for diagnostics and metrics labeling.
	peerLocation locator.NodeLocator

	abortedLocally  atomic.Bool
	remoteAbortMu   sync.RWMutex
	remoteAbortText *string

	events chan Event

	logger *slog.Logger

	closeOnce sync.Once
}

// newSession wires together the plumbing shared by AndAccept and
// AndConnect once the handshake has produced conn and remoteVKey. br is the
// buffered reader the handshake itself read from, so any bytes it already
// pulled off conn past the op:start-session frame are not lost.
func newSession(conn io.ReadWriteCloser, br *bufio.Reader, remoteVKey []byte, peer locator.NodeLocator, opts ...SessionOption) *Session {
	s := &Session{
		conn:         conn,
		reader:       newSyrupReader(br),
		writer:       conn,
		exports:      newExportTable(),
		imports:      newImportSet(),
		events:       make(chan Event, 64),
		logger:       slog.Default(),
		RemoteVKey:   remoteVKey,
		peerLocation: peer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bootstrap == nil {
		s.bootstrap = NewBootstrap()
	}
	s.exports.finalize(bootstrapPosition, s.bootstrap)
	s.remoteBootstrap = newRemoteBootstrap(s)
	s.logger = s.logger.With(slog.String("component", "captp.session"))
	return s
}

// Peer returns the locator the remote side advertised during the
// handshake.
func (s *Session) Peer() locator.NodeLocator { return s.peerLocation }

// Designator returns the remote peer's designator, for diagnostics and
// metrics labeling.
func (s *Session) Designator() string { return s.peerLocation.Designator }

// Transport returns the remote peer's advertised transport name.
func (s *Session) Transport() string { return s.peerLocation.Transport }

// ExportTableSize returns the number of objects currently exported by this
// session.
func (s *Session) ExportTableSize() int { return len(s.exports.snapshot()) }

// ImportTableSize returns the number of positions in the peer's export
// table that the peer has handed to this session.
func (s *Session) ImportTableSize() int { return len(s.imports.snapshot()) }

// Bootstrap returns the local object this session exports at position 0.
func (s *Session) Bootstrap() *Bootstrap { return s.bootstrap }

// RemoteBootstrap returns the handle for the peer's bootstrap object.
func (s *Session) RemoteBootstrap() RemoteBootstrap { return s.remoteBootstrap }

// ExportObject reserves a position for obj, invokes its Exported hook, and
// installs it, returning the final position (spec §4.5 two-phase export).
func (s *Session) ExportObject(obj Object) uint64 {
	return s.exports.export(s.RemoteVKey, obj)
}

// UnexportObject removes obj's entry from the export table; the position is
// never reused for the lifetime of the session.
func (s *Session) UnexportObject(position uint64) {
	s.exports.unexport(position)
}

// Run drives the session's read loop until ctx is cancelled, the peer
// aborts, the connection errors, or the session is closed locally. It
// always closes the events channel on return.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.events)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-done:
		}
	}()

	for {
		v, err := s.reader.consumeSyrup()
		if err != nil {
			if s.abortedLocally.Load() {
				return &abortedError{local: true, reason: "closed locally"}
			}
			return fmt.Errorf("captp: read session frame: %w", err)
		}

		op, err := DecodeOperation(v)
		if err != nil {
			s.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}

		if err := s.dispatch(op); err != nil {
			if aborted, ok := err.(*abortedError); ok {
				return aborted
			}
			s.logger.Warn("dispatch error", slog.String("error", err.Error()))
		}
	}
}

// RecvEvent blocks until an event is available, ctx is cancelled, or the
// session's event stream has ended. Local deliveries to ordinary
// application objects never surface here (spec §4.5); the stream carries a
// FetchEvent for each fetch of an unregistered swiss number and an
// AbortEvent when the peer aborts. Once the stream has ended, RecvEvent
// returns an error matching ErrSessionAborted if the session was aborted
// by either side, and io.EOF otherwise.
func (s *Session) RecvEvent(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			if err := s.checkAborted(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) emitEvent(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event channel full, dropping event")
	}
}

// dispatch implements spec §4.5's per-operation routing.
func (s *Session) dispatch(op Operation) error {
	switch m := op.(type) {
	case OpAbort:
		s.recordRemoteAbort(m.Reason)
		s.emitEvent(AbortEvent{Local: false, Reason: m.Reason})
		return &abortedError{local: false, reason: m.Reason}

	case OpDeliverOnly:
		obj, ok := s.exports.lookup(m.ToDesc)
		if !ok {
			s.logger.Warn("deliver-only to unknown position", slog.Uint64("position", m.ToDesc))
			return nil
		}
		if err := obj.DeliverOnly(s, m.Args); err != nil {
			s.logger.Warn("deliver-only handler error",
				slog.Uint64("position", m.ToDesc), slog.String("error", err.Error()))
		}
		return nil

	case OpDeliver:
		obj, ok := s.exports.lookup(m.ToDesc)
		if !ok {
			s.logger.Warn("deliver to unknown position", slog.Uint64("position", m.ToDesc))
			resolver := newGenericResolver(s, m.ResolveMeDesc)
			_ = resolver.Break(syrup.Str(ErrUnknownTarget.Error()))
			return nil
		}
		resolver := s.resolverFor(m.ResolveMeDesc)
		if err := obj.Deliver(s, m.Args, resolver); err != nil {
			s.logger.Warn("deliver handler error",
				slog.Uint64("position", m.ToDesc), slog.String("error", err.Error()))
		}
		return nil

	case OpStartSession:
		return fmt.Errorf("captp: unexpected op:start-session after handshake")

	default:
		return fmt.Errorf("captp: unrecognized operation %T", op)
	}
}

// resolverFor wraps desc as a FetchResolver for every incoming deliver;
// handleFetch type-asserts this back out, so ordinary application objects
// only ever see the Resolver interface.
func (s *Session) resolverFor(desc DescImport) Resolver {
	return newFetchResolver(s, desc)
}

func (s *Session) recordRemoteAbort(reason string) {
	s.remoteAbortMu.Lock()
	if s.remoteAbortText == nil {
		s.remoteAbortText = &reason
	}
	s.remoteAbortMu.Unlock()
}

// RemoteAbortReason returns the reason the peer gave in op:abort, if the
// session was aborted remotely.
func (s *Session) RemoteAbortReason() (string, bool) {
	s.remoteAbortMu.RLock()
	defer s.remoteAbortMu.RUnlock()
	if s.remoteAbortText == nil {
		return "", false
	}
	return *s.remoteAbortText, true
}

// send serializes and writes op under the write mutex.
func (s *Session) send(op Operation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.writer.Write(EncodeOperation(op))
	if err != nil {
		return fmt.Errorf("captp: write session frame: %w", err)
	}
	return nil
}

// checkAborted returns the abortedError send/deliver should fail fast with,
// if the session has been aborted either locally or by the peer (spec §3,
// §7: "after abort from either side, every send returns SessionAborted*").
// nil means the session is still live.
func (s *Session) checkAborted() error {
	if s.abortedLocally.Load() {
		return &abortedError{local: true, reason: "closed locally"}
	}
	if reason, ok := s.RemoteAbortReason(); ok {
		return &abortedError{local: false, reason: reason}
	}
	return nil
}

// sendDeliverOnly sends an op:deliver-only addressed to position.
func (s *Session) sendDeliverOnly(position uint64, args []syrup.Value) error {
	if err := s.checkAborted(); err != nil {
		return err
	}
	return s.send(OpDeliverOnly{ToDesc: position, Args: args})
}

// deliverAnd sends an op:deliver addressed to position, reserving a local
// promise slot for the reply, and blocks until the peer resolves it or ctx
// is done (spec §4.7, §5). An abort that happens while it waits does not
// end the wait; only a reply or ctx does.
func (s *Session) deliverAnd(ctx context.Context, position uint64, args []syrup.Value) ([]syrup.Value, error) {
	if err := s.checkAborted(); err != nil {
		return nil, err
	}

	promise := newLocalPromise()
	promisePos := s.exports.export(s.RemoteVKey, promise)

	err := s.send(OpDeliver{
		ToDesc:        position,
		Args:          args,
		ResolveMeDesc: DescImport{Kind: DescImportKindPromise, Position: promisePos},
	})
	if err != nil {
		s.exports.unexport(promisePos)
		return nil, err
	}

	select {
	case result, ok := <-promise.resultCh:
		s.exports.unexport(promisePos)
		if !ok {
			return nil, &abortedError{local: false, reason: "session closed before reply"}
		}
		return result.args, result.err
	case <-ctx.Done():
		s.exports.unexport(promisePos)
		return nil, fmt.Errorf("captp: deliver await: %w", ctx.Err())
	}
}

// fulfillRemote sends the fulfill-shaped reply for desc: an op:deliver
// carrying args, addressed at the peer's reserved resolver position.
func (s *Session) fulfillRemote(desc DescImport, args []syrup.Value) error {
	return s.send(OpDeliver{
		ToDesc:        desc.Position,
		Args:          args,
		ResolveMeDesc: DescImport{Kind: DescImportKindObject, Position: bootstrapPosition},
	})
}

// breakRemote sends the break-shaped reply for desc: an op:deliver-only
// carrying reason as its sole argument.
func (s *Session) breakRemote(desc DescImport, reason syrup.Value) error {
	return s.send(OpDeliverOnly{ToDesc: desc.Position, Args: []syrup.Value{reason}})
}

// Abort sends op:abort to the peer with reason and tears the session down
// locally. Safe to call more than once; only the first call sends.
func (s *Session) Abort(reason string) error {
	var sendErr error
	s.closeOnce.Do(func() {
		s.abortedLocally.Store(true)
		sendErr = s.send(OpAbort{Reason: reason})
		_ = s.conn.Close()
	})
	return sendErr
}

// Close tears the session down locally without notifying the peer, for use
// when the connection is already known to be dead.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.abortedLocally.Store(true)
		err = s.conn.Close()
	})
	return err
}
