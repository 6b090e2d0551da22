package captp

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"

	"github.com/dantte-lp/gocaptp/internal/locator"
	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// Builder assembles the handshake inputs shared by AndAccept and
// AndConnect: the session's own signing identity and the locator it
// advertises as reachable.
type Builder struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	location   locator.NodeLocator
	opts       []SessionOption
}

// NewBuilder generates a fresh Ed25519 signing identity advertising
// location as its acceptable_location. Every session the Builder
// produces, through AndConnect or AndAccept, signs with that same
// identity; the key is not regenerated per session.
func NewBuilder(location locator.NodeLocator) (*Builder, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("captp: generate session identity: %w", err)
	}
	return &Builder{privateKey: priv, publicKey: pub, location: location}, nil
}

// WithOptions appends SessionOptions applied to the Session this Builder
// produces.
func (b *Builder) WithOptions(opts ...SessionOption) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// PublicKey returns the builder's Ed25519 verifying key.
func (b *Builder) PublicKey() ed25519.PublicKey { return b.publicKey }

func (b *Builder) signLocation() Signature {
	sig := ed25519.Sign(b.privateKey, canonicalLocationBytes(b.location))
	return Signature{Bytes: sig}
}

func canonicalLocationBytes(loc locator.NodeLocator) []byte {
	return syrup.Encode(loc.ToValue())
}

func (b *Builder) startSessionMsg() OpStartSession {
	return OpStartSession{
		CaptpVersion:          Version,
		SessionPubkey:         PublicKey{Bytes: b.publicKey},
		AcceptableLocation:    b.location,
		AcceptableLocationSig: b.signLocation(),
	}
}

// AndConnect performs the initiating side of the handshake over conn: send
// our op:start-session, read the peer's, verify it, and construct a
// Session (spec §4.4).
func (b *Builder) AndConnect(conn io.ReadWriteCloser, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := conn.Write(EncodeOperation(b.startSessionMsg())); err != nil {
		return nil, fmt.Errorf("captp: send op:start-session: %w", err)
	}

	br := bufio.NewReader(conn)
	peer, err := b.readStartSession(br)
	if err != nil {
		return nil, err
	}
	if err := verifyStartSession(peer); err != nil {
		return nil, err
	}

	logger.Info("handshake complete", slog.String("role", "connect"),
		slog.String("peer_location", peer.AcceptableLocation.String()))

	opts := append([]SessionOption{WithLogger(logger)}, b.opts...)
	return newSession(conn, br, peer.SessionPubkey.Bytes, peer.AcceptableLocation, opts...), nil
}

// AndAccept performs the responding side of the handshake over conn: read
// the peer's op:start-session, verify it, send ours, and construct a
// Session (spec §4.4).
func (b *Builder) AndAccept(conn io.ReadWriteCloser, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	br := bufio.NewReader(conn)
	peer, err := b.readStartSession(br)
	if err != nil {
		return nil, err
	}
	if err := verifyStartSession(peer); err != nil {
		return nil, err
	}

	if _, err := conn.Write(EncodeOperation(b.startSessionMsg())); err != nil {
		return nil, fmt.Errorf("captp: send op:start-session: %w", err)
	}

	logger.Info("handshake complete", slog.String("role", "accept"),
		slog.String("peer_location", peer.AcceptableLocation.String()))

	opts := append([]SessionOption{WithLogger(logger)}, b.opts...)
	return newSession(conn, br, peer.SessionPubkey.Bytes, peer.AcceptableLocation, opts...), nil
}

func (b *Builder) readStartSession(br *bufio.Reader) (OpStartSession, error) {
	reader := newSyrupReader(br)
	v, err := reader.consumeSyrup()
	if err != nil {
		return OpStartSession{}, fmt.Errorf("captp: read op:start-session: %w", err)
	}
	op, err := DecodeOperation(v)
	if err != nil {
		return OpStartSession{}, fmt.Errorf("captp: decode op:start-session: %w", err)
	}
	m, ok := op.(OpStartSession)
	if !ok {
		return OpStartSession{}, fmt.Errorf("captp: expected op:start-session, got %T", op)
	}
	return m, nil
}

func verifyStartSession(m OpStartSession) error {
	if m.CaptpVersion != Version {
		return fmt.Errorf("%w: peer advertised %q, expected %q", ErrVersionMismatch, m.CaptpVersion, Version)
	}
	if len(m.SessionPubkey.Bytes) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: session_pubkey has length %d, expected %d",
			ErrSignatureInvalid, len(m.SessionPubkey.Bytes), ed25519.PublicKeySize)
	}
	message := canonicalLocationBytes(m.AcceptableLocation)
	if !ed25519.Verify(ed25519.PublicKey(m.SessionPubkey.Bytes), message, m.AcceptableLocationSig.Bytes) {
		return ErrSignatureInvalid
	}
	return nil
}
