package captp

import (
	"fmt"

	"github.com/dantte-lp/gocaptp/internal/locator"
	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// Version is the captp_version string this implementation advertises and
// requires of its peer during the op:start-session handshake.
const Version = "1.0"

// Record labels for the message schema described in spec §3.
const (
	labelPublicKey         = "public-key"
	labelSigVal            = "sig-val"
	labelDescExport        = "desc:export"
	labelDescImportObject  = "desc:import-object"
	labelDescImportPromise = "desc:import-promise"
	labelOpStartSession    = "op:start-session"
	labelOpDeliverOnly     = "op:deliver-only"
	labelOpDeliver         = "op:deliver"
	labelOpAbort           = "op:abort"
)

// PublicKey is an Ed25519 verifying key as carried on the wire.
type PublicKey struct {
	Bytes []byte
}

// ToValue encodes k as a syrup record labeled "public-key".
func (k PublicKey) ToValue() syrup.Value {
	return syrup.Record(syrup.Sym(labelPublicKey), syrup.Bytes(k.Bytes))
}

// PublicKeyFromValue decodes a PublicKey previously produced by ToValue.
func PublicKeyFromValue(v syrup.Value) (PublicKey, error) {
	if !v.IsRecordLabeled(labelPublicKey) {
		return PublicKey{}, newFieldErr("public-key", "wrong record label %q", v.RecordLabel())
	}
	if len(v.Fields) != 1 || v.Fields[0].Kind != syrup.KindBytes {
		return PublicKey{}, newFieldErr("public-key", "expected a single bytes field")
	}
	return PublicKey{Bytes: v.Fields[0].Bytes}, nil
}

// Signature is an EdDSA signature as carried on the wire.
type Signature struct {
	Bytes []byte
}

// ToValue encodes s as a syrup record labeled "sig-val".
func (s Signature) ToValue() syrup.Value {
	return syrup.Record(syrup.Sym(labelSigVal), syrup.Bytes(s.Bytes))
}

// SignatureFromValue decodes a Signature previously produced by ToValue.
func SignatureFromValue(v syrup.Value) (Signature, error) {
	if !v.IsRecordLabeled(labelSigVal) {
		return Signature{}, newFieldErr("sig-val", "wrong record label %q", v.RecordLabel())
	}
	if len(v.Fields) != 1 || v.Fields[0].Kind != syrup.KindBytes {
		return Signature{}, newFieldErr("sig-val", "expected a single bytes field")
	}
	return Signature{Bytes: v.Fields[0].Bytes}, nil
}

// DescExport references an object the peer has exported to us (or that we
// want the peer to reach), named by its position in the exporter's table.
type DescExport struct {
	Position uint64
}

// ToValue encodes d as a syrup record labeled "desc:export".
func (d DescExport) ToValue() syrup.Value {
	return syrup.Record(syrup.Sym(labelDescExport), syrup.Uint64(d.Position))
}

// DescExportFromValue decodes a DescExport previously produced by ToValue.
func DescExportFromValue(v syrup.Value) (DescExport, error) {
	if !v.IsRecordLabeled(labelDescExport) {
		return DescExport{}, newFieldErr("desc:export", "wrong record label %q", v.RecordLabel())
	}
	if len(v.Fields) != 1 {
		return DescExport{}, newFieldErr("desc:export", "expected a single position field")
	}
	pos, ok := v.Fields[0].AsUint64()
	if !ok {
		return DescExport{}, newFieldErr("desc:export", "position is not a non-negative integer")
	}
	return DescExport{Position: pos}, nil
}

// DescImportKind discriminates the two DescImport variants.
type DescImportKind int

const (
	// DescImportKindObject names a settled object at Position.
	DescImportKindObject DescImportKind = iota
	// DescImportKindPromise names an unsettled promise at Position.
	DescImportKindPromise
)

// DescImport is the tagged union of desc:import-object and
// desc:import-promise: a reference the peer gives us into our own export
// table, used as resolve_me_desc on an incoming op:deliver. The default
// zero value names the bootstrap object (position 0) as a settled object.
type DescImport struct {
	Kind     DescImportKind
	Position uint64
}

// ToValue encodes d as the appropriately labeled syrup record.
func (d DescImport) ToValue() syrup.Value {
	label := labelDescImportObject
	if d.Kind == DescImportKindPromise {
		label = labelDescImportPromise
	}
	return syrup.Record(syrup.Sym(label), syrup.Uint64(d.Position))
}

// DescImportFromValue decodes a DescImport previously produced by ToValue.
// Unrecognized labels are rejected rather than silently accepted.
func DescImportFromValue(v syrup.Value) (DescImport, error) {
	var kind DescImportKind
	switch {
	case v.IsRecordLabeled(labelDescImportObject):
		kind = DescImportKindObject
	case v.IsRecordLabeled(labelDescImportPromise):
		kind = DescImportKindPromise
	default:
		return DescImport{}, newFieldErr("desc:import", "unrecognized record label %q", v.RecordLabel())
	}
	if len(v.Fields) != 1 {
		return DescImport{}, newFieldErr("desc:import", "expected a single position field")
	}
	pos, ok := v.Fields[0].AsUint64()
	if !ok {
		return DescImport{}, newFieldErr("desc:import", "position is not a non-negative integer")
	}
	return DescImport{Kind: kind, Position: pos}, nil
}

// Operation is the sum type of the top-level records exchanged on the
// wire: op:start-session, op:deliver-only, op:deliver, and op:abort.
// Implementers dispatch on the record label (operationLabel), never on
// positional field order.
type Operation interface {
	operationLabel() string
	ToValue() syrup.Value
}

// OpStartSession is the single handshake message exchanged by both sides
// on session establishment.
type OpStartSession struct {
	CaptpVersion          string
	SessionPubkey         PublicKey
	AcceptableLocation    locator.NodeLocator
	AcceptableLocationSig Signature
}

func (OpStartSession) operationLabel() string { return labelOpStartSession }

// ToValue encodes the handshake message as an op:start-session record.
func (m OpStartSession) ToValue() syrup.Value {
	return syrup.Record(
		syrup.Sym(labelOpStartSession),
		syrup.Str(m.CaptpVersion),
		m.SessionPubkey.ToValue(),
		m.AcceptableLocation.ToValue(),
		m.AcceptableLocationSig.ToValue(),
	)
}

// OpDeliverOnly is a one-shot invocation with no resolver: to_desc, args.
type OpDeliverOnly struct {
	ToDesc uint64
	Args   []syrup.Value
}

func (OpDeliverOnly) operationLabel() string { return labelOpDeliverOnly }

// ToValue encodes the message as an op:deliver-only record.
func (m OpDeliverOnly) ToValue() syrup.Value {
	return syrup.Record(
		syrup.Sym(labelOpDeliverOnly),
		syrup.Uint64(m.ToDesc),
		syrup.Seq(m.Args...),
	)
}

// OpDeliver is an invocation that carries a resolver the peer can use to
// reply. AnswerPos is reserved (always nil in messages emitted by this
// implementation; spec §3, §9 open questions on op:gc-answer).
type OpDeliver struct {
	ToDesc        uint64
	Args          []syrup.Value
	AnswerPos     *uint64
	ResolveMeDesc DescImport
}

func (OpDeliver) operationLabel() string { return labelOpDeliver }

// ToValue encodes the message as an op:deliver record.
func (m OpDeliver) ToValue() syrup.Value {
	answerPos := syrup.Bool(false)
	if m.AnswerPos != nil {
		answerPos = syrup.Uint64(*m.AnswerPos)
	}
	return syrup.Record(
		syrup.Sym(labelOpDeliver),
		syrup.Uint64(m.ToDesc),
		syrup.Seq(m.Args...),
		answerPos,
		m.ResolveMeDesc.ToValue(),
	)
}

// OpAbort terminates the session, carrying a human-readable reason.
type OpAbort struct {
	Reason string
}

func (OpAbort) operationLabel() string { return labelOpAbort }

// ToValue encodes the message as an op:abort record.
func (m OpAbort) ToValue() syrup.Value {
	return syrup.Record(syrup.Sym(labelOpAbort), syrup.Str(m.Reason))
}

// EncodeOperation serializes op to its wire bytes.
func EncodeOperation(op Operation) []byte {
	return syrup.Encode(op.ToValue())
}

// DecodeOperation classifies v (the result of a prior syrup.Tokenize call)
// by its record label and decodes it into the matching Operation variant.
// Per spec §9 ("enum-over-the-wire"), dispatch happens on the leading
// symbol only — never on positional arity alone.
func DecodeOperation(v syrup.Value) (Operation, error) {
	if v.Kind != syrup.KindRecord {
		return nil, newFieldErr("operation", "expected a record, got %s", v.Kind)
	}

	switch v.RecordLabel() {
	case labelOpStartSession:
		m, err := decodeOpStartSession(v)
		if err != nil {
			return nil, err
		}
		return m, nil
	case labelOpDeliverOnly:
		m, err := decodeOpDeliverOnly(v)
		if err != nil {
			return nil, err
		}
		return m, nil
	case labelOpDeliver:
		m, err := decodeOpDeliver(v)
		if err != nil {
			return nil, err
		}
		return m, nil
	case labelOpAbort:
		m, err := decodeOpAbort(v)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, newFieldErr("operation", "unrecognized operation label %q", v.RecordLabel())
	}
}

func decodeOpStartSession(v syrup.Value) (OpStartSession, error) {
	if len(v.Fields) != 4 {
		return OpStartSession{}, newFieldErr(labelOpStartSession, "expected 4 fields, got %d", len(v.Fields))
	}
	if v.Fields[0].Kind != syrup.KindString {
		return OpStartSession{}, newFieldErr(labelOpStartSession, "captp_version is not a string")
	}
	pubkey, err := PublicKeyFromValue(v.Fields[1])
	if err != nil {
		return OpStartSession{}, fmt.Errorf("%s: session_pubkey: %w", labelOpStartSession, err)
	}
	loc, err := locator.NodeLocatorFromValue(v.Fields[2])
	if err != nil {
		return OpStartSession{}, fmt.Errorf("%s: acceptable_location: %w", labelOpStartSession, err)
	}
	sig, err := SignatureFromValue(v.Fields[3])
	if err != nil {
		return OpStartSession{}, fmt.Errorf("%s: acceptable_location_sig: %w", labelOpStartSession, err)
	}
	return OpStartSession{
		CaptpVersion:          v.Fields[0].Str,
		SessionPubkey:         pubkey,
		AcceptableLocation:    loc,
		AcceptableLocationSig: sig,
	}, nil
}

func decodeOpDeliverOnly(v syrup.Value) (OpDeliverOnly, error) {
	if len(v.Fields) != 2 {
		return OpDeliverOnly{}, newFieldErr(labelOpDeliverOnly, "expected 2 fields, got %d", len(v.Fields))
	}
	toDesc, ok := v.Fields[0].AsUint64()
	if !ok {
		return OpDeliverOnly{}, newFieldErr(labelOpDeliverOnly, "to_desc is not a non-negative integer")
	}
	if v.Fields[1].Kind != syrup.KindSequence {
		return OpDeliverOnly{}, newFieldErr(labelOpDeliverOnly, "args is not a sequence")
	}
	return OpDeliverOnly{ToDesc: toDesc, Args: v.Fields[1].Fields}, nil
}

func decodeOpDeliver(v syrup.Value) (OpDeliver, error) {
	if len(v.Fields) != 4 {
		return OpDeliver{}, newFieldErr(labelOpDeliver, "expected 4 fields, got %d", len(v.Fields))
	}
	toDesc, ok := v.Fields[0].AsUint64()
	if !ok {
		return OpDeliver{}, newFieldErr(labelOpDeliver, "to_desc is not a non-negative integer")
	}
	if v.Fields[1].Kind != syrup.KindSequence {
		return OpDeliver{}, newFieldErr(labelOpDeliver, "args is not a sequence")
	}

	var answerPos *uint64
	if ap, ok := v.Fields[2].AsUint64(); ok {
		answerPos = &ap
	} else if v.Fields[2].Kind != syrup.KindBool {
		return OpDeliver{}, newFieldErr(labelOpDeliver, "answer_pos is neither an integer nor false")
	}

	resolveMe, err := DescImportFromValue(v.Fields[3])
	if err != nil {
		return OpDeliver{}, fmt.Errorf("%s: resolve_me_desc: %w", labelOpDeliver, err)
	}

	return OpDeliver{
		ToDesc:        toDesc,
		Args:          v.Fields[1].Fields,
		AnswerPos:     answerPos,
		ResolveMeDesc: resolveMe,
	}, nil
}

func decodeOpAbort(v syrup.Value) (OpAbort, error) {
	if len(v.Fields) != 1 || v.Fields[0].Kind != syrup.KindString {
		return OpAbort{}, newFieldErr(labelOpAbort, "expected a single string reason field")
	}
	return OpAbort{Reason: v.Fields[0].Str}, nil
}

func newFieldErr(context, format string, args ...any) error {
	return fmt.Errorf("captp: %s: %s", context, fmt.Sprintf(format, args...))
}
