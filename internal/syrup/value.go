// Package syrup implements the self-describing tag-length binary encoding
// used as the wire format for the CapTP protocol (the OCapN "Syrup"
// encoding). It provides a streaming tokenizer that decodes a byte slice
// into a token tree plus the unconsumed remainder, and an encoder that is
// its exact inverse.
package syrup

import "fmt"

// Kind discriminates the possible shapes of a Value.
type Kind int

// The token kinds defined by the wire format.
const (
	KindInt Kind = iota
	KindBool
	KindFloat
	KindSymbol
	KindString
	KindBytes
	KindRecord
	KindSequence
	KindMapping
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	case KindSymbol:
		return "symbol"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindRecord:
		return "record"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Pair is a single key/value entry of a Mapping.
type Pair struct {
	Key   Value
	Value Value
}

// Value is the universal token-tree representation described by the wire
// format: every message on the wire is a Value, and every Value round-trips
// through Encode/Tokenize.
//
// Only the fields relevant to Kind are populated; the zero Value is the
// integer 0.
type Value struct {
	Kind Kind

	Int    int64
	Bool   bool
	Float  float64
	Symbol []byte
	Str    string
	Bytes  []byte

	// Label is populated for KindRecord only.
	Label *Value
	// Fields holds record fields (KindRecord), sequence elements
	// (KindSequence), or set members (KindSet).
	Fields []Value
	// Pairs holds mapping entries (KindMapping).
	Pairs []Pair
}

// Int64 constructs an integer Value.
func Int64(v int64) Value { return Value{Kind: KindInt, Int: v} }

// Uint64 constructs an integer Value from an unsigned source. Positions and
// other protocol counters are u64 in spec terms but never exceed the range
// representable by int64 in practice, so they are stored as int64
// internally.
func Uint64(v uint64) Value { return Value{Kind: KindInt, Int: int64(v)} }

// Bool constructs a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// Float64 constructs a float Value.
func Float64(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// Sym constructs a symbol Value from a string.
func Sym(v string) Value { return Value{Kind: KindSymbol, Symbol: []byte(v)} }

// SymBytes constructs a symbol Value from raw bytes.
func SymBytes(v []byte) Value { return Value{Kind: KindSymbol, Symbol: v} }

// Str constructs a UTF-8 string Value.
func Str(v string) Value { return Value{Kind: KindString, Str: v} }

// Bytes constructs a byte-string Value.
func Bytes(v []byte) Value { return Value{Kind: KindBytes, Bytes: v} }

// Record constructs a record Value with the given label and fields.
func Record(label Value, fields ...Value) Value {
	l := label
	return Value{Kind: KindRecord, Label: &l, Fields: fields}
}

// Seq constructs a sequence Value.
func Seq(fields ...Value) Value { return Value{Kind: KindSequence, Fields: fields} }

// Set constructs a set Value.
func Set(fields ...Value) Value { return Value{Kind: KindSet, Fields: fields} }

// Map constructs a mapping Value.
func Map(pairs ...Pair) Value { return Value{Kind: KindMapping, Pairs: pairs} }

// AsUint64 returns v's integer value as a uint64. Returns ok=false if v is
// not an integer or is negative.
func (v Value) AsUint64() (uint64, bool) {
	if v.Kind != KindInt || v.Int < 0 {
		return 0, false
	}
	return uint64(v.Int), true
}

// IsRecordLabeled reports whether v is a record whose label is the symbol
// name.
func (v Value) IsRecordLabeled(name string) bool {
	return v.Kind == KindRecord && v.Label != nil &&
		v.Label.Kind == KindSymbol && string(v.Label.Symbol) == name
}

// RecordLabel returns the record's label symbol as a string, or "" if v is
// not a record with a symbol label.
func (v Value) RecordLabel() string {
	if v.Kind != KindRecord || v.Label == nil || v.Label.Kind != KindSymbol {
		return ""
	}
	return string(v.Label.Symbol)
}
