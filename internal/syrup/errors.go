package syrup

import (
	"errors"
	"fmt"
)

// ErrIncomplete is returned by Tokenize when buf does not yet contain a
// complete token. Needed, when nonzero, is the number of additional bytes
// known to be required before another Tokenize attempt can succeed; zero
// means the tokenizer cannot yet estimate how many more bytes are needed
// (e.g. it is still reading a length prefix).
var ErrIncomplete = errors.New("syrup: incomplete token")

// IncompleteError carries the Needed hint alongside ErrIncomplete so callers
// can both match with errors.Is(err, ErrIncomplete) and recover the hint.
type IncompleteError struct {
	Needed int
}

func (e *IncompleteError) Error() string {
	if e.Needed > 0 {
		return fmt.Sprintf("syrup: incomplete token, need %d more byte(s)", e.Needed)
	}
	return "syrup: incomplete token"
}

func (e *IncompleteError) Unwrap() error { return ErrIncomplete }

// LexError is a terminal (non-incomplete) malformation of the byte stream:
// an unrecognized tag byte, a malformed length prefix, or similar.
type LexError struct {
	Offset int
	Reason string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("syrup: lex error at offset %d: %s", e.Offset, e.Reason)
}

// DecodeError is returned when a Value was tokenized successfully but does
// not match the schema a typed decoder expected: wrong record label, wrong
// arity, or a field of the wrong kind.
type DecodeError struct {
	Context string
	Reason  string
}

func (e *DecodeError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("syrup: decode error: %s", e.Reason)
	}
	return fmt.Sprintf("syrup: decode error in %s: %s", e.Context, e.Reason)
}

func newDecodeErr(context, format string, args ...any) error {
	return &DecodeError{Context: context, Reason: fmt.Sprintf(format, args...)}
}
