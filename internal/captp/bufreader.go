package captp

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// syrupReader adapts a bufio.Reader to the fill_buf/consume contract
// described in spec §4.6: decoding stays strictly buffered-pull, since the
// wire codec is self-delimiting and needs no extra length framing.
type syrupReader struct {
	br *bufio.Reader
}

func newSyrupReader(br *bufio.Reader) *syrupReader {
	return &syrupReader{br: br}
}

// tryConsumeSyrup attempts a single tokenize over the reader's current
// buffered slice. On success it consumes exactly the tokenizer's reported
// byte count and returns an owned token tree. On *syrup.IncompleteError it
// leaves the buffer untouched and returns that error so the caller can
// read more bytes and retry.
func (r *syrupReader) tryConsumeSyrup() (syrup.Value, error) {
	buf, err := r.br.Peek(r.br.Buffered())
	if err != nil && len(buf) == 0 {
		return syrup.Value{}, err
	}
	if len(buf) == 0 {
		// Nothing buffered yet; force at least one byte in before trying,
		// so Incomplete(0) from an empty buffer doesn't spin.
		if _, err := r.br.Peek(1); err != nil {
			return syrup.Value{}, err
		}
		buf, _ = r.br.Peek(r.br.Buffered())
	}

	v, rest, terr := syrup.Tokenize(buf)
	if terr != nil {
		return syrup.Value{}, terr
	}

	consumed := len(buf) - len(rest)
	if _, err := r.br.Discard(consumed); err != nil {
		return syrup.Value{}, fmt.Errorf("captp: discard consumed bytes: %w", err)
	}
	return v, nil
}

// consumeSyrup loops over tryConsumeSyrup, growing the buffered window by
// reading at least one more byte from the underlying stream on every
// *syrup.IncompleteError, and returning on any other result.
func (r *syrupReader) consumeSyrup() (syrup.Value, error) {
	for {
		v, err := r.tryConsumeSyrup()
		if err == nil {
			return v, nil
		}
		if !isIncomplete(err) {
			return syrup.Value{}, err
		}
		if err := r.fillMore(); err != nil {
			return syrup.Value{}, err
		}
	}
}

// fillMore grows the reader's buffered region by at least one byte beyond
// what is currently buffered, blocking on the underlying stream as needed.
func (r *syrupReader) fillMore() error {
	before := r.br.Buffered()
	want := before + 1
	if want > r.br.Size() {
		want = r.br.Size()
	}

	_, err := r.br.Peek(want)
	if r.br.Buffered() > before {
		// Progress was made even if Peek also returned an error (e.g. the
		// underlying stream hit EOF right after yielding a few bytes).
		return nil
	}
	if err != nil {
		return err
	}
	return nil
}

func isIncomplete(err error) bool {
	return errors.Is(err, syrup.ErrIncomplete)
}
