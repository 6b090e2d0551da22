package captp_test

import (
	"reflect"
	"testing"

	"github.com/dantte-lp/gocaptp/internal/captp"
	"github.com/dantte-lp/gocaptp/internal/locator"
	"github.com/dantte-lp/gocaptp/internal/syrup"
)

func TestOperationRoundTrip(t *testing.T) {
	t.Parallel()

	loc := locator.NewNodeLocator("198.51.100.2", "tcp").WithHint("port", "2222")
	answerPos := uint64(7)

	tests := []struct {
		name string
		op   captp.Operation
	}{
		{
			name: "start-session",
			op: captp.OpStartSession{
				CaptpVersion:          captp.Version,
				SessionPubkey:         captp.PublicKey{Bytes: []byte("0123456789abcdef0123456789abcdef")},
				AcceptableLocation:    loc,
				AcceptableLocationSig: captp.Signature{Bytes: []byte("signature-bytes")},
			},
		},
		{
			name: "deliver-only",
			op: captp.OpDeliverOnly{
				ToDesc: 3,
				Args:   []syrup.Value{syrup.Sym("fetch"), syrup.Bytes([]byte("swiss"))},
			},
		},
		{
			name: "deliver with answer_pos",
			op: captp.OpDeliver{
				ToDesc:        0,
				Args:          []syrup.Value{syrup.Sym("fetch"), syrup.Bytes([]byte("swiss"))},
				AnswerPos:     &answerPos,
				ResolveMeDesc: captp.DescImport{Kind: captp.DescImportKindPromise, Position: 9},
			},
		},
		{
			name: "deliver without answer_pos",
			op: captp.OpDeliver{
				ToDesc:        0,
				Args:          nil,
				ResolveMeDesc: captp.DescImport{Kind: captp.DescImportKindObject, Position: 0},
			},
		},
		{
			name: "abort",
			op:   captp.OpAbort{Reason: "peer misbehaved"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wire := captp.EncodeOperation(tt.op)
			v, rest, err := syrup.Tokenize(wire)
			if err != nil {
				t.Fatalf("tokenize: %v", err)
			}
			if len(rest) != 0 {
				t.Fatalf("unexpected remainder: %d bytes", len(rest))
			}

			decoded, err := captp.DecodeOperation(v)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.op) {
				t.Fatalf("round trip mismatch:\n got: %#v\nwant: %#v", decoded, tt.op)
			}
		})
	}
}

func TestDecodeOperationRejectsUnrecognizedLabel(t *testing.T) {
	t.Parallel()

	v := syrup.Record(syrup.Sym("op:something-else"), syrup.Uint64(1))
	if _, err := captp.DecodeOperation(v); err == nil {
		t.Fatal("expected an error for an unrecognized operation label")
	}
}

func TestDescImportRoundTrip(t *testing.T) {
	t.Parallel()

	for _, kind := range []captp.DescImportKind{captp.DescImportKindObject, captp.DescImportKindPromise} {
		d := captp.DescImport{Kind: kind, Position: 42}
		v := d.ToValue()
		decoded, err := captp.DescImportFromValue(v)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded != d {
			t.Fatalf("got %#v, want %#v", decoded, d)
		}
	}
}

func TestDescImportFromValueRejectsWrongLabel(t *testing.T) {
	t.Parallel()

	v := syrup.Record(syrup.Sym("desc:export"), syrup.Uint64(1))
	if _, err := captp.DescImportFromValue(v); err == nil {
		t.Fatal("expected an error for a desc:export value passed as desc:import")
	}
}
