package locator_test

import (
	"reflect"
	"testing"

	"github.com/dantte-lp/gocaptp/internal/locator"
)

func TestNodeLocatorURIRoundTrip(t *testing.T) {
	t.Parallel()

	n := locator.NewNodeLocator("198.51.100.2", "tcp").WithHint("port", "9923")

	uri := n.String()
	got, err := locator.ParseNodeLocator(uri)
	if err != nil {
		t.Fatalf("ParseNodeLocator(%q): %v", uri, err)
	}

	if got.Designator != n.Designator || got.Transport != n.Transport {
		t.Fatalf("got %+v, want %+v", got, n)
	}
	if got.Hints["port"] != "9923" {
		t.Fatalf("expected port hint 9923, got %q", got.Hints["port"])
	}
}

func TestNodeLocatorURIWithExtraHints(t *testing.T) {
	t.Parallel()

	n := locator.NewNodeLocator("onion-host", "onion").
		WithHint("port", "1234").
		WithHint("userinfo", "abcd1234").
		WithHint("circuit", "3")

	uri := n.String()
	got, err := locator.ParseNodeLocator(uri)
	if err != nil {
		t.Fatalf("ParseNodeLocator(%q): %v", uri, err)
	}

	for _, key := range []string{"port", "userinfo", "circuit"} {
		if got.Hints[key] != n.Hints[key] {
			t.Fatalf("hint %q: got %q, want %q", key, got.Hints[key], n.Hints[key])
		}
	}
}

func TestParseNodeLocatorRejectsWrongScheme(t *testing.T) {
	t.Parallel()

	_, err := locator.ParseNodeLocator("https://example.tcp")
	if err == nil {
		t.Fatal("expected error for non-ocapn scheme")
	}
}

func TestParseNodeLocatorRequiresTransportSuffix(t *testing.T) {
	t.Parallel()

	_, err := locator.ParseNodeLocator("ocapn://justahost")
	if err == nil {
		t.Fatal("expected error for host without transport suffix")
	}
}

func TestNodeLocatorValueRoundTrip(t *testing.T) {
	t.Parallel()

	n := locator.NewNodeLocator("203.0.113.9", "tcp").WithHint("port", "1337")

	v := n.ToValue()
	got, err := locator.NodeLocatorFromValue(v)
	if err != nil {
		t.Fatalf("NodeLocatorFromValue: %v", err)
	}

	if !reflect.DeepEqual(got, n) {
		t.Fatalf("round trip mismatch:\n got: %+v\nwant: %+v", got, n)
	}
}

func TestSturdyRefLocatorURIRoundTrip(t *testing.T) {
	t.Parallel()

	node := locator.NewNodeLocator("198.51.100.2", "tcp").WithHint("port", "9923")
	ref := locator.NewSturdyRefLocator(node, []byte{0xde, 0xad, 0xbe, 0xef})

	uri := ref.String()
	got, err := locator.ParseSturdyRefLocator(uri)
	if err != nil {
		t.Fatalf("ParseSturdyRefLocator(%q): %v", uri, err)
	}

	if !reflect.DeepEqual(got.SwissNum, ref.SwissNum) {
		t.Fatalf("swiss num mismatch: got %x, want %x", got.SwissNum, ref.SwissNum)
	}
	if got.Node.Designator != node.Designator || got.Node.Transport != node.Transport {
		t.Fatalf("node mismatch: got %+v, want %+v", got.Node, node)
	}
}

func TestSturdyRefLocatorRejectsMissingPath(t *testing.T) {
	t.Parallel()

	_, err := locator.ParseSturdyRefLocator("ocapn://198.51.100.2.tcp:9923")
	if err == nil {
		t.Fatal("expected error for missing sturdyref path")
	}
}

func TestSturdyRefLocatorValueRoundTrip(t *testing.T) {
	t.Parallel()

	node := locator.NewNodeLocator("203.0.113.9", "tcp").WithHint("port", "1337")
	ref := locator.NewSturdyRefLocator(node, []byte("swiss-number"))

	v := ref.ToValue()
	got, err := locator.SturdyRefLocatorFromValue(v)
	if err != nil {
		t.Fatalf("SturdyRefLocatorFromValue: %v", err)
	}

	if !reflect.DeepEqual(got, ref) {
		t.Fatalf("round trip mismatch:\n got: %+v\nwant: %+v", got, ref)
	}
}
