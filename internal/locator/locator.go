// Package locator implements OCapN node and sturdyref locators: the
// addressing scheme used to name a CapTP node (and, for a sturdyref, an
// object within that node) independent of any particular netlayer.
//
// A locator round-trips three ways: as a syrup.Value record (the form
// carried inside handoff and signed-envelope messages), as an
// "ocapn://" URI (the form a human or a config file writes down), and as
// the Go struct used everywhere else in this module.
package locator

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dantte-lp/gocaptp/internal/syrup"
)

// Errors returned while parsing a locator from a URI or a syrup.Value.
var (
	ErrUnrecognizedScheme  = errors.New("locator: unrecognized URI scheme, expected \"ocapn\"")
	ErrMissingHost         = errors.New("locator: URI has no host component")
	ErrMissingTransport    = errors.New("locator: host has no \".<transport>\" suffix")
	ErrMissingSwissPrefix  = errors.New("locator: sturdyref path does not start with \"/s/\"")
	ErrMissingSwissNum     = errors.New("locator: sturdyref path has an empty swiss number")
	ErrNotRecord           = errors.New("locator: expected a syrup record")
	ErrWrongLabel          = errors.New("locator: record has the wrong label")
	ErrWrongArity          = errors.New("locator: record has the wrong number of fields")
	ErrFieldKind           = errors.New("locator: record field has the wrong kind")
)

// nodeLocatorLabel is the record label used to encode a NodeLocator on the
// wire (syrup symbol "ocapn-node", per the draft Locators specification).
const nodeLocatorLabel = "ocapn-node"

// sturdyRefLocatorLabel is the record label used to encode a
// SturdyRefLocator on the wire.
const sturdyRefLocatorLabel = "ocapn-sturdyref"

// NodeLocator identifies a single CapTP node: enough information to pick a
// netlayer and have that netlayer establish a bidirectional channel to the
// node. Designator and Transport together form the URI host as
// "<designator>.<transport>"; Hints carries any remaining connection
// information (e.g. "port", "userinfo").
type NodeLocator struct {
	Designator string
	Transport  string
	Hints      map[string]string
}

// NewNodeLocator constructs a NodeLocator with no hints.
func NewNodeLocator(designator, transport string) NodeLocator {
	return NodeLocator{Designator: designator, Transport: transport}
}

// Hint returns the named hint value and whether it was present.
func (n NodeLocator) Hint(key string) (string, bool) {
	v, ok := n.Hints[key]
	return v, ok
}

// WithHint returns a copy of n with key set to value.
func (n NodeLocator) WithHint(key, value string) NodeLocator {
	hints := make(map[string]string, len(n.Hints)+1)
	for k, v := range n.Hints {
		hints[k] = v
	}
	hints[key] = value
	n.Hints = hints
	return n
}

// String renders n as an "ocapn://" URI.
func (n NodeLocator) String() string {
	u, err := n.buildURI("")
	if err != nil {
		return fmt.Sprintf("<invalid node locator: %v>", err)
	}
	return u.String()
}

// ParseNodeLocator parses an "ocapn://<designator>.<transport>[:port]/"
// URI into a NodeLocator, recovering "port" and "userinfo" hints from the
// authority component and any remaining hints from the query string.
func ParseNodeLocator(s string) (NodeLocator, error) {
	u, err := url.Parse(s)
	if err != nil {
		return NodeLocator{}, fmt.Errorf("parse locator uri: %w", err)
	}
	return nodeLocatorFromURL(u)
}

func nodeLocatorFromURL(u *url.URL) (NodeLocator, error) {
	if u.Scheme != "" && !strings.EqualFold(u.Scheme, "ocapn") {
		return NodeLocator{}, fmt.Errorf("%w: %q", ErrUnrecognizedScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return NodeLocator{}, ErrMissingHost
	}

	designator, transport, ok := strings.Cut(host, ".")
	if !ok {
		return NodeLocator{}, ErrMissingTransport
	}
	// The designator itself may contain dots (e.g. an IPv4 address or a DNS
	// name), so the transport is whatever follows the LAST dot.
	if idx := strings.LastIndex(host, "."); idx >= 0 {
		designator, transport = host[:idx], host[idx+1:]
	}

	hints := make(map[string]string)
	if ui := u.User; ui != nil {
		hints["userinfo"] = ui.String()
	}
	if port := u.Port(); port != "" {
		hints["port"] = port
	}
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			hints[k] = vs[0]
		}
	}

	return NodeLocator{
		Designator: designator,
		Transport:  transport,
		Hints:      hints,
	}, nil
}

// buildURI renders n (and, via path, any appended sturdyref component) as a
// url.URL.
func (n NodeLocator) buildURI(path string) (*url.URL, error) {
	host := n.Designator + "." + n.Transport
	if port, ok := n.Hints["port"]; ok {
		host += ":" + port
	}

	u := &url.URL{
		Scheme: "ocapn",
		Host:   host,
		Path:   path,
	}
	if userinfo, ok := n.Hints["userinfo"]; ok {
		u.User = url.User(userinfo)
	}

	query := url.Values{}
	for k, v := range n.Hints {
		if k == "port" || k == "userinfo" {
			continue
		}
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()

	return u, nil
}

// ToValue encodes n as a syrup record: <ocapn-node designator transport
// {hint-key hint-value ...}>.
func (n NodeLocator) ToValue() syrup.Value {
	pairs := make([]syrup.Pair, 0, len(n.Hints))
	for k, v := range n.Hints {
		pairs = append(pairs, syrup.Pair{Key: syrup.Sym(k), Value: syrup.Str(v)})
	}
	return syrup.Record(
		syrup.Sym(nodeLocatorLabel),
		syrup.Str(n.Designator),
		syrup.Sym(n.Transport),
		syrup.Map(pairs...),
	)
}

// NodeLocatorFromValue decodes a NodeLocator previously produced by ToValue.
func NodeLocatorFromValue(v syrup.Value) (NodeLocator, error) {
	if v.Kind != syrup.KindRecord {
		return NodeLocator{}, ErrNotRecord
	}
	if !v.IsRecordLabeled(nodeLocatorLabel) {
		return NodeLocator{}, fmt.Errorf("%w: got %q, want %q", ErrWrongLabel, v.RecordLabel(), nodeLocatorLabel)
	}
	if len(v.Fields) != 3 {
		return NodeLocator{}, fmt.Errorf("%w: got %d fields, want 3", ErrWrongArity, len(v.Fields))
	}

	designator := v.Fields[0]
	transport := v.Fields[1]
	hints := v.Fields[2]

	if designator.Kind != syrup.KindString {
		return NodeLocator{}, fmt.Errorf("%w: designator is not a string", ErrFieldKind)
	}
	if transport.Kind != syrup.KindSymbol {
		return NodeLocator{}, fmt.Errorf("%w: transport is not a symbol", ErrFieldKind)
	}
	if hints.Kind != syrup.KindMapping {
		return NodeLocator{}, fmt.Errorf("%w: hints is not a mapping", ErrFieldKind)
	}

	m := make(map[string]string, len(hints.Pairs))
	for _, p := range hints.Pairs {
		if p.Key.Kind != syrup.KindSymbol || p.Value.Kind != syrup.KindString {
			return NodeLocator{}, fmt.Errorf("%w: hint entry is not symbol->string", ErrFieldKind)
		}
		m[string(p.Key.Symbol)] = p.Value.Str
	}

	return NodeLocator{
		Designator: designator.Str,
		Transport:  string(transport.Symbol),
		Hints:      m,
	}, nil
}

// SturdyRefLocator names a single object hosted at a node: a NodeLocator
// plus an opaque swiss number used by the node's bootstrap object to look
// up the referenced capability.
type SturdyRefLocator struct {
	Node     NodeLocator
	SwissNum []byte
}

// NewSturdyRefLocator constructs a SturdyRefLocator.
func NewSturdyRefLocator(node NodeLocator, swissNum []byte) SturdyRefLocator {
	return SturdyRefLocator{Node: node, SwissNum: swissNum}
}

// String renders s as an "ocapn://.../s/<swiss-num>" URI. The swiss number
// is hex-encoded for safe inclusion in the path component.
func (s SturdyRefLocator) String() string {
	u, err := s.Node.buildURI("/s/" + hexEncode(s.SwissNum))
	if err != nil {
		return fmt.Sprintf("<invalid sturdyref locator: %v>", err)
	}
	return u.String()
}

// ParseSturdyRefLocator parses an "ocapn://.../s/<swiss-num>" URI.
func ParseSturdyRefLocator(s string) (SturdyRefLocator, error) {
	u, err := url.Parse(s)
	if err != nil {
		return SturdyRefLocator{}, fmt.Errorf("parse sturdyref uri: %w", err)
	}

	node, err := nodeLocatorFromURL(u)
	if err != nil {
		return SturdyRefLocator{}, err
	}

	const prefix = "/s/"
	if !strings.HasPrefix(u.Path, prefix) {
		return SturdyRefLocator{}, ErrMissingSwissPrefix
	}
	hex := strings.TrimPrefix(u.Path, prefix)
	if hex == "" {
		return SturdyRefLocator{}, ErrMissingSwissNum
	}
	swiss, err := hexDecode(hex)
	if err != nil {
		return SturdyRefLocator{}, fmt.Errorf("decode swiss number: %w", err)
	}

	return SturdyRefLocator{Node: node, SwissNum: swiss}, nil
}

// ToValue encodes s as a syrup record: <ocapn-sturdyref node-locator
// swiss-num-bytes>.
func (s SturdyRefLocator) ToValue() syrup.Value {
	return syrup.Record(
		syrup.Sym(sturdyRefLocatorLabel),
		s.Node.ToValue(),
		syrup.Bytes(s.SwissNum),
	)
}

// SturdyRefLocatorFromValue decodes a SturdyRefLocator previously produced
// by ToValue.
func SturdyRefLocatorFromValue(v syrup.Value) (SturdyRefLocator, error) {
	if v.Kind != syrup.KindRecord {
		return SturdyRefLocator{}, ErrNotRecord
	}
	if !v.IsRecordLabeled(sturdyRefLocatorLabel) {
		return SturdyRefLocator{}, fmt.Errorf("%w: got %q, want %q", ErrWrongLabel, v.RecordLabel(), sturdyRefLocatorLabel)
	}
	if len(v.Fields) != 2 {
		return SturdyRefLocator{}, fmt.Errorf("%w: got %d fields, want 2", ErrWrongArity, len(v.Fields))
	}

	node, err := NodeLocatorFromValue(v.Fields[0])
	if err != nil {
		return SturdyRefLocator{}, fmt.Errorf("node locator: %w", err)
	}

	swiss := v.Fields[1]
	if swiss.Kind != syrup.KindBytes {
		return SturdyRefLocator{}, fmt.Errorf("%w: swiss num is not bytes", ErrFieldKind)
	}

	return SturdyRefLocator{Node: node, SwissNum: swiss.Bytes}, nil
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := strconv.ParseUint(s[i*2:i*2+1], 16, 8)
		if err != nil {
			return nil, err
		}
		lo, err := strconv.ParseUint(s[i*2+1:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(hi<<4 | lo)
	}
	return out, nil
}
