package syrup

import (
	"strconv"
)

// Encode serializes v into its canonical wire representation. Encode is the
// exact inverse of Tokenize: for every Value produced by Tokenize,
// Tokenize(Encode(v)) reproduces an equal tree.
func Encode(v Value) []byte {
	buf := make([]byte, 0, 32)
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindInt:
		if v.Int < 0 {
			buf = strconv.AppendInt(buf, -v.Int, 10)
			buf = append(buf, '-')
		} else {
			buf = strconv.AppendInt(buf, v.Int, 10)
			buf = append(buf, '+')
		}
		return buf
	case KindBool:
		if v.Bool {
			return append(buf, 't')
		}
		return append(buf, 'f')
	case KindFloat:
		b := encodeFloat64(v.Float)
		buf = append(buf, 'D')
		return append(buf, b[:]...)
	case KindSymbol:
		buf = strconv.AppendInt(buf, int64(len(v.Symbol)), 10)
		buf = append(buf, '\'')
		return append(buf, v.Symbol...)
	case KindString:
		raw := []byte(v.Str)
		buf = strconv.AppendInt(buf, int64(len(raw)), 10)
		buf = append(buf, '"')
		return append(buf, raw...)
	case KindBytes:
		buf = strconv.AppendInt(buf, int64(len(v.Bytes)), 10)
		buf = append(buf, ':')
		return append(buf, v.Bytes...)
	case KindSequence:
		buf = append(buf, '[')
		for _, f := range v.Fields {
			buf = appendValue(buf, f)
		}
		return append(buf, ']')
	case KindSet:
		buf = append(buf, '#')
		for _, f := range v.Fields {
			buf = appendValue(buf, f)
		}
		return append(buf, '$')
	case KindMapping:
		buf = append(buf, '{')
		for _, pr := range v.Pairs {
			buf = appendValue(buf, pr.Key)
			buf = appendValue(buf, pr.Value)
		}
		return append(buf, '}')
	case KindRecord:
		buf = append(buf, '<')
		if v.Label != nil {
			buf = appendValue(buf, *v.Label)
		}
		for _, f := range v.Fields {
			buf = appendValue(buf, f)
		}
		return append(buf, '>')
	default:
		return buf
	}
}
