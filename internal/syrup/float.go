package syrup

import "math"

func encodeFloat64(f float64) [8]byte {
	bits := math.Float64bits(f)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (56 - 8*i))
	}
	return b
}

func decodeFloat64(b []byte) float64 {
	var bits uint64
	for i := 0; i < 8; i++ {
		bits = bits<<8 | uint64(b[i])
	}
	return math.Float64frombits(bits)
}
