package binreader

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// MaxGamma is the largest value which can be gamma-encoded
const MaxGamma = 1<<35 - 1

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// AppendGamma appends the shortest gamma encoding of v to dst. Values above
// MaxGamma are truncated to 35 bits.
func AppendGamma(dst []byte, v uint64) []byte {
	v &= MaxGamma
	switch {
	case v < 1<<7:
		return append(dst, byte(v))
	case v < 1<<14:
		return append(dst, 0x80|byte(v>>8), byte(v))
	case v < 1<<21:
		return append(dst, 0xC0|byte(v>>16), byte(v>>8), byte(v))
	case v < 1<<28:
		return append(dst, 0xE0|byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	default:
		return append(dst, 0xF0|byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

// GammaLen returns the number of bytes AppendGamma would append for v
func GammaLen(v uint64) int {
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	case v < 1<<28:
		return 4
	default:
		return 5
	}
}
