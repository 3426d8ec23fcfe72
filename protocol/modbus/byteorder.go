package modbus

import (
	"bytes"
	"math"
)

// ByteOrder names the four multi-register composition orderings for
// 32-bit and 64-bit values (§6).
type ByteOrder string

const (
	ABCD ByteOrder = "ABCD" // big-endian
	DCBA ByteOrder = "DCBA" // little-endian
	BADC ByteOrder = "BADC" // big-endian, word-swapped
	CDAB ByteOrder = "CDAB" // little-endian, word-swapped
)

// Compose32 combines two registers into a 32-bit integer per the
// configured byte order. BADC and CDAB are numerically identical to
// DCBA and ABCD respectively (§6) but are kept distinct so config can
// name the wire convention it was written against.
func Compose32(r0, r1 uint16, order ByteOrder) uint32 {
	switch order {
	case ABCD:
		return uint32(r0)<<16 | uint32(r1)
	case DCBA, BADC:
		return uint32(r1)<<16 | uint32(r0)
	case CDAB:
		return uint32(r0)<<16 | uint32(r1)
	default:
		return uint32(r0)<<16 | uint32(r1)
	}
}

// Compose64 combines four registers into a 64-bit integer, applying
// the same word ordering as Compose32 at the 32-bit-word granularity.
func Compose64(r [4]uint16, order ByteOrder) uint64 {
	var hi, lo uint32
	switch order {
	case ABCD:
		hi = uint32(r[0])<<16 | uint32(r[1])
		lo = uint32(r[2])<<16 | uint32(r[3])
	case DCBA, BADC:
		hi = uint32(r[3])<<16 | uint32(r[2])
		lo = uint32(r[1])<<16 | uint32(r[0])
	case CDAB:
		hi = uint32(r[0])<<16 | uint32(r[1])
		lo = uint32(r[2])<<16 | uint32(r[3])
	default:
		hi = uint32(r[0])<<16 | uint32(r[1])
		lo = uint32(r[2])<<16 | uint32(r[3])
	}
	return uint64(hi)<<32 | uint64(lo)
}

// DecodeFloat32 reinterprets two registers as an IEEE-754 float32.
func DecodeFloat32(r0, r1 uint16, order ByteOrder) float32 {
	return math.Float32frombits(Compose32(r0, r1, order))
}

// DecodeFloat64 reinterprets four registers as an IEEE-754 float64.
func DecodeFloat64(r [4]uint16, order ByteOrder) float64 {
	return math.Float64frombits(Compose64(r, order))
}

// EncodeFloat32 splits an IEEE-754 float32 back into two registers.
func EncodeFloat32(v float32, order ByteOrder) (r0, r1 uint16) {
	bits := math.Float32bits(v)
	hi := uint16(bits >> 16)
	lo := uint16(bits)
	switch order {
	case ABCD, CDAB:
		return hi, lo
	default: // DCBA, BADC
		return lo, hi
	}
}

// DecodeString unpacks register-packed ASCII. High byte first for
// big-endian orderings (ABCD, BADC); low byte first otherwise. The
// string ends at the first NUL or the declared length, whichever
// comes first.
func DecodeString(regs []uint16, order ByteOrder, length int) string {
	highFirst := order == ABCD || order == BADC
	buf := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		hi, lo := byte(r>>8), byte(r)
		if highFirst {
			buf = append(buf, hi, lo)
		} else {
			buf = append(buf, lo, hi)
		}
	}
	if length >= 0 && length < len(buf) {
		buf = buf[:length]
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}
