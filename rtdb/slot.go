package rtdb

import "math"

// Sample is a torn-free snapshot of one PointSlot (§4.E).
type Sample struct {
	ValueBits   uint64
	RawBits     uint64
	TimestampMs uint64
	Quality     uint32
	Sequence    uint32
}

// Value decodes the slot's engineering value.
func (s Sample) Value() float64 { return bitsToFloat64(s.ValueBits) }

// Raw decodes the slot's raw (pre-scale) value.
func (s Sample) Raw() float64 { return bitsToFloat64(s.RawBits) }

func bitsToFloat64(bits uint64) float64 { return math.Float64frombits(bits) }
func float64ToBits(v float64) uint64    { return math.Float64bits(v) }
