package channel

import (
	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/protocol/modbus"
)

// decodedPoint is one measurement point's engineering value, ready for
// the RTDB write (§4.G step 2: "apply scale/offset and data-type
// decoding per the point's config").
type decodedPoint struct {
	point config.ChannelPoint
	value float64
	raw   float64
}

// decodeGroup pulls each point's registers out of a batch result
// (aligned by address offset within the group) and decodes them per
// the point's configured data type and byte order (§6).
func decodeGroup(g pollGroup, regs []uint16) []decodedPoint {
	out := make([]decodedPoint, 0, len(g.points))
	for _, p := range g.points {
		idx := int(p.Address - g.startAddress)
		q := int(p.Quantity)
		if q == 0 {
			q = 1
		}
		if idx < 0 || idx+q > len(regs) {
			continue
		}
		window := regs[idx : idx+q]
		raw := decodeRaw(p.DataType, p.ByteOrder, window)
		value := raw*p.Scale + p.Offset
		out = append(out, decodedPoint{point: p, value: value, raw: raw})
	}
	return out
}

func decodeRaw(dt config.DataType, order modbus.ByteOrder, regs []uint16) float64 {
	switch dt {
	case config.DataTypeBool:
		if len(regs) > 0 && regs[0] != 0 {
			return 1
		}
		return 0
	case config.DataTypeUint16:
		return float64(regs[0])
	case config.DataTypeInt16:
		return float64(int16(regs[0]))
	case config.DataTypeUint32:
		if len(regs) < 2 {
			return 0
		}
		return float64(modbus.Compose32(regs[0], regs[1], order))
	case config.DataTypeInt32:
		if len(regs) < 2 {
			return 0
		}
		return float64(int32(modbus.Compose32(regs[0], regs[1], order)))
	case config.DataTypeFloat32:
		if len(regs) < 2 {
			return 0
		}
		return float64(modbus.DecodeFloat32(regs[0], regs[1], order))
	case config.DataTypeFloat64:
		if len(regs) < 4 {
			return 0
		}
		var r4 [4]uint16
		copy(r4[:], regs[:4])
		return modbus.DecodeFloat64(r4, order)
	default:
		if len(regs) > 0 {
			return float64(regs[0])
		}
		return 0
	}
}
