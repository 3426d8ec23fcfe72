package channel

import (
	"sort"

	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/protocol/modbus"
	"github.com/jangala-dev/comsrv/x/mathx"
)

// pollGroup is one coalesced contiguous register range sharing a
// (function_code, slave_id), built once at startup (§4.G step 2).
type pollGroup struct {
	functionCode byte
	slaveID      byte
	startAddress uint16
	quantity     uint16
	points       []config.ChannelPoint // in address order, for value alignment
}

// buildPollGroups sorts measurement points by (function_code, slave_id,
// address) and merges adjacent/overlapping register spans into the
// fewest possible contiguous read groups (§4.G, §8 E2).
func buildPollGroups(slaveID byte, points []config.ChannelPoint) []pollGroup {
	sorted := make([]config.ChannelPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FunctionCode != sorted[j].FunctionCode {
			return sorted[i].FunctionCode < sorted[j].FunctionCode
		}
		return sorted[i].Address < sorted[j].Address
	})

	var groups []pollGroup
	for _, p := range sorted {
		q := p.Quantity
		if q == 0 {
			q = 1
		}
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			if last.functionCode == p.FunctionCode {
				groupEnd := last.startAddress + last.quantity
				if p.Address <= groupEnd {
					end := p.Address + q
					last.quantity = mathx.Max(last.quantity, end-last.startAddress)
					last.points = append(last.points, p)
					continue
				}
			}
		}
		groups = append(groups, pollGroup{
			functionCode: p.FunctionCode,
			slaveID:      slaveID,
			startAddress: p.Address,
			quantity:     q,
			points:       []config.ChannelPoint{p},
		})
	}
	return splitOversizedGroups(groups)
}

// maxQuantity caps a single read at the wire limit for its function
// code: 125 registers (FC3/4), 2000 bits (FC1/2) (§6).
func maxQuantity(functionCode byte) uint16 {
	switch functionCode {
	case 1, 2:
		return 2000
	default:
		return 125
	}
}

// splitOversizedGroups breaks any coalesced group wider than its
// function code's wire limit back into multiple groups, each still a
// contiguous run of whole points.
func splitOversizedGroups(groups []pollGroup) []pollGroup {
	out := make([]pollGroup, 0, len(groups))
	for _, g := range groups {
		limit := maxQuantity(g.functionCode)
		if g.quantity <= limit {
			out = append(out, g)
			continue
		}
		out = append(out, splitGroup(g, limit, mathx.CeilDiv(g.quantity, limit))...)
	}
	return out
}

func splitGroup(g pollGroup, limit uint16, hint uint16) []pollGroup {
	split := make([]pollGroup, 0, hint)
	var cur *pollGroup
	for _, p := range g.points {
		q := p.Quantity
		if q == 0 {
			q = 1
		}
		end := p.Address + q
		if cur == nil || end-cur.startAddress > limit {
			split = append(split, pollGroup{
				functionCode: g.functionCode,
				slaveID:      g.slaveID,
				startAddress: p.Address,
				quantity:     q,
				points:       []config.ChannelPoint{p},
			})
			cur = &split[len(split)-1]
			continue
		}
		cur.quantity = end - cur.startAddress
		cur.points = append(cur.points, p)
	}
	return split
}

func (g pollGroup) toBatchGroup() modbus.BatchGroup {
	slots := make([]int, len(g.points))
	for i, p := range g.points {
		slots[i] = int(p.PointID)
	}
	return modbus.BatchGroup{
		FunctionCode:  g.functionCode,
		SlaveID:       g.slaveID,
		StartAddress:  g.startAddress,
		Quantity:      g.quantity,
		ExpectedSlots: slots,
	}
}
