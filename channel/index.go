// Package channel implements the per-channel acquisition/command
// pipeline (§4.F, §4.G): the actor that owns one device connection,
// schedules polls, drains commands, and publishes results.
package channel

import (
	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/routing"
	"github.com/jangala-dev/comsrv/rtdb"
)

type slotKey struct {
	channelID uint32
	pointType config.PointType
	pointID   uint32
}

// ToSlotIndex is the precomputed (channel, type, point) -> slot-offset
// table (§4.F). Built once at startup after the RTDB has registered
// all instances and the routing cache is loaded; read-only afterward.
type ToSlotIndex struct {
	offsets map[slotKey]int64
}

// BuildToSlotIndex composes every C2M entry with the RTDB's
// InstanceLayout to resolve each channel point's measurement slot
// offset (§4.F).
func BuildToSlotIndex(rc *routing.Cache, layout *rtdb.InstanceLayout) *ToSlotIndex {
	idx := &ToSlotIndex{offsets: make(map[slotKey]int64)}
	rc.C2MIter(func(channelID uint32, pointType config.PointType, pointID uint32, target routing.MeasurementTarget) {
		off, ok := layout.SlotOffset(target.InstanceID, rtdb.Measurement, target.MeasurementPointID)
		if !ok {
			return
		}
		idx.offsets[slotKey{channelID, pointType, pointID}] = off
	})
	return idx
}

// Lookup resolves a channel point to its measurement slot offset.
func (idx *ToSlotIndex) Lookup(channelID uint32, pointType config.PointType, pointID uint32) (int64, bool) {
	off, ok := idx.offsets[slotKey{channelID, pointType, pointID}]
	return off, ok
}
