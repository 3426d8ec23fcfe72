package rtdb

import (
	"time"

	"github.com/jangala-dev/comsrv/errs"
	"github.com/jangala-dev/comsrv/x/timex"
)

// noSlot is the sentinel stored in InstanceLayout for an unmapped
// point id (§3: "all-ones").
const noSlot = ^int64(0)

// InstanceLayout is the in-process, direct-indexed resolution table
// built by scanning InstanceIndex entries (§3). Rebuilt by readers on
// (re)connect; immutable once built.
type InstanceLayout struct {
	nameToID     map[string]uint32
	measurement  map[uint32][]int64 // instanceID -> point_id-indexed slot offsets
	action       map[uint32][]int64
}

func newInstanceLayout() *InstanceLayout {
	return &InstanceLayout{
		nameToID:    make(map[string]uint32),
		measurement: make(map[uint32][]int64),
		action:      make(map[uint32][]int64),
	}
}

// ResolveName maps a configured instance name to its id, as populated
// by the loader (§4.I: "instance name is resolved to id via a
// name-index map that the loader populates").
func (l *InstanceLayout) ResolveName(name string) (uint32, bool) {
	id, ok := l.nameToID[name]
	return id, ok
}

func (l *InstanceLayout) registerName(name string, id uint32) { l.nameToID[name] = id }

// SlotOffset resolves (instance, point_type, point_id) to a byte
// offset, or false if the tuple is unknown (§4.E).
func (l *InstanceLayout) SlotOffset(instanceID uint32, pointType PointType, pointID uint32) (int64, bool) {
	table := l.measurement
	if pointType == Action {
		table = l.action
	}
	arr, ok := table[instanceID]
	if !ok || int(pointID) >= len(arr) {
		return 0, false
	}
	off := arr[pointID]
	if off == noSlot {
		return 0, false
	}
	return off, true
}

// Base is the shared read/write surface over the mapped file. Writer
// and Reader both embed it; only Writer exposes mutation.
type Base struct {
	m      *mapping
	layout *InstanceLayout
}

// Open validates magic/version and rebuilds the in-process
// InstanceLayout by scanning InstanceIndex[0..instance_count] (§4.E
// reader discipline).
func Open(path string, size int64) (*Base, error) {
	m, err := openMapping(path, size, false)
	if err != nil {
		return nil, err
	}
	b := &Base{m: m}
	if err := b.validateAndRebuild(); err != nil {
		m.close()
		return nil, err
	}
	return b, nil
}

func (b *Base) validateAndRebuild() error {
	if b.m.loadU64(offMagic) != Magic {
		return errs.New(errs.Config, "validateAndRebuild", "bad magic")
	}
	if b.m.loadU32(offVersion) != FormatVersion {
		return errs.New(errs.Config, "validateAndRebuild", "unsupported format version")
	}
	count := b.m.loadU32(offInstanceCount) // acquire
	indexOffset := int64(b.m.loadU64(offIndexOffset))

	layout := newInstanceLayout()
	for i := uint32(0); i < count; i++ {
		base := indexOffset + int64(i)*instanceIndexSize
		instanceID := b.m.loadU32(base + iiOffInstanceID)
		measCount := b.m.loadU32(base + iiOffMeasurementCount)
		actCount := b.m.loadU32(base + iiOffActionCount)
		measOffset := int64(b.m.loadU64(base + iiOffMeasurementOffset))
		actOffset := int64(b.m.loadU64(base + iiOffActionOffset))
		dataOffset := int64(b.m.loadU64(offDataOffset))

		measArr := make([]int64, measCount)
		for p := uint32(0); p < measCount; p++ {
			measArr[p] = dataOffset + measOffset + int64(p)*pointSlotSize
		}
		actArr := make([]int64, actCount)
		for p := uint32(0); p < actCount; p++ {
			actArr[p] = dataOffset + actOffset + int64(p)*pointSlotSize
		}
		layout.measurement[instanceID] = measArr
		layout.action[instanceID] = actArr
	}
	if b.layout != nil {
		for name, id := range b.layout.nameToID {
			layout.nameToID[name] = id
		}
	}
	b.layout = layout
	return nil
}

// RebuildIndex re-scans the InstanceIndex after a writer restart
// (§E6): it must succeed without reopening the file.
func (b *Base) RebuildIndex() error { return b.validateAndRebuild() }

// Layout returns the current InstanceLayout.
func (b *Base) Layout() *InstanceLayout { return b.layout }

// Close unmaps the file.
func (b *Base) Close() error { return b.m.close() }

// GetSlotOffset resolves a tuple via the current InstanceLayout.
func (b *Base) GetSlotOffset(instanceID uint32, pointType PointType, pointID uint32) (int64, bool) {
	return b.layout.SlotOffset(instanceID, pointType, pointID)
}

// readSlot loads a snapshot with the torn-read protection protocol:
// read sequence, then fields, then sequence again; unequal or odd
// means retry (§4.E).
func (b *Base) readSlot(off int64) Sample {
	for {
		seq1 := b.m.loadU32(off + psOffSequence)
		if seq1%2 != 0 {
			continue
		}
		value := b.m.loadU64(off + psOffValueBits)
		raw := b.m.loadU64(off + psOffRawBits)
		ts := b.m.loadU64(off + psOffTimestampMs)
		quality := b.m.loadU32(off + psOffQuality)
		seq2 := b.m.loadU32(off + psOffSequence)
		if seq1 == seq2 {
			return Sample{ValueBits: value, RawBits: raw, TimestampMs: ts, Quality: quality, Sequence: seq1}
		}
	}
}

// readValueFast loads only value_bits with a single acquire load, the
// fast path for callers that only need the engineering value and can
// tolerate a timestamp up to one poll period stale (§4.E).
func (b *Base) readValueFast(off int64) float64 {
	return bitsToFloat64(b.m.loadU64(off + psOffValueBits))
}

// GetMeasurement reads a measurement point's current value.
func (b *Base) GetMeasurement(instanceID uint32, pointID uint32) (float64, bool) {
	off, ok := b.GetSlotOffset(instanceID, Measurement, pointID)
	if !ok {
		return 0, false
	}
	return b.readValueFast(off), true
}

// GetAction reads an action point's current mirrored value.
func (b *Base) GetAction(instanceID uint32, pointID uint32) (float64, bool) {
	off, ok := b.GetSlotOffset(instanceID, Action, pointID)
	if !ok {
		return 0, false
	}
	return b.readValueFast(off), true
}

// IsWriterAlive reports whether the writer heartbeat is within
// timeout of now (§4.E, §8 law 10).
func (b *Base) IsWriterAlive(timeout time.Duration) bool {
	hb := int64(b.m.loadU64(offWriterHeartbeatTS))
	return timex.NowMs()-hb <= timeout.Milliseconds()
}
