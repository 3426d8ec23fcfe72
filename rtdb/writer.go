package rtdb

import (
	"sync"
	"time"

	"github.com/jangala-dev/comsrv/errs"
	"github.com/jangala-dev/comsrv/x/timex"
)

// Writer is the single process allowed to mutate the mapped file
// (§4.E writer discipline). Creating a Writer stamps magic/version if
// the file is new; opening an existing file re-registers instances in
// the same order, reproducing the same slot offsets (§8 E6).
type Writer struct {
	*Base

	mu                  sync.Mutex
	maxInstances        int
	maxPointsPerInstance int
	nextInstanceIdx     uint32
	nextSlotOffset      int64 // relative to data_offset
	registeredIDs       map[uint32]struct{}

	lastHeartbeat time.Time
}

// CreateOrOpen opens path, creating and stamping it if absent, sized
// per cfg. Reopening an existing file with the same cfg reproduces the
// same layout (§9: "mapped file may be reused across restarts of the
// writer if the layout is unchanged").
func CreateOrOpen(path string, maxInstances, maxPointsPerInstance int) (*Writer, error) {
	size := FileSize(maxInstances, maxPointsPerInstance)
	_, statErr := statSize(path)
	create := statErr != nil

	m, err := openMapping(path, size, create)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		Base:                 &Base{m: m},
		maxInstances:         maxInstances,
		maxPointsPerInstance: maxPointsPerInstance,
		registeredIDs:        make(map[uint32]struct{}),
	}

	if create {
		w.stampHeader()
	} else {
		if w.m.loadU64(offMagic) != Magic || w.m.loadU32(offVersion) != FormatVersion {
			m.close()
			return nil, errs.New(errs.Config, "CreateOrOpen", "existing file has incompatible magic/version")
		}
	}
	if err := w.validateAndRebuild(); err != nil {
		m.close()
		return nil, err
	}
	w.recoverRegistrationState()
	return w, nil
}

func (w *Writer) stampHeader() {
	indexOffset := int64(headerSize)
	dataOffset := indexOffset + int64(w.maxInstances)*instanceIndexSize
	w.m.storeU64(offIndexOffset, uint64(indexOffset))
	w.m.storeU64(offDataOffset, uint64(dataOffset))
	w.m.storeU32(offInstanceCount, 0)
	w.m.storeU32(offTotalPoints, 0)
	w.m.storeU64(offLastUpdateTS, uint64(timex.NowMs()))
	w.m.storeU64(offWriterHeartbeatTS, uint64(timex.NowMs()))
	w.m.storeU32(offVersion, FormatVersion)
	w.m.storeU64(offMagic, Magic) // written last: marks the header complete
}

// recoverRegistrationState rebuilds nextInstanceIdx/nextSlotOffset
// from an existing file so a restarted writer continues allocating
// exactly where the previous one left off (§8 E6).
func (w *Writer) recoverRegistrationState() {
	count := w.m.loadU32(offInstanceCount)
	indexOffset := int64(w.m.loadU64(offIndexOffset))
	var maxEnd int64
	for i := uint32(0); i < count; i++ {
		base := indexOffset + int64(i)*instanceIndexSize
		id := w.m.loadU32(base + iiOffInstanceID)
		w.registeredIDs[id] = struct{}{}
		actOffset := int64(w.m.loadU64(base + iiOffActionOffset))
		actCount := int64(w.m.loadU32(base + iiOffActionCount))
		end := actOffset + actCount*pointSlotSize
		if end > maxEnd {
			maxEnd = end
		}
	}
	w.nextInstanceIdx = count
	w.nextSlotOffset = maxEnd
}

// RegisterInstance writes an InstanceIndex entry and allocates
// contiguous slot ranges for its measurement and action points, in
// order (§4.E). Re-registering an instance id is rejected (§4.E
// registration invariant).
func (w *Writer) RegisterInstance(instanceID uint32, name string, measurementPointCount, actionPointCount int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.registeredIDs[instanceID]; ok {
		return errs.New(errs.Config, "RegisterInstance", "instance already registered")
	}
	if int(w.nextInstanceIdx) >= w.maxInstances {
		return errs.New(errs.Config, "RegisterInstance", "max_instances exceeded")
	}
	if measurementPointCount > w.maxPointsPerInstance || actionPointCount > w.maxPointsPerInstance {
		return errs.New(errs.Config, "RegisterInstance", "instance exceeds max_points_per_instance")
	}

	measOffset := w.nextSlotOffset
	w.nextSlotOffset += int64(measurementPointCount) * pointSlotSize
	actOffset := w.nextSlotOffset
	w.nextSlotOffset += int64(actionPointCount) * pointSlotSize

	indexOffset := int64(w.m.loadU64(offIndexOffset))
	base := indexOffset + int64(w.nextInstanceIdx)*instanceIndexSize
	w.m.storeU32(base+iiOffInstanceID, instanceID)
	w.m.storeU32(base+iiOffMeasurementCount, uint32(measurementPointCount))
	w.m.storeU32(base+iiOffActionCount, uint32(actionPointCount))
	w.m.storeU64(base+iiOffMeasurementOffset, uint64(measOffset))
	w.m.storeU64(base+iiOffActionOffset, uint64(actOffset))

	w.nextInstanceIdx++
	w.registeredIDs[instanceID] = struct{}{}
	w.m.addU32(offTotalPoints, uint32(measurementPointCount+actionPointCount))
	w.m.storeU32(offInstanceCount, w.nextInstanceIdx) // release: publishes this registration

	if w.layout != nil {
		w.layout.registerName(name, instanceID)
	}
	return w.validateAndRebuild()
}

// SetMeasurement writes a measurement point's value, raw value, and
// timestamp as given.
func (w *Writer) SetMeasurement(instanceID, pointID uint32, value, raw float64, timestampMs int64) {
	off, ok := w.GetSlotOffset(instanceID, Measurement, pointID)
	if !ok {
		return // unknown tuple: caller's registration bug, no-op per §4.E
	}
	w.writeSlot(off, value, raw, timestampMs, QualityGood)
}

// SetAction mirrors a successfully written action value into the RTDB
// (§4.G: "mirror the written value into the corresponding action
// slot").
func (w *Writer) SetAction(instanceID, pointID uint32, value float64, timestampMs int64) {
	off, ok := w.GetSlotOffset(instanceID, Action, pointID)
	if !ok {
		return
	}
	w.writeSlot(off, value, value, timestampMs, QualityGood)
}

// SetDirect bypasses resolution for the channel pipeline's hot path;
// offset is pre-computed via the ChannelToSlotIndex (§4.E).
func (w *Writer) SetDirect(slotOffset int64, value, raw float64, timestampMs int64) {
	w.writeSlot(slotOffset, value, raw, timestampMs, QualityGood)
}

// writeSlot performs the writer's atomicity sequence (§4.E): mark the
// slot odd (write in progress), store timestamp, raw, value, then
// increment sequence back to even — each store released so a
// concurrent reader's seq1/fields/seq2 bracket never observes a torn
// mix and an odd sequence always means "retry".
func (w *Writer) writeSlot(off int64, value, raw float64, timestampMs int64, quality uint32) {
	w.m.addU32(off+psOffSequence, 1) // now odd: write in progress
	w.m.storeU64(off+psOffTimestampMs, uint64(timestampMs))
	w.m.storeU64(off+psOffRawBits, float64ToBits(raw))
	w.m.storeU64(off+psOffValueBits, float64ToBits(value))
	w.m.storeU32(off+psOffQuality, quality)
	w.m.addU32(off+psOffSequence, 1) // now even: write complete
	w.m.storeU64(offLastUpdateTS, uint64(timex.NowMs()))
}

// Heartbeat updates writer_heartbeat if at least one second has
// elapsed since the last update (§4.E: "at most once per second").
func (w *Writer) Heartbeat(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.lastHeartbeat) < time.Second {
		return
	}
	w.lastHeartbeat = now
	w.m.storeU64(offWriterHeartbeatTS, uint64(now.UnixMilli()))
}
