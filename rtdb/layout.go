// Package rtdb implements the shared-memory real-time database: a
// fixed-layout memory-mapped file of atomic point slots, written by
// exactly one process and read by any number of readers (§3, §4.E).
package rtdb

// Magic identifies a valid RTDB mapped file.
const Magic uint64 = 0x564F4C544147455F

// FormatVersion is the on-disk layout version this package writes and
// expects to read.
const FormatVersion uint32 = 1

const (
	headerSize        = 64
	instanceIndexSize = 48
	pointSlotSize     = 32
)

// SharedHeader offsets within the mapped file (§3, §6). Fixed at
// implementation time; readers and the writer agree on them by
// sharing this package.
const (
	offMagic             = 0
	offVersion           = 8
	offInstanceCount     = 12
	offTotalPoints       = 16
	offIndexOffset       = 24
	offDataOffset        = 32
	offLastUpdateTS      = 40
	offWriterHeartbeatTS = 48
	// bytes [56:64] reserved for future header fields.
)

// InstanceIndex offsets, relative to the start of an entry.
const (
	iiOffInstanceID        = 0
	iiOffMeasurementCount  = 4
	iiOffActionCount       = 8
	iiOffMeasurementOffset = 16
	iiOffActionOffset      = 24
	// bytes [32:48] reserved.
)

// PointSlot offsets, relative to the start of a slot.
const (
	psOffValueBits   = 0
	psOffRawBits     = 8
	psOffTimestampMs = 16
	psOffQuality     = 24
	psOffSequence    = 28
)

// PointType mirrors config.PointType without importing config, to
// keep this package usable by bare readers.
type PointType int

const (
	Measurement PointType = 0
	Action      PointType = 1
)

// Quality values stored in a PointSlot's quality field.
const (
	QualityGood = 0
	QualityBad  = 1
)

// FileSize computes the exact mapped-file size for the given capacity
// (§4.E: "the file is truncated to exactly that size").
func FileSize(maxInstances, maxPointsPerInstance int) int64 {
	dataOffset := int64(headerSize) + int64(maxInstances)*int64(instanceIndexSize)
	// Each instance reserves maxPointsPerInstance slots for
	// measurements and the same again for actions.
	totalSlots := int64(maxInstances) * int64(maxPointsPerInstance) * 2
	return dataOffset + totalSlots*int64(pointSlotSize)
}
