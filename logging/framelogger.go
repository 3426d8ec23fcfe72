package logging

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const defaultFrameQueueDepth = 32

// frameRecord is one LogFrame call, queued for the background writer.
type frameRecord struct {
	direction     string
	transactionID *uint16
	slaveID       byte
	functionCode  byte
	raw           []byte
}

// ChannelLogger implements modbus.FrameLogger for a single channel. It
// never blocks the polling/command goroutine that calls LogFrame: the
// record is pushed onto a bounded channel, and if the channel is full
// the oldest queued record is dropped to make room, the same
// trySend/drainOne discipline bus.Bus.tryDeliver uses for subscriber
// delivery (§4.K, "bounded, non-blocking").
type ChannelLogger struct {
	channelID uint32
	log       *logrus.Logger
	records   chan frameRecord
	dropped   atomic.Uint64
}

// NewChannelLogger builds a ChannelLogger bound to channelID. Call Run
// in its own goroutine to drain queued frames to log.
func NewChannelLogger(channelID uint32, log *logrus.Logger, depth int) *ChannelLogger {
	if depth <= 0 {
		depth = defaultFrameQueueDepth
	}
	return &ChannelLogger{
		channelID: channelID,
		log:       log,
		records:   make(chan frameRecord, depth),
	}
}

// LogFrame satisfies modbus.FrameLogger. direction is the caller's
// label for the frame; the Modbus adapter passes "TX" or "RX".
func (c *ChannelLogger) LogFrame(direction string, transactionID *uint16, slaveID, functionCode byte, raw []byte) {
	rec := frameRecord{
		direction:     direction,
		transactionID: transactionID,
		slaveID:       slaveID,
		functionCode:  functionCode,
		raw:           append([]byte(nil), raw...),
	}
	if trySend(c.records, rec) {
		return
	}
	if drainOne(c.records) {
		c.dropped.Add(1)
	}
	if !trySend(c.records, rec) {
		c.dropped.Add(1)
	}
}

func trySend(ch chan frameRecord, rec frameRecord) bool {
	select {
	case ch <- rec:
		return true
	default:
		return false
	}
}

func drainOne(ch chan frameRecord) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Dropped reports how many frame records were discarded: each oldest
// record evicted to make room, plus each new record that still found
// the queue full after the eviction.
func (c *ChannelLogger) Dropped() uint64 { return c.dropped.Load() }

// Run drains queued frame records to the logger until ctx is
// cancelled. Exactly one goroutine should run this per ChannelLogger.
func (c *ChannelLogger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-c.records:
			c.write(rec)
		}
	}
}

func (c *ChannelLogger) write(rec frameRecord) {
	fields := logrus.Fields{
		"channel_id":    c.channelID,
		"direction":     rec.direction,
		"slave_id":      rec.slaveID,
		"function_code": rec.functionCode,
		"raw":           hex.EncodeToString(rec.raw),
	}
	if rec.transactionID != nil {
		fields["transaction_id"] = *rec.transactionID
	}
	c.log.WithFields(fields).Debug(frameSummary(rec))
}

func frameSummary(rec frameRecord) string {
	return fmt.Sprintf("modbus frame %s fc=%d", rec.direction, rec.functionCode)
}
