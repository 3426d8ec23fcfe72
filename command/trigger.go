package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jangala-dev/comsrv/channel"
	"github.com/jangala-dev/comsrv/transport"
)

const popTimeout = time.Second

// Trigger is the per-channel command-trigger task (§4.H): it blocks on
// a queue, deduplicates by point_id/timestamp, and submits surviving
// commands to a pipeline. Exactly one goroutine runs Trigger.Run for
// its lifetime.
type Trigger struct {
	channelID   uint32
	commandType channel.CommandKind
	queue       Queue
	submit      func(channel.Command) bool
	resolve     func(pointID uint32) (float64, bool) // legacy-form value lookup (RTDB side channel)

	// lastSeen and consecutiveErr are touched only from the goroutine
	// running Run (§4.H "one writer, no readers outside itself").
	lastSeen       map[uint32]int64
	consecutiveErr int
}

// NewTrigger builds a Trigger. submit is normally channel.Pipeline.Submit;
// resolve backs the legacy value-less record form by reading the most
// recent measurement/action value for the point (§4.H parse policy).
func NewTrigger(channelID uint32, commandType channel.CommandKind, queue Queue, submit func(channel.Command) bool, resolve func(uint32) (float64, bool)) *Trigger {
	return &Trigger{
		channelID:   channelID,
		commandType: commandType,
		queue:       queue,
		submit:      submit,
		resolve:     resolve,
		lastSeen:    make(map[uint32]int64),
	}
}

// Run drives the trigger until ctx is cancelled.
func (t *Trigger) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		entry, err := t.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.handlePopError(ctx, err)
			continue
		}
		t.consecutiveErr = 0
		t.deliver(entry)
	}
}

func (t *Trigger) handlePopError(ctx context.Context, err error) {
	kind := FailureUnknown
	if pe, ok := err.(*PopError); ok {
		kind = pe.Kind
	}
	switch kind {
	case FailureTimeout:
		// nothing ready; not a fault, loop immediately
		return
	case FailureConnection, FailureNetwork:
		t.consecutiveErr++
		delay := transport.Backoff(t.consecutiveErr - 1)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	default:
		// parse/auth/unknown: skip the malformed entry and continue
		// (§4.H "other errors skip the malformed entry and continue")
	}
}

func (t *Trigger) deliver(entry Entry) {
	if t.isStale(entry) {
		return
	}

	value := 0.0
	if entry.Value != nil {
		value = *entry.Value
	} else if t.resolve != nil {
		if v, ok := t.resolve(entry.PointID); ok {
			value = v
		}
	}

	cmd := channel.Command{
		CommandID:   uuid.NewString(),
		ChannelID:   t.channelID,
		CommandType: t.commandType,
		PointID:     entry.PointID,
		Value:       value,
		TimestampMs: entry.TimestampMs,
	}
	if t.submit != nil {
		t.submit(cmd)
	}
}

// isStale reports whether entry's timestamp is at or before the last
// one accepted for its point, recording it when it is not (§4.H
// dedup). lastSeen is owned solely by this goroutine.
func (t *Trigger) isStale(entry Entry) bool {
	last, ok := t.lastSeen[entry.PointID]
	if ok && entry.TimestampMs <= last {
		return true
	}
	t.lastSeen[entry.PointID] = entry.TimestampMs
	return false
}
