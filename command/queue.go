// Package command runs the per-channel command trigger (§4.H): it
// pops entries off a durable, channel-scoped queue, deduplicates them,
// and hands the survivors to a channel.Pipeline.
package command

import (
	"context"
	"time"
)

// Entry is one dequeued queue record (§4.H "compact record"). Value is
// nil for the legacy form lacking a value, which callers resolve from
// the RTDB side channel before building a channel.Command.
type Entry struct {
	PointID     uint32
	Value       *float64
	TimestampMs int64
}

// FailureKind classifies a Queue.Pop failure for the trigger's
// recovery policy (§4.H "dequeue errors are classified").
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"    // no entry ready within the pop deadline
	FailureConnection FailureKind = "connection" // the queue backend connection was lost
	FailureNetwork    FailureKind = "network"    // a transient network error reaching the backend
	FailureParse      FailureKind = "parse"      // the popped entry was malformed
	FailureAuth       FailureKind = "auth"       // the backend rejected credentials
	FailureUnknown    FailureKind = "unknown"
)

// PopError reports why Queue.Pop did not return an Entry.
type PopError struct {
	Kind FailureKind
	Err  error
}

func (e *PopError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *PopError) Unwrap() error { return e.Err }

// Queue is a durable, list-style, blocking-pop queue keyed by
// (channel_id, command_type) — one Queue value per key (§4.H). The
// core never owns a concrete backend; production wiring supplies one.
type Queue interface {
	// Pop blocks for up to timeout for the next entry. A *PopError with
	// FailureTimeout means "nothing ready", not a fault.
	Pop(ctx context.Context, timeout time.Duration) (Entry, error)
}
