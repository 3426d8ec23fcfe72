package command

import (
	"context"
	"testing"
	"time"

	"github.com/jangala-dev/comsrv/channel"
)

func TestTriggerDeliversEntry(t *testing.T) {
	q := NewMemQueue(4)
	delivered := make(chan channel.Command, 4)
	trig := NewTrigger(1, channel.Control, q, func(cmd channel.Command) bool {
		delivered <- cmd
		return true
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trig.Run(ctx)

	v := 42.0
	if err := q.Push(ctx, Entry{PointID: 7, Value: &v, TimestampMs: 1000}); err != nil {
		t.Fatalf("push: %v", err)
	}

	select {
	case cmd := <-delivered:
		if cmd.PointID != 7 || cmd.Value != 42.0 {
			t.Errorf("unexpected command: %+v", cmd)
		}
		if cmd.CommandID == "" {
			t.Error("expected a generated command id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for delivered command")
	}
}

func TestTriggerDropsStaleTimestamp(t *testing.T) {
	q := NewMemQueue(4)
	delivered := make(chan channel.Command, 4)
	trig := NewTrigger(1, channel.Adjustment, q, func(cmd channel.Command) bool {
		delivered <- cmd
		return true
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trig.Run(ctx)

	v1, v2 := 1.0, 2.0
	_ = q.Push(ctx, Entry{PointID: 5, Value: &v1, TimestampMs: 500})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first command")
	}

	// Same timestamp: must be dropped as a replay.
	_ = q.Push(ctx, Entry{PointID: 5, Value: &v2, TimestampMs: 500})

	select {
	case cmd := <-delivered:
		t.Fatalf("expected stale entry to be dropped, got %+v", cmd)
	case <-time.After(200 * time.Millisecond):
		// expected: nothing delivered
	}
}

func TestTriggerLegacyFormResolvesValue(t *testing.T) {
	q := NewMemQueue(4)
	delivered := make(chan channel.Command, 4)
	trig := NewTrigger(1, channel.Control, q, func(cmd channel.Command) bool {
		delivered <- cmd
		return true
	}, func(pointID uint32) (float64, bool) {
		if pointID == 9 {
			return 3.5, true
		}
		return 0, false
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trig.Run(ctx)

	_ = q.Push(ctx, Entry{PointID: 9, TimestampMs: 10})

	select {
	case cmd := <-delivered:
		if cmd.Value != 3.5 {
			t.Errorf("expected resolved value 3.5, got %v", cmd.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for command")
	}
}
