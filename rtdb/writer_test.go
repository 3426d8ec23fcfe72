package rtdb

import (
	"path/filepath"
	"testing"
	"time"
)

func TestReopenAfterRestartReproducesLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtdb.bin")

	w1, err := CreateOrOpen(path, 4, 8)
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	if err := w1.RegisterInstance(1, "plant-1", 2, 2); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}
	off1, ok := w1.GetSlotOffset(1, Measurement, 0)
	if !ok {
		t.Fatal("expected slot offset to resolve before restart")
	}
	w1.SetMeasurement(1, 0, 9.5, 9.5, 100)
	w1.Close()

	w2, err := CreateOrOpen(path, 4, 8)
	if err != nil {
		t.Fatalf("CreateOrOpen (reopen): %v", err)
	}
	defer w2.Close()

	off2, ok := w2.GetSlotOffset(1, Measurement, 0)
	if !ok {
		t.Fatal("expected slot offset to resolve after restart")
	}
	if off1 != off2 {
		t.Errorf("slot offset changed across restart: %d != %d", off1, off2)
	}
	got, ok := w2.GetMeasurement(1, 0)
	if !ok || got != 9.5 {
		t.Errorf("GetMeasurement after restart = %v, ok=%v, want 9.5/true", got, ok)
	}

	// The registration allocator must continue exactly where it left
	// off, not reuse instance 1's slot range.
	if err := w2.RegisterInstance(2, "plant-2", 1, 1); err != nil {
		t.Fatalf("RegisterInstance after restart: %v", err)
	}
	off3, _ := w2.GetSlotOffset(2, Measurement, 0)
	if off3 == off1 {
		t.Error("expected instance 2 to get a fresh slot range, not instance 1's")
	}
}

func TestHeartbeatThrottlesToOncePerSecond(t *testing.T) {
	w := newWriter(t)
	base := time.Now()
	w.Heartbeat(base)
	first := w.m.loadU64(offWriterHeartbeatTS)

	w.Heartbeat(base.Add(100 * time.Millisecond))
	if got := w.m.loadU64(offWriterHeartbeatTS); got != first {
		t.Errorf("expected heartbeat to be throttled within 1s, got %d != %d", got, first)
	}

	w.Heartbeat(base.Add(2 * time.Second))
	if got := w.m.loadU64(offWriterHeartbeatTS); got == first {
		t.Error("expected heartbeat to update after 1s elapsed")
	}
}
