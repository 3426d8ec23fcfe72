package channel

import (
	"path/filepath"
	"testing"

	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/routing"
	"github.com/jangala-dev/comsrv/rtdb"
)

func TestBuildToSlotIndexResolvesRoutedPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtdb.bin")
	w, err := rtdb.CreateOrOpen(path, 4, 8)
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	if err := w.RegisterInstance(1, "plant-1", 2, 2); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}

	rc, err := routing.Build(config.RoutingConfig{
		C2M: []config.RoutingEntryC2M{
			{ChannelID: 10, ChannelPointType: config.Measurement, ChannelPointID: 0, InstanceID: 1, MeasurementPointID: 1},
		},
	})
	if err != nil {
		t.Fatalf("routing.Build: %v", err)
	}

	idx := BuildToSlotIndex(rc, w.Layout())
	off, ok := idx.Lookup(10, config.Measurement, 0)
	if !ok {
		t.Fatal("expected routed channel point to resolve")
	}
	want, _ := w.GetSlotOffset(1, rtdb.Measurement, 1)
	if off != want {
		t.Errorf("Lookup offset = %d, want %d", off, want)
	}
}

func TestBuildToSlotIndexSkipsUnresolvableTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtdb.bin")
	w, err := rtdb.CreateOrOpen(path, 4, 8)
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	if err := w.RegisterInstance(1, "plant-1", 1, 1); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}

	rc, err := routing.Build(config.RoutingConfig{
		C2M: []config.RoutingEntryC2M{
			// Instance 1 only has 1 measurement point (id 0); id 5 is unmapped.
			{ChannelID: 10, ChannelPointType: config.Measurement, ChannelPointID: 0, InstanceID: 1, MeasurementPointID: 5},
		},
	})
	if err != nil {
		t.Fatalf("routing.Build: %v", err)
	}

	idx := BuildToSlotIndex(rc, w.Layout())
	if _, ok := idx.Lookup(10, config.Measurement, 0); ok {
		t.Error("expected an out-of-range measurement point id to be skipped, not indexed")
	}
}

func TestToSlotIndexLookupMissOnUnknownPoint(t *testing.T) {
	idx := &ToSlotIndex{offsets: make(map[slotKey]int64)}
	if _, ok := idx.Lookup(1, config.Measurement, 0); ok {
		t.Error("expected lookup on empty index to miss")
	}
}
