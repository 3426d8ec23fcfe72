package routing

import (
	"testing"

	"github.com/jangala-dev/comsrv/config"
)

func TestBuildResolvesC2MAndA2C(t *testing.T) {
	cache, err := Build(config.RoutingConfig{
		C2M: []config.RoutingEntryC2M{
			{ChannelID: 1, ChannelPointType: config.Measurement, ChannelPointID: 10, InstanceID: 5, MeasurementPointID: 0},
		},
		A2C: []config.RoutingEntryA2C{
			{InstanceID: 5, ActionPointID: 0, ChannelID: 1, ChannelPointType: config.Action, ChannelPointID: 20},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	target, ok := cache.C2M(1, config.Measurement, 10)
	if !ok || target.InstanceID != 5 || target.MeasurementPointID != 0 {
		t.Errorf("C2M lookup = %+v, ok=%v", target, ok)
	}

	chTarget, ok := cache.A2C(5, 0)
	if !ok || chTarget.ChannelID != 1 || chTarget.ChannelPointID != 20 {
		t.Errorf("A2C lookup = %+v, ok=%v", chTarget, ok)
	}

	if _, ok := cache.C2M(99, config.Measurement, 0); ok {
		t.Error("expected unconfigured C2M lookup to miss")
	}
}

func TestBuildRejectsConflictingC2MRoute(t *testing.T) {
	_, err := Build(config.RoutingConfig{
		C2M: []config.RoutingEntryC2M{
			{ChannelID: 1, ChannelPointType: config.Measurement, ChannelPointID: 10, InstanceID: 5, MeasurementPointID: 0},
			{ChannelID: 1, ChannelPointType: config.Measurement, ChannelPointID: 10, InstanceID: 6, MeasurementPointID: 0},
		},
	})
	if err == nil {
		t.Fatal("expected conflicting routes for the same channel point to be rejected")
	}
}

func TestC2MIterVisitsEveryEntry(t *testing.T) {
	cache, err := Build(config.RoutingConfig{
		C2M: []config.RoutingEntryC2M{
			{ChannelID: 1, ChannelPointType: config.Measurement, ChannelPointID: 1, InstanceID: 1, MeasurementPointID: 0},
			{ChannelID: 1, ChannelPointType: config.Measurement, ChannelPointID: 2, InstanceID: 1, MeasurementPointID: 1},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	seen := 0
	cache.C2MIter(func(channelID uint32, pointType config.PointType, pointID uint32, target MeasurementTarget) {
		seen++
	})
	if seen != 2 {
		t.Errorf("C2MIter visited %d entries, want 2", seen)
	}
}
