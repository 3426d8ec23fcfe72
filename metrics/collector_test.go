package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jangala-dev/comsrv/channel"
)

func TestChannelCollectorReportsSnapshot(t *testing.T) {
	c := NewChannelCollector()
	stats := &channel.Stats{}
	stats.RecordSent()
	stats.RecordReceived()
	stats.RecordCommand(true)

	c.Register(1, "plc-1", stats, func() channel.State { return channel.Running })

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register collector: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, fam := range families {
		if fam.GetName() != "comsrv_channel_frames_sent_total" {
			continue
		}
		found = true
		for _, m := range fam.GetMetric() {
			if m.GetCounter().GetValue() != 1 {
				t.Errorf("expected frames_sent_total=1, got %v", m.GetCounter().GetValue())
			}
		}
	}
	if !found {
		t.Fatal("comsrv_channel_frames_sent_total metric not found")
	}
}

func TestChannelCollectorUnregisterStopsReporting(t *testing.T) {
	c := NewChannelCollector()
	stats := &channel.Stats{}
	c.Register(2, "plc-2", stats, nil)
	c.Unregister(2)

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register collector: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "channel_id" && l.GetValue() == "2" {
					t.Fatalf("unregistered channel still reporting metric %s", fam.GetName())
				}
			}
		}
	}
}
