package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jangala-dev/comsrv/channel"
	"github.com/jangala-dev/comsrv/command"
	"github.com/jangala-dev/comsrv/config"
)

func TestBuilderAssemblesServices(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rtdb.bin")

	b := NewBuilder("error")
	b, err := b.WithRTDB(config.RTDBConfig{Path: dbPath, MaxInstances: 2, MaxPointsPerInstance: 4})
	if err != nil {
		t.Fatalf("WithRTDB: %v", err)
	}
	b, err = b.WithRouting(config.RoutingConfig{})
	if err != nil {
		t.Fatalf("WithRouting: %v", err)
	}
	svc := b.WithSlotIndex().WithPollBudget(2).Build()

	if svc.RTDB == nil || svc.Routes == nil || svc.Slots == nil || svc.PollBudget == nil {
		t.Fatal("expected every Services field to be populated")
	}
	svc.RTDB.Close()
}

func TestSupervisorRunStopsOnCancel(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rtdb.bin")
	b := NewBuilder("error")
	b, err := b.WithRTDB(config.RTDBConfig{Path: dbPath, MaxInstances: 2, MaxPointsPerInstance: 4})
	if err != nil {
		t.Fatalf("WithRTDB: %v", err)
	}
	b, err = b.WithRouting(config.RoutingConfig{})
	if err != nil {
		t.Fatalf("WithRouting: %v", err)
	}
	svc := b.WithSlotIndex().Build()
	defer svc.RTDB.Close()

	if err := svc.RTDB.RegisterInstance(1, "plant-1", 2, 2); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}

	cfg := config.ChannelConfig{
		ID:           1,
		Name:         "ch1",
		Protocol:     config.ProtocolModbusTCP,
		Host:         "127.0.0.1",
		Port:         1,
		PollInterval: 50 * time.Millisecond,
	}
	unit, err := NewChannelUnit(svc, cfg, 1, map[channel.CommandKind]command.Queue{
		channel.Control: command.NewMemQueue(4),
	})
	if err != nil {
		t.Fatalf("NewChannelUnit: %v", err)
	}

	sup := NewSupervisor(svc, []*ChannelUnit{unit}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}
}
