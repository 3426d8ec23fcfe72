// Command comsrv is the communication + modeling plane entrypoint: it
// assembles the shared services, wires one ChannelUnit per configured
// channel, and runs the supervisor until a shutdown signal arrives
// (§9, §5 "Cancellation semantics").
//
// Configuration loading (SQLite or otherwise) is out of this repo's
// scope (§1); the channel/instance/routing literals below stand in
// for what a loader would produce.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jangala-dev/comsrv/channel"
	"github.com/jangala-dev/comsrv/command"
	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/supervisor"
)

// shutdownTimeout bounds how long in-flight pipeline/trigger
// goroutines get to unwind after a stop signal (§5 default 5s).
const shutdownTimeout = 5 * time.Second

func main() {
	log := run()
	if log != nil {
		os.Exit(1)
	}
}

func run() error {
	b := supervisor.NewBuilder("info")

	b, err := b.WithRTDB(config.RTDBConfig{
		Path:                 envOr("COMSRV_RTDB_PATH", "/tmp/comsrv.rtdb"),
		MaxInstances:         64,
		MaxPointsPerInstance: 256,
		HeartbeatTimeout:     5 * time.Second,
	})
	if err != nil {
		return err
	}

	routingCfg := config.RoutingConfig{
		C2M: []config.RoutingEntryC2M{
			{ChannelID: 1, ChannelPointType: config.Measurement, ChannelPointID: 0, InstanceID: 1, MeasurementPointID: 0},
		},
		A2C: []config.RoutingEntryA2C{
			{InstanceID: 1, ActionPointID: 0, ChannelID: 1, ChannelPointType: config.Action, ChannelPointID: 0},
		},
	}
	b, err = b.WithRouting(routingCfg)
	if err != nil {
		return err
	}
	svc := b.WithSlotIndex().WithPollBudget(4).Build()
	defer svc.RTDB.Close()

	if err := svc.RTDB.RegisterInstance(1, "plant-1", 8, 8); err != nil {
		return err
	}

	channelCfg := config.ChannelConfig{
		ID:       1,
		Name:     "plant-1-plc",
		Protocol: config.ProtocolModbusTCP,
		Host:     envOr("COMSRV_PLC_HOST", "127.0.0.1"),
		Port:     502,

		ConnectTimeout:    5 * time.Second,
		RequestTimeout:    2 * time.Second,
		RetryCount:        2,
		IOErrorThreshold:  3,
		PollInterval:      time.Second,
		CommandQueueDepth: 64,

		Measurement: []config.ChannelPoint{
			{PointID: 0, FunctionCode: 3, Address: 100, Quantity: 1, DataType: config.DataTypeUint16, Scale: 1},
		},
		Action: []config.ChannelPoint{
			{PointID: 0, FunctionCode: 6, Address: 200, Quantity: 1, DataType: config.DataTypeUint16, Scale: 1},
		},
	}
	if err := channelCfg.Validate(); err != nil {
		return err
	}

	unit, err := supervisor.NewChannelUnit(svc, channelCfg, 1, map[channel.CommandKind]command.Queue{
		channel.Control:    command.NewMemQueue(64),
		channel.Adjustment: command.NewMemQueue(64),
	})
	if err != nil {
		return err
	}

	sup := supervisor.NewSupervisor(svc, []*supervisor.ChannelUnit{unit}, nil)

	prometheus.MustRegister(svc.Metrics)
	metricsSrv := &http.Server{Addr: envOr("COMSRV_METRICS_ADDR", ":9090"), Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			svc.Log.WithError(err).Error("metrics server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := sup.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	return runErr
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
