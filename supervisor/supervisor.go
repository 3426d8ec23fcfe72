// Package supervisor assembles the process-wide "services" value
// (§9 Design Notes: "a single services value assembled at program
// start and passed down explicitly") and drives every channel
// pipeline and command trigger as one coordinated group.
package supervisor

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jangala-dev/comsrv/bus"
	"github.com/jangala-dev/comsrv/channel"
	"github.com/jangala-dev/comsrv/command"
	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/logging"
	"github.com/jangala-dev/comsrv/metrics"
	"github.com/jangala-dev/comsrv/routing"
	"github.com/jangala-dev/comsrv/rtdb"
	"github.com/jangala-dev/comsrv/rules"
	"github.com/jangala-dev/comsrv/transport"
)

// CommandStatusTopic is the bus topic a channel's command-status
// publications land on: "command", "status", channel_id (§6).
func CommandStatusTopic(channelID uint32) bus.Topic {
	return bus.T("command", "status", channelID)
}

// Services is the builder-assembled, immutable set of shared handles
// every subsystem borrows (§9: "channels borrow a shared, immutable
// handle" to the RTDB; "the rule engine holds a shared, immutable
// handle to the RTDB and to the routing cache").
type Services struct {
	Log        *logrus.Logger
	RTDB       *rtdb.Writer
	Routes     *routing.Cache
	Slots      *channel.ToSlotIndex
	Bus        *bus.Bus
	Metrics    *metrics.ChannelCollector
	PollBudget *semaphore.Weighted
}

// Builder constructs a Services value incrementally, following the
// teacher's "builder in main" pattern (§9).
type Builder struct {
	svc Services
}

// NewBuilder starts a Builder with a process-wide logger at the given
// level.
func NewBuilder(logLevel string) *Builder {
	return &Builder{svc: Services{
		Log:     logging.New(logLevel),
		Bus:     bus.NewBus(16),
		Metrics: metrics.NewChannelCollector(),
	}}
}

// WithRTDB opens or creates the mapped file described by cfg.
func (b *Builder) WithRTDB(cfg config.RTDBConfig) (*Builder, error) {
	w, err := rtdb.CreateOrOpen(cfg.Path, cfg.MaxInstances, cfg.MaxPointsPerInstance)
	if err != nil {
		return nil, err
	}
	b.svc.RTDB = w
	return b, nil
}

// WithRouting freezes the configured routing table into the runtime
// cache (§4.J).
func (b *Builder) WithRouting(cfg config.RoutingConfig) (*Builder, error) {
	routes, err := routing.Build(cfg)
	if err != nil {
		return nil, err
	}
	b.svc.Routes = routes
	return b, nil
}

// WithSlotIndex builds the channel-to-slot index once routing and the
// RTDB layout are both available (§4.F).
func (b *Builder) WithSlotIndex() *Builder {
	b.svc.Slots = channel.BuildToSlotIndex(b.svc.Routes, b.svc.RTDB.Layout())
	return b
}

// WithPollBudget bounds process-wide concurrent batch-poll buffers
// (§5 resource caps). weight <= 0 disables the cap.
func (b *Builder) WithPollBudget(weight int64) *Builder {
	if weight > 0 {
		b.svc.PollBudget = semaphore.NewWeighted(weight)
	}
	return b
}

// Build finalizes the Services value.
func (b *Builder) Build() Services { return b.svc }

// ChannelUnit is everything one configured channel needs to run: its
// pipeline, its frame logger, and the command triggers feeding it.
type ChannelUnit struct {
	Config   config.ChannelConfig
	Pipeline *channel.Pipeline
	Frames   *logging.ChannelLogger
	Triggers []*command.Trigger
}

// NewChannelUnit wires one channel's transport, adapter, pipeline,
// frame logger, and command triggers against the shared Services
// (§4.C–§4.H). queues supplies one command.Queue per command kind this
// channel accepts.
func NewChannelUnit(svc Services, cfg config.ChannelConfig, instanceID uint32, queues map[channel.CommandKind]command.Queue) (*ChannelUnit, error) {
	var conn transport.Conn
	isTCP := cfg.Protocol == config.ProtocolModbusTCP
	if isTCP {
		conn = transport.NewTCPConn(transport.TCPConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			ConnectTimeout: cfg.ConnectTimeout,
		})
	} else {
		conn = transport.NewSerialConn(transport.SerialConfig{
			Port:     cfg.SerialPort,
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			StopBits: cfg.StopBits,
			Parity:   cfg.Parity,
		})
	}

	frameLog := logging.NewChannelLogger(cfg.ID, svc.Log, 0)

	statusConn := svc.Bus.NewConnection(channelConnID(cfg.ID))
	status := func(s channel.CommandStatus) {
		statusConn.Publish(statusConn.NewMessage(CommandStatusTopic(cfg.ID), s, false))
	}

	pipeline := channel.NewPipeline(cfg, conn, isTCP, frameLog, svc.RTDB, svc.Routes, svc.Slots, instanceID, status, svc.PollBudget)
	svc.Metrics.Register(cfg.ID, cfg.Name, pipeline.Stats(), pipeline.State)

	unit := &ChannelUnit{Config: cfg, Pipeline: pipeline, Frames: frameLog}
	for kind, q := range queues {
		resolve := func(pointID uint32) (float64, bool) { return svc.RTDB.GetAction(instanceID, pointID) }
		unit.Triggers = append(unit.Triggers, command.NewTrigger(cfg.ID, kind, q, pipeline.Submit, resolve))
	}
	return unit, nil
}

func channelConnID(channelID uint32) string {
	return "channel-" + strconv.FormatUint(uint64(channelID), 10)
}

// Supervisor runs every channel unit and its triggers as one
// coordinated lifecycle: start together, stop together, first error
// wins (§9: "a task scheduler... cooperative task scheduler"; wired
// here with errgroup the way the pack's huawei-solar-mqtt-relay client
// runs its receiver/transmitter/fanout goroutines).
type Supervisor struct {
	svc   Services
	units []*ChannelUnit
	rules []*config.Rule
	exec  *rules.Executor
}

// NewSupervisor builds a Supervisor over the given channel units and
// rules (rules may be nil if none are configured).
func NewSupervisor(svc Services, units []*ChannelUnit, ruleSet []*config.Rule) *Supervisor {
	submit := func(channelID uint32, cmd channel.Command) bool {
		for _, u := range units {
			if u.Config.ID == channelID {
				return u.Pipeline.Submit(cmd)
			}
		}
		return false
	}
	return &Supervisor{
		svc:   svc,
		units: units,
		rules: ruleSet,
		exec:  rules.NewExecutor(svc.RTDB.Base, svc.Routes, submit),
	}
}

// Run starts every pipeline, frame logger, and command trigger, and
// blocks until ctx is cancelled or one of them returns a fatal error.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.svc.RTDB.RunHeartbeat(gctx)
		return nil
	})

	for _, u := range s.units {
		g.Go(func() error {
			u.Frames.Run(gctx)
			return nil
		})
		g.Go(func() error {
			u.Pipeline.Run(gctx)
			return nil
		})
		for _, trig := range u.Triggers {
			g.Go(func() error {
				trig.Run(gctx)
				return nil
			})
		}
	}

	return g.Wait()
}

// ExecuteRules runs every enabled rule once, in the order the rules
// were passed to NewSupervisor, and returns their audit records
// (§4.I). Rule.Priority is not used to reorder them. A supervisor-level scheduler
// (outside this package's scope) decides when to call this.
func (s *Supervisor) ExecuteRules() []rules.ExecutionResult {
	results := make([]rules.ExecutionResult, 0, len(s.rules))
	for _, r := range s.rules {
		if !r.Enabled {
			continue
		}
		results = append(results, s.exec.Execute(r))
	}
	return results
}
