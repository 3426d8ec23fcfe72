package channel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jangala-dev/comsrv/config"
	"github.com/jangala-dev/comsrv/errs"
	"github.com/jangala-dev/comsrv/protocol/modbus"
	"github.com/jangala-dev/comsrv/routing"
	"github.com/jangala-dev/comsrv/rtdb"
	"github.com/jangala-dev/comsrv/transport"
)

// State is one of the pipeline's lifecycle states (§4.G).
type State int

const (
	Stopped State = iota
	Starting
	Running
	Recovering
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}

const defaultCommandQueueDepth = 64

// StatusSink receives every command-status publication (§6). The
// supervisor wires this to a bus.Connection publishing on the
// per-channel command-status topic.
type StatusSink func(CommandStatus)

// Pipeline is one channel's actor: polling loop, command drain,
// reconnection policy, publication to the RTDB and the command-status
// sink (§4.G). Exactly one goroutine runs Pipeline.Run for its
// lifetime.
type Pipeline struct {
	cfg     config.ChannelConfig
	conn    transport.Conn
	adapter *modbus.Adapter
	retrier *transport.Retrier
	writer  *rtdb.Writer
	routes  *routing.Cache
	slots   *ToSlotIndex
	status  StatusSink
	stats   *Stats
	table   *RegisterTable

	instanceID        uint32 // this channel's owning instance, for action slot mirroring
	measurementByAddr []pollGroup
	actionByPointID   map[uint32]config.ChannelPoint

	// bufSem bounds the process-wide count of concurrently outstanding
	// batch-poll transient buffers (§5 resource caps); shared across
	// every channel's Pipeline.
	bufSem *semaphore.Weighted

	commandQ chan Command

	mu              sync.Mutex
	state           State
	consecutiveErrs int

	now func() time.Time
}

// NewPipeline builds a Pipeline. instanceID identifies the instance
// whose action slots this channel mirrors writes into (a channel
// normally serves one instance's action points).
func NewPipeline(
	cfg config.ChannelConfig,
	conn transport.Conn,
	isTCP bool,
	log modbus.FrameLogger,
	writer *rtdb.Writer,
	routes *routing.Cache,
	slots *ToSlotIndex,
	instanceID uint32,
	status StatusSink,
	bufSem *semaphore.Weighted,
) *Pipeline {
	depth := cfg.CommandQueueDepth
	if depth <= 0 {
		depth = defaultCommandQueueDepth
	}
	actionByID := make(map[uint32]config.ChannelPoint, len(cfg.Action))
	for _, p := range cfg.Action {
		actionByID[p.PointID] = p
	}

	maxConsecutive := cfg.MaxConsecutiveFail
	if maxConsecutive <= 0 {
		maxConsecutive = 5
	}
	cooldown := cfg.CooldownDuration
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &Pipeline{
		cfg:               cfg,
		conn:              conn,
		adapter:           modbus.NewAdapter(conn, isTCP, cfg.RetryCount, log),
		retrier:           transport.NewRetrier(conn, maxConsecutive, cooldown, nil),
		writer:            writer,
		routes:            routes,
		slots:             slots,
		status:            status,
		stats:             &Stats{},
		table:             BuildRegisterTable(cfg.ID, cfg.Measurement, cfg.Action),
		instanceID:        instanceID,
		measurementByAddr: buildPollGroups(cfg.SlaveID, cfg.Measurement),
		actionByPointID:   actionByID,
		bufSem:            bufSem,
		commandQ:          make(chan Command, depth),
		state:             Stopped,
		now:               time.Now,
	}
}

// Stats returns the channel's rolling frame/command counters.
func (p *Pipeline) Stats() *Stats { return p.stats }

// State reports the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Submit enqueues a command for this pipeline to execute on its next
// tick. Non-blocking: drops the oldest queued command to make room
// rather than blocking the trigger (§4.H delivers "to the pipeline's
// input channel").
func (p *Pipeline) Submit(cmd Command) bool {
	select {
	case p.commandQ <- cmd:
		return true
	default:
		select {
		case <-p.commandQ:
		default:
		}
		select {
		case p.commandQ <- cmd:
			return true
		default:
			return false
		}
	}
}

// Run drives the pipeline until ctx is cancelled, at which point
// queued commands are published Cancelled and the connection is
// dropped cleanly (§4.G cancellation).
func (p *Pipeline) Run(ctx context.Context) {
	p.setState(Starting)
	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.setState(Running)
	for {
		select {
		case <-ctx.Done():
			p.cancelQueued()
			_ = p.conn.Disconnect()
			p.setState(Stopped)
			return
		case <-ticker.C:
			p.tick(ctx, interval)
		}
	}
}

func (p *Pipeline) cancelQueued() {
	for {
		select {
		case cmd := <-p.commandQ:
			p.publish(CommandStatus{CommandID: cmd.CommandID, Status: StatusCancelled, TimestampMs: p.now().UnixMilli()})
		default:
			return
		}
	}
}

func (p *Pipeline) tick(ctx context.Context, interval time.Duration) {
	if p.State() == Recovering {
		p.attemptReconnect(ctx)
		return
	}
	start := p.now()

	ioErr := p.drainCommands(ctx, interval, start)
	if !p.conn.IsConnected() {
		p.enterRecovering(ctx)
		return
	}
	if err := p.pollMeasurements(ctx, interval, start); err != nil {
		ioErr = ioErr || errs.Of(err) == errs.Io
	}
	p.writer.Heartbeat(p.now())

	if ioErr {
		p.mu.Lock()
		p.consecutiveErrs++
		threshold := p.cfg.IOErrorThreshold
		if threshold <= 0 {
			threshold = 3
		}
		exceeded := p.consecutiveErrs >= threshold
		p.mu.Unlock()
		if exceeded {
			p.enterRecovering(ctx)
		}
	} else {
		p.mu.Lock()
		p.consecutiveErrs = 0
		p.mu.Unlock()
	}
}

func (p *Pipeline) enterRecovering(ctx context.Context) {
	p.setState(Recovering)
	_ = p.conn.Disconnect()
	p.mu.Lock()
	p.consecutiveErrs = 0
	p.mu.Unlock()
	p.attemptReconnect(ctx)
}

func (p *Pipeline) attemptReconnect(ctx context.Context) {
	connected, _ := p.retrier.Attempt(ctx)
	if connected {
		p.conn.ResetErrorCounter()
		p.setState(Running)
	}
}

// drainCommands executes up to every queued command whose timestamp
// is in the past (§4.G step 1, default batch cap: all due commands).
// Returns true if any command hit an IO error.
func (p *Pipeline) drainCommands(ctx context.Context, interval time.Duration, start time.Time) bool {
	ioErr := false
	for {
		var cmd Command
		select {
		case cmd = <-p.commandQ:
		default:
			return ioErr
		}
		if cmd.TimestampMs > start.UnixMilli() {
			// future-dated: not yet due, requeue and stop this tick's drain
			p.Submit(cmd)
			return ioErr
		}
		if p.executeCommand(ctx, cmd, interval, start) {
			ioErr = true
		}
	}
}

func (p *Pipeline) executeCommand(ctx context.Context, cmd Command, interval time.Duration, start time.Time) (ioErr bool) {
	p.publish(CommandStatus{CommandID: cmd.CommandID, Status: StatusExecuting, TimestampMs: p.now().UnixMilli()})

	target, ok := p.routes.A2C(p.instanceID, cmd.PointID)
	if !ok {
		p.publish(CommandStatus{CommandID: cmd.CommandID, Status: StatusFailed, Error: "NotFound", TimestampMs: p.now().UnixMilli()})
		return false
	}
	point, ok := p.actionByPointID[target.ChannelPointID]
	if !ok {
		p.publish(CommandStatus{CommandID: cmd.CommandID, Status: StatusFailed, Error: "Config", TimestampMs: p.now().UnixMilli()})
		return false
	}

	deadline := deadlineFor(start, interval, p.cfg.RequestTimeout)
	err := p.writePoint(ctx, point, cmd.Value, deadline)
	if err != nil {
		if errs.Of(err) == errs.Io {
			ioErr = true
		}
		p.stats.RecordCommand(false)
		p.publish(CommandStatus{CommandID: cmd.CommandID, Status: StatusFailed, Error: string(errs.Of(err)), TimestampMs: p.now().UnixMilli()})
		return ioErr
	}

	// Mirror into the RTDB before publishing Success (§4.G ordering
	// guarantee).
	p.writer.SetAction(p.instanceID, target.ChannelPointID, cmd.Value, p.now().UnixMilli())
	p.stats.RecordCommand(true)
	result := cmd.Value
	p.publish(CommandStatus{CommandID: cmd.CommandID, Status: StatusSuccess, Result: &result, TimestampMs: p.now().UnixMilli()})
	return false
}

func (p *Pipeline) writePoint(ctx context.Context, point config.ChannelPoint, value float64, deadline time.Time) error {
	switch point.FunctionCode {
	case modbus.FuncWriteSingleCoil:
		return p.adapter.WriteSingleCoil(ctx, p.cfg.SlaveID, point.Address, value != 0, deadline)
	case modbus.FuncWriteSingleRegister:
		return p.adapter.WriteSingleRegister(ctx, p.cfg.SlaveID, point.Address, encodeRegisterValue(point, value), deadline)
	default:
		return errs.New(errs.Config, "writePoint", "unsupported write function code")
	}
}

func encodeRegisterValue(point config.ChannelPoint, value float64) uint16 {
	raw := (value - point.Offset)
	if point.Scale != 0 {
		raw /= point.Scale
	}
	return uint16(int32(raw))
}

func (p *Pipeline) pollMeasurements(ctx context.Context, interval time.Duration, start time.Time) error {
	if len(p.measurementByAddr) == 0 {
		return nil
	}
	if p.bufSem != nil {
		if err := p.bufSem.Acquire(ctx, 1); err != nil {
			return errs.Wrap(errs.Io, "pollMeasurements", err)
		}
		defer p.bufSem.Release(1)
	}

	batchGroups := make([]modbus.BatchGroup, len(p.measurementByAddr))
	for i, g := range p.measurementByAddr {
		batchGroups[i] = g.toBatchGroup()
	}
	deadline := deadlineFor(start, interval, p.cfg.RequestTimeout)
	results, err := p.adapter.PollBatch(ctx, batchGroups, deadline)
	p.recordPollOutcome(err)
	for i, res := range results {
		g := p.measurementByAddr[i]
		for _, dp := range decodeGroup(g, res.Registers) {
			off, ok := p.slots.Lookup(p.cfg.ID, config.Measurement, dp.point.PointID)
			if !ok {
				continue
			}
			p.writer.SetDirect(off, dp.value, dp.raw, p.now().UnixMilli())
		}
	}
	return err
}

func (p *Pipeline) recordPollOutcome(err error) {
	p.stats.RecordSent()
	if err == nil {
		p.stats.RecordReceived()
		return
	}
	switch errs.Of(err) {
	case errs.Timeout:
		p.stats.RecordTimeout()
	case errs.Protocol:
		if _, ok := err.(*modbus.ModbusException); ok {
			p.stats.RecordException()
		} else {
			p.stats.RecordCRCFailure()
		}
	}
}

func deadlineFor(start time.Time, interval, requestTimeout time.Duration) time.Time {
	elapsed := time.Since(start)
	remaining := interval - elapsed
	if requestTimeout > 0 && requestTimeout < remaining {
		remaining = requestTimeout
	}
	if remaining <= 0 {
		remaining = requestTimeout
	}
	return start.Add(elapsed + remaining)
}

func (p *Pipeline) publish(s CommandStatus) {
	if p.status != nil {
		p.status(s)
	}
}
