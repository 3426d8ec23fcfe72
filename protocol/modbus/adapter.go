package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/jangala-dev/comsrv/errs"
	"github.com/jangala-dev/comsrv/transport"
)

// retryDelay is the fixed pause between adapter-level retries on
// Timeout or FrameIgnored (§4.D).
const retryDelay = 100 * time.Millisecond

// FrameLogger receives a copy of every wire frame for audit logging.
// Implementations must never block the caller (§4.K); the logging
// package's ChannelLogger is the production implementation.
type FrameLogger interface {
	LogFrame(direction string, transactionID *uint16, slaveID, functionCode byte, raw []byte)
}

type noopLogger struct{}

func (noopLogger) LogFrame(string, *uint16, byte, byte, []byte) {}

// Adapter composes the frame codec, transaction tracker, and
// connection manager into the typed operations the channel pipeline
// calls (§4.D). One Adapter serves exactly one channel.
type Adapter struct {
	conn    transport.Conn
	tracker *Tracker
	isTCP   bool
	log     FrameLogger

	mu         sync.Mutex // per-channel request mutex: one in flight at a time
	retries    int
	unitIDDflt byte
}

// NewAdapter builds an adapter over a connection manager. isTCP
// selects MBAP vs RTU framing; retries is the count of adapter-level
// retry attempts on Timeout/FrameIgnored (0 disables retrying).
func NewAdapter(conn transport.Conn, isTCP bool, retries int, log FrameLogger) *Adapter {
	if log == nil {
		log = noopLogger{}
	}
	if retries < 0 {
		retries = 0
	}
	return &Adapter{
		conn:    conn,
		tracker: NewTracker(0),
		isTCP:   isTCP,
		log:     log,
		retries: retries,
	}
}

// SendAndReceive is the primitive every typed operation builds on. It
// holds the per-channel request mutex for its whole duration, retries
// on Timeout/FrameIgnored up to the configured count, and never
// retries IoError — that decision belongs to the pipeline.
func (a *Adapter) SendAndReceive(ctx context.Context, slaveID byte, pdu PDU, deadline time.Time) (PDU, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	attempts := a.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			a.tracker.DropExpired(time.Now().Add(-retryDelay))
		}

		respPDU, err := a.attemptOnce(ctx, slaveID, pdu, deadline)
		if err == nil {
			return respPDU, nil
		}
		lastErr = err
		if errs.Of(err) == errs.Io {
			return nil, err // pipeline decides: count error, maybe reconnect
		}
		var pe *errs.E
		ignored := errors.As(err, &pe) && pe.C == errs.Protocol &&
			(pe.Msg == "FrameIgnored" || pe.Msg == "UnexpectedResponse")
		if errs.Of(err) != errs.Timeout && !ignored {
			return nil, err
		}
		// Timeout, FrameIgnored (TCP) or UnexpectedResponse (RTU) -> retry.
	}
	return nil, lastErr
}

func (a *Adapter) attemptOnce(ctx context.Context, slaveID byte, pdu PDU, deadline time.Time) (PDU, error) {
	key := a.tracker.RegisterRequest(a.isTCP, slaveID, pdu)

	var wire []byte
	var txID *uint16
	if a.isTCP {
		wire = EncodeTCP(slaveID, pdu, key.TransactionID)
		tid := key.TransactionID
		txID = &tid
	} else {
		wire = EncodeRTU(slaveID, pdu)
	}
	a.log.LogFrame("TX", txID, slaveID, pdu.FunctionCode(), wire)

	if err := a.conn.Send(wire); err != nil {
		return nil, err
	}

	raw, err := a.conn.Receive(ctx, deadline)
	if err != nil {
		return nil, err
	}

	var respUnitID byte
	var respPDU PDU
	if a.isTCP {
		var tid uint16
		respUnitID, tid, respPDU, err = DecodeTCP(raw)
		if err != nil {
			return nil, err
		}
		a.log.LogFrame("RX", &tid, respUnitID, respPDU.FunctionCode(), raw)
		match, merr := a.tracker.MatchResponseTCP(tid, respUnitID, respPDU)
		if merr != nil {
			return nil, merr
		}
		if match.Ignored {
			return nil, errs.New(errs.Protocol, "SendAndReceive", "FrameIgnored")
		}
	} else {
		respUnitID, respPDU, err = DecodeRTU(raw)
		if err != nil {
			return nil, err
		}
		a.log.LogFrame("RX", nil, respUnitID, respPDU.FunctionCode(), raw)
		if _, merr := a.tracker.MatchResponseRTU(respUnitID, respPDU); merr != nil {
			return nil, merr // Protocol/UnexpectedResponse, retried like FrameIgnored
		}
	}

	if IsException(respPDU) {
		base, code, eerr := ParseException(respPDU)
		if eerr != nil {
			return nil, eerr
		}
		return nil, &ModbusException{BaseFunctionCode: base, ExceptionCode: code}
	}
	return respPDU, nil
}

// ReadCoils reads `quantity` coils starting at address and returns
// their boolean states in order.
func (a *Adapter) ReadCoils(ctx context.Context, slaveID byte, address, quantity uint16, deadline time.Time) ([]bool, error) {
	return a.readBits(ctx, FuncReadCoils, slaveID, address, quantity, deadline)
}

// ReadDiscreteInputs reads `quantity` discrete inputs starting at address.
func (a *Adapter) ReadDiscreteInputs(ctx context.Context, slaveID byte, address, quantity uint16, deadline time.Time) ([]bool, error) {
	return a.readBits(ctx, FuncReadDiscreteInputs, slaveID, address, quantity, deadline)
}

func (a *Adapter) readBits(ctx context.Context, fc byte, slaveID byte, address, quantity uint16, deadline time.Time) ([]bool, error) {
	req := make([]byte, 5)
	req[0] = fc
	binary.BigEndian.PutUint16(req[1:3], address)
	binary.BigEndian.PutUint16(req[3:5], quantity)
	reqPDU, err := NewPDU(req)
	if err != nil {
		return nil, err
	}
	respPDU, err := a.SendAndReceive(ctx, slaveID, reqPDU, deadline)
	if err != nil {
		return nil, err
	}
	if len(respPDU) < 2 {
		return nil, errs.New(errs.Protocol, "readBits", "truncated response")
	}
	byteCount := int(respPDU[1])
	if len(respPDU) < 2+byteCount {
		return nil, errs.New(errs.Protocol, "readBits", "truncated response")
	}
	out := make([]bool, quantity)
	for i := 0; i < int(quantity); i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		out[i] = respPDU[2+byteIdx]&(1<<bitIdx) != 0
	}
	return out, nil
}

// ReadHoldingRegisters reads `quantity` holding registers starting at address.
func (a *Adapter) ReadHoldingRegisters(ctx context.Context, slaveID byte, address, quantity uint16, deadline time.Time) ([]uint16, error) {
	return a.readRegisters(ctx, FuncReadHoldingRegisters, slaveID, address, quantity, deadline)
}

// ReadInputRegisters reads `quantity` input registers starting at address.
func (a *Adapter) ReadInputRegisters(ctx context.Context, slaveID byte, address, quantity uint16, deadline time.Time) ([]uint16, error) {
	return a.readRegisters(ctx, FuncReadInputRegisters, slaveID, address, quantity, deadline)
}

func (a *Adapter) readRegisters(ctx context.Context, fc byte, slaveID byte, address, quantity uint16, deadline time.Time) ([]uint16, error) {
	req := make([]byte, 5)
	req[0] = fc
	binary.BigEndian.PutUint16(req[1:3], address)
	binary.BigEndian.PutUint16(req[3:5], quantity)
	reqPDU, err := NewPDU(req)
	if err != nil {
		return nil, err
	}
	respPDU, err := a.SendAndReceive(ctx, slaveID, reqPDU, deadline)
	if err != nil {
		return nil, err
	}
	return decodeRegisters(respPDU, int(quantity))
}

func decodeRegisters(respPDU PDU, quantity int) ([]uint16, error) {
	if len(respPDU) < 2 {
		return nil, errs.New(errs.Protocol, "decodeRegisters", "truncated response")
	}
	byteCount := int(respPDU[1])
	if byteCount != quantity*2 || len(respPDU) < 2+byteCount {
		return nil, errs.New(errs.Protocol, "decodeRegisters", "FrameLengthMismatch")
	}
	out := make([]uint16, quantity)
	for i := 0; i < quantity; i++ {
		out[i] = binary.BigEndian.Uint16(respPDU[2+i*2 : 4+i*2])
	}
	return out, nil
}

// WriteSingleCoil writes a single coil. value true encodes as 0xFF00,
// false as 0x0000 (standard Modbus convention).
func (a *Adapter) WriteSingleCoil(ctx context.Context, slaveID byte, address uint16, value bool, deadline time.Time) error {
	v := uint16(0x0000)
	if value {
		v = 0xFF00
	}
	req := make([]byte, 5)
	req[0] = FuncWriteSingleCoil
	binary.BigEndian.PutUint16(req[1:3], address)
	binary.BigEndian.PutUint16(req[3:5], v)
	reqPDU, err := NewPDU(req)
	if err != nil {
		return err
	}
	_, err = a.SendAndReceive(ctx, slaveID, reqPDU, deadline)
	return err
}

// WriteSingleRegister writes a single holding register.
func (a *Adapter) WriteSingleRegister(ctx context.Context, slaveID byte, address, value uint16, deadline time.Time) error {
	req := make([]byte, 5)
	req[0] = FuncWriteSingleRegister
	binary.BigEndian.PutUint16(req[1:3], address)
	binary.BigEndian.PutUint16(req[3:5], value)
	reqPDU, err := NewPDU(req)
	if err != nil {
		return err
	}
	_, err = a.SendAndReceive(ctx, slaveID, reqPDU, deadline)
	return err
}

// WriteMultipleCoils writes a run of coils starting at address.
func (a *Adapter) WriteMultipleCoils(ctx context.Context, slaveID byte, address uint16, values []bool, deadline time.Time) error {
	byteCount := (len(values) + 7) / 8
	req := make([]byte, 6+byteCount)
	req[0] = FuncWriteMultipleCoils
	binary.BigEndian.PutUint16(req[1:3], address)
	binary.BigEndian.PutUint16(req[3:5], uint16(len(values)))
	req[5] = byte(byteCount)
	for i, v := range values {
		if v {
			req[6+i/8] |= 1 << uint(i%8)
		}
	}
	reqPDU, err := NewPDU(req)
	if err != nil {
		return err
	}
	_, err = a.SendAndReceive(ctx, slaveID, reqPDU, deadline)
	return err
}

// WriteMultipleRegisters writes a run of holding registers starting at address.
func (a *Adapter) WriteMultipleRegisters(ctx context.Context, slaveID byte, address uint16, values []uint16, deadline time.Time) error {
	req := make([]byte, 6+2*len(values))
	req[0] = FuncWriteMultipleRegs
	binary.BigEndian.PutUint16(req[1:3], address)
	binary.BigEndian.PutUint16(req[3:5], uint16(len(values)))
	req[5] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(req[6+i*2:8+i*2], v)
	}
	reqPDU, err := NewPDU(req)
	if err != nil {
		return err
	}
	_, err = a.SendAndReceive(ctx, slaveID, reqPDU, deadline)
	return err
}

// BatchGroup is a coalesced poll request: a contiguous register range
// sharing one function code and slave id, plus the slot identities the
// caller will align each returned value against (§4.D batch poll).
type BatchGroup struct {
	FunctionCode  byte
	SlaveID       byte
	StartAddress  uint16
	Quantity      uint16
	ExpectedSlots []int // opaque to the adapter; echoed back for alignment
}

// BatchResult pairs a group's raw register values with its expected
// slot identities, in order. Scaling to engineering values is the
// pipeline's concern, not the adapter's.
type BatchResult struct {
	Group     BatchGroup
	Registers []uint16
}

// PollBatch issues one read per group and returns the raw values
// aligned with each group's ExpectedSlots.
func (a *Adapter) PollBatch(ctx context.Context, groups []BatchGroup, deadline time.Time) ([]BatchResult, error) {
	out := make([]BatchResult, 0, len(groups))
	for _, g := range groups {
		var regs []uint16
		var err error
		switch g.FunctionCode {
		case FuncReadHoldingRegisters:
			regs, err = a.ReadHoldingRegisters(ctx, g.SlaveID, g.StartAddress, g.Quantity, deadline)
		case FuncReadInputRegisters:
			regs, err = a.ReadInputRegisters(ctx, g.SlaveID, g.StartAddress, g.Quantity, deadline)
		case FuncReadCoils:
			bits, berr := a.ReadCoils(ctx, g.SlaveID, g.StartAddress, g.Quantity, deadline)
			err = berr
			if err == nil {
				regs = bitsToRegs(bits)
			}
		case FuncReadDiscreteInputs:
			bits, berr := a.ReadDiscreteInputs(ctx, g.SlaveID, g.StartAddress, g.Quantity, deadline)
			err = berr
			if err == nil {
				regs = bitsToRegs(bits)
			}
		default:
			err = errs.New(errs.Config, "PollBatch", "unsupported function code for batch read")
		}
		if err != nil {
			return out, err
		}
		out = append(out, BatchResult{Group: g, Registers: regs})
	}
	return out, nil
}

func bitsToRegs(bits []bool) []uint16 {
	regs := make([]uint16, len(bits))
	for i, b := range bits {
		if b {
			regs[i] = 1
		}
	}
	return regs
}
