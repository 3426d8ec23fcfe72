package transport

import (
	"context"
	"sync"
	"time"

	"github.com/goburrow/serial"

	"github.com/jangala-dev/comsrv/errs"
	"github.com/jangala-dev/comsrv/x/shmring"
)

// rtuRingSize bounds one accumulated RTU frame; 256 covers every
// function code this repo decodes with room to spare, and is a power
// of two as shmring requires.
const rtuRingSize = 256

// interFrameGap is the relaxed Modbus t3.5 idle gap (§4.C, §6): a run
// of bytes is considered one RTU frame once this much silence follows
// it.
const interFrameGap = 50 * time.Millisecond

// SerialConfig mirrors ChannelConfig's RTU mode-specific parameters.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int    // 5-8
	StopBits int    // 1-2
	Parity   string // "N" none, "E" even, "O" odd
}

// SerialConn owns one serial port for one Modbus RTU channel. No
// inter-device reset sequence is performed on connect (§4.C).
type SerialConn struct {
	cfg SerialConfig

	mu       sync.Mutex
	port     serial.Port
	state    State
	errCount int
	ring     *shmring.Ring
}

func NewSerialConn(cfg SerialConfig) *SerialConn {
	return &SerialConn{cfg: cfg, state: Disconnected, ring: shmring.New(rtuRingSize)}
}

func (c *SerialConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SerialConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected
}

func (c *SerialConn) ResetErrorCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errCount = 0
}

func (c *SerialConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	parity := c.cfg.Parity
	if parity == "" {
		parity = "N"
	}
	stopBits := c.cfg.StopBits
	if stopBits == 0 {
		stopBits = 1
	}
	dataBits := c.cfg.DataBits
	if dataBits == 0 {
		dataBits = 8
	}

	port, err := serial.Open(&serial.Config{
		Address:  c.cfg.Port,
		BaudRate: c.cfg.BaudRate,
		DataBits: dataBits,
		StopBits: stopBits,
		Parity:   parity,
	})
	if err != nil {
		c.mu.Lock()
		c.state = Faulted
		c.mu.Unlock()
		return errs.Wrap(errs.Connection, "Connect", err)
	}

	c.mu.Lock()
	c.port = port
	c.state = Connected
	c.errCount = 0
	c.mu.Unlock()
	return nil
}

func (c *SerialConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port != nil {
		_ = c.port.Close()
		c.port = nil
	}
	c.state = Disconnected
	return nil
}

func (c *SerialConn) Send(b []byte) error {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return ErrIllegalState("Send")
	}
	if _, err := port.Write(b); err != nil {
		return errs.Wrap(errs.Io, "Send", err)
	}
	return nil
}

// Receive reads bytes until an inter-byte idle gap of >= interFrameGap
// is observed or the outer deadline fires (§4.C RTU receive
// semantics). Fewer than 4 bytes at the outer deadline is a Timeout;
// otherwise whatever was read is returned for the codec to validate.
func (c *SerialConn) Receive(ctx context.Context, deadline time.Time) ([]byte, error) {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return nil, ErrIllegalState("Receive")
	}

	// The ring starts empty (rd==wr) from the previous call's full
	// drain below, so it's safe to reuse across frames.
	chunk := make([]byte, 256)

	for {
		remaining := time.Until(deadline)
		if !deadline.IsZero() && remaining <= 0 {
			break
		}
		readWindow := interFrameGap
		if !deadline.IsZero() && remaining < readWindow {
			readWindow = remaining
		}

		n, err := readWithTimeout(port, chunk, readWindow)
		if n > 0 {
			c.ring.TryWriteFrom(chunk[:n]) // max RTU ADU is 256B; overflow past that can't be a valid frame anyway
			continue // more bytes arrived before the idle gap fired; keep reading
		}
		if err != nil && !isTimeoutLike(err) {
			return nil, errs.Wrap(errs.Io, "Receive", err)
		}
		// Either the inter-byte idle gap elapsed (no bytes this
		// window) or a genuine read timeout — both mean "frame done".
		break
	}

	buf := make([]byte, c.ring.Available())
	c.ring.TryReadInto(buf)

	if len(buf) < 4 {
		return nil, errs.New(errs.Timeout, "Receive", "insufficient bytes at deadline")
	}
	return buf, nil
}

// readWithTimeout issues one bounded read on the serial port. Some
// serial.Port implementations support a read timeout natively; when
// they don't, this falls back to a plain Read bounded by the caller's
// windowing (the port itself is typically opened with a device-level
// read timeout already, per goburrow/serial convention).
func readWithTimeout(port serial.Port, buf []byte, window time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := port.Read(buf)
		done <- result{n, err}
	}()
	select {
	case r := <-done:
		return r.n, r.err
	case <-time.After(window):
		return 0, errs.New(errs.Timeout, "readWithTimeout", "idle window elapsed")
	}
}

func isTimeoutLike(err error) bool {
	return errs.Is(err, errs.Timeout)
}
