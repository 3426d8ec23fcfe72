package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jangala-dev/comsrv/errs"
)

// TCPConfig carries the parameters the teacher's worker-config style
// gathers into one struct: identity plus timings (§3 ChannelConfig
// mode-specific parameters).
type TCPConfig struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
}

// TCPConn owns one TCP socket for one Modbus TCP channel.
type TCPConn struct {
	cfg TCPConfig

	mu        sync.Mutex
	conn      net.Conn
	state     State
	errCount  int
	headerBuf [7]byte
}

func NewTCPConn(cfg TCPConfig) *TCPConn {
	return &TCPConn{cfg: cfg, state: Disconnected}
}

func (c *TCPConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *TCPConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected
}

func (c *TCPConn) ResetErrorCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errCount = 0
}

// Connect resolves host:port, applies TCP_NODELAY, and honors the
// configured connect deadline (§4.C TCP connect semantics).
func (c *TCPConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	d := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	dctx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		c.mu.Lock()
		c.state = Faulted
		c.mu.Unlock()
		if dctx.Err() != nil {
			return errs.Wrap(errs.Timeout, "Connect", err)
		}
		return errs.Wrap(errs.Connection, "Connect", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = Connected
	c.errCount = 0
	c.mu.Unlock()
	return nil
}

func (c *TCPConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = Disconnected
	return nil
}

func (c *TCPConn) Send(b []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrIllegalState("Send")
	}
	_, err := conn.Write(b)
	if err != nil {
		return errs.Wrap(errs.Io, "Send", err)
	}
	return nil
}

// Receive reads exactly the 7-byte MBAP header, then exactly
// length-1 more bytes, both under the same deadline. A partial read
// spanning the header/body boundary never reports a complete frame
// (§4.C TCP receive semantics).
func (c *TCPConn) Receive(ctx context.Context, deadline time.Time) ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrIllegalState("Receive")
	}
	if !deadline.IsZero() {
		_ = conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}

	if _, err := readFull(conn, c.headerBuf[:]); err != nil {
		return nil, classifyReadErr(err)
	}
	length := int(c.headerBuf[4])<<8 | int(c.headerBuf[5])
	if length < 2 || length > 254 {
		return nil, errs.New(errs.Protocol, "Receive", "FrameLengthMismatch")
	}
	body := make([]byte, length-1)
	if _, err := readFull(conn, body); err != nil {
		return nil, classifyReadErr(err)
	}
	out := make([]byte, 0, 7+len(body))
	out = append(out, c.headerBuf[:]...)
	out = append(out, body...)
	return out, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func classifyReadErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errs.Wrap(errs.Timeout, "Receive", err)
	}
	return errs.Wrap(errs.Io, "Receive", err)
}
