// Package transport owns the per-channel connection lifecycle: one TCP
// socket or one serial port, reconnected with bounded backoff, with IO
// errors surfaced upward for the channel pipeline to act on (§4.C).
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/jangala-dev/comsrv/errs"
	"github.com/jangala-dev/comsrv/x/mathx"
)

// State is one of the connection manager's lifecycle states.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Faulted
	Cooldown
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Faulted:
		return "faulted"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Conn is the narrow contract the protocol adapter and channel
// pipeline rely on; TCP and RTU connection managers both satisfy it.
type Conn interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Send(b []byte) error
	// Receive reads one frame's worth of bytes under deadline. The
	// returned slice is only valid until the next call.
	Receive(ctx context.Context, deadline time.Time) ([]byte, error)
	State() State
	ResetErrorCounter()
}

// Backoff returns the exponential reconnect delay before the attempt
// that follows `failures` consecutive failures: 1s, 2s, 4s, 8s, 16s,
// 30s, 30s, ... (capped at 30s).
func Backoff(failures int) time.Duration {
	failures = mathx.Max(failures, 0)
	d := time.Second
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= 30*time.Second {
			return 30 * time.Second
		}
	}
	return mathx.Min(d, 30*time.Second)
}

// Retrier drives a Conn's reconnect policy: exponential backoff up to
// maxConsecutive failures, then a Cooldown window during which further
// attempts are rejected outright. One Retrier is owned by exactly one
// channel pipeline, alongside the Conn it retries.
type Retrier struct {
	mu             sync.Mutex
	conn           Conn
	maxConsecutive int
	cooldown       time.Duration
	sleep          func(time.Duration)

	consecutiveFailures int
	cooldownUntil       time.Time
}

// NewRetrier builds a Retrier around conn. A nil sleep function uses
// time.Sleep; tests inject a no-op or recording sleeper.
func NewRetrier(conn Conn, maxConsecutive int, cooldown time.Duration, sleep func(time.Duration)) *Retrier {
	if maxConsecutive <= 0 {
		maxConsecutive = 1
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Retrier{conn: conn, maxConsecutive: maxConsecutive, cooldown: cooldown, sleep: sleep}
}

// Attempt performs exactly one connect attempt, preceded by the
// backoff delay appropriate to the current consecutive-failure count.
// If the manager is within a Cooldown window it returns (false, nil)
// immediately without attempting or sleeping.
func (r *Retrier) Attempt(ctx context.Context) (connected bool, err error) {
	r.mu.Lock()
	if !r.cooldownUntil.IsZero() {
		if time.Now().Before(r.cooldownUntil) {
			r.mu.Unlock()
			return false, nil
		}
		r.cooldownUntil = time.Time{}
		r.consecutiveFailures = 0
	}
	delay := Backoff(r.consecutiveFailures)
	r.mu.Unlock()

	r.sleep(delay)

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	connErr := r.conn.Connect(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if connErr == nil {
		r.consecutiveFailures = 0
		return true, nil
	}
	r.consecutiveFailures++
	if r.consecutiveFailures >= r.maxConsecutive {
		r.cooldownUntil = time.Now().Add(r.cooldown)
	}
	return false, connErr
}

// InCooldown reports whether the retrier is currently rejecting
// attempts.
func (r *Retrier) InCooldown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.cooldownUntil.IsZero() && time.Now().Before(r.cooldownUntil)
}

// ErrIllegalState is returned when an operation is attempted in a
// state that forbids it (e.g. Send before Connect).
func ErrIllegalState(op string) error {
	return errs.New(errs.State, op, "illegal in current connection state")
}
