package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDoublesUpToCap(t *testing.T) {
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{-1, time.Second}, // negative clamps to 0
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, c := range cases {
		if got := Backoff(c.failures); got != c.want {
			t.Errorf("Backoff(%d) = %v, want %v", c.failures, got, c.want)
		}
	}
}

type fakeConn struct {
	connectErr error
}

func (f *fakeConn) Connect(ctx context.Context) error { return f.connectErr }
func (f *fakeConn) Disconnect() error                 { return nil }
func (f *fakeConn) IsConnected() bool                 { return f.connectErr == nil }
func (f *fakeConn) Send(b []byte) error                { return nil }
func (f *fakeConn) Receive(ctx context.Context, deadline time.Time) ([]byte, error) {
	return nil, nil
}
func (f *fakeConn) State() State       { return Disconnected }
func (f *fakeConn) ResetErrorCounter() {}

func TestRetrierEntersCooldownAfterMaxConsecutiveFailures(t *testing.T) {
	conn := &fakeConn{connectErr: errors.New("refused")}
	var slept []time.Duration
	r := NewRetrier(conn, 3, 500*time.Millisecond, func(d time.Duration) { slept = append(slept, d) })

	for i := 0; i < 3; i++ {
		connected, err := r.Attempt(context.Background())
		if connected || err == nil {
			t.Fatalf("attempt %d: expected a failed connect, got connected=%v err=%v", i, connected, err)
		}
	}
	if !r.InCooldown() {
		t.Fatal("expected retrier to be in cooldown after 3 consecutive failures")
	}

	connected, err := r.Attempt(context.Background())
	if connected || err != nil {
		t.Fatalf("expected cooldown to short-circuit the attempt, got connected=%v err=%v", connected, err)
	}
	if len(slept) != 3 {
		t.Errorf("expected exactly 3 backoff sleeps before cooldown, got %d", len(slept))
	}
}

func TestRetrierResetsOnSuccess(t *testing.T) {
	conn := &fakeConn{connectErr: errors.New("refused")}
	r := NewRetrier(conn, 2, time.Second, func(time.Duration) {})

	r.Attempt(context.Background())
	conn.connectErr = nil
	connected, err := r.Attempt(context.Background())
	if !connected || err != nil {
		t.Fatalf("expected success, got connected=%v err=%v", connected, err)
	}
	if r.InCooldown() {
		t.Fatal("expected a successful connect to clear cooldown state")
	}
}
