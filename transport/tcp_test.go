package transport

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestTCPConnSendReceiveRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	frame := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x03, 0x11, 0x03, 0x02}
	go func() {
		srv, err := ln.Accept()
		if err != nil {
			return
		}
		defer srv.Close()
		srv.Write(frame)
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	portN, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("Atoi(%q): %v", port, err)
	}

	conn := NewTCPConn(TCPConfig{Host: host, Port: portN, ConnectTimeout: time.Second})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Disconnect()

	got, err := conn.Receive(context.Background(), time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != string(frame) {
		t.Errorf("Receive = %v, want %v", got, frame)
	}
}

func TestTCPConnReceiveBeforeConnectIsIllegalState(t *testing.T) {
	conn := NewTCPConn(TCPConfig{Host: "127.0.0.1", Port: 1})
	if _, err := conn.Receive(context.Background(), time.Time{}); err == nil {
		t.Fatal("expected illegal-state error before Connect")
	}
}

func TestTCPConnConnectTimesOutOnUnroutableAddress(t *testing.T) {
	conn := NewTCPConn(TCPConfig{Host: "10.255.255.1", Port: 1, ConnectTimeout: 50 * time.Millisecond})
	err := conn.Connect(context.Background())
	if err == nil {
		t.Fatal("expected connect to fail against an unroutable address within the timeout")
	}
}

