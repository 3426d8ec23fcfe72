package modbus

import (
	"testing"
	"time"
)

func TestTrackerTCPCorrelatesByTransactionID(t *testing.T) {
	tr := NewTracker(0)
	key := tr.RegisterRequest(true, 0x01, PDU{FuncReadHoldingRegisters, 0, 1, 0, 1})

	match, err := tr.MatchResponseTCP(key.TransactionID, 0x01, PDU{FuncReadHoldingRegisters, 2, 0, 0})
	if err != nil {
		t.Fatalf("MatchResponseTCP: %v", err)
	}
	if match.Ignored {
		t.Fatal("expected a live match, got Ignored")
	}
	if tr.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after match", tr.Len())
	}
}

func TestTrackerTCPIgnoresUnknownTransaction(t *testing.T) {
	tr := NewTracker(0)
	tr.RegisterRequest(true, 0x01, PDU{FuncReadHoldingRegisters, 0, 1, 0, 1})

	match, err := tr.MatchResponseTCP(0xFFFF, 0x01, PDU{FuncReadHoldingRegisters, 2, 0, 0})
	if err != nil {
		t.Fatalf("MatchResponseTCP: %v", err)
	}
	if !match.Ignored {
		t.Fatal("expected FrameIgnored for an unknown transaction id")
	}
}

func TestTrackerTCPTransactionIDWraps(t *testing.T) {
	tr := NewTracker(0)
	tr.nextTCP = 0xFFFF
	tr.tcpInit = true

	k1 := tr.RegisterRequest(true, 0x01, PDU{FuncReadHoldingRegisters})
	k2 := tr.RegisterRequest(true, 0x01, PDU{FuncReadHoldingRegisters})
	if k1.TransactionID != 0x0000 || k2.TransactionID != 0x0001 {
		t.Errorf("expected wraparound 0xffff -> 0x0000 -> 0x0001, got %#04x, %#04x", k1.TransactionID, k2.TransactionID)
	}
}

func TestTrackerRTUPicksMostRecentCandidate(t *testing.T) {
	tr := NewTracker(0)
	tr.RegisterRequest(false, 0x02, PDU{FuncReadHoldingRegisters})
	time.Sleep(time.Millisecond)
	newest := tr.RegisterRequest(false, 0x02, PDU{FuncReadHoldingRegisters})

	match, err := tr.MatchResponseRTU(0x02, PDU{FuncReadHoldingRegisters, 0, 0})
	if err != nil {
		t.Fatalf("MatchResponseRTU: %v", err)
	}
	if match.Key != newest {
		t.Errorf("expected the most recently emitted request to match, got %+v want %+v", match.Key, newest)
	}
}

func TestTrackerRTURejectsUnmatchedResponse(t *testing.T) {
	tr := NewTracker(0)
	if _, err := tr.MatchResponseRTU(0x09, PDU{FuncReadHoldingRegisters, 0, 0}); err == nil {
		t.Fatal("expected UnexpectedResponse error for a response with no live request")
	}
}

func TestTrackerDropExpiredRemovesOldEntries(t *testing.T) {
	tr := NewTracker(0)
	tr.RegisterRequest(true, 0x01, PDU{FuncReadHoldingRegisters})
	cutoff := time.Now().Add(time.Hour) // every entry looks old relative to this

	tr.DropExpired(cutoff)
	if tr.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after DropExpired with a future cutoff", tr.Len())
	}
}
