package modbus

import (
	"sync"
	"time"

	"github.com/jangala-dev/comsrv/errs"
)

// RequestKey correlates an outgoing request with its eventual response.
type RequestKey struct {
	TransactionID uint16 // synthesized monotonically for RTU
	FunctionCode  byte
	SlaveID       byte
}

// RequestInfo is what the tracker remembers about a live request.
type RequestInfo struct {
	FunctionCode byte
	SlaveID      byte
	EmittedAt    time.Time
}

// Match reports the outcome of attempting to correlate a response.
type Match struct {
	Key     RequestKey
	Info    RequestInfo
	Ignored bool // FrameIgnored: response matched no live request (not an error)
}

const (
	defaultCapacity = 1000
	maxEntryAge     = 30 * time.Second
)

// Tracker is the per-channel transaction correlator (§4.B). It is
// mutated only by the owning channel pipeline — no cross-channel or
// cross-goroutine sharing is intended, but the internal mutex makes it
// safe regardless.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	byKey    map[RequestKey]RequestInfo
	order    []RequestKey // insertion order, used by the half-eviction GC
	nextTCP  uint16
	tcpInit  bool
	nextRTU  uint16
}

// NewTracker builds a tracker with the given soft capacity (0 uses the
// default of 1000).
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		byKey:    make(map[RequestKey]RequestInfo),
	}
}

// NextTransactionID returns the next TCP transaction id, wrapping
// through 0 (0xFFFF -> 0x0000 -> 0x0001 -> ...).
func (t *Tracker) NextTransactionID() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextTransactionIDLocked()
}

func (t *Tracker) nextTransactionIDLocked() uint16 {
	if !t.tcpInit {
		t.tcpInit = true
		return t.nextTCP // starts at 0
	}
	t.nextTCP++
	return t.nextTCP
}

// RegisterRequest reserves a transaction id (TCP) or a synthetic one
// (RTU) and remembers the request until it is matched or GC'd.
func (t *Tracker) RegisterRequest(isTCP bool, unitID byte, pdu PDU) RequestKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	var tid uint16
	if isTCP {
		tid = t.nextTransactionIDLocked()
	} else {
		t.nextRTU++
		tid = t.nextRTU
	}

	key := RequestKey{TransactionID: tid, FunctionCode: pdu.FunctionCode(), SlaveID: unitID}
	info := RequestInfo{FunctionCode: pdu.FunctionCode(), SlaveID: unitID, EmittedAt: time.Now()}

	t.gcLocked()
	t.byKey[key] = info
	t.order = append(t.order, key)
	return key
}

// MatchResponseTCP correlates a TCP response by transaction id.
func (t *Tracker) MatchResponseTCP(transactionID uint16, unitID byte, pdu PDU) (Match, error) {
	respFC := pdu.FunctionCode() &^ 0x80

	t.mu.Lock()
	defer t.mu.Unlock()

	key := RequestKey{} // find by transaction id regardless of stored function code/slave
	var info RequestInfo
	found := false
	for k, v := range t.byKey {
		if k.TransactionID == transactionID {
			key, info, found = k, v, true
			break
		}
	}
	if !found {
		return Match{Ignored: true}, nil
	}
	if info.FunctionCode != respFC || info.SlaveID != unitID {
		return Match{Ignored: true}, nil
	}
	delete(t.byKey, key)
	return Match{Key: key, Info: info}, nil
}

// MatchResponseRTU correlates an RTU response by (slave id, function
// code), choosing the most recently emitted candidate.
func (t *Tracker) MatchResponseRTU(unitID byte, pdu PDU) (Match, error) {
	respFC := pdu.FunctionCode() &^ 0x80

	t.mu.Lock()
	defer t.mu.Unlock()

	var bestKey RequestKey
	var bestInfo RequestInfo
	found := false
	for k, v := range t.byKey {
		if v.SlaveID != unitID || v.FunctionCode != respFC {
			continue
		}
		if !found || v.EmittedAt.After(bestInfo.EmittedAt) {
			bestKey, bestInfo, found = k, v, true
		}
	}
	if !found {
		return Match{}, errs.New(errs.Protocol, "MatchResponseRTU", "UnexpectedResponse")
	}
	delete(t.byKey, bestKey)
	return Match{Key: bestKey, Info: bestInfo}, nil
}

// DropExpired removes entries emitted before the given cutoff. The
// adapter calls this explicitly before each retry —
// timeouts never remove entries on their own (§4.B invariant).
func (t *Tracker) DropExpired(before time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range t.byKey {
		if v.EmittedAt.Before(before) {
			delete(t.byKey, k)
		}
	}
	t.compactOrderLocked()
}

// Len reports the number of live (unmatched) requests.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}

// gcLocked runs when an insertion would exceed capacity: first it ages
// out entries older than maxEntryAge, then — if still over capacity —
// it evicts the oldest half by insertion order.
func (t *Tracker) gcLocked() {
	if len(t.byKey) < t.capacity {
		return
	}
	cutoff := time.Now().Add(-maxEntryAge)
	for k, v := range t.byKey {
		if v.EmittedAt.Before(cutoff) {
			delete(t.byKey, k)
		}
	}
	if len(t.byKey) < t.capacity {
		t.compactOrderLocked()
		return
	}
	t.compactOrderLocked()
	half := len(t.order) / 2
	for i := 0; i < half; i++ {
		delete(t.byKey, t.order[i])
	}
	t.order = t.order[half:]
}

// compactOrderLocked drops order entries for keys no longer live.
func (t *Tracker) compactOrderLocked() {
	kept := t.order[:0]
	for _, k := range t.order {
		if _, ok := t.byKey[k]; ok {
			kept = append(kept, k)
		}
	}
	t.order = kept
}
