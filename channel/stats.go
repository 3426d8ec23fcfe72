package channel

import "sync/atomic"

// Stats is a channel's rolling counters, independent of the reconnect
// threshold (§7 "live status summary"; supplemented from the
// original's RTU monitor). Safe for concurrent reads from the admin
// surface and the Prometheus collector while the pipeline goroutine
// increments them.
type Stats struct {
	framesSent    atomic.Uint64
	framesRecv    atomic.Uint64
	crcFailures   atomic.Uint64
	timeouts      atomic.Uint64
	exceptions    atomic.Uint64
	commandsOK    atomic.Uint64
	commandsFail  atomic.Uint64
}

func (s *Stats) RecordSent()      { s.framesSent.Add(1) }
func (s *Stats) RecordReceived()  { s.framesRecv.Add(1) }
func (s *Stats) RecordCRCFailure() { s.crcFailures.Add(1) }
func (s *Stats) RecordTimeout()   { s.timeouts.Add(1) }
func (s *Stats) RecordException() { s.exceptions.Add(1) }
func (s *Stats) RecordCommand(ok bool) {
	if ok {
		s.commandsOK.Add(1)
	} else {
		s.commandsFail.Add(1)
	}
}

// Snapshot is a point-in-time copy of Stats' counters, suitable for
// the admin live-status-summary contract (§7) or a Prometheus scrape.
type Snapshot struct {
	FramesSent   uint64
	FramesRecv   uint64
	CRCFailures  uint64
	Timeouts     uint64
	Exceptions   uint64
	CommandsOK   uint64
	CommandsFail uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FramesSent:   s.framesSent.Load(),
		FramesRecv:   s.framesRecv.Load(),
		CRCFailures:  s.crcFailures.Load(),
		Timeouts:     s.timeouts.Load(),
		Exceptions:   s.exceptions.Load(),
		CommandsOK:   s.commandsOK.Load(),
		CommandsFail: s.commandsFail.Load(),
	}
}
