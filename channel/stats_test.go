package channel

import "testing"

func TestStatsSnapshotReflectsRecordedCounters(t *testing.T) {
	var s Stats
	s.RecordSent()
	s.RecordSent()
	s.RecordReceived()
	s.RecordCRCFailure()
	s.RecordTimeout()
	s.RecordException()
	s.RecordCommand(true)
	s.RecordCommand(false)
	s.RecordCommand(false)

	got := s.Snapshot()
	want := Snapshot{
		FramesSent:   2,
		FramesRecv:   1,
		CRCFailures:  1,
		Timeouts:     1,
		Exceptions:   1,
		CommandsOK:   1,
		CommandsFail: 2,
	}
	if got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestStatsSnapshotIsIndependentCopy(t *testing.T) {
	var s Stats
	s.RecordSent()
	snap := s.Snapshot()
	s.RecordSent()
	if snap.FramesSent != 1 {
		t.Errorf("snapshot mutated after further recording: FramesSent = %d, want 1", snap.FramesSent)
	}
}
