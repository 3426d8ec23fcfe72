package rtdb

import "testing"

func TestFileSizeAccountsForMeasurementAndActionSlots(t *testing.T) {
	got := FileSize(2, 4)
	want := int64(headerSize) + 2*int64(instanceIndexSize) + 2*4*2*int64(pointSlotSize)
	if got != want {
		t.Errorf("FileSize(2, 4) = %d, want %d", got, want)
	}
}
