package modbus

import "testing"

func TestCompose32Orderings(t *testing.T) {
	// 0x12345678 split as r0=0x1234 r1=0x5678 (ABCD, big-endian word order).
	cases := []struct {
		order ByteOrder
		r0    uint16
		r1    uint16
		want  uint32
	}{
		{ABCD, 0x1234, 0x5678, 0x12345678},
		{DCBA, 0x5678, 0x1234, 0x12345678},
		{BADC, 0x5678, 0x1234, 0x12345678},
		{CDAB, 0x1234, 0x5678, 0x12345678},
	}
	for _, c := range cases {
		if got := Compose32(c.r0, c.r1, c.order); got != c.want {
			t.Errorf("Compose32(%#04x, %#04x, %s) = %#08x, want %#08x", c.r0, c.r1, c.order, got, c.want)
		}
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	for _, order := range []ByteOrder{ABCD, DCBA, BADC, CDAB} {
		r0, r1 := EncodeFloat32(3.25, order)
		got := DecodeFloat32(r0, r1, order)
		if got != 3.25 {
			t.Errorf("order %s: round-trip = %v, want 3.25", order, got)
		}
	}
}

func TestDecodeStringStopsAtNUL(t *testing.T) {
	// "AB\0\0" packed high-byte-first (ABCD): one register 0x4142, one 0x0000.
	regs := []uint16{0x4142, 0x0000}
	got := DecodeString(regs, ABCD, 4)
	if got != "AB" {
		t.Errorf("DecodeString = %q, want %q", got, "AB")
	}
}

func TestDecodeStringLowByteFirst(t *testing.T) {
	// DCBA packs low byte first: register 0x4241 unpacks to "AB".
	regs := []uint16{0x4241}
	got := DecodeString(regs, DCBA, 2)
	if got != "AB" {
		t.Errorf("DecodeString = %q, want %q", got, "AB")
	}
}
