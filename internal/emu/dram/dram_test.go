package dram

import "testing"

func TestTypedRoundTrips(t *testing.T) {
	d := New(1 << 20)

	d.Write8(Base+0x10, 0xAB)
	if got := d.Read8(Base + 0x10); got != 0xAB {
		t.Errorf("Read8 = %#x, want 0xAB", got)
	}

	d.Write16(Base+0x20, 0xBEEF)
	if got := d.Read16(Base + 0x20); got != 0xBEEF {
		t.Errorf("Read16 = %#x, want 0xBEEF", got)
	}

	d.Write32(Base+0x30, 0xDEADBEEF)
	if got := d.Read32(Base + 0x30); got != 0xDEADBEEF {
		t.Errorf("Read32 = %#x, want 0xDEADBEEF", got)
	}

	d.Write64(Base+0x40, 0xCAFEBABE_DEADC0DE)
	if got := d.Read64(Base + 0x40); got != 0xCAFEBABE_DEADC0DE {
		t.Errorf("Read64 = %#x, want 0xCAFEBABEDEADC0DE", got)
	}
}

func TestLittleEndianLayout(t *testing.T) {
	d := New(4096)

	d.Write32(Base, 0x0403_0201)
	for i := uint64(0); i < 4; i++ {
		if got := d.Read8(Base + i); got != uint8(i+1) {
			t.Errorf("byte %d = %#x, want %#x", i, got, i+1)
		}
	}
}

func TestValid(t *testing.T) {
	d := New(4096)

	cases := []struct {
		addr uint64
		len  uint64
		want bool
	}{
		{Base, 1, true},
		{Base, 4096, true},
		{Base + 4095, 1, true},
		{Base + 4095, 2, false},
		{Base + 4096, 1, false},
		{Base - 1, 1, false},
		{0, 1, false},
		{Base, 8192, false},
	}
	for _, tc := range cases {
		if got := d.Valid(tc.addr, tc.len); got != tc.want {
			t.Errorf("Valid(%#x, %d) = %v, want %v", tc.addr, tc.len, got, tc.want)
		}
	}
}

func TestByteRangeAtomicity(t *testing.T) {
	d := New(16)

	// A write straddling the end must fail without touching memory.
	if err := d.WriteBytes(Base+8, make([]byte, 16)); err == nil {
		t.Fatal("expected straddling write to fail")
	}
	for i := uint64(0); i < 16; i++ {
		if d.Read8(Base+i) != 0 {
			t.Fatalf("partial update at offset %d", i)
		}
	}

	if err := d.WriteBytes(Base, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("in-range write failed: %v", err)
	}
	buf := make([]byte, 4)
	if err := d.ReadBytes(Base, buf); err != nil {
		t.Fatalf("in-range read failed: %v", err)
	}
	if buf[0] != 1 || buf[3] != 4 {
		t.Errorf("ReadBytes = %v", buf)
	}

	if err := d.ReadBytes(Base+15, make([]byte, 2)); err == nil {
		t.Error("expected straddling read to fail")
	}
}
