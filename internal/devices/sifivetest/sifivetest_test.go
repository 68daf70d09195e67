package sifivetest

import "testing"

func TestShutdownDecode(t *testing.T) {
	var gotCode, gotStatus uint16
	calls := 0

	d := New(func(code, status uint16) {
		gotCode, gotStatus = code, status
		calls++
	})

	// PASS with code 0.
	if !d.Write(DefaultBase, 4, 0x5555) {
		t.Fatal("write missed")
	}
	if calls != 1 || gotStatus != StatusPass || gotCode != 0 {
		t.Errorf("calls=%d status=%#x code=%d", calls, gotStatus, gotCode)
	}

	// FAIL with code 7.
	d.Write(DefaultBase, 4, 7<<16|0x3333)
	if calls != 2 || gotStatus != StatusFail || gotCode != 7 {
		t.Errorf("calls=%d status=%#x code=%d", calls, gotStatus, gotCode)
	}

	// RESET.
	d.Write(DefaultBase, 4, 0x7777)
	if calls != 3 || gotStatus != StatusReset {
		t.Errorf("calls=%d status=%#x", calls, gotStatus)
	}

	// Unrecognized status words are ignored.
	d.Write(DefaultBase, 4, 0x1234)
	if calls != 3 {
		t.Error("unrecognized status invoked the callback")
	}

	// Writes off the trigger register are accepted but inert.
	d.Write(DefaultBase+8, 4, 0x5555)
	if calls != 3 {
		t.Error("offset 8 invoked the callback")
	}

	if v, ok := d.Read(DefaultBase, 4); !ok || v != 0 {
		t.Errorf("read = %d, %v", v, ok)
	}
}
