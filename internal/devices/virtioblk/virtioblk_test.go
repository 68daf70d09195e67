package virtioblk

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/uemu-dev/uemu/internal/emu/dram"
)

type irqRecorder struct {
	mu    sync.Mutex
	level bool
}

func (r *irqRecorder) callback(id uint32, level bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = level
}

func (r *irqRecorder) get() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

func TestIdentificationRegisters(t *testing.T) {
	ram := dram.New(1 << 20)
	disk := make(MemDisk, 1<<20)
	d := New(ram, disk, nil, 0)

	cases := []struct {
		off  uint64
		want uint64
	}{
		{regMagicValue, uint64(magicValue)},
		{regVersion, 2},
		{regDeviceID, 2},
		{regVendorID, uint64(vendorID)},
		{regQueueNumMax, queueNumMax},
	}
	for _, tc := range cases {
		v, ok := d.Read(DefaultBase+tc.off, 4)
		if !ok || v != tc.want {
			t.Errorf("reg %#x = %#x, want %#x", tc.off, v, tc.want)
		}
	}

	// Config space capacity: 1 MiB / 512 = 2048 sectors.
	v, ok := d.Read(DefaultBase+regConfig, 8)
	if !ok || v != 2048 {
		t.Errorf("capacity = %d, want 2048", v)
	}
}

// buildQueue lays out a 3-descriptor request in guest memory.
func buildQueue(ram *dram.Dram, reqType uint32, sector uint64, dataLen uint32) (descBase, availBase, usedBase, hdrAddr, dataAddr, statusAddr uint64) {
	descBase = dram.Base + 0x1000
	availBase = dram.Base + 0x2000
	usedBase = dram.Base + 0x3000
	hdrAddr = dram.Base + 0x4000
	dataAddr = dram.Base + 0x5000
	statusAddr = dram.Base + 0x6000

	writeDesc := func(idx int, addr uint64, length uint32, flags uint16, next uint16) {
		var buf [16]byte
		binary.LittleEndian.PutUint64(buf[0:], addr)
		binary.LittleEndian.PutUint32(buf[8:], length)
		binary.LittleEndian.PutUint16(buf[12:], flags)
		binary.LittleEndian.PutUint16(buf[14:], next)
		ram.WriteBytes(descBase+uint64(idx)*16, buf[:])
	}

	writeDesc(0, hdrAddr, 16, descFNext, 1)
	dataFlags := descFNext
	if reqType == reqTypeIn {
		dataFlags |= descFWrite
	}
	writeDesc(1, dataAddr, dataLen, dataFlags, 2)
	writeDesc(2, statusAddr, 1, descFWrite, 0)

	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:], reqType)
	binary.LittleEndian.PutUint64(hdr[8:], sector)
	ram.WriteBytes(hdrAddr, hdr[:])

	// avail ring: flags=0, idx=1, ring[0]=0.
	var avail [6]byte
	binary.LittleEndian.PutUint16(avail[2:], 1)
	ram.WriteBytes(availBase, avail[:])

	// used ring starts zeroed.
	ram.WriteBytes(usedBase, make([]byte, 8))
	return
}

func setupQueue(d *Device, descBase, availBase, usedBase uint64) {
	d.Write(DefaultBase+regStatus, 4, uint64(statusDriverOK))
	d.Write(DefaultBase+regQueueNum, 4, 8)
	d.Write(DefaultBase+regQueueDescLow, 4, descBase&0xFFFF_FFFF)
	d.Write(DefaultBase+regQueueDescHigh, 4, descBase>>32)
	d.Write(DefaultBase+regQueueDriverLow, 4, availBase&0xFFFF_FFFF)
	d.Write(DefaultBase+regQueueDriverHigh, 4, availBase>>32)
	d.Write(DefaultBase+regQueueDeviceLow, 4, usedBase&0xFFFF_FFFF)
	d.Write(DefaultBase+regQueueDeviceHigh, 4, usedBase>>32)
	d.Write(DefaultBase+regQueueReady, 4, 1)
}

func TestReadRequest(t *testing.T) {
	ram := dram.New(1 << 20)
	disk := make(MemDisk, 1<<20)
	copy(disk[512:], []byte("disk sector one"))

	rec := &irqRecorder{}
	d := New(ram, disk, rec.callback, 0)

	descBase, availBase, usedBase, _, dataAddr, statusAddr := buildQueue(ram, reqTypeIn, 1, 512)
	setupQueue(d, descBase, availBase, usedBase)

	d.Write(DefaultBase+regQueueNotify, 4, 0)

	// Data landed in guest memory.
	buf := make([]byte, 15)
	ram.ReadBytes(dataAddr, buf)
	if string(buf) != "disk sector one" {
		t.Errorf("data = %q", buf)
	}

	// Status byte OK.
	st := make([]byte, 1)
	ram.ReadBytes(statusAddr, st)
	if st[0] != reqStatusOK {
		t.Errorf("status = %d", st[0])
	}

	// Used ring advanced, interrupt raised.
	idx := make([]byte, 2)
	ram.ReadBytes(usedBase+2, idx)
	if binary.LittleEndian.Uint16(idx) != 1 {
		t.Errorf("used idx = %d", binary.LittleEndian.Uint16(idx))
	}
	if !rec.get() {
		t.Error("used-ring interrupt not raised")
	}
	if v, _ := d.Read(DefaultBase+regInterruptStatus, 4); v&uint64(intUsedRing) == 0 {
		t.Error("interrupt status clear")
	}

	// ACK drops the line.
	d.Write(DefaultBase+regInterruptACK, 4, uint64(intUsedRing))
	if rec.get() {
		t.Error("line still up after ACK")
	}
}

func TestWriteRequest(t *testing.T) {
	ram := dram.New(1 << 20)
	disk := make(MemDisk, 1<<20)
	d := New(ram, disk, nil, 0)

	descBase, availBase, usedBase, _, dataAddr, statusAddr := buildQueue(ram, reqTypeOut, 2, 512)
	payload := make([]byte, 512)
	copy(payload, []byte("written block"))
	ram.WriteBytes(dataAddr, payload)

	setupQueue(d, descBase, availBase, usedBase)
	d.Write(DefaultBase+regQueueNotify, 4, 0)

	st := make([]byte, 1)
	ram.ReadBytes(statusAddr, st)
	if st[0] != reqStatusOK {
		t.Fatalf("status = %d", st[0])
	}
	if string(disk[1024:1024+13]) != "written block" {
		t.Errorf("disk = %q", disk[1024:1024+13])
	}
}

func TestDeviceReset(t *testing.T) {
	ram := dram.New(1 << 20)
	d := New(ram, make(MemDisk, 1<<20), nil, 0)

	d.Write(DefaultBase+regStatus, 4, uint64(statusDriverOK))
	d.Write(DefaultBase+regQueueNum, 4, 8)
	d.Write(DefaultBase+regStatus, 4, 0)

	if v, _ := d.Read(DefaultBase+regStatus, 4); v != 0 {
		t.Errorf("status = %d after reset", v)
	}
	if v, _ := d.Read(DefaultBase+regQueueReady, 4); v != 0 {
		t.Errorf("queue ready after reset")
	}

	// Capacity survives reset.
	if v, _ := d.Read(DefaultBase+regConfig, 8); v != 2048 {
		t.Errorf("capacity = %d after reset", v)
	}
}

func TestNotifyWithoutDriverOKFails(t *testing.T) {
	ram := dram.New(1 << 20)
	d := New(ram, make(MemDisk, 1<<20), nil, 0)

	d.Write(DefaultBase+regQueueNotify, 4, 0)
	if v, _ := d.Read(DefaultBase+regStatus, 4); v&uint64(statusNeedsReset) == 0 {
		t.Error("device did not flag the protocol violation")
	}
}
