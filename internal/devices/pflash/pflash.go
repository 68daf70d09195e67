// Package pflash models a CFI-01 parallel NOR flash in its read-array and
// CFI-query modes, enough for firmware that probes the part and reads it.
package pflash

import (
	"encoding/binary"
	"sync"

	"github.com/uemu-dev/uemu/internal/emu/device"
)

const (
	DefaultBase uint64 = 0x2000_0000

	cmdReadArray byte = 0xFF
	cmdCFIQuery  byte = 0x98
)

// Device is the flash.
type Device struct {
	device.Region

	mu    sync.Mutex
	mem   []byte
	query bool
	cfi   [0x80]byte
}

// New builds a flash region holding image; the region size is the image
// size.
func New(base uint64, image []byte) *Device {
	d := &Device{
		Region: device.NewRegion("CFI-Flash", base, uint64(len(image))),
		mem:    image,
	}

	// Minimal CFI table: "QRY", Intel command set (0x0001), size.
	d.cfi[0x10] = 'Q'
	d.cfi[0x11] = 'R'
	d.cfi[0x12] = 'Y'
	d.cfi[0x13] = 0x01
	sizeLog2 := byte(0)
	for sz := uint64(len(image)); sz > 1; sz >>= 1 {
		sizeLog2++
	}
	d.cfi[0x27] = sizeLog2
	return d
}

// Read implements device.Device.
func (d *Device) Read(addr uint64, size int) (uint64, bool) {
	off := addr - d.Start()
	if off+uint64(size) > uint64(len(d.mem)) {
		return 0, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.query {
		idx := (off >> 1) & 0x7F
		return uint64(d.cfi[idx]), true
	}

	switch size {
	case 1:
		return uint64(d.mem[off]), true
	case 2:
		return uint64(binary.LittleEndian.Uint16(d.mem[off:])), true
	case 4:
		return uint64(binary.LittleEndian.Uint32(d.mem[off:])), true
	case 8:
		return binary.LittleEndian.Uint64(d.mem[off:]), true
	}
	return 0, false
}

// Write implements device.Device; only the mode-switch commands are
// honored, programming is not modeled.
func (d *Device) Write(addr uint64, size int, value uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch byte(value) {
	case cmdCFIQuery:
		d.query = true
	case cmdReadArray:
		d.query = false
	}
	return true
}

// Tick implements device.Device.
func (d *Device) Tick() {}
