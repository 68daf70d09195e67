package bus

import (
	"fmt"

	"github.com/uemu-dev/uemu/internal/emu/device"
	"github.com/uemu-dev/uemu/internal/emu/dram"
)

// Bus routes physical addresses to DRAM or to one of the registered
// memory-mapped devices. DRAM is the fast path; devices are consulted in
// registration order.
type Bus struct {
	dram    *dram.Dram
	devices []device.Device
}

// New builds a bus over the given DRAM.
func New(d *dram.Dram) *Bus {
	return &Bus{dram: d}
}

// Dram returns the backing store, used by loaders.
func (b *Bus) Dram() *dram.Dram {
	return b.dram
}

// AddDevice registers a device. The device's range must not overlap DRAM or
// any previously registered device; overlap is a machine misconfiguration
// and fails hard.
func (b *Bus) AddDevice(dev device.Device) error {
	if dev == nil {
		return fmt.Errorf("bus: attempted to add a nil device")
	}

	dramStart := dram.Base
	dramEnd := dram.Base + b.dram.Size() - 1
	if overlap(dev.Start(), dev.End(), dramStart, dramEnd) {
		return fmt.Errorf("bus: device %q [%#x-%#x] overlaps DRAM [%#x-%#x]",
			dev.Name(), dev.Start(), dev.End(), dramStart, dramEnd)
	}

	for _, existing := range b.devices {
		if overlap(dev.Start(), dev.End(), existing.Start(), existing.End()) {
			return fmt.Errorf("bus: device %q [%#x-%#x] overlaps device %q [%#x-%#x]",
				dev.Name(), dev.Start(), dev.End(),
				existing.Name(), existing.Start(), existing.End())
		}
	}

	b.devices = append(b.devices, dev)
	return nil
}

func overlap(s1, e1, s2, e2 uint64) bool {
	return max(s1, s2) <= min(e1, e2)
}

// Accessible reports whether any owner (DRAM or device) covers addr. The MMU
// uses it to pre-check misaligned accesses before committing any byte.
func (b *Bus) Accessible(addr uint64) bool {
	if b.dram.Valid(addr, 1) {
		return true
	}
	for _, dev := range b.devices {
		if dev.Contains(addr, 1) {
			return true
		}
	}
	return false
}

// Read8 reads one byte; the second result is false when no owner claims the
// address.
func (b *Bus) Read8(addr uint64) (uint8, bool) {
	if b.dram.Valid(addr, 1) {
		return b.dram.Read8(addr), true
	}
	v, ok := b.deviceRead(addr, 1)
	return uint8(v), ok
}

// Read16 reads a little-endian halfword.
func (b *Bus) Read16(addr uint64) (uint16, bool) {
	if b.dram.Valid(addr, 2) {
		return b.dram.Read16(addr), true
	}
	v, ok := b.deviceRead(addr, 2)
	return uint16(v), ok
}

// Read32 reads a little-endian word.
func (b *Bus) Read32(addr uint64) (uint32, bool) {
	if b.dram.Valid(addr, 4) {
		return b.dram.Read32(addr), true
	}
	v, ok := b.deviceRead(addr, 4)
	return uint32(v), ok
}

// Read64 reads a little-endian doubleword.
func (b *Bus) Read64(addr uint64) (uint64, bool) {
	if b.dram.Valid(addr, 8) {
		return b.dram.Read64(addr), true
	}
	return b.deviceRead(addr, 8)
}

// Write8 stores one byte; false when no owner claims the address.
func (b *Bus) Write8(addr uint64, v uint8) bool {
	if b.dram.Valid(addr, 1) {
		b.dram.Write8(addr, v)
		return true
	}
	return b.deviceWrite(addr, 1, uint64(v))
}

// Write16 stores a little-endian halfword.
func (b *Bus) Write16(addr uint64, v uint16) bool {
	if b.dram.Valid(addr, 2) {
		b.dram.Write16(addr, v)
		return true
	}
	return b.deviceWrite(addr, 2, uint64(v))
}

// Write32 stores a little-endian word.
func (b *Bus) Write32(addr uint64, v uint32) bool {
	if b.dram.Valid(addr, 4) {
		b.dram.Write32(addr, v)
		return true
	}
	return b.deviceWrite(addr, 4, uint64(v))
}

// Write64 stores a little-endian doubleword.
func (b *Bus) Write64(addr uint64, v uint64) bool {
	if b.dram.Valid(addr, 8) {
		b.dram.Write64(addr, v)
		return true
	}
	return b.deviceWrite(addr, 8, v)
}

func (b *Bus) deviceRead(addr uint64, size int) (uint64, bool) {
	for _, dev := range b.devices {
		if dev.Contains(addr, uint64(size)) {
			return dev.Read(addr, size)
		}
	}
	return 0, false
}

func (b *Bus) deviceWrite(addr uint64, size int, value uint64) bool {
	for _, dev := range b.devices {
		if dev.Contains(addr, uint64(size)) {
			return dev.Write(addr, size, value)
		}
	}
	return false
}

// TickDevices broadcasts the periodic tick to every device. Called from the
// driver goroutine only.
func (b *Bus) TickDevices() {
	for _, dev := range b.devices {
		dev.Tick()
	}
}
