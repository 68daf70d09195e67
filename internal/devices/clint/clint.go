// Package clint models the core-local interruptor: the machine software
// interrupt register, the machine timer and its compare register, and the
// supervisor timer via stimecmp.
package clint

import (
	"sync"
	"time"

	"github.com/uemu-dev/uemu/internal/emu/csr"
	"github.com/uemu-dev/uemu/internal/emu/device"
	"github.com/uemu-dev/uemu/internal/emu/hart"
)

const (
	DefaultBase uint64 = 0x200_0000
	Size        uint64 = 0x1_0000
	DefaultFreq uint64 = 10_000_000 // 10 MHz timebase

	msipOffset     uint64 = 0x0
	mtimecmpOffset uint64 = 0x4000
	mtimeOffset    uint64 = 0xBFF8
)

// Device is the CLINT. mtime advances with the host monotonic clock; Tick
// re-evaluates MTIP/STIP and mirrors mtime into the time CSR.
type Device struct {
	device.Region

	hart     *hart.Hart
	stimecmp *csr.AtomicReg
	menvcfg  *csr.AtomicReg
	timeCSR  *csr.AtomicReg

	mu        sync.Mutex
	mtime     uint64
	mtimecmp  uint64
	startTime time.Time
	freqHz    uint64
}

// New builds a CLINT driving the given hart's interrupt bits.
func New(h *hart.Hart, freqHz uint64) *Device {
	if freqHz == 0 {
		freqHz = DefaultFreq
	}
	return &Device{
		Region:    device.NewRegion("CLINT", DefaultBase, Size),
		hart:      h,
		stimecmp:  h.CSRs.STimecmp(),
		menvcfg:   h.CSRs.MEnvCfg(),
		timeCSR:   h.CSRs.Time(),
		mtimecmp:  ^uint64(0),
		startTime: time.Now(),
		freqHz:    freqHz,
	}
}

// Tick implements device.Device; called from the driver goroutine.
func (d *Device) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	d.mtime = uint64(elapsed.Seconds() * float64(d.freqHz))
	d.updateTimers()
}

// updateTimers is called with the mutex held.
func (d *Device) updateTimers() {
	d.timeCSR.WriteUnchecked(d.mtime)
	d.hart.SetInterruptPending(csr.IntMTI, d.mtime >= d.mtimecmp)

	if d.menvcfg.ReadUnchecked()&csr.EnvCfgSTCE != 0 {
		d.hart.SetInterruptPending(csr.IntSTI, d.mtime >= d.stimecmp.ReadUnchecked())
	}
}

// Read implements device.Device.
func (d *Device) Read(addr uint64, size int) (uint64, bool) {
	if size > 8 {
		return 0, false
	}
	off := addr - d.Start()

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case off < msipOffset+4:
		msip := uint64(0)
		if d.hart.CSRs.Mip().ReadUnchecked()&csr.IntMSI != 0 {
			msip = 1
		}
		return device.ReadLE(msip, off-msipOffset, size), true
	case off >= mtimecmpOffset && off < mtimecmpOffset+8:
		return device.ReadLE(d.mtimecmp, off-mtimecmpOffset, size), true
	case off >= mtimeOffset && off < mtimeOffset+8:
		return device.ReadLE(d.mtime, off-mtimeOffset, size), true
	}
	return 0, false
}

// Write implements device.Device.
func (d *Device) Write(addr uint64, size int, value uint64) bool {
	off := addr - d.Start()

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case off < msipOffset+4:
		var msip uint64
		msip = device.WriteLE(msip, off-msipOffset, size, value)
		d.hart.SetInterruptPending(csr.IntMSI, msip&1 != 0)
	case off >= mtimecmpOffset && off < mtimecmpOffset+8:
		d.mtimecmp = device.WriteLE(d.mtimecmp, off-mtimecmpOffset, size, value)
		d.updateTimers()
	case off >= mtimeOffset && off < mtimeOffset+8:
		d.mtime = device.WriteLE(d.mtime, off-mtimeOffset, size, value)
		// Rebase the host clock so the written value keeps advancing.
		d.startTime = time.Now().Add(-time.Duration(float64(d.mtime) / float64(d.freqHz) * float64(time.Second)))
		d.updateTimers()
	default:
		return false
	}
	return true
}
