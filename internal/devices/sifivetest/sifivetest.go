// Package sifivetest models the SiFive test finisher, the MMIO register
// privileged software writes to request an orderly shutdown.
package sifivetest

import "github.com/uemu-dev/uemu/internal/emu/device"

const (
	DefaultBase uint64 = 0x10_0000
	Size        uint64 = 0x1000
)

// Status words recognized by the finisher.
const (
	StatusFail  uint16 = 0x3333
	StatusPass  uint16 = 0x5555
	StatusReset uint16 = 0x7777
)

// ShutdownFunc receives the 16-bit exit code and the status word from the
// guest's write.
type ShutdownFunc func(code uint16, status uint16)

// Device is the test finisher.
type Device struct {
	device.Region
	onShutdown ShutdownFunc
}

// New builds the finisher at the default base.
func New(onShutdown ShutdownFunc) *Device {
	return &Device{
		Region:     device.NewRegion("SiFiveTest", DefaultBase, Size),
		onShutdown: onShutdown,
	}
}

// Read implements device.Device; the finisher reads as zero.
func (d *Device) Read(addr uint64, size int) (uint64, bool) {
	return 0, true
}

// Write implements device.Device. A recognized status word at offset 0
// triggers the shutdown callback with the code from bits 31:16.
func (d *Device) Write(addr uint64, size int, value uint64) bool {
	if addr-d.Start() != 0 {
		return true
	}

	status := uint16(value)
	code := uint16(value >> 16)

	switch status {
	case StatusFail, StatusPass, StatusReset:
		d.onShutdown(code, status)
	}
	return true
}

// Tick implements device.Device.
func (d *Device) Tick() {}
