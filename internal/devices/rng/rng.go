// Package rng models a BCM2835-compatible hardware random number generator.
package rng

import (
	"math/rand/v2"
	"sync"

	"github.com/uemu-dev/uemu/internal/emu/device"
)

const (
	DefaultBase uint64 = 0x1010_4000
	Size        uint64 = 0x1000

	regCtrl   uint64 = 0x0
	regStatus uint64 = 0x4
	regData   uint64 = 0x8
)

// Device is the RNG. The status register always reports a full FIFO; data
// reads return host randomness.
type Device struct {
	device.Region

	mu      sync.Mutex
	enabled bool
}

// New builds the RNG at the default base.
func New() *Device {
	return &Device{Region: device.NewRegion("BCM2835-RNG", DefaultBase, Size)}
}

// Read implements device.Device.
func (d *Device) Read(addr uint64, size int) (uint64, bool) {
	if size != 4 {
		return 0, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch addr - d.Start() {
	case regCtrl:
		if d.enabled {
			return 1, true
		}
		return 0, true
	case regStatus:
		// Bits 31:24 count available words.
		return 0xFF << 24, true
	case regData:
		return uint64(rand.Uint32()), true
	}
	return 0, false
}

// Write implements device.Device.
func (d *Device) Write(addr uint64, size int, value uint64) bool {
	if size != 4 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch addr - d.Start() {
	case regCtrl:
		d.enabled = value&1 != 0
		return true
	case regStatus:
		return true
	}
	return false
}

// Tick implements device.Device.
func (d *Device) Tick() {}
