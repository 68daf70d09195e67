// Package simplefb models a dumb linear framebuffer: guest stores paint
// pixels, the UI backend copies frames out through the pixel-source
// contract.
package simplefb

import (
	"encoding/binary"
	"sync"

	"github.com/uemu-dev/uemu/internal/emu/device"
	"github.com/uemu-dev/uemu/internal/ui"
)

const (
	DefaultBase   uint64 = 0x5000_0000
	DefaultWidth         = 640
	DefaultHeight        = 480
	bytesPerPixel        = 4 // 32bpp XRGB
)

// Device is the framebuffer.
type Device struct {
	device.Region

	width  int
	height int

	mu  sync.Mutex
	mem []byte
}

var _ ui.PixelSource = (*Device)(nil)

// New builds a framebuffer at base with the given geometry.
func New(base uint64, width, height int) *Device {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	size := uint64(width * height * bytesPerPixel)
	return &Device{
		Region: device.NewRegion("SimpleFB", base, size),
		width:  width,
		height: height,
		mem:    make([]byte, size),
	}
}

// Resolution implements ui.PixelSource.
func (d *Device) Resolution() (int, int) {
	return d.width, d.height
}

// Pitch implements ui.PixelSource.
func (d *Device) Pitch() int {
	return d.width * bytesPerPixel
}

// Pixels implements ui.PixelSource. The backend copies what it needs and
// releases the lock before touching any host surface.
func (d *Device) Pixels() ([]byte, func()) {
	d.mu.Lock()
	return d.mem, d.mu.Unlock
}

// Read implements device.Device.
func (d *Device) Read(addr uint64, size int) (uint64, bool) {
	off := addr - d.Start()
	if off+uint64(size) > uint64(len(d.mem)) {
		return 0, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

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

// Write implements device.Device.
func (d *Device) Write(addr uint64, size int, value uint64) bool {
	off := addr - d.Start()
	if off+uint64(size) > uint64(len(d.mem)) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch size {
	case 1:
		d.mem[off] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(d.mem[off:], uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(d.mem[off:], uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(d.mem[off:], value)
	default:
		return false
	}
	return true
}

// Tick implements device.Device.
func (d *Device) Tick() {}
