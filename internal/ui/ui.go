// Package ui defines the host display contract. The engine's driver pumps
// Update between device tick passes; a backend copies the guest frame out of
// the pixel source under its lock and only then touches host surfaces.
package ui

// PixelSource is implemented by a framebuffer device. Pixels returns the
// current frame as 32bpp XRGB rows of Pitch bytes; the returned release
// function must be called once the caller has copied what it needs.
type PixelSource interface {
	Resolution() (width, height int)
	Pitch() int
	Pixels() (data []byte, release func())
}

// Backend drives a host display. Update is called from the engine driver at
// an unspecified cadence.
type Backend interface {
	Update() error
	Close() error
}

// Headless is the no-display backend.
type Headless struct{}

// Update implements Backend.
func (Headless) Update() error { return nil }

// Close implements Backend.
func (Headless) Close() error { return nil }
