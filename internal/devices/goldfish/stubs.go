package goldfish

import "github.com/uemu-dev/uemu/internal/emu/device"

const (
	EventsDefaultBase  uint64 = 0x1010_2000
	BatteryDefaultBase uint64 = 0x1010_3000
	stubSize           uint64 = 0x1000

	batteryIsPresent uint64 = 0x00
	batteryCapacity  uint64 = 0x04
	batteryStatus    uint64 = 0x08
)

// Events is the goldfish input events device. No input source is attached;
// the register file reads as empty so probing kernels see a quiescent
// device.
type Events struct {
	device.Region
}

// NewEvents builds the events stub.
func NewEvents() *Events {
	return &Events{Region: device.NewRegion("Goldfish-Events", EventsDefaultBase, stubSize)}
}

// Read implements device.Device.
func (d *Events) Read(addr uint64, size int) (uint64, bool) {
	if size != 4 {
		return 0, false
	}
	return 0, true
}

// Write implements device.Device.
func (d *Events) Write(addr uint64, size int, value uint64) bool {
	return size == 4
}

// Tick implements device.Device.
func (d *Events) Tick() {}

// Battery reports a permanently full, present battery.
type Battery struct {
	device.Region
}

// NewBattery builds the battery stub.
func NewBattery() *Battery {
	return &Battery{Region: device.NewRegion("Goldfish-Battery", BatteryDefaultBase, stubSize)}
}

// Read implements device.Device.
func (d *Battery) Read(addr uint64, size int) (uint64, bool) {
	if size != 4 {
		return 0, false
	}
	switch addr - d.Start() {
	case batteryIsPresent:
		return 1, true
	case batteryCapacity:
		return 100, true
	case batteryStatus:
		return 0, true
	}
	return 0, true
}

// Write implements device.Device.
func (d *Battery) Write(addr uint64, size int, value uint64) bool {
	return size == 4
}

// Tick implements device.Device.
func (d *Battery) Tick() {}
