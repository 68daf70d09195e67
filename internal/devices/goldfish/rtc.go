// Package goldfish models the goldfish virtual platform devices the guest
// kernels probe: the RTC, the events device and the battery.
package goldfish

import (
	"sync"
	"time"

	"github.com/uemu-dev/uemu/internal/emu/device"
)

const (
	RTCDefaultBase uint64 = 0x1010_1000
	rtcSize        uint64 = 0x1000

	rtcTimeLow  uint64 = 0x00
	rtcTimeHigh uint64 = 0x04
	rtcAlarmLow uint64 = 0x08
	rtcAlarmHi  uint64 = 0x0C
	rtcIrqEnab  uint64 = 0x10
	rtcClearInt uint64 = 0x14
)

// RTC exposes wall-clock time in nanoseconds. Reading TIME_LOW latches the
// high word so a 64-bit read out of two 32-bit halves is consistent.
type RTC struct {
	device.Region

	mu      sync.Mutex
	latched uint32
}

// NewRTC builds the RTC at the default base.
func NewRTC() *RTC {
	return &RTC{Region: device.NewRegion("Goldfish-RTC", RTCDefaultBase, rtcSize)}
}

// Read implements device.Device.
func (d *RTC) Read(addr uint64, size int) (uint64, bool) {
	if size != 4 {
		return 0, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch addr - d.Start() {
	case rtcTimeLow:
		now := uint64(time.Now().UnixNano())
		d.latched = uint32(now >> 32)
		return now & 0xFFFF_FFFF, true
	case rtcTimeHigh:
		return uint64(d.latched), true
	case rtcAlarmLow, rtcAlarmHi, rtcIrqEnab:
		return 0, true
	}
	return 0, false
}

// Write implements device.Device; the alarm is not modeled, writes are
// accepted and dropped.
func (d *RTC) Write(addr uint64, size int, value uint64) bool {
	if size != 4 {
		return false
	}
	switch addr - d.Start() {
	case rtcTimeLow, rtcTimeHigh, rtcAlarmLow, rtcAlarmHi, rtcIrqEnab, rtcClearInt:
		return true
	}
	return false
}

// Tick implements device.Device.
func (d *RTC) Tick() {}
