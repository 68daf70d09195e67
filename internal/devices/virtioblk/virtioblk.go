// Package virtioblk models a virtio-mmio block device (device id 2) backed
// by a disk image. Requests are served synchronously on the notify write.
package virtioblk

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/uemu-dev/uemu/internal/emu/device"
	"github.com/uemu-dev/uemu/internal/emu/dram"
)

const (
	DefaultBase uint64 = 0x1000_8000
	Size        uint64 = 0x1000

	DefaultInterruptID uint32 = 8

	magicValue  uint32 = 0x7472_6976 // "virt"
	mmioVersion uint32 = 2
	deviceID    uint32 = 2
	vendorID    uint32 = 0x1234_5678

	queueNumMax = 1024
	sectorSize  = 512

	// Feature word 1 carries VIRTIO_F_VERSION_1.
	features1 uint32 = 1

	statusDriverOK   uint32 = 4
	statusNeedsReset uint32 = 64

	intUsedRing   uint32 = 1
	intConfChange uint32 = 2

	descFNext  uint16 = 1
	descFWrite uint16 = 2

	reqTypeIn    uint32 = 0
	reqTypeOut   uint32 = 1
	reqTypeFlush uint32 = 4
	reqTypeGetID uint32 = 8

	reqStatusOK     uint8 = 0
	reqStatusIOErr  uint8 = 1
	reqStatusUnsupp uint8 = 2
)

// Register offsets.
const (
	regMagicValue        uint64 = 0x000
	regVersion           uint64 = 0x004
	regDeviceID          uint64 = 0x008
	regVendorID          uint64 = 0x00C
	regDeviceFeatures    uint64 = 0x010
	regDeviceFeaturesSel uint64 = 0x014
	regDriverFeatures    uint64 = 0x020
	regDriverFeaturesSel uint64 = 0x024
	regQueueSel          uint64 = 0x030
	regQueueNumMax       uint64 = 0x034
	regQueueNum          uint64 = 0x038
	regQueueReady        uint64 = 0x044
	regQueueNotify       uint64 = 0x050
	regInterruptStatus   uint64 = 0x060
	regInterruptACK      uint64 = 0x064
	regStatus            uint64 = 0x070
	regQueueDescLow      uint64 = 0x080
	regQueueDescHigh     uint64 = 0x084
	regQueueDriverLow    uint64 = 0x090
	regQueueDriverHigh   uint64 = 0x094
	regQueueDeviceLow    uint64 = 0x0A0
	regQueueDeviceHigh   uint64 = 0x0A4
	regConfigGeneration  uint64 = 0x0FC
	regConfig            uint64 = 0x100
)

// Disk is the backing store of the block device.
type Disk interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
	Sync() error
}

type queue struct {
	num       uint32
	ready     bool
	desc      uint64
	avail     uint64
	used      uint64
	lastAvail uint16
}

// Device is the virtio block device.
type Device struct {
	device.Region

	ram   *dram.Dram
	disk  Disk
	irq   device.IrqCallback
	irqID uint32

	mu              sync.Mutex
	status          uint32
	interruptStatus uint32
	deviceFeatSel   uint32
	driverFeatures  uint64
	driverFeatSel   uint32
	queueSel        uint32
	queue           queue
	capacity        uint64 // in 512-byte sectors
}

// New builds the device over ram and disk.
func New(ram *dram.Dram, disk Disk, irq device.IrqCallback, irqID uint32) *Device {
	if irqID == 0 {
		irqID = DefaultInterruptID
	}
	return &Device{
		Region:   device.NewRegion("VirtIO-Block", DefaultBase, Size),
		ram:      ram,
		disk:     disk,
		irq:      irq,
		irqID:    irqID,
		capacity: uint64((disk.Size() + sectorSize - 1) / sectorSize),
	}
}

// Tick implements device.Device.
func (d *Device) Tick() {}

// Read implements device.Device. The register file is 32 bits wide.
func (d *Device) Read(addr uint64, size int) (uint64, bool) {
	if size == 8 {
		lo, ok := d.Read(addr, 4)
		if !ok {
			return 0, false
		}
		hi, ok := d.Read(addr+4, 4)
		if !ok {
			return 0, false
		}
		return lo | hi<<32, true
	}
	if size != 4 && addr-d.Start() < regConfig {
		return 0, false
	}

	off := addr - d.Start()

	d.mu.Lock()
	defer d.mu.Unlock()

	switch off {
	case regMagicValue:
		return uint64(magicValue), true
	case regVersion:
		return uint64(mmioVersion), true
	case regDeviceID:
		return uint64(deviceID), true
	case regVendorID:
		return uint64(vendorID), true
	case regDeviceFeatures:
		if d.deviceFeatSel == 1 {
			return uint64(features1), true
		}
		return 0, true
	case regQueueNumMax:
		return queueNumMax, true
	case regQueueReady:
		if d.queue.ready {
			return 1, true
		}
		return 0, true
	case regInterruptStatus:
		return uint64(d.interruptStatus), true
	case regStatus:
		return uint64(d.status), true
	case regConfigGeneration:
		return 0, true
	}

	if off >= regConfig {
		return d.configRead(off-regConfig, size), true
	}
	return 0, true
}

// configRead serves the virtio-blk config space; offset 0 holds the 64-bit
// capacity in sectors. Called with the mutex held.
func (d *Device) configRead(off uint64, size int) uint64 {
	var cfg [16]byte
	binary.LittleEndian.PutUint64(cfg[0:], d.capacity)

	var v uint64
	for i := 0; i < size && off+uint64(i) < uint64(len(cfg)); i++ {
		v |= uint64(cfg[off+uint64(i)]) << (8 * i)
	}
	return v
}

// Write implements device.Device.
func (d *Device) Write(addr uint64, size int, value uint64) bool {
	if size == 8 {
		return d.Write(addr, 4, value&0xFFFF_FFFF) &&
			d.Write(addr+4, 4, value>>32)
	}
	if size != 4 {
		return false
	}

	off := addr - d.Start()
	v := uint32(value)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch off {
	case regDeviceFeaturesSel:
		d.deviceFeatSel = v
	case regDriverFeatures:
		if d.driverFeatSel == 1 {
			d.driverFeatures = d.driverFeatures&0xFFFF_FFFF | uint64(v)<<32
		} else {
			d.driverFeatures = d.driverFeatures&^uint64(0xFFFF_FFFF) | uint64(v)
		}
	case regDriverFeaturesSel:
		d.driverFeatSel = v
	case regQueueSel:
		d.queueSel = v
	case regQueueNum:
		d.queue.num = v
	case regQueueReady:
		d.queue.ready = v&1 != 0
	case regQueueNotify:
		d.notify()
	case regInterruptACK:
		d.interruptStatus &^= v
		if d.interruptStatus == 0 && d.irq != nil {
			d.irq(d.irqID, false)
		}
	case regStatus:
		d.setStatus(v)
	case regQueueDescLow:
		d.queue.desc = d.queue.desc&^uint64(0xFFFF_FFFF) | uint64(v)
	case regQueueDescHigh:
		d.queue.desc = d.queue.desc&0xFFFF_FFFF | uint64(v)<<32
	case regQueueDriverLow:
		d.queue.avail = d.queue.avail&^uint64(0xFFFF_FFFF) | uint64(v)
	case regQueueDriverHigh:
		d.queue.avail = d.queue.avail&0xFFFF_FFFF | uint64(v)<<32
	case regQueueDeviceLow:
		d.queue.used = d.queue.used&^uint64(0xFFFF_FFFF) | uint64(v)
	case regQueueDeviceHigh:
		d.queue.used = d.queue.used&0xFFFF_FFFF | uint64(v)<<32
	}
	return true
}

// setStatus is called with the mutex held; writing zero resets the device.
func (d *Device) setStatus(v uint32) {
	if v == 0 {
		d.deviceFeatSel = 0
		d.driverFeatures = 0
		d.driverFeatSel = 0
		d.queueSel = 0
		d.status = 0
		d.interruptStatus = 0
		d.queue = queue{}
		if d.irq != nil {
			d.irq(d.irqID, false)
		}
		return
	}
	d.status |= v
}

// fail marks the device broken; called with the mutex held.
func (d *Device) fail() {
	d.status |= statusNeedsReset
	if d.status&statusDriverOK != 0 {
		d.interruptStatus |= intConfChange
		if d.irq != nil {
			d.irq(d.irqID, true)
		}
	}
}

type virtqDesc struct {
	addr  uint64
	len   uint32
	flags uint16
	next  uint16
}

func (d *Device) readDesc(idx uint16) (virtqDesc, error) {
	var buf [16]byte
	addr := d.queue.desc + uint64(idx)*16
	if err := d.ram.ReadBytes(addr, buf[:]); err != nil {
		return virtqDesc{}, err
	}
	return virtqDesc{
		addr:  binary.LittleEndian.Uint64(buf[0:]),
		len:   binary.LittleEndian.Uint32(buf[8:]),
		flags: binary.LittleEndian.Uint16(buf[12:]),
		next:  binary.LittleEndian.Uint16(buf[14:]),
	}, nil
}

// notify processes all available requests; called with the mutex held.
func (d *Device) notify() {
	if d.status&statusNeedsReset != 0 {
		return
	}
	if d.status&statusDriverOK == 0 || !d.queue.ready || d.queue.num == 0 {
		d.fail()
		return
	}

	var idxBuf [2]byte
	if err := d.ram.ReadBytes(d.queue.avail+2, idxBuf[:]); err != nil {
		d.fail()
		return
	}
	availIdx := binary.LittleEndian.Uint16(idxBuf[:])

	if availIdx-d.queue.lastAvail > uint16(d.queue.num) {
		d.fail()
		return
	}
	if availIdx == d.queue.lastAvail {
		return
	}

	if err := d.ram.ReadBytes(d.queue.used+2, idxBuf[:]); err != nil {
		d.fail()
		return
	}
	usedIdx := binary.LittleEndian.Uint16(idxBuf[:])

	for d.queue.lastAvail != availIdx {
		slot := uint64(d.queue.lastAvail % uint16(d.queue.num))

		var headBuf [2]byte
		if err := d.ram.ReadBytes(d.queue.avail+4+slot*2, headBuf[:]); err != nil {
			d.fail()
			return
		}
		head := binary.LittleEndian.Uint16(headBuf[:])

		written, err := d.handleRequest(head)
		if err != nil {
			d.fail()
			return
		}

		usedSlot := uint64(usedIdx%uint16(d.queue.num))
		var elem [8]byte
		binary.LittleEndian.PutUint32(elem[0:], uint32(head))
		binary.LittleEndian.PutUint32(elem[4:], written)
		if err := d.ram.WriteBytes(d.queue.used+4+usedSlot*8, elem[:]); err != nil {
			d.fail()
			return
		}

		d.queue.lastAvail++
		usedIdx++
	}

	binary.LittleEndian.PutUint16(idxBuf[:], usedIdx)
	if err := d.ram.WriteBytes(d.queue.used+2, idxBuf[:]); err != nil {
		d.fail()
		return
	}

	var flagsBuf [2]byte
	if err := d.ram.ReadBytes(d.queue.avail, flagsBuf[:]); err != nil {
		d.fail()
		return
	}
	if binary.LittleEndian.Uint16(flagsBuf[:])&1 == 0 {
		d.interruptStatus |= intUsedRing
		if d.irq != nil {
			d.irq(d.irqID, true)
		}
	}
}

// handleRequest walks the three-descriptor chain (header, data, status) and
// performs the disk operation. Returns the number of bytes written to the
// data descriptor.
func (d *Device) handleRequest(head uint16) (uint32, error) {
	var descs [3]virtqDesc
	idx := head
	for i := range descs {
		desc, err := d.readDesc(idx)
		if err != nil {
			return 0, err
		}
		descs[i] = desc
		idx = desc.next
	}

	if descs[0].flags&descFNext == 0 || descs[1].flags&descFNext == 0 ||
		descs[2].flags&descFNext != 0 {
		return 0, fmt.Errorf("virtio-blk: malformed descriptor chain")
	}

	var hdr [16]byte
	if err := d.ram.ReadBytes(descs[0].addr, hdr[:]); err != nil {
		return 0, err
	}
	reqType := binary.LittleEndian.Uint32(hdr[0:])
	sector := binary.LittleEndian.Uint64(hdr[8:])

	status := reqStatusOK
	var written uint32

	switch reqType {
	case reqTypeIn:
		buf := make([]byte, descs[1].len)
		if _, err := d.disk.ReadAt(buf, int64(sector)*sectorSize); err != nil && err != io.EOF {
			status = reqStatusIOErr
		} else if err := d.ram.WriteBytes(descs[1].addr, buf); err != nil {
			status = reqStatusIOErr
		} else {
			written = descs[1].len
		}
	case reqTypeOut:
		buf := make([]byte, descs[1].len)
		if err := d.ram.ReadBytes(descs[1].addr, buf); err != nil {
			status = reqStatusIOErr
		} else if _, err := d.disk.WriteAt(buf, int64(sector)*sectorSize); err != nil {
			status = reqStatusIOErr
		}
	case reqTypeFlush:
		if err := d.disk.Sync(); err != nil {
			status = reqStatusIOErr
		}
	case reqTypeGetID:
		id := []byte("SERIAL0001")
		if err := d.ram.WriteBytes(descs[1].addr, id); err != nil {
			status = reqStatusIOErr
		} else {
			written = uint32(len(id))
		}
	default:
		status = reqStatusUnsupp
	}

	if err := d.ram.WriteBytes(descs[2].addr, []byte{status}); err != nil {
		return 0, err
	}
	return written, nil
}

// FileDisk backs the device with a file image.
type FileDisk struct {
	f    *os.File
	size int64
}

// OpenFileDisk opens (or creates, with createSize bytes) a disk image.
func OpenFileDisk(path string, createSize int64) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if os.IsNotExist(err) {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err == nil {
			err = f.Truncate(createSize)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("virtio-blk: open disk %q: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDisk{f: f, size: st.Size()}, nil
}

// ReadAt implements Disk.
func (d *FileDisk) ReadAt(p []byte, off int64) (int, error) { return d.f.ReadAt(p, off) }

// WriteAt implements Disk.
func (d *FileDisk) WriteAt(p []byte, off int64) (int, error) { return d.f.WriteAt(p, off) }

// Size implements Disk.
func (d *FileDisk) Size() int64 { return d.size }

// Sync implements Disk.
func (d *FileDisk) Sync() error { return d.f.Sync() }

// Close releases the image file.
func (d *FileDisk) Close() error { return d.f.Close() }

// MemDisk is an in-memory disk image, used by tests.
type MemDisk []byte

// ReadAt implements Disk.
func (d MemDisk) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d)) {
		return 0, io.EOF
	}
	n := copy(p, d[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements Disk.
func (d MemDisk) WriteAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d)) {
		return 0, io.ErrShortWrite
	}
	n := copy(d[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Size implements Disk.
func (d MemDisk) Size() int64 { return int64(len(d)) }

// Sync implements Disk.
func (d MemDisk) Sync() error { return nil }
