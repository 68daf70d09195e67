// Package ns16550 models a 16550-compatible UART exposed over MMIO, wired
// to a host console for byte exchange.
package ns16550

import (
	"io"
	"sync"

	"github.com/uemu-dev/uemu/internal/emu/device"
)

const (
	DefaultBase uint64 = 0x1000_0000
	Size        uint64 = 0x100

	DefaultInterruptID uint32 = 10

	queueSize = 64
)

// Register offsets.
const (
	regRxTx = 0 // RBR (read) / THR (write)
	regIER  = 1
	regIIR  = 2 // read; FCR on write
	regLCR  = 3
	regMCR  = 4
	regLSR  = 5
	regMSR  = 6
	regSCR  = 7
)

// IER bits.
const (
	ierRDI  = 0x01
	ierTHRI = 0x02
)

// IIR values.
const (
	iirNoInt = 0x01
	iirTHRI  = 0x02
	iirRDI   = 0x04
)

// FCR bits.
const (
	fcrClearRcvr = 0x02
)

// LCR bits.
const lcrDLAB = 0x80

// MCR bits.
const mcrLoop = 0x10

// LSR bits.
const (
	lsrDR   = 0x01
	lsrTHRE = 0x20
	lsrTEMT = 0x40
)

// MSR bits.
const (
	msrDCD = 0x80
	msrDSR = 0x20
	msrCTS = 0x10
)

// Device is the UART. The CPU worker reaches it through MMIO while the
// driver pumps host input through Tick, so all register state sits behind
// the mutex.
type Device struct {
	device.Region

	irq   device.IrqCallback
	irqID uint32

	out io.Writer
	in  io.Reader

	mu  sync.Mutex
	rx  []byte
	dll byte
	dlm byte
	ier byte
	iir byte
	fcr byte
	lcr byte
	mcr byte
	lsr byte
	msr byte
	scr byte
}

// New builds the UART at base. in may be nil for output-only consoles.
func New(base uint64, irq device.IrqCallback, irqID uint32, out io.Writer, in io.Reader) *Device {
	if irqID == 0 {
		irqID = DefaultInterruptID
	}
	return &Device{
		Region: device.NewRegion("NS16550", base, Size),
		irq:    irq,
		irqID:  irqID,
		out:    out,
		in:     in,
		iir:    iirNoInt,
		lsr:    lsrTHRE | lsrTEMT,
		msr:    msrDCD | msrDSR | msrCTS,
	}
}

// Tick implements device.Device: drain available host input into the RX
// queue and re-evaluate the interrupt line.
func (d *Device) Tick() {
	if d.in == nil {
		return
	}

	d.mu.Lock()
	room := queueSize - len(d.rx)
	d.mu.Unlock()
	if room <= 0 {
		return
	}

	buf := make([]byte, room)
	n, _ := d.in.Read(buf)
	if n <= 0 {
		return
	}

	d.mu.Lock()
	d.rx = append(d.rx, buf[:n]...)
	if len(d.rx) > 0 {
		d.lsr |= lsrDR
	}
	d.updateIRQ()
	d.mu.Unlock()
}

// updateIRQ is called with the mutex held.
func (d *Device) updateIRQ() {
	switch {
	case d.ier&ierRDI != 0 && d.lsr&lsrDR != 0:
		d.iir = iirRDI
	case d.ier&ierTHRI != 0 && d.lsr&lsrTHRE != 0:
		d.iir = iirTHRI
	default:
		d.iir = iirNoInt
	}

	if d.irq != nil {
		d.irq(d.irqID, d.iir != iirNoInt)
	}
}

// Read implements device.Device. Only byte-wide register accesses are
// supported; anything else is a miss.
func (d *Device) Read(addr uint64, size int) (uint64, bool) {
	if size != 1 {
		return 0, false
	}
	off := addr - d.Start()
	if off >= 8 {
		return 0, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch off {
	case regRxTx:
		if d.lcr&lcrDLAB != 0 {
			return uint64(d.dll), true
		}
		return uint64(d.rxByte()), true
	case regIER:
		if d.lcr&lcrDLAB != 0 {
			return uint64(d.dlm), true
		}
		return uint64(d.ier), true
	case regIIR:
		v := d.iir
		// Reading IIR clears a pending THRE interrupt.
		if v == iirTHRI {
			d.iir = iirNoInt
			if d.irq != nil {
				d.irq(d.irqID, false)
			}
		}
		return uint64(v), true
	case regLCR:
		return uint64(d.lcr), true
	case regMCR:
		return uint64(d.mcr), true
	case regLSR:
		return uint64(d.lsr), true
	case regMSR:
		return uint64(d.msr), true
	default:
		return uint64(d.scr), true
	}
}

// rxByte is called with the mutex held.
func (d *Device) rxByte() byte {
	if len(d.rx) == 0 {
		return 0
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	if len(d.rx) == 0 {
		d.lsr &^= lsrDR
	}
	d.updateIRQ()
	return b
}

// Write implements device.Device.
func (d *Device) Write(addr uint64, size int, value uint64) bool {
	if size != 1 {
		return false
	}
	off := addr - d.Start()
	if off >= 8 {
		return false
	}
	v := byte(value)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch off {
	case regRxTx:
		if d.lcr&lcrDLAB != 0 {
			d.dll = v
			return true
		}
		d.txByte(v)
	case regIER:
		if d.lcr&lcrDLAB != 0 {
			d.dlm = v
			return true
		}
		d.ier = v & 0x0F
		d.updateIRQ()
	case regIIR: // FCR
		d.fcr = v
		if v&fcrClearRcvr != 0 {
			d.rx = nil
			d.lsr &^= lsrDR
			d.updateIRQ()
		}
	case regLCR:
		d.lcr = v
	case regMCR:
		d.mcr = v
	case regSCR:
		d.scr = v
	}
	return true
}

// txByte is called with the mutex held.
func (d *Device) txByte(v byte) {
	if d.mcr&mcrLoop != 0 {
		// Loopback: transmitted bytes come straight back.
		if len(d.rx) < queueSize {
			d.rx = append(d.rx, v)
			d.lsr |= lsrDR
		}
	} else if d.out != nil {
		d.out.Write([]byte{v})
	}

	// Transmission is instantaneous, so THR is empty again.
	d.lsr |= lsrTHRE | lsrTEMT
	d.updateIRQ()
}
