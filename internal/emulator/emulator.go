// Package emulator assembles the machine: DRAM, bus, hart, MMU, the device
// complement and the execution engine.
package emulator

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/uemu-dev/uemu/internal/devices/clint"
	"github.com/uemu-dev/uemu/internal/devices/goldfish"
	"github.com/uemu-dev/uemu/internal/devices/ns16550"
	"github.com/uemu-dev/uemu/internal/devices/pflash"
	"github.com/uemu-dev/uemu/internal/devices/plic"
	"github.com/uemu-dev/uemu/internal/devices/rng"
	"github.com/uemu-dev/uemu/internal/devices/sifivetest"
	"github.com/uemu-dev/uemu/internal/devices/simplefb"
	"github.com/uemu-dev/uemu/internal/devices/virtioblk"
	"github.com/uemu-dev/uemu/internal/emu/bus"
	"github.com/uemu-dev/uemu/internal/emu/dram"
	"github.com/uemu-dev/uemu/internal/emu/engine"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/loader"
	"github.com/uemu-dev/uemu/internal/ui"
)

// Emulator is one assembled machine.
type Emulator struct {
	hart   *hart.Hart
	dram   *dram.Dram
	bus    *bus.Bus
	mmu    *mmu.MMU
	engine *engine.Engine

	plic *plic.Device
	disk *virtioblk.FileDisk

	fb *simplefb.Device
}

// New builds a machine from the config. conIn/conOut carry the UART byte
// stream; backend may be nil for headless operation.
func New(cfg Config, conIn io.Reader, conOut io.Writer, backend ui.Backend) (*Emulator, error) {
	if cfg.MemoryMB == 0 {
		return nil, fmt.Errorf("emulator: memory size must be positive")
	}

	e := &Emulator{}
	e.dram = dram.New(cfg.MemoryMB << 20)
	e.bus = bus.New(e.dram)
	e.hart = hart.New()
	e.mmu = mmu.New(e.hart, e.bus)

	freq := cfg.TimerFreqHz
	if freq == 0 {
		freq = clint.DefaultFreq
	}

	e.plic = plic.New(e.hart, 31)

	if err := e.bus.AddDevice(e.plic); err != nil {
		return nil, err
	}
	if err := e.bus.AddDevice(clint.New(e.hart, freq)); err != nil {
		return nil, err
	}

	uart := ns16550.New(ns16550.DefaultBase, e.plic.IrqLine(), ns16550.DefaultInterruptID, conOut, conIn)
	if err := e.bus.AddDevice(uart); err != nil {
		return nil, err
	}

	if err := e.bus.AddDevice(goldfish.NewRTC()); err != nil {
		return nil, err
	}
	if err := e.bus.AddDevice(goldfish.NewEvents()); err != nil {
		return nil, err
	}
	if err := e.bus.AddDevice(goldfish.NewBattery()); err != nil {
		return nil, err
	}
	if err := e.bus.AddDevice(rng.New()); err != nil {
		return nil, err
	}

	if cfg.Disk != "" {
		disk, err := virtioblk.OpenFileDisk(cfg.Disk, cfg.DiskCreateMB<<20)
		if err != nil {
			return nil, err
		}
		e.disk = disk
		blk := virtioblk.New(e.dram, disk, e.plic.IrqLine(), virtioblk.DefaultInterruptID)
		if err := e.bus.AddDevice(blk); err != nil {
			return nil, err
		}
	}

	if cfg.Flash != "" {
		image, err := os.ReadFile(cfg.Flash)
		if err != nil {
			return nil, fmt.Errorf("emulator: read flash image: %w", err)
		}
		if err := e.bus.AddDevice(pflash.New(pflash.DefaultBase, image)); err != nil {
			return nil, err
		}
	}

	if cfg.Framebuffer {
		e.fb = simplefb.New(simplefb.DefaultBase, cfg.FramebufferWidth, cfg.FramebufferHeight)
		if err := e.bus.AddDevice(e.fb); err != nil {
			return nil, err
		}
	}

	e.engine = engine.New(e.hart, e.mmu, e.bus, backend)
	e.engine.SetTrace(cfg.TraceInstructions)

	test := sifivetest.New(func(code, status uint16) {
		slog.Info("guest shutdown", "code", code, "status", fmt.Sprintf("%#x", status))
		e.engine.RequestShutdownFromGuest(code, status)
	})
	if err := e.bus.AddDevice(test); err != nil {
		return nil, err
	}

	return e, nil
}

// LoadELF places an executable into DRAM and points the reset PC at its
// entry.
func (e *Emulator) LoadELF(path string) (*loader.ELFInfo, error) {
	info, err := loader.LoadELF(path, e.dram)
	if err != nil {
		return nil, err
	}
	e.hart.PC = info.Entry
	return info, nil
}

// LoadFile copies a raw image to addr.
func (e *Emulator) LoadFile(path string, addr uint64) error {
	return loader.LoadFile(path, addr, e.dram)
}

// Run executes until the guest or the host requests a halt.
func (e *Emulator) Run() error {
	err := e.engine.ExecuteUntilHalt()
	if e.disk != nil {
		e.disk.Sync()
	}
	return err
}

// Stop requests a halt from the host side; safe from any goroutine.
func (e *Emulator) Stop() {
	e.engine.RequestShutdownFromHost()
}

// ShutdownCode returns the guest's exit code.
func (e *Emulator) ShutdownCode() uint16 { return e.engine.ShutdownCode() }

// ShutdownStatus returns the guest's shutdown status word.
func (e *Emulator) ShutdownStatus() uint16 { return e.engine.ShutdownStatus() }

// Dram exposes memory for signature dumps.
func (e *Emulator) Dram() *dram.Dram { return e.dram }

// Hart exposes the hart, used by tests.
func (e *Emulator) Hart() *hart.Hart { return e.hart }

// PixelSource returns the framebuffer when configured.
func (e *Emulator) PixelSource() ui.PixelSource {
	if e.fb == nil {
		return nil
	}
	return e.fb
}

// Close releases host resources.
func (e *Emulator) Close() error {
	if e.disk != nil {
		return e.disk.Close()
	}
	return nil
}
