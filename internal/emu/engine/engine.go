// Package engine drives the fetch-decode-execute loop. A dedicated worker
// goroutine owns all architectural state; the caller's goroutine becomes the
// driver, pumping device ticks and the UI backend until the worker halts.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uemu-dev/uemu/internal/emu/bus"
	"github.com/uemu-dev/uemu/internal/emu/decode"
	"github.com/uemu-dev/uemu/internal/emu/exec"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/emu/trap"
	"github.com/uemu-dev/uemu/internal/ui"
)

// hostCheckInterval bounds the latency of a host-initiated shutdown without
// paying an atomic load on every cycle.
const hostCheckInterval = 4096

// Engine owns the CPU worker and coordinates it with the device driver.
type Engine struct {
	hart *hart.Hart
	mmu  *mmu.MMU
	bus  *bus.Bus
	ui   ui.Backend

	guestShutdown  atomic.Bool
	hostShutdown   atomic.Bool
	shutdownCode   atomic.Uint32
	shutdownStatus atomic.Uint32

	workerDone chan struct{}
	workerErr  error
	runMu      sync.Mutex
	running    bool

	trace bool
}

// SetTrace enables per-instruction logging; very slow, debugging only.
func (e *Engine) SetTrace(on bool) {
	e.trace = on
}

// New builds an engine. A nil backend runs headless.
func New(h *hart.Hart, m *mmu.MMU, b *bus.Bus, backend ui.Backend) *Engine {
	if backend == nil {
		backend = ui.Headless{}
	}
	return &Engine{hart: h, mmu: m, bus: b, ui: backend}
}

// Hart exposes the hart for loaders and tests.
func (e *Engine) Hart() *hart.Hart { return e.hart }

// RequestShutdownFromGuest records the guest's exit request; the worker
// leaves the loop at the next cycle boundary. Called from the MMIO path on
// the worker itself.
func (e *Engine) RequestShutdownFromGuest(code, status uint16) {
	e.shutdownCode.Store(uint32(code))
	e.shutdownStatus.Store(uint32(status))
	e.guestShutdown.Store(true)
}

// RequestShutdownFromHost asks the worker to stop. Idempotent and safe from
// any goroutine.
func (e *Engine) RequestShutdownFromHost() {
	e.hostShutdown.Store(true)
}

// ShutdownCode returns the 16-bit code the guest embedded in its shutdown
// write.
func (e *Engine) ShutdownCode() uint16 {
	return uint16(e.shutdownCode.Load())
}

// ShutdownStatus returns the guest's shutdown status word.
func (e *Engine) ShutdownStatus() uint16 {
	return uint16(e.shutdownStatus.Load())
}

// ExecuteUntilHalt starts the worker and drives devices until the worker
// stops. It returns the error that killed the worker, if any.
func (e *Engine) ExecuteUntilHalt() error {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return fmt.Errorf("engine: already running")
	}
	e.running = true
	e.workerDone = make(chan struct{})
	e.runMu.Unlock()

	go e.worker()

	for {
		select {
		case <-e.workerDone:
			e.runMu.Lock()
			e.running = false
			e.runMu.Unlock()
			return e.workerErr
		default:
		}

		e.bus.TickDevices()
		if err := e.ui.Update(); err != nil {
			slog.Error("ui update failed", "err", err)
			e.RequestShutdownFromHost()
		}

		time.Sleep(time.Millisecond)
	}
}

func (e *Engine) worker() {
	defer close(e.workerDone)
	defer func() {
		if r := recover(); r != nil {
			e.workerErr = fmt.Errorf("cpu worker panic: %v", r)
			e.guestShutdown.Store(true)
		}
	}()

	h := e.hart
	m := e.mmu

	// Counter views are acquired once instead of per-cycle table lookups.
	mcycle := h.CSRs.MCycle()
	minstret := h.CSRs.MInstret()

	for i := 0; ; i++ {
		if e.guestShutdown.Load() {
			return
		}
		if i%hostCheckInterval == 0 && e.hostShutdown.Load() {
			return
		}

		mcycle.Advance()

		if cause, ok := h.PendingInterrupt(); ok {
			h.HandleTrap(trap.New(h.PC, cause, 0))
			continue
		}

		raw, t := m.Fetch(h.PC)
		if t != nil {
			h.HandleTrap(t)
			continue
		}

		d := decode.Decode(raw, h.PC)
		if e.trace {
			slog.Debug("exec", "pc", fmt.Sprintf("%#x", d.PC), "insn", d.Name.String(), "priv", h.Priv.String())
		}
		h.PC = d.PC + d.Len

		if t := exec.Dispatch(h, m, &d); t != nil {
			h.HandleTrap(t)
			continue
		}

		minstret.Advance()
	}
}
