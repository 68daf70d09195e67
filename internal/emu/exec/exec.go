// Package exec holds the per-instruction semantic actions. Executors are
// pure functions of (hart, mmu, decoded); they mutate hart state and report
// traps as values back to the cycle loop.
package exec

import (
	"github.com/uemu-dev/uemu/internal/emu/csr"
	"github.com/uemu-dev/uemu/internal/emu/decode"
	"github.com/uemu-dev/uemu/internal/emu/hart"
	"github.com/uemu-dev/uemu/internal/emu/mmu"
	"github.com/uemu-dev/uemu/internal/emu/trap"
)

// Func is one executor. The decoded record's Name field is the handle into
// the dispatch table.
type Func func(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap

var table [decode.NameCount]Func

func register(n decode.Name, fn Func) {
	table[n] = fn
}

// Dispatch runs the executor bound to the decoded instruction. The engine
// has already advanced the PC past the instruction; jumps overwrite it.
func Dispatch(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
	fn := table[d.Name]
	if fn == nil {
		return illegal(d)
	}
	return fn(h, m, d)
}

func illegal(d *decode.Decoded) *trap.Trap {
	return trap.New(d.PC, trap.IllegalInstruction, uint64(d.Raw))
}

func init() {
	register(decode.Inv, func(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
		return illegal(d)
	})
	register(decode.CInv, func(h *hart.Hart, m *mmu.MMU, d *decode.Decoded) *trap.Trap {
		return illegal(d)
	})
}

// link is the return address of a jump instruction.
func link(d *decode.Decoded) uint64 {
	return d.PC + d.Len
}

// jumpTo checks target alignment and redirects the hart. With the
// compressed extension implemented only bit 0 renders a target misaligned.
func jumpTo(h *hart.Hart, d *decode.Decoded, target uint64) *trap.Trap {
	if target&1 != 0 {
		return trap.New(d.PC, trap.InstructionAddressMisaligned, target)
	}
	h.PC = target
	return nil
}

// fpEnabled rejects floating-point execution while mstatus.FS is Off.
func fpEnabled(h *hart.Hart, d *decode.Decoded) *trap.Trap {
	if h.CSRs.MStatus().FS() == csr.FSOff {
		return illegal(d)
	}
	return nil
}

// roundingMode resolves the instruction rm field, following frm when the
// field says DYN. Reserved encodings are illegal.
func roundingMode(h *hart.Hart, d *decode.Decoded) (int, *trap.Trap) {
	rm := uint64((d.Raw >> 12) & 7)
	if rm == csr.FrmDYN {
		rm = h.CSRs.FP().Frm()
	}
	if rm > csr.FrmRMM {
		return 0, illegal(d)
	}
	return int(rm), nil
}
