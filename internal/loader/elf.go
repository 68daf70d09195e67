// Package loader places guest images into DRAM: ELF executables by program
// header, raw files at a caller-chosen address.
package loader

import (
	"debug/elf"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/uemu-dev/uemu/internal/emu/dram"
)

// progressThreshold is the image size above which LoadFile shows a load bar.
const progressThreshold = 8 * 1024 * 1024

// ELFInfo describes a loaded executable.
type ELFInfo struct {
	Entry uint64

	// Signature symbol addresses for riscof-style runs; zero when the
	// binary does not define them.
	SigStart uint64
	SigEnd   uint64
}

// LoadELF copies every PT_LOAD segment of the executable at path into DRAM
// and returns the entry PC plus the signature symbol addresses.
func LoadELF(path string, d *dram.Dram) (*ELFInfo, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %q: %w", path, err)
	}
	defer f.Close()

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("loader: %q is not a RISC-V executable (machine %v)", path, f.Machine)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}

		data := make([]byte, prog.Filesz)
		if _, err := io.ReadFull(prog.Open(), data); err != nil {
			return nil, fmt.Errorf("loader: read segment at %#x: %w", prog.Paddr, err)
		}

		if err := d.WriteBytes(prog.Paddr, data); err != nil {
			return nil, fmt.Errorf("loader: segment at %#x does not fit DRAM: %w", prog.Paddr, err)
		}

		// BSS tail: memsz beyond filesz must read as zero, which freshly
		// allocated DRAM already guarantees.
	}

	info := &ELFInfo{Entry: f.Entry}

	if syms, err := f.Symbols(); err == nil {
		for _, sym := range syms {
			switch sym.Name {
			case "begin_signature":
				info.SigStart = sym.Value
			case "end_signature":
				info.SigEnd = sym.Value
			}
		}
	}

	return info, nil
}

// LoadFile copies a raw file to addr, showing a progress bar for large
// images.
func LoadFile(path string, addr uint64, d *dram.Dram) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("loader: open %q: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if !d.Valid(addr, uint64(st.Size())) {
		return fmt.Errorf("loader: %q (%d bytes) does not fit DRAM at %#x", path, st.Size(), addr)
	}

	var r io.Reader = f
	if st.Size() >= progressThreshold {
		bar := progressbar.DefaultBytes(st.Size(), "loading "+path)
		r = io.TeeReader(f, bar)
	}

	buf := make([]byte, 1<<20)
	off := addr
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := d.WriteBytes(off, buf[:n]); werr != nil {
				return werr
			}
			off += uint64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// DumpSignature writes the riscof signature region as 16-digit hex words.
func DumpSignature(path string, d *dram.Dram, start, end uint64) error {
	if end < start || (end-start)%8 != 0 {
		return fmt.Errorf("loader: bad signature range [%#x, %#x)", start, end)
	}

	data := make([]byte, end-start)
	if err := d.ReadBytes(start, data); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := 0; i < len(data); i += 8 {
		v := uint64(data[i]) | uint64(data[i+1])<<8 | uint64(data[i+2])<<16 |
			uint64(data[i+3])<<24 | uint64(data[i+4])<<32 | uint64(data[i+5])<<40 |
			uint64(data[i+6])<<48 | uint64(data[i+7])<<56
		if _, err := fmt.Fprintf(f, "%016x\n", v); err != nil {
			return err
		}
	}
	return nil
}
