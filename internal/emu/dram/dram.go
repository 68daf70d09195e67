package dram

import (
	"encoding/binary"
	"fmt"
)

// Base is the physical address where main memory starts.
const Base uint64 = 0x8000_0000

var cpuEndian = binary.LittleEndian

// Dram is the flat byte-addressable backing store for guest RAM.
//
// Typed accessors assume the caller has already validated the address with
// Valid; the bus is the only caller and keeps that invariant.
type Dram struct {
	mem []byte
}

// New allocates size bytes of zeroed guest memory.
func New(size uint64) *Dram {
	return &Dram{mem: make([]byte, size)}
}

// Size returns the memory size in bytes.
func (d *Dram) Size() uint64 {
	return uint64(len(d.mem))
}

// Valid reports whether [addr, addr+length) lies entirely inside DRAM.
func (d *Dram) Valid(addr uint64, length uint64) bool {
	if addr < Base {
		return false
	}
	off := addr - Base
	if length > uint64(len(d.mem)) || off > uint64(len(d.mem))-length {
		return false
	}
	return true
}

// Read8 reads one byte at addr.
func (d *Dram) Read8(addr uint64) uint8 {
	return d.mem[addr-Base]
}

// Read16 reads a little-endian halfword at addr.
func (d *Dram) Read16(addr uint64) uint16 {
	return cpuEndian.Uint16(d.mem[addr-Base:])
}

// Read32 reads a little-endian word at addr.
func (d *Dram) Read32(addr uint64) uint32 {
	return cpuEndian.Uint32(d.mem[addr-Base:])
}

// Read64 reads a little-endian doubleword at addr.
func (d *Dram) Read64(addr uint64) uint64 {
	return cpuEndian.Uint64(d.mem[addr-Base:])
}

// Write8 stores one byte at addr.
func (d *Dram) Write8(addr uint64, v uint8) {
	d.mem[addr-Base] = v
}

// Write16 stores a little-endian halfword at addr.
func (d *Dram) Write16(addr uint64, v uint16) {
	cpuEndian.PutUint16(d.mem[addr-Base:], v)
}

// Write32 stores a little-endian word at addr.
func (d *Dram) Write32(addr uint64, v uint32) {
	cpuEndian.PutUint32(d.mem[addr-Base:], v)
}

// Write64 stores a little-endian doubleword at addr.
func (d *Dram) Write64(addr uint64, v uint64) {
	cpuEndian.PutUint64(d.mem[addr-Base:], v)
}

// ReadBytes copies len(p) bytes starting at addr into p. The copy is all or
// nothing: a range that straddles the end of memory fails without touching p.
func (d *Dram) ReadBytes(addr uint64, p []byte) error {
	if !d.Valid(addr, uint64(len(p))) {
		return fmt.Errorf("dram: read of %d bytes at %#x out of bounds", len(p), addr)
	}
	copy(p, d.mem[addr-Base:])
	return nil
}

// WriteBytes copies p into memory starting at addr. The copy is all or
// nothing: a range that straddles the end of memory fails without a partial
// update.
func (d *Dram) WriteBytes(addr uint64, p []byte) error {
	if !d.Valid(addr, uint64(len(p))) {
		return fmt.Errorf("dram: write of %d bytes at %#x out of bounds", len(p), addr)
	}
	copy(d.mem[addr-Base:], p)
	return nil
}
