// Package emu provides functional ARM64 emulation.
package emu

// pageSize is the granularity at which Memory allocates backing storage.
// Pages are allocated lazily so a sparse address space (stack near the top,
// program image near the bottom) does not require a flat byte array sized
// to the full 64-bit range.
const pageSize = 4096

const pageOffsetMask = pageSize - 1

// Memory is a byte-addressable, little-endian flat memory space. It backs
// every load/store unit, the SIMD unit, and syscall buffer I/O in this
// package. Storage is paged and allocated on first write; unwritten
// addresses read as zero.
type Memory struct {
	pages map[uint64][]byte
}

// NewMemory creates an empty memory space.
func NewMemory() *Memory {
	return &Memory{
		pages: make(map[uint64][]byte),
	}
}

func (m *Memory) page(addr uint64) []byte {
	pageAddr := addr &^ pageOffsetMask
	p, ok := m.pages[pageAddr]
	if !ok {
		p = make([]byte, pageSize)
		m.pages[pageAddr] = p
	}
	return p
}

// Read8 reads a single byte. Unwritten addresses read as 0.
func (m *Memory) Read8(addr uint64) uint8 {
	p, ok := m.pages[addr&^pageOffsetMask]
	if !ok {
		return 0
	}
	return p[addr&pageOffsetMask]
}

// Write8 writes a single byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	p := m.page(addr)
	p[addr&pageOffsetMask] = value
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(addr uint64) uint16 {
	lo := uint16(m.Read8(addr))
	hi := uint16(m.Read8(addr + 1))
	return lo | hi<<8
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint64, value uint16) {
	m.Write8(addr, uint8(value))
	m.Write8(addr+1, uint8(value>>8))
}

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint64) uint32 {
	lo := uint32(m.Read16(addr))
	hi := uint32(m.Read16(addr + 2))
	return lo | hi<<16
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint64, value uint32) {
	m.Write16(addr, uint16(value))
	m.Write16(addr+2, uint16(value>>16))
}

// Read64 reads a little-endian doubleword.
func (m *Memory) Read64(addr uint64) uint64 {
	lo := uint64(m.Read32(addr))
	hi := uint64(m.Read32(addr + 4))
	return lo | hi<<32
}

// Write64 writes a little-endian doubleword.
func (m *Memory) Write64(addr uint64, value uint64) {
	m.Write32(addr, uint32(value))
	m.Write32(addr+4, uint32(value>>32))
}

// LoadProgram copies data into memory starting at entry, one byte at a
// time. It does not otherwise touch the emulator; callers set PC
// separately.
func (m *Memory) LoadProgram(entry uint64, data []byte) {
	for i, b := range data {
		m.Write8(entry+uint64(i), b)
	}
}
