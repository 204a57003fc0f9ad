package dram

import "github.com/sarchlab/m2sim/timing/cache"

// SyncBacking bridges the event-stepped Controller into timing/cache's
// synchronous BackingStore contract. Cache.handleMiss calls Read/Write and
// expects bytes back immediately; SyncBacking satisfies that by driving
// Controller.Operate on an internal cycle counter until the packet it
// enqueued completes, then returns. The internal counter persists across
// calls so row-buffer locality across a real miss stream is still modeled
// (back-to-back misses to the same row still see a hit), it is simply not
// the same clock as the surrounding pipeline's own cycle count.
type SyncBacking struct {
	ctrl  *Controller
	bytes cache.BackingStore
	cycle uint64
}

// NewSyncBacking wraps ctrl (the timing model) and bytes (the actual data
// store, e.g. a cache.MemoryBacking over emu.Memory) into one BackingStore.
func NewSyncBacking(ctrl *Controller, bytes cache.BackingStore) *SyncBacking {
	return &SyncBacking{ctrl: ctrl, bytes: bytes}
}

func (b *SyncBacking) lineOf(addr uint64) uint64 {
	return addr / b.ctrl.cfg.BlockSize
}

// Read satisfies cache.BackingStore; it is ReadLatency with the cycle count
// discarded.
func (b *SyncBacking) Read(addr uint64, size int) []byte {
	data, _ := b.ReadLatency(addr, size)
	return data
}

// ReadLatency enqueues a load, drives the controller until it completes,
// and returns the fetched bytes alongside the number of cycles the access
// took end to end.
func (b *SyncBacking) ReadLatency(addr uint64, size int) ([]byte, uint64) {
	start := b.cycle
	done := false
	pkt := &Packet{LineAddr: b.lineOf(addr), Kind: PacketLoad, ArrivalCycle: start}
	pkt.AddCallback(func(*Packet) { done = true })

	for b.ctrl.AddRQ(pkt) == ResultRejectFull {
		b.ctrl.Operate(b.cycle)
		b.cycle++
	}
	for !done {
		b.ctrl.Operate(b.cycle)
		b.cycle++
	}

	return b.bytes.Read(addr, size), b.cycle - start
}

// Write satisfies cache.BackingStore; it is WriteLatency with the cycle
// count discarded.
func (b *SyncBacking) Write(addr uint64, data []byte) {
	b.WriteLatency(addr, data)
}

// WriteLatency commits data to the underlying byte store immediately (its
// content does not depend on DRAM timing) and separately drives the
// controller's write queue until the write is acknowledged, reporting how
// many cycles that took.
func (b *SyncBacking) WriteLatency(addr uint64, data []byte) uint64 {
	start := b.cycle
	done := false
	pkt := &Packet{LineAddr: b.lineOf(addr), Kind: PacketWriteback, ArrivalCycle: start, DeleteOnCompletion: true}
	pkt.AddCallback(func(*Packet) { done = true })

	b.bytes.Write(addr, data)

	for b.ctrl.AddWQ(pkt) == ResultRejectFull {
		b.ctrl.Operate(b.cycle)
		b.cycle++
	}
	for !done {
		b.ctrl.Operate(b.cycle)
		b.cycle++
	}

	return b.cycle - start
}
