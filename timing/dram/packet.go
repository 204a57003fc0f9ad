package dram

// PacketKind names the upstream request kinds the controller distinguishes
// for queue routing. Translation and writeback packets otherwise carry
// the same fields as loads/RFOs/prefetches as far as this package is
// concerned.
type PacketKind uint8

const (
	PacketLoad PacketKind = iota
	PacketRFO
	PacketPrefetch
	PacketWriteback
	PacketTranslation
)

// Callback is invoked exactly once per packet when the controller finishes
// servicing it. It carries the completed packet back so the caller can
// recover whatever per-request state it closed over.
type Callback func(pkt *Packet)

// Packet is the subset of the upstream cache packet contract the controller
// consumes: a block-aligned line address, a request kind, the cycle it
// arrived, zero or more completion callbacks, a delete-on-completion hint
// the upstream cache hierarchy uses for its own MSHR bookkeeping, and an
// opaque payload the controller never inspects.
type Packet struct {
	LineAddr           uint64
	Kind               PacketKind
	ArrivalCycle       uint64
	DeleteOnCompletion bool
	Payload            any

	callbacks []Callback
}

// AddCallback registers an additional completion callback, used to fold a
// coalesced request's notification into an existing in-flight packet as
// part of MSHR-style merging.
func (p *Packet) AddCallback(cb Callback) {
	p.callbacks = append(p.callbacks, cb)
}

func (p *Packet) fire() {
	for _, cb := range p.callbacks {
		cb(p)
	}
}

// packetHandle is a generation-checked index into an arena, used in place
// of an iterator into a queue. A bank slot refers to its packet through a
// stable handle rather than a raw queue position, so compacting the queue
// on dequeue never invalidates a bank's reference.
type packetHandle struct {
	idx int
	gen uint32
}

var noHandle = packetHandle{idx: -1}

func (h packetHandle) valid() bool { return h.idx >= 0 }

type arenaSlot struct {
	pkt   *Packet
	gen   uint32
	alive bool
}

// arena owns the storage for in-flight packets on one channel. Queues only
// ever hold handles into the arena, never pointers or slice positions, so a
// packet's storage address never moves and a stale handle is always
// detectable via the generation check.
type arena struct {
	slots []arenaSlot
	free  []int
}

func (a *arena) alloc(pkt *Packet) packetHandle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx].pkt = pkt
		a.slots[idx].alive = true
		return packetHandle{idx: idx, gen: a.slots[idx].gen}
	}
	a.slots = append(a.slots, arenaSlot{pkt: pkt, alive: true})
	return packetHandle{idx: len(a.slots) - 1, gen: 0}
}

func (a *arena) get(h packetHandle) *Packet {
	if !h.valid() || h.idx >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.idx]
	if !s.alive || s.gen != h.gen {
		return nil
	}
	return s.pkt
}

func (a *arena) release(h packetHandle) {
	if !h.valid() || h.idx >= len(a.slots) {
		return
	}
	s := &a.slots[h.idx]
	if !s.alive || s.gen != h.gen {
		return
	}
	s.alive = false
	s.pkt = nil
	s.gen++
	a.free = append(a.free, h.idx)
}
