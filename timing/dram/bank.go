package dram

import "math"

// noRow is the sentinel "no row open" value, an impossible row index that
// can never collide with a real row address.
const noRow = uint32(math.MaxUint32)

// BankSlot is one entry of the per-channel bank request table. Slots
// are allocated once at controller construction and persist for the life
// of the simulation; only the fields below change as requests are bound and
// serviced.
type BankSlot struct {
	Valid        bool
	RowBufferHit bool
	OpenRow      uint32
	EventCycle   uint64

	pkt packetHandle
}

func newBankSlot() BankSlot {
	return BankSlot{OpenRow: noRow, pkt: noHandle}
}

// schedule is the outcome of binding a request to a bank at cycle `now`: the
// cycle its CAS completes (ignoring data-bus arbitration) and whether the
// open row already matched:
//
//	row-buffer hit:  row already open               -> +tCAS
//	row-buffer miss, empty bank (open_row == ⊥)      -> +tRCD, +tCAS
//	row-buffer miss, conflicting open row            -> +tRP, +tRCD, +tCAS
func (b *BankSlot) schedule(now uint64, requestRow uint32, t Timing) (casDone uint64, hit bool) {
	if b.OpenRow == requestRow && b.OpenRow != noRow {
		return now + t.TCAS, true
	}
	delta := t.TRCD + t.TCAS
	if b.OpenRow != noRow {
		delta += t.TRP
	}
	return now + delta, false
}
