package dram

import "fmt"

// ChannelStats holds the per-channel counters: row-buffer hit/miss counts
// split by queue, queue-full rejections, bus congestion, and the running
// totals behind AverageMemoryAccessTime.
type ChannelStats struct {
	RQRowBufferHit  uint64
	RQRowBufferMiss uint64
	WQRowBufferHit  uint64
	WQRowBufferMiss uint64
	RQFull          uint64
	WQFull          uint64

	DbusCycleCongested uint64
	DbusCountCongested uint64

	TotalServiceTime uint64
	TotalIssued      uint64
}

// Channel is one DDR or HBM channel: its own WQ/RQ, bank request table, data
// bus state, and mode. Channels never interleave with each other — each is
// stepped independently and in full by Controller.Operate.
type Channel struct {
	kind  Kind
	index int

	cfg     *Config
	decoder *Decoder

	rq    *requestQueue
	wq    *requestQueue
	arena arena
	banks []BankSlot

	// active is the arena handle of the single in-flight request on this
	// channel; noHandle when idle. activeBank indexes the bank slot it is
	// bound to, -1 when idle.
	active       packetHandle
	activeBank   int
	activeFromWQ bool

	dbusCycleAvailable uint64
	writeMode          bool
	writesThisBurst    uint64

	stats ChannelStats
}

func newChannel(kind Kind, index int, cfg *Config, decoder *Decoder, numBanks int, wqSize, rqSize int) *Channel {
	banks := make([]BankSlot, numBanks)
	for i := range banks {
		banks[i] = newBankSlot()
	}
	return &Channel{
		kind:       kind,
		index:      index,
		cfg:        cfg,
		decoder:    decoder,
		rq:         newRequestQueue(rqSize),
		wq:         newRequestQueue(wqSize),
		banks:      banks,
		active:     noHandle,
		activeBank: -1,
	}
}

// Stats returns a copy of this channel's counters.
func (c *Channel) Stats() ChannelStats { return c.stats }

// RQOccupancy/RQSize/WQOccupancy/WQSize back Controller.GetOccupancy/GetSize.
func (c *Channel) RQOccupancy() int { return c.rq.Len() }
func (c *Channel) RQSize() int      { return c.rq.Capacity() }
func (c *Channel) WQOccupancy() int { return c.wq.Len() }
func (c *Channel) WQSize() int      { return c.wq.Capacity() }

func (c *Channel) enqueueRead(pkt *Packet) int {
	if h, ok := c.rq.findMergeable(pkt.LineAddr, &c.arena); ok {
		existing := c.arena.get(h)
		existing.callbacks = append(existing.callbacks, pkt.callbacks...)
		return ResultMerged
	}
	if c.rq.Full() {
		c.stats.RQFull++
		return ResultRejectFull
	}
	h := c.arena.alloc(pkt)
	c.rq.push(h)
	return c.rq.Len()
}

func (c *Channel) enqueueWrite(pkt *Packet) int {
	if c.wq.Full() {
		c.stats.WQFull++
		return ResultRejectFull
	}
	h := c.arena.alloc(pkt)
	c.wq.push(h)
	return c.wq.Len()
}

// Step advances the channel by exactly one simulated cycle, in order:
// completion drain, scheduler selection + issue, then mode arbitration with
// bus-turnaround accounting.
func (c *Channel) Step(now uint64) {
	c.drainCompletion(now)
	c.scheduleNext(now)
	c.arbitrateMode(now)
}

func (c *Channel) drainCompletion(now uint64) {
	if !c.active.valid() {
		return
	}
	bank := &c.banks[c.activeBank]
	if bank.EventCycle > now {
		return
	}

	pkt := c.arena.get(c.active)
	if pkt == nil {
		// Defensive: the handle's owning packet is gone. Nothing to
		// deliver, but the bank must still be freed.
		bank.Valid = false
		c.active = noHandle
		c.activeBank = -1
		return
	}

	serviceTime := now - pkt.ArrivalCycle
	c.stats.TotalServiceTime += serviceTime
	c.stats.TotalIssued++

	if c.activeFromWQ {
		if bank.RowBufferHit {
			c.stats.WQRowBufferHit++
		} else {
			c.stats.WQRowBufferMiss++
		}
		c.writesThisBurst++
		c.wq.remove(c.active)
	} else {
		if bank.RowBufferHit {
			c.stats.RQRowBufferHit++
		} else {
			c.stats.RQRowBufferMiss++
		}
		c.rq.remove(c.active)
	}

	pkt.fire()
	c.arena.release(c.active)
	bank.Valid = false
	c.active = noHandle
	c.activeBank = -1
}

// scheduleNext picks at most one ready queue entry per cycle and issues it
// to its bank. Reads and prefetches share the RQ, with prefetch priority
// left equal to read absent a configuration option to differentiate them;
// writes are only considered while write_mode is set.
func (c *Channel) scheduleNext(now uint64) {
	if c.active.valid() {
		return
	}

	queue := c.rq
	fromWQ := false
	if c.writeMode {
		queue = c.wq
		fromWQ = true
	}
	if queue.Len() == 0 {
		return
	}

	bestIdx, bestBank := -1, -1
	for i, h := range queue.order {
		pkt := c.arena.get(h)
		if pkt == nil {
			continue
		}
		bankIdx := int(c.decoder.bankSlotIndex(pkt.LineAddr))
		row := c.decoder.Row(pkt.LineAddr)
		if c.banks[bankIdx].OpenRow == row && c.banks[bankIdx].OpenRow != noRow {
			bestIdx, bestBank = i, bankIdx
			break // row-buffer hit beats any FIFO position; lowest-index hit wins the scan
		}
		if bestIdx == -1 {
			bestIdx, bestBank = i, bankIdx
		}
	}
	if bestIdx == -1 {
		return
	}

	h := queue.order[bestIdx]
	pkt := c.arena.get(h)
	bank := &c.banks[bestBank]
	row := c.decoder.Row(pkt.LineAddr)

	casDone, hit := bank.schedule(now, row, c.cfg.Timing)

	finish := casDone
	if c.dbusCycleAvailable > finish {
		congestion := c.dbusCycleAvailable - finish
		c.stats.DbusCycleCongested += congestion
		c.stats.DbusCountCongested++
		finish = c.dbusCycleAvailable
	}
	eventCycle := finish + c.cfg.Timing.DbusReturnCycles
	c.dbusCycleAvailable = eventCycle

	bank.Valid = true
	bank.OpenRow = row
	bank.RowBufferHit = hit
	bank.EventCycle = eventCycle

	c.active = h
	c.activeBank = bestBank
	c.activeFromWQ = fromWQ
}

// arbitrateMode implements the watermark-hysteresis mode switch: enter
// write mode once the WQ is sufficiently full, or when the RQ has drained
// dry and writes are waiting; leave write mode when the WQ empties, or
// after draining at least MinWritesPerSwitch writes in this burst, falling
// back below the low watermark, and having reads to serve. The entry and
// exit conditions both require the target queue to be non-empty so an idle
// channel never oscillates between modes, paying turnaround for nothing.
func (c *Channel) arbitrateMode(now uint64) {
	before := c.writeMode
	if !c.writeMode {
		if uint64(c.wq.Len()) >= c.cfg.HighWatermark() || (c.rq.Len() == 0 && c.wq.Len() > 0) {
			c.writeMode = true
		}
	} else if c.wq.Len() == 0 ||
		(c.writesThisBurst >= c.cfg.MinWritesPerSwitch() && uint64(c.wq.Len()) < c.cfg.LowWatermark() && c.rq.Len() > 0) {
		c.writeMode = false
	}

	if c.writeMode != before {
		c.writesThisBurst = 0
		c.onModeSwitch(now)
	}
}

// onModeSwitch accounts for the R/W data-bus reversal penalty: the bus is
// reserved for an additional DbusTurnAround cycles before either stream's
// next CAS may return data.
func (c *Channel) onModeSwitch(now uint64) {
	base := now
	if c.dbusCycleAvailable > base {
		base = c.dbusCycleAvailable
	}
	newAvail := base + c.cfg.Timing.DbusTurnAround
	c.stats.DbusCycleCongested += newAvail - c.dbusCycleAvailable
	c.stats.DbusCountCongested++
	c.dbusCycleAvailable = newAvail
}

// DumpState renders a one-line diagnostic snapshot of this channel, for use
// when the surrounding simulator detects no forward progress and wants to
// report where every operable is stuck.
func (c *Channel) DumpState() string {
	mode := "read"
	if c.writeMode {
		mode = "write"
	}
	return fmt.Sprintf(
		"%s[%d]: mode=%s rq=%d/%d wq=%d/%d active=%v dbus_avail=%d",
		c.kind, c.index, mode, c.rq.Len(), c.rq.Capacity(), c.wq.Len(), c.wq.Capacity(),
		c.active.valid(), c.dbusCycleAvailable,
	)
}
