package dram

import "strings"

// Controller is the hybrid memory controller façade: it decodes an
// incoming packet's address, routes it to the owning DDR or HBM channel,
// and steps every channel once per simulated cycle via Operate. It carries
// no global mutable state beyond what it owns here. The host simulator is
// expected to hold exactly one Controller and call Operate once per tick,
// the same once-per-cycle contract every other simulated component gets.
type Controller struct {
	cfg     *Config
	decoder *Decoder

	ddr []*Channel
	hbm []*Channel
}

// NewController builds a Controller from cfg, validating the configuration
// first: a bad configuration is a fatal construction-time error, never a
// runtime one.
func NewController(cfg *Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()
	decoder := NewDecoder(cfg)

	c := &Controller{cfg: cfg, decoder: decoder}
	for i := 0; i < int(cfg.HBM.Channels); i++ {
		c.hbm = append(c.hbm, newChannel(KindHBM, i, cfg, decoder, int(cfg.HBM.banksPerChannel()), int(cfg.WQSize), int(cfg.RQSize)))
	}
	for i := 0; i < int(cfg.DDR.Channels); i++ {
		c.ddr = append(c.ddr, newChannel(KindDDR, i, cfg, decoder, int(cfg.DDR.banksPerChannel()), int(cfg.WQSize), int(cfg.RQSize)))
	}
	return c, nil
}

// Config returns a copy of the configuration the Controller was built with.
func (c *Controller) Config() *Config { return c.cfg.Clone() }

// Decoder exposes the address decoder backing this Controller, for callers
// (tests, trace tools) that need to reason about routing independently of
// enqueueing a packet.
func (c *Controller) Decoder() *Decoder { return c.decoder }

func (c *Controller) channelFor(lineAddr uint64) *Channel {
	kind := c.decoder.KindOf(lineAddr)
	idx := c.decoder.Channel(lineAddr)
	if kind == KindHBM {
		return c.hbm[idx]
	}
	return c.ddr[idx]
}

// AddRQ places a load on its channel's RQ, coalescing into an existing
// mergeable entry when present.
func (c *Controller) AddRQ(pkt *Packet) int {
	return c.channelFor(pkt.LineAddr).enqueueRead(pkt)
}

// AddWQ places a writeback/store on its channel's WQ.
func (c *Controller) AddWQ(pkt *Packet) int {
	return c.channelFor(pkt.LineAddr).enqueueWrite(pkt)
}

// AddPQ is the prefetch path: an RQ insertion with the same coalescing
// semantics as AddRQ. No configuration option exists (yet) to prioritize
// prefetches differently from demand reads.
func (c *Controller) AddPQ(pkt *Packet) int {
	return c.channelFor(pkt.LineAddr).enqueueRead(pkt)
}

// GetOccupancy returns the current entry count of the RQ, WQ, or PQ (aliased
// to RQ) owning addr's channel.
func (c *Controller) GetOccupancy(queueKind int, addr uint64) uint32 {
	ch := c.channelFor(addr)
	switch queueKind {
	case QueueRead, QueuePrefetch:
		return uint32(ch.RQOccupancy())
	case QueueWrite:
		return uint32(ch.WQOccupancy())
	default:
		panic("dram: unknown queue kind")
	}
}

// GetSize returns the capacity of the RQ, WQ, or PQ (aliased to RQ) owning
// addr's channel.
func (c *Controller) GetSize(queueKind int, addr uint64) uint32 {
	ch := c.channelFor(addr)
	switch queueKind {
	case QueueRead, QueuePrefetch:
		return uint32(ch.RQSize())
	case QueueWrite:
		return uint32(ch.WQSize())
	default:
		panic("dram: unknown queue kind")
	}
}

// Operate steps every DDR channel, then every HBM channel, once. Channels
// are independent of each other, so the order between tiers doesn't affect
// correctness, but a fixed iteration order keeps the simulation
// deterministic.
func (c *Controller) Operate(now uint64) {
	for _, ch := range c.ddr {
		ch.Step(now)
	}
	for _, ch := range c.hbm {
		ch.Step(now)
	}
}

// Stats sums every channel's counters into the controller-wide totals,
// computed fresh on each call rather than tracked as a running global.
func (c *Controller) Stats() Statistics {
	var s Statistics
	for _, ch := range c.allChannels() {
		cs := ch.Stats()
		s.ChannelStats.add(cs)
		s.Channels = append(s.Channels, cs)
	}
	return s
}

// AverageMemoryAccessTime returns total_service_time/total_issued.
func (c *Controller) AverageMemoryAccessTime() float64 {
	return c.Stats().AverageMemoryAccessTime()
}

// DDRChannels and HBMChannels expose the per-tier channel slices directly,
// for tests and tools that need to inspect bank/queue state beyond the
// aggregate Stats().
func (c *Controller) DDRChannels() []*Channel { return c.ddr }
func (c *Controller) HBMChannels() []*Channel { return c.hbm }

func (c *Controller) allChannels() []*Channel {
	all := make([]*Channel, 0, len(c.ddr)+len(c.hbm))
	all = append(all, c.ddr...)
	all = append(all, c.hbm...)
	return all
}

// DumpState renders a multi-line diagnostic snapshot of every channel, for
// a surrounding simulator to call when it detects no forward progress
// across all operables before aborting.
func (c *Controller) DumpState() string {
	var b strings.Builder
	for _, ch := range c.allChannels() {
		b.WriteString(ch.DumpState())
		b.WriteByte('\n')
	}
	return b.String()
}
