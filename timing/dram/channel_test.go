package dram_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/timing/dram"
)

// singleBankConfig builds a minimal one-channel, one-bank HBM tier (DDR
// zeroed out) so tests can reason about row-buffer state without DRAM's
// usual multi-channel fan-out getting in the way.
func singleBankConfig() *dram.Config {
	cfg := dram.DefaultConfig()
	cfg.HBM = dram.Geometry{Channels: 1, Banks: 1, Rows: 4, Columns: 4, CapacityByte: 1024}
	cfg.DDR = dram.Geometry{}
	return cfg
}

var _ = Describe("Channel row-buffer behavior", func() {
	It("should report a row-buffer hit for a second access to the same open row", func() {
		cfg := singleBankConfig()
		ctrl, err := dram.NewController(cfg)
		Expect(err).NotTo(HaveOccurred())

		firstDone, secondDone := false, false
		first := &dram.Packet{LineAddr: 0, Kind: dram.PacketLoad} // row 0, col 0
		first.AddCallback(func(*dram.Packet) { firstDone = true })
		second := &dram.Packet{LineAddr: 1, Kind: dram.PacketLoad} // row 0, col 1
		second.AddCallback(func(*dram.Packet) { secondDone = true })

		ctrl.AddRQ(first)
		ctrl.AddRQ(second)

		var now uint64
		for !(firstDone && secondDone) && now < 10_000 {
			ctrl.Operate(now)
			now++
		}
		Expect(firstDone).To(BeTrue())
		Expect(secondDone).To(BeTrue())

		stats := ctrl.HBMChannels()[0].Stats()
		Expect(stats.RQRowBufferMiss).To(Equal(uint64(1)))
		Expect(stats.RQRowBufferHit).To(Equal(uint64(1)))
	})

	It("should report a row-buffer miss when a different row is requested from the same bank", func() {
		cfg := singleBankConfig()
		ctrl, err := dram.NewController(cfg)
		Expect(err).NotTo(HaveOccurred())

		firstDone, secondDone := false, false
		first := &dram.Packet{LineAddr: 0, Kind: dram.PacketLoad} // row 0
		first.AddCallback(func(*dram.Packet) { firstDone = true })
		second := &dram.Packet{LineAddr: 4, Kind: dram.PacketLoad} // row 1, same bank
		second.AddCallback(func(*dram.Packet) { secondDone = true })

		ctrl.AddRQ(first)
		ctrl.AddRQ(second)

		var now uint64
		for !(firstDone && secondDone) && now < 10_000 {
			ctrl.Operate(now)
			now++
		}

		stats := ctrl.HBMChannels()[0].Stats()
		Expect(stats.RQRowBufferMiss).To(Equal(uint64(2)))
		Expect(stats.RQRowBufferHit).To(Equal(uint64(0)))
	})

	It("should service a read arriving after the channel has gone idle", func() {
		cfg := singleBankConfig()
		ctrl, err := dram.NewController(cfg)
		Expect(err).NotTo(HaveOccurred())

		var now uint64
		runUntil := func(done *bool) {
			deadline := now + 10_000
			for !*done && now < deadline {
				ctrl.Operate(now)
				now++
			}
			Expect(*done).To(BeTrue())
		}

		firstDone := false
		first := &dram.Packet{LineAddr: 0, Kind: dram.PacketLoad, ArrivalCycle: now}
		first.AddCallback(func(*dram.Packet) { firstDone = true })
		ctrl.AddRQ(first)
		runUntil(&firstDone)

		// Let the channel sit idle with both queues empty before the next
		// request shows up.
		for i := 0; i < 100; i++ {
			ctrl.Operate(now)
			now++
		}

		secondDone := false
		second := &dram.Packet{LineAddr: 4, Kind: dram.PacketLoad, ArrivalCycle: now}
		second.AddCallback(func(*dram.Packet) { secondDone = true })
		ctrl.AddRQ(second)
		runUntil(&secondDone)
	})

	It("should keep consecutive completions at least a data-bus return apart", func() {
		cfg := singleBankConfig()
		ctrl, err := dram.NewController(cfg)
		Expect(err).NotTo(HaveOccurred())

		var now uint64
		var completedAt []uint64
		for _, addr := range []uint64{0, 1, 2, 3} {
			pkt := &dram.Packet{LineAddr: addr, Kind: dram.PacketLoad}
			pkt.AddCallback(func(*dram.Packet) { completedAt = append(completedAt, now) })
			ctrl.AddRQ(pkt)
		}

		for len(completedAt) < 4 && now < 10_000 {
			ctrl.Operate(now)
			now++
		}
		Expect(completedAt).To(HaveLen(4))
		for i := 1; i < len(completedAt); i++ {
			Expect(completedAt[i] - completedAt[i-1]).To(BeNumerically(">=", cfg.Timing.DbusReturnCycles))
		}
	})

	It("should never let more than one request be active on a channel at once", func() {
		cfg := singleBankConfig()
		ctrl, err := dram.NewController(cfg)
		Expect(err).NotTo(HaveOccurred())

		for _, addr := range []uint64{0, 1, 2, 3} {
			ctrl.AddRQ(&dram.Packet{LineAddr: addr, Kind: dram.PacketLoad})
		}

		completions := 0
		var now uint64
		for completions < 4 && now < 10_000 {
			before := ctrl.Stats().TotalIssued
			ctrl.Operate(now)
			after := ctrl.Stats().TotalIssued
			Expect(after - before).To(BeNumerically("<=", 1))
			completions = int(after)
			now++
		}
		Expect(completions).To(Equal(4))
	})
})

var _ = Describe("Channel write-mode hysteresis", func() {
	It("should drain the minimum write burst before returning to reads, and empty the WQ when no reads wait", func() {
		cfg := singleBankConfig()
		cfg.WQSize = 8
		cfg.RQSize = 8
		ctrl, err := dram.NewController(cfg)
		Expect(err).NotTo(HaveOccurred())

		// 7 writes reach the high watermark (8*7/8); the minimum write
		// burst for this WQ size is 8/4 = 2.
		var order []byte
		for line := uint64(0); line < 7; line++ {
			pkt := &dram.Packet{LineAddr: line, Kind: dram.PacketWriteback}
			pkt.AddCallback(func(*dram.Packet) { order = append(order, 'w') })
			Expect(ctrl.AddWQ(pkt)).NotTo(Equal(dram.ResultRejectFull))
		}
		for line := uint64(8); line < 15; line++ {
			pkt := &dram.Packet{LineAddr: line, Kind: dram.PacketLoad}
			pkt.AddCallback(func(*dram.Packet) { order = append(order, 'r') })
			Expect(ctrl.AddRQ(pkt)).NotTo(Equal(dram.ResultRejectFull))
		}

		var now uint64
		for len(order) < 14 && now < 100_000 {
			ctrl.Operate(now)
			now++
		}
		Expect(order).To(HaveLen(14))

		// The first read was issued before the watermark flipped the mode;
		// the write burst that follows drains at least MinWritesPerSwitch
		// writes before reads resume.
		Expect(order[0]).To(Equal(byte('r')))
		firstBurst := 0
		for i := 1; i < len(order) && order[i] == 'w'; i++ {
			firstBurst++
		}
		Expect(firstBurst).To(BeNumerically(">=", int(cfg.MinWritesPerSwitch())))
		Expect(firstBurst).To(BeNumerically("<", 7))

		// Once the RQ is dry the channel re-enters write mode and drains
		// the WQ to empty.
		Expect(order[len(order)-1]).To(Equal(byte('w')))

		stats := ctrl.Stats()
		Expect(stats.WQRowBufferHit + stats.WQRowBufferMiss).To(Equal(uint64(7)))
		Expect(stats.RQRowBufferHit + stats.RQRowBufferMiss).To(Equal(uint64(7)))
		Expect(stats.Channels).To(HaveLen(1))
		Expect(stats.DbusCountCongested).To(BeNumerically(">", uint64(0)))
	})
})
