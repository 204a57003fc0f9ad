// Package dram models a hybrid DDR/HBM memory controller: per-channel bank
// scheduling, row-buffer aware FR-FCFS, read/write queue arbitration with
// watermark hysteresis, and data-bus accounting. It sits below timing/cache
// as the backing store for L2 misses.
package dram

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"os"
)

// Kind distinguishes the two backing stores sharing one flat address space.
// HBM starts at line 0; DDR begins where HBM's capacity ends, so the
// enum ordering mirrors the address-space ordering.
type Kind uint8

const (
	KindHBM Kind = iota
	KindDDR
)

func (k Kind) String() string {
	if k == KindHBM {
		return "HBM"
	}
	return "DDR"
}

// Queue kind constants for GetOccupancy/GetSize: 1 = read queue, 2 = write
// queue, 3 = prefetch queue (aliased to the read queue in the default
// configuration).
const (
	QueueRead     = 1
	QueueWrite    = 2
	QueuePrefetch = 3
)

// Geometry describes one memory kind's channel/bank/row/column layout and
// total byte capacity.
type Geometry struct {
	Channels uint64 `json:"channels"`
	// Ranks is meaningful for DDR only; HBM has no explicit rank, so
	// HBM geometries leave this at its zero value and the decoder never
	// consults it for HBM addresses.
	Ranks        uint64 `json:"ranks,omitempty"`
	Banks        uint64 `json:"banks"`
	Rows         uint64 `json:"rows"`
	Columns      uint64 `json:"columns"`
	CapacityByte uint64 `json:"capacity_bytes"`
}

func (g Geometry) ranksOrOne() uint64 {
	if g.Ranks == 0 {
		return 1
	}
	return g.Ranks
}

// banksPerChannel is the number of independently schedulable bank slots per
// channel: ranks*banks for DDR, banks for HBM.
func (g Geometry) banksPerChannel() uint64 {
	return g.ranksOrOne() * g.Banks
}

// Timing holds the cycle-count values derived once at construction from the
// nanosecond parameters and the I/O frequency. All are integer cycle counts
// computed with ceilCycles, never with a runtime floating point ceil.
type Timing struct {
	TRP              uint64 `json:"trp_cycles"`
	TRCD             uint64 `json:"trcd_cycles"`
	TCAS             uint64 `json:"tcas_cycles"`
	DbusTurnAround   uint64 `json:"dbus_turn_around_cycles"`
	DbusReturnCycles uint64 `json:"dbus_return_cycles"`
}

// Config gathers the controller's geometry and timing parameters into a
// single runtime-loadable configuration surface. Nanosecond timing
// parameters are stored in tenths of a nanosecond so that halves (e.g.
// 12.5ns) survive as exact integers through ceilCycles.
type Config struct {
	BlockSize         uint64 `json:"block_size"`
	PageSize          uint64 `json:"page_size"`
	IOFreqMHz         uint64 `json:"dram_io_freq_mhz"`
	ChannelWidthBytes uint64 `json:"dram_channel_width_bytes"`
	WQSize            uint64 `json:"dram_wq_size"`
	RQSize            uint64 `json:"dram_rq_size"`

	TRPTenthsNS            uint64 `json:"trp_tenths_ns"`
	TRCDTenthsNS           uint64 `json:"trcd_tenths_ns"`
	TCASTenthsNS           uint64 `json:"tcas_tenths_ns"`
	DbusTurnAroundTenthsNS uint64 `json:"dbus_turn_around_tenths_ns"`

	HBM Geometry `json:"hbm"`
	DDR Geometry `json:"ddr"`

	// Timing is derived from the ns fields above by normalize; it is not
	// read from or written to a config file.
	Timing Timing `json:"-"`
}

// ceilCycles converts a duration given in tenths of a nanosecond to a cycle
// count at the given I/O frequency (MHz), rounding up. Using tenths keeps
// half-nanosecond timing parameters (12.5ns, 7.5ns) exact integers, so the
// conversion never touches floating point at simulation time.
func ceilCycles(tenthsNS, mhz uint64) uint64 {
	num := tenthsNS * mhz
	return (num + 9999) / 10000
}

// widthBits returns ceil(log2(count)), the number of bits needed to address
// `count` distinct values. A count of 0 or 1 needs zero bits.
func widthBits(count uint64) uint {
	if count <= 1 {
		return 0
	}
	return uint(bits.Len64(count - 1))
}

// DefaultConfig returns the default hybrid geometry: a 3200MHz I/O clock,
// tRP=tRCD=tCAS=12.5ns, a 7.5ns bus turnaround, 64-entry RQ/WQ, an
// 8-channel 256MB HBM tier and a 1-channel 768MB DDR tier.
func DefaultConfig() *Config {
	cfg := &Config{
		BlockSize:              64,
		PageSize:               4096,
		IOFreqMHz:              3200,
		ChannelWidthBytes:      8,
		WQSize:                 64,
		RQSize:                 64,
		TRPTenthsNS:            125,
		TRCDTenthsNS:           125,
		TCASTenthsNS:           125,
		DbusTurnAroundTenthsNS: 75,
		HBM: Geometry{
			Channels:     8,
			Banks:        8,
			Rows:         1024,
			Columns:      64,
			CapacityByte: 256 * 1024 * 1024,
		},
		DDR: Geometry{
			Channels:     1,
			Ranks:        1,
			Banks:        8,
			Rows:         32768,
			Columns:      64,
			CapacityByte: 768 * 1024 * 1024,
		},
	}
	cfg.normalize()
	return cfg
}

// SingleTierConfig describes a conventional non-hybrid system: one flat
// DDR tier with no HBM channels at all. Single-tier mode is simply the
// hybrid mode with HBM capacity zeroed out, so this is a convenience
// constructor, not a separate code path in Controller.
func SingleTierConfig() *Config {
	cfg := DefaultConfig()
	cfg.HBM = Geometry{}
	cfg.DDR = Geometry{
		Channels:     1,
		Ranks:        1,
		Banks:        8,
		Rows:         65536,
		Columns:      128,
		CapacityByte: 1 << 32 / 2, // 2GB, wide enough for the 32-bit line address implied by these widths
	}
	cfg.normalize()
	return cfg
}

// normalize (re)derives Timing from the ns fields. Called by the
// constructors and by LoadConfig so a hand-edited JSON file's timing fields
// always reflect the ns parameters actually present in it. Validate does not
// call it.
func (c *Config) normalize() {
	c.Timing = Timing{
		TRP:              ceilCycles(c.TRPTenthsNS, c.IOFreqMHz),
		TRCD:             ceilCycles(c.TRCDTenthsNS, c.IOFreqMHz),
		TCAS:             ceilCycles(c.TCASTenthsNS, c.IOFreqMHz),
		DbusTurnAround:   ceilCycles(c.DbusTurnAroundTenthsNS, c.IOFreqMHz),
		DbusReturnCycles: c.BlockSize / c.ChannelWidthBytes,
	}
}

// HighWatermark is DRAM_WRITE_HIGH_WM = WQSize*7/8: the WQ occupancy that
// forces the channel into write mode.
func (c *Config) HighWatermark() uint64 { return (c.WQSize * 7) >> 3 }

// LowWatermark is DRAM_WRITE_LOW_WM = WQSize*6/8: the WQ occupancy below
// which the channel may leave write mode.
func (c *Config) LowWatermark() uint64 { return (c.WQSize * 6) >> 3 }

// MinWritesPerSwitch is MIN_DRAM_WRITES_PER_SWITCH = WQSize/4: the minimum
// number of writes that must drain in a write burst before the channel may
// return to read mode.
func (c *Config) MinWritesPerSwitch() uint64 { return c.WQSize >> 2 }

// LoadConfig reads a Config from a JSON file, starting from DefaultConfig so
// an omitted field keeps its default rather than zeroing out.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dram config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse dram config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize dram config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dram config file: %w", err)
	}
	return nil
}

// Validate enforces the configuration invariants: field widths fit within a
// 64-bit line address, each non-empty tier's capacity fits within the lines
// its geometry can address (a geometry larger than the capacity is
// accepted), and the watermarks are ordered
// LOW_WM < HIGH_WM <= WQSize. A violation is a fatal configuration error:
// callers should treat a non-nil return as unrecoverable.
func (c *Config) Validate() error {
	if c.BlockSize == 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("dram: block size %d must be a positive power of two", c.BlockSize)
	}
	if c.ChannelWidthBytes == 0 || c.BlockSize%c.ChannelWidthBytes != 0 {
		return fmt.Errorf("dram: channel width %d must evenly divide block size %d", c.ChannelWidthBytes, c.BlockSize)
	}
	if c.WQSize == 0 || c.RQSize == 0 {
		return fmt.Errorf("dram: WQSize/RQSize must be > 0")
	}
	if low, high := c.LowWatermark(), c.HighWatermark(); !(low < high && high <= c.WQSize) {
		return fmt.Errorf("dram: watermarks out of order: low=%d high=%d wq_size=%d", low, high, c.WQSize)
	}

	for _, g := range []struct {
		kind Kind
		geo  Geometry
	}{{KindHBM, c.HBM}, {KindDDR, c.DDR}} {
		if g.geo.CapacityByte == 0 {
			continue // zero-capacity tier is valid (single-tier configurations)
		}
		lines := g.geo.CapacityByte / c.BlockSize
		width := widthBits(g.geo.Channels) + widthBits(g.geo.ranksOrOne()) + widthBits(g.geo.Banks) + widthBits(g.geo.Rows) + widthBits(g.geo.Columns)
		if width > 64 {
			return fmt.Errorf("dram: %s address field widths sum to %d bits, exceeds 64", g.kind, width)
		}
		addressable := g.geo.Channels * g.geo.banksPerChannel() * g.geo.Rows * g.geo.Columns
		if addressable < lines {
			return fmt.Errorf("dram: %s geometry addresses %d lines but capacity implies %d lines", g.kind, addressable, lines)
		}
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
