package dram

import "fmt"

// Decoder maps a cache-line-indexed address (a physical address already
// shifted right by log2(BLOCK_SIZE)) to its memory kind and coordinates.
// It is pure, total over the configured address space, and
// configuration-driven: all field widths come from widthBits(count) over
// the geometry declared in Config.
type Decoder struct {
	cfg *Config

	hbmLines uint64
	ddrLines uint64

	hbmChWidth, hbmBankWidth, hbmColWidth, hbmRowWidth uint
	ddrChWidth, ddrBankWidth, ddrColWidth, ddrRankWidth, ddrRowWidth uint
}

// NewDecoder builds a Decoder for the given configuration. The caller is
// expected to have already validated cfg.
func NewDecoder(cfg *Config) *Decoder {
	d := &Decoder{cfg: cfg}
	d.hbmLines = cfg.HBM.CapacityByte / cfg.BlockSize
	d.ddrLines = cfg.DDR.CapacityByte / cfg.BlockSize

	d.hbmChWidth = widthBits(cfg.HBM.Channels)
	d.hbmBankWidth = widthBits(cfg.HBM.Banks)
	d.hbmColWidth = widthBits(cfg.HBM.Columns)
	d.hbmRowWidth = widthBits(cfg.HBM.Rows)

	d.ddrChWidth = widthBits(cfg.DDR.Channels)
	d.ddrBankWidth = widthBits(cfg.DDR.Banks)
	d.ddrColWidth = widthBits(cfg.DDR.Columns)
	d.ddrRankWidth = widthBits(cfg.DDR.ranksOrOne())
	d.ddrRowWidth = widthBits(cfg.DDR.Rows)

	return d
}

// decodeFatal reports an address above the configured total capacity. This
// is a programming error on the caller's part, not a recoverable condition:
// upstream packets are expected to have already been validated against the
// simulated physical address space.
func decodeFatal(lineAddr uint64) {
	panic(fmt.Sprintf("dram: line address 0x%x exceeds configured address space", lineAddr))
}

// totalLines returns the total number of addressable cache lines across
// both tiers.
func (d *Decoder) totalLines() uint64 { return d.hbmLines + d.ddrLines }

// KindOf reports whether lineAddr falls in the HBM or DDR tier. Addresses
// below HBM_CAPACITY/BLOCK_SIZE are HBM; the rest are DDR.
func (d *Decoder) KindOf(lineAddr uint64) Kind {
	if lineAddr >= d.totalLines() {
		decodeFatal(lineAddr)
	}
	if lineAddr < d.hbmLines {
		return KindHBM
	}
	return KindDDR
}

// offset returns the address with the selected tier's base subtracted, and
// the tier the address falls in.
func (d *Decoder) offset(lineAddr uint64) (local uint64, kind Kind) {
	kind = d.KindOf(lineAddr)
	if kind == KindDDR {
		local = lineAddr - d.hbmLines
	} else {
		local = lineAddr
	}
	return local, kind
}

func extractField(value uint64, width uint) (field uint64, rest uint64) {
	if width == 0 {
		return 0, value
	}
	mask := uint64(1)<<width - 1
	return value & mask, value >> width
}

// Channel returns the owning channel index for lineAddr.
func (d *Decoder) Channel(lineAddr uint64) uint32 {
	local, kind := d.offset(lineAddr)
	if kind == KindHBM {
		ch, _ := extractField(local, d.hbmChWidth)
		return uint32(ch)
	}
	ch, _ := extractField(local, d.ddrChWidth)
	return uint32(ch)
}

// Bank returns the bank index within the owning channel for lineAddr.
func (d *Decoder) Bank(lineAddr uint64) uint32 {
	local, kind := d.offset(lineAddr)
	if kind == KindHBM {
		rest := local >> d.hbmChWidth
		bank, _ := extractField(rest, d.hbmBankWidth)
		return uint32(bank)
	}
	rest := local >> d.ddrChWidth
	bank, _ := extractField(rest, d.ddrBankWidth)
	return uint32(bank)
}

// Column returns the column address for lineAddr.
func (d *Decoder) Column(lineAddr uint64) uint32 {
	local, kind := d.offset(lineAddr)
	if kind == KindHBM {
		rest := local >> (d.hbmChWidth + d.hbmBankWidth)
		col, _ := extractField(rest, d.hbmColWidth)
		return uint32(col)
	}
	rest := local >> (d.ddrChWidth + d.ddrBankWidth)
	col, _ := extractField(rest, d.ddrColWidth)
	return uint32(col)
}

// Rank returns the rank index for a DDR lineAddr. It is only meaningful for
// DDR addresses: HBM has no explicit rank field, so calling Rank on
// an HBM address is itself a programming error.
func (d *Decoder) Rank(lineAddr uint64) uint32 {
	local, kind := d.offset(lineAddr)
	if kind != KindDDR {
		panic("dram: Rank() called on a non-DDR address")
	}
	rest := local >> (d.ddrChWidth + d.ddrBankWidth + d.ddrColWidth)
	rank, _ := extractField(rest, d.ddrRankWidth)
	return uint32(rank)
}

// Row returns the row address for lineAddr.
func (d *Decoder) Row(lineAddr uint64) uint32 {
	local, kind := d.offset(lineAddr)
	if kind == KindHBM {
		rest := local >> (d.hbmChWidth + d.hbmBankWidth + d.hbmColWidth)
		row, _ := extractField(rest, d.hbmRowWidth)
		return uint32(row)
	}
	rest := local >> (d.ddrChWidth + d.ddrBankWidth + d.ddrColWidth + d.ddrRankWidth)
	row, _ := extractField(rest, d.ddrRowWidth)
	return uint32(row)
}

// bankSlotIndex returns the flat bank-table index for lineAddr within its
// channel: rank*Banks+bank for DDR, bank for HBM.
func (d *Decoder) bankSlotIndex(lineAddr uint64) uint32 {
	if d.KindOf(lineAddr) == KindHBM {
		return d.Bank(lineAddr)
	}
	return d.Rank(lineAddr)*uint32(d.cfg.DDR.Banks) + d.Bank(lineAddr)
}
