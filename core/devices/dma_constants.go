package devices

// 8237 DMA controller port ranges (spec.md §6): DMA1 handles 8-bit
// channels 0-3, DMA2 handles 16-bit channels 4-7. Page registers extend
// the channel address with its high byte; the 0x480 range is the
// chipset's extended (bits 24-31) page registers.
const (
	DMA1Base      uint16 = 0x00
	DMA1End       uint16 = 0x0F
	DMA2Base      uint16 = 0xC0
	DMA2End       uint16 = 0xDF
	DMAPageBase   uint16 = 0x80
	DMAPageEnd    uint16 = 0x8F
	DMAExtPageBase uint16 = 0x480
	DMAExtPageEnd  uint16 = 0x48F
)

// DMA1 per-channel register offsets (channels 0-3); DMA2 mirrors this
// shape at 2x the stride over 0xC0-0xDF.
const (
	dma1CommandOff  = 0x08
	dma1RequestOff  = 0x09
	dma1SingleMask  = 0x0A
	dma1ModeOff     = 0x0B
	dma1ClearFFOff  = 0x0C
	dma1MasterClear = 0x0D
	dma1ClearMask   = 0x0E
	dma1AllMaskOff  = 0x0F
)

const (
	dma2CommandOff  = 0x08 * 2
	dma2RequestOff  = 0x09 * 2
	dma2SingleMask  = 0x0A * 2
	dma2ModeOff     = 0x0B * 2
	dma2ClearFFOff  = 0x0C * 2
	dma2MasterClear = 0x0D * 2
	dma2ClearMask   = 0x0E * 2
)
