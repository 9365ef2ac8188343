// Package ide implements the ATA/ATAPI task-file state machine, the
// ATAPI packet sub-machine, and the bus-master DMA engine of spec.md
// §4.5, grounded on original_source/src/NewIde.cpp.
package ide

// Command-block register offsets, relative to a channel's base I/O port
// (0x1F0 primary, 0x170 secondary).
const (
	RegData        = 0
	RegError       = 1 // read; write aliases RegFeatures
	RegFeatures    = 1
	RegSectorCount = 2
	RegSectorNo    = 3
	RegCylinderLo  = 4
	RegCylinderHi  = 5
	RegDriveHead   = 6
	RegStatus      = 7 // read; write aliases RegCommand
	RegCommand     = 7
)

// Control-block register offsets, relative to a channel's control base
// port (0x3F6 primary, 0x376 secondary).
const (
	RegAltStatus    = 0 // read; write aliases RegDeviceControl
	RegDeviceControl = 0
	RegDriveAddress = 1
)

// Status register bits.
const (
	StatusErr  = 0x01
	StatusIdx  = 0x02
	StatusCorr = 0x04
	StatusDrq  = 0x08
	StatusDsc  = 0x10 // seek-complete
	StatusDwf  = 0x20 // fault
	StatusDrdy = 0x40
	StatusBsy  = 0x80
)

// Error register bits.
const (
	ErrAbrt = 0x04
)

// Device-control register bits.
const (
	ControlNIEN  = 0x02 // disable interrupts
	ControlReset = 0x04 // software reset
)

// Drive/head register bits.
const (
	DriveHeadLBA      = 0x40
	DriveHeadSelMask  = 0x10
	DriveHeadHeadMask = 0x0F
)

// ATA commands.
const (
	CmdNOP             = 0x00
	CmdDeviceReset      = 0x08
	CmdRecalibrate      = 0x10
	CmdReadSectors      = 0x20
	CmdReadSectorsNR    = 0x21
	CmdWriteSectors     = 0x30
	CmdWriteSectorsNR   = 0x31
	CmdSeek             = 0x70
	CmdInitDeviceParams = 0x91
	CmdPacket           = 0xA0
	CmdIdentifyPacket   = 0xA1
	CmdSetMultiple      = 0xC6
	CmdReadDMA          = 0xC8
	CmdReadDMANR        = 0xC9
	CmdWriteDMA         = 0xCA
	CmdWriteDMANR       = 0xCB
	CmdIdentifyDevice   = 0xEC
	CmdSetFeatures      = 0xEF
)

// cmdE0RangeStart / cmdE0RangeEnd are the "accept silently" window (0xE0-0xE3,
// plus the standalone 0xE6, 0xE7, 0xEA entries) of spec.md §4.5.3.
const (
	cmdE0RangeStart = 0xE0
	cmdE0RangeEnd   = 0xE3
)

// ATAPI packet phases (spec.md §4.5.5).
type packetPhase int

const (
	packetNone packetPhase = iota
	packetDP1
	packetDP2
	packetDP34
	packetDI
)

// REASON register (interrupt-reason, aliases sector-count in ATAPI mode).
const (
	reasonCD = 0x01 // command/data: 1 = command packet expected
	reasonIO = 0x02 // I/O: 1 = transfer is device-to-host
)

// Bus-master register offsets, relative to a channel's bus-master base
// port (from the PCI BAR4 region in the original; spec.md §4.5.6 ties
// them to a fixed per-channel 8-byte block regardless of BAR wiring).
const (
	BMRegCommand = 0
	BMRegStatus  = 2
	BMRegPRDAddr = 4
)

// Bus-master command register bits.
const (
	BMCommandStartStop = 0x01
	BMCommandWrite      = 0x08 // 0 = read from disk -> host, 1 = write to disk
)

// Bus-master status register bits.
const (
	BMStatusActive       = 0x01
	BMStatusError        = 0x02
	BMStatusInterrupt    = 0x04
	BMStatusDrv0Capable  = 0x20
	BMStatusDrv1Capable  = 0x40
	BMStatusSimplex      = 0x80
)

// PRD entry layout (spec.md §4.5.6): 8 bytes, little-endian.
const (
	prdEntrySize   = 8
	prdFlagEOT     = 0x80
)

// IRQ lines per channel (spec.md §4.5.7).
const (
	channelIRQ0 = 14
	channelIRQ1 = 15
)

// ATAPI signature cylinder value (spec.md §4.5.2).
const (
	atapiSignatureCylLo = 0x14
	atapiSignatureCylHi = 0xEB
	emptySignatureCyl   = 0xFFFF
)

const maxMultSectors = 128 // MAX_MULT: largest supported block-read span
