package devices

// 8259A PIC I/O port addresses (spec.md §6).
const (
	PICMasterCmdPort  uint16 = 0x20
	PICMasterDataPort uint16 = 0x21
	PICSlaveCmdPort   uint16 = 0xA0
	PICSlaveDataPort  uint16 = 0xA1
)

// Legacy IRQ line numbers used across devices in this package. Lines 0-7
// are master PIC lines; 8-15 are slave lines cascaded onto master IRQ2.
const (
	IRQPIT      uint8 = 0
	IRQKeyboard uint8 = 1
	IRQCascade  uint8 = 2 // master line the slave cascades onto
	IRQSerial2  uint8 = 3
	IRQSerial1  uint8 = 4
	IRQLPT      uint8 = 7
	IRQRTC      uint8 = 8
	IRQMouse    uint8 = 12
	IRQIDE1     uint8 = 14
	IRQIDE2     uint8 = 15
)

// ICW1 (Initialization Command Word 1) bits.
const (
	picICW1IC4  byte = 0x01 // ICW4 needed
	picICW1SNGL byte = 0x02 // single (0=cascade, 1=single)
	picICW1ADI  byte = 0x04 // call address interval
	picICW1LTIM byte = 0x08 // level (1) vs edge (0) triggered
	picICW1INIT byte = 0x10 // this write starts an ICW sequence
)

// ICW4 bits.
const (
	picICW4UPM  byte = 0x01
	picICW4AEOI byte = 0x02 // auto EOI
	picICW4MS   byte = 0x04
	picICW4BUF  byte = 0x08
	picICW4SFNM byte = 0x10
)

// OCW2 bits.
const (
	picOCW2Level byte = 0x07 // IR level acted on by specific EOI/rotate
	picOCW2EOI   byte = 0x20 // End Of Interrupt
	picOCW2SL    byte = 0x40 // specific (1) vs non-specific (0)
	picOCW2R     byte = 0x80 // rotate
)

// OCW3 bits.
const (
	picOCW3RIS  byte = 0x01 // read ISR (1) vs IRR (0) when RR set
	picOCW3RR   byte = 0x02 // read register command
	picOCW3Poll byte = 0x04
	picOCW3ESMM byte = 0x20
	picOCW3SMM  byte = 0x40
)

// picMode tracks where a controller sits in the ICW0..ICW3/STD sequence
// (spec.md §3 "Interrupt pair"), named INIT0/INIT1/INIT2/STD per spec.md.
type picMode int

const (
	picModeSTD picMode = iota
	picModeINIT0
	picModeINIT1
	picModeINIT2
)
