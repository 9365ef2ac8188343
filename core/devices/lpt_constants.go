package devices

// Parallel port (LPT1) I/O ports (spec.md §6).
const (
	LPTDataPort    uint16 = 0x3BC
	LPTStatusPort  uint16 = 0x3BD
	LPTControlPort uint16 = 0x3BE
)

// Status register bits.
const (
	lptStatusError    byte = 0x08
	lptStatusSelect   byte = 0x10
	lptStatusPaperOut byte = 0x20
	lptStatusAck      byte = 0x40
	lptStatusBusy     byte = 0x80
)

// Control register bits.
const (
	lptControlStrobe   byte = 0x01
	lptControlAutoFeed byte = 0x02
	lptControlInit     byte = 0x04
	lptControlSelect   byte = 0x08
	lptControlIRQEnable byte = 0x10
)
