package devices

// 16550 UART register offsets from the line's I/O base (spec.md §4.7).
const (
	uartRegData = 0 // RHR (read) / THR (write) / DLL when DLAB set
	uartRegIER  = 1 // IER, or DLM (divisor latch high) when DLAB set
	uartRegIIR  = 2 // IIR (read) / FCR (write)
	uartRegLCR  = 3
	uartRegMCR  = 4
	uartRegLSR  = 5
	uartRegMSR  = 6
	uartRegSPR  = 7
)

// LCR bits.
const uartLCRDLAB byte = 0x80

// IER bits.
const (
	uartIERRxData byte = 0x01
	uartIERThre   byte = 0x02
)

// IIR values (priority-encoded cause, §4.7 "clear to 0x01 after read").
const (
	uartIIRNone    byte = 0x01
	uartIIRThre    byte = 0x02
	uartIIRRxData  byte = 0x04
)

// FCR bits.
const uartFCRClearRx byte = 0x02

// LSR bits.
const (
	uartLSRDataReady     byte = 0x01
	uartLSRThre          byte = 0x20
	uartLSRTemt          byte = 0x40
)

// COM port base addresses and, per spec.md §4.7, IRQ line 4-n for UART
// index n (COM1/index0 -> IRQ4, COM2/index1 -> IRQ3).
const (
	UART1Base uint16 = 0x3F8
	UART2Base uint16 = 0x2F8
)

const uartRxFIFOCapacity = 1024

// uartDefaultPollStride is how many Tick() calls elapse between
// non-blocking backend polls (spec.md §4.7 "a configurable stride").
const uartDefaultPollStride = 16
