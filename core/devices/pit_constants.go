package devices

// 8254 PIT I/O port addresses (spec.md §6).
const (
	PITCounter0Port uint16 = 0x40
	PITCounter1Port uint16 = 0x41
	PITCounter2Port uint16 = 0x42
	PITCommandPort  uint16 = 0x43
	PITGatePort     uint16 = 0x61 // speaker/PIT-gate (spec.md §9 open question)
)

// PIT read/write access patterns (control word bits 5-4).
const (
	pitAccessLatch byte = 0x0
	pitAccessLSB   byte = 0x1
	pitAccessMSB   byte = 0x2
	pitAccessLOHI  byte = 0x3
)
