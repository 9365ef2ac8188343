package devices

// TOY/CMOS I/O ports (spec.md §4.3/§6).
const (
	TOYIndexPort    uint16 = 0x70
	TOYDataPort     uint16 = 0x71
	TOYExtIndexPort uint16 = 0x72
	TOYExtDataPort  uint16 = 0x73
)

// CMOS register indices (spec.md §3).
const (
	toyRegSeconds    = 0x00
	toyRegMinutes    = 0x02
	toyRegHours      = 0x04
	toyRegWeekday    = 0x06
	toyRegDayOfMonth = 0x07
	toyRegMonth      = 0x08
	toyRegYear       = 0x09
	toyRegA          = 0x0A
	toyRegB          = 0x0B
	toyRegC          = 0x0C
	toyRegD          = 0x0D
)

// Register A bits.
const toyAUIP byte = 0x80

// Register B bits.
const (
	toyBPeriodicEnable byte = 0x40
	toyBDataMode       byte = 0x04 // 0=BCD, 1=binary
	toyBHour24         byte = 0x02 // 1=24-hour
)

// Register C bits (cleared on read).
const toyCIRQFlagsAll byte = 0xF0
