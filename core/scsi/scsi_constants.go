// Package scsi implements the SCSITarget bus-phase state machine of
// spec.md §4.6, grounded on original_source/src/Sym53C895.h's per-target
// sub-buffer layout (msgi/msgo/cmd/dati/dato/stat).
package scsi

// Phase is one of the six SCSI bus phases spec.md §4.6 names. Exactly
// one is active at any time.
type Phase int

const (
	PhaseBusFree Phase = iota
	PhaseMsgOut
	PhaseCommand
	PhaseDataOut
	PhaseDataIn
	PhaseStatus
	PhaseMsgIn
)

func (p Phase) String() string {
	switch p {
	case PhaseBusFree:
		return "BUS_FREE"
	case PhaseMsgOut:
		return "MSG_OUT"
	case PhaseCommand:
		return "COMMAND"
	case PhaseDataOut:
		return "DATA_OUT"
	case PhaseDataIn:
		return "DATA_IN"
	case PhaseStatus:
		return "STATUS"
	case PhaseMsgIn:
		return "MSG_IN"
	default:
		return "?"
	}
}

// Command opcodes recognized by runCommandLocked (spec.md §4.6's subset).
const (
	CmdTestUnitReady    = 0x00
	CmdRead6            = 0x08
	CmdRequestSense     = 0x03
	CmdWrite6           = 0x0A
	CmdInquiry          = 0x12
	CmdModeSelect6      = 0x15
	CmdModeSense6       = 0x1A
	CmdStartStop        = 0x1B
	CmdPreventAllow     = 0x1E
	CmdReadCapacity     = 0x25
	CmdRead10           = 0x28
	CmdWrite10          = 0x2A
	CmdSynchronizeCache = 0x35
	CmdReadTOC          = 0x43
	CmdModeSense10      = 0x5A
	CmdRead12           = 0xA8
	CmdReadCD           = 0xBE
)

// Status byte values.
const (
	StatusGood           = 0x00
	StatusCheckCondition = 0x02
)

// Sense keys/codes for the minimal REQUEST SENSE reply.
const (
	senseNoSense        = 0x00
	senseIllegalRequest = 0x05
	senseMediumError    = 0x03
	ascInvalidCommand   = 0x20
	ascLBAOutOfRange    = 0x21
)

// Identify/extended message codes recognized in MSG_OUT (spec.md §4.6
// "Messages handled").
const (
	msgIdentifyMask       = 0x80
	msgIdentifyDisconnect = 0x40
	msgExtended           = 0x01
	msgExtSDTR            = 0x01
	msgExtWDTR            = 0x03
)

// Fixed sub-buffer capacities for the small control buffers, matching
// Sym53C895.h's per_target struct (msgi[10]/msgo[10]/cmd[20]/stat[10]).
// dati/dato are sized per-transfer instead of held to the header's
// fixed 512, since spec.md's READ CAPACITY property spans block sizes up
// to 4096 (see DESIGN.md).
const (
	msgiCap = 10
	msgoCap = 10
	cmdCap  = 20
	statCap = 10
)
