package devices

// 8042 keyboard/mouse controller I/O ports (spec.md §6).
const (
	KBDDataPort   uint16 = 0x60
	KBDStatusPort uint16 = 0x64 // read: status register; write: command register
)

// Status register bits (port 0x64 read).
const (
	kbdStatusOBF      byte = 0x01 // output buffer full
	kbdStatusIBF      byte = 0x02 // input buffer full (never held here: writes process synchronously)
	kbdStatusSysFlag  byte = 0x04
	kbdStatusCmdData  byte = 0x08 // 1 = last host write was to port 0x64 (command)
	kbdStatusLocked   byte = 0x10 // keyboard-lock switch; no switch modeled, always unlocked (1)
	kbdStatusAuxFull  byte = 0x20 // output buffer holds a byte from the aux (mouse) port
	kbdStatusTimeout  byte = 0x40
	kbdStatusParity   byte = 0x80
)

// Command byte bits (the byte written to 0x60 after a 0x64<-0x60 command).
const (
	cmdByteAllowIRQ1  byte = 0x01
	cmdByteAllowIRQ12 byte = 0x02
	cmdByteSysFlag    byte = 0x04
	cmdByteDisableKbd byte = 0x10
	cmdByteDisableAux byte = 0x20
	cmdByteTranslate  byte = 0x40
)

// kbdExpectDest identifies what a pending 0x60 write should be routed to,
// set by a preceding 0x64 write (spec.md §4.4).
type kbdExpectDest int

const (
	kbdExpectNone kbdExpectDest = iota
	kbdExpectCommandByte
	kbdExpectOutputPort
	kbdExpectKbdBuf
	kbdExpectMouseBuf
	kbdExpectToMouse
)

// mouseMode mirrors spec.md §3's mode enum.
type mouseMode int

const (
	mouseModeStream mouseMode = iota
	mouseModeRemote
	mouseModeWrap
	mouseModeReset
)

// mouseParamDest identifies which single-byte parameter a pending mouse
// command expects next.
type mouseParamDest int

const (
	mouseParamNone mouseParamDest = iota
	mouseParamSampleRate
	mouseParamResolution
)

const (
	kbdAck  byte = 0xFA
	kbdBAT  byte = 0xAA
	kbdResend byte = 0xFE
)

const kbdFIFOCapacity = 16
const mouseFIFOCapacity = 32
const kbdStagingCapacity = 32
