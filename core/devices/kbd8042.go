package devices

import (
	"fmt"
	"sync"

	"github.com/es40core/peripherals/core"
)

type pendingByte struct {
	val byte
	aux bool
}

// KBD8042 implements the KBD8042 of spec.md §4.4: the shared keyboard
// and PS/2-mouse controller behind ports 0x60/0x64, with command-byte
// decode, a single shared output buffer plus staging queue, a keyboard
// command state machine, and a mouse command/packet-synthesis state
// machine.
//
// The teacher's devices/keyboard.go is a five-line stub (one
// pre-populated scancode byte, no commands); this is built directly
// from spec.md §4.4, following the per-port switch and bit-field-decode
// style `pic.go` and `toy.go` use elsewhere in this package.
type KBD8042 struct {
	mu   sync.Mutex
	sink core.InterruptSink

	kbdFIFO   *byteRing
	mouseFIFO *byteRing

	outBuf   byte
	outFull  bool
	outIsAux bool
	staging  []pendingByte

	commandByte      byte
	kbdClockEnabled  bool
	auxClockEnabled  bool
	lastCommand      byte
	lastWriteWasCmd  bool
	sysFlag          bool
	timeoutFlag      bool

	expectDest kbdExpectDest

	// Keyboard sub-state.
	scanningEnabled      bool
	currentScanSet       byte
	expectingLED         bool
	expectingTypematic   bool
	expectingMakeBreak   bool
	expectingScancodeSet bool
	ledState             byte
	typematic            byte

	// Mouse sub-state.
	mode             mouseMode
	savedMode        mouseMode
	mouseEnabled     bool
	sampleRate       byte
	resolution       byte
	scaling          byte
	imMode           bool
	sampleRateHistory []byte
	expectMouseParam mouseParamDest
	buttons          byte
	deltaX, deltaY   int
	deltaZ           int
}

// NewKBD8042 creates a controller with both clocks enabled and the
// translate bit set, matching real BIOS-initialized hardware.
func NewKBD8042(sink core.InterruptSink) *KBD8042 {
	k := &KBD8042{
		sink:            sink,
		kbdFIFO:         newByteRing(kbdFIFOCapacity),
		mouseFIFO:       newByteRing(mouseFIFOCapacity),
		kbdClockEnabled: true,
		auxClockEnabled: true,
		commandByte:     cmdByteAllowIRQ1 | cmdByteAllowIRQ12 | cmdByteTranslate,
		scanningEnabled: true,
		currentScanSet:  2,
	}
	return k
}

func (k *KBD8042) allowIRQ1() bool  { return k.commandByte&cmdByteAllowIRQ1 != 0 }
func (k *KBD8042) allowIRQ12() bool { return k.commandByte&cmdByteAllowIRQ12 != 0 }
func (k *KBD8042) translate() bool  { return k.commandByte&cmdByteTranslate != 0 }

// pushOutLocked implements the shared-output-buffer-plus-staging-queue
// model of spec.md §4.4: if the output buffer is empty the byte lands
// there immediately and the matching irqN is requested (subject to
// allow_irqN); otherwise it waits in the staging queue.
func (k *KBD8042) pushOutLocked(val byte, aux bool) {
	if !k.outFull {
		k.outBuf = val
		k.outFull = true
		k.outIsAux = aux
		k.raiseForSideLocked(aux)
		return
	}
	if len(k.staging) >= kbdStagingCapacity {
		return // drop, staging exhausted
	}
	k.staging = append(k.staging, pendingByte{val: val, aux: aux})
}

func (k *KBD8042) raiseForSideLocked(aux bool) {
	if k.sink == nil {
		return
	}
	if aux {
		if k.allowIRQ12() {
			k.sink.Interrupt(IRQMouse)
		}
	} else {
		if k.allowIRQ1() {
			k.sink.Interrupt(IRQKeyboard)
		}
	}
}

func (k *KBD8042) pushKbdLocked(val byte) { k.pushOutLocked(val, false) }
func (k *KBD8042) pushMouseLocked(val byte) { k.pushOutLocked(val, true) }

// readDataLocked implements the port 0x60 read of spec.md §4.4.
func (k *KBD8042) readDataLocked() byte {
	if !k.outFull {
		return k.outBuf // stale value, no side effects
	}
	b := k.outBuf
	wasAux := k.outIsAux
	k.outFull = false
	if k.sink != nil {
		if wasAux {
			k.sink.Deassert(IRQMouse)
		} else {
			k.sink.Deassert(IRQKeyboard)
		}
	}
	if len(k.staging) > 0 {
		next := k.staging[0]
		k.staging = k.staging[1:]
		k.outBuf = next.val
		k.outFull = true
		k.outIsAux = next.aux
		k.raiseForSideLocked(next.aux)
	}
	return b
}

func (k *KBD8042) statusLocked() byte {
	var s byte
	if k.outFull {
		s |= kbdStatusOBF
	}
	if k.outFull && k.outIsAux {
		s |= kbdStatusAuxFull
	}
	if k.sysFlag {
		s |= kbdStatusSysFlag
	}
	if k.lastWriteWasCmd {
		s |= kbdStatusCmdData
	}
	s |= kbdStatusLocked // no lock switch modeled: always unlocked
	if k.timeoutFlag {
		s |= kbdStatusTimeout
	}
	k.timeoutFlag = false
	return s
}

// writeDataLocked implements the port 0x60 write of spec.md §4.4.
func (k *KBD8042) writeDataLocked(val byte) {
	k.lastWriteWasCmd = false
	switch k.expectDest {
	case kbdExpectCommandByte:
		k.commandByte = val
		k.sysFlag = val&cmdByteSysFlag != 0
		k.kbdClockEnabled = val&cmdByteDisableKbd == 0
		k.auxClockEnabled = val&cmdByteDisableAux == 0
		if k.outFull {
			k.raiseForSideLocked(k.outIsAux)
		}
		k.expectDest = kbdExpectNone
		return
	case kbdExpectOutputPort:
		k.expectDest = kbdExpectNone
		return
	case kbdExpectKbdBuf:
		k.kbdFIFO.push(val)
		k.expectDest = kbdExpectNone
		return
	case kbdExpectMouseBuf:
		k.mouseFIFO.push(val)
		k.expectDest = kbdExpectNone
		return
	case kbdExpectToMouse:
		k.expectDest = kbdExpectNone
		k.mouseCommandLocked(val)
		return
	}
	k.keyboardCommandLocked(val)
}

// writeCommandLocked implements the port 0x64 write of spec.md §4.4.
func (k *KBD8042) writeCommandLocked(val byte) {
	k.lastCommand = val
	k.lastWriteWasCmd = true

	switch val {
	case 0x20: // read command byte
		k.pushKbdLocked(k.commandByte)
	case 0x60: // next 0x60 write is the command byte
		k.expectDest = kbdExpectCommandByte
	case 0xA7: // disable aux
		k.auxClockEnabled = false
		k.commandByte |= cmdByteDisableAux
	case 0xA8: // enable aux
		k.auxClockEnabled = true
		k.commandByte &^= cmdByteDisableAux
	case 0xA9: // test aux interface
		k.pushKbdLocked(0x00)
	case 0xAA: // self-test
		k.pushKbdLocked(0x55)
		k.sysFlag = true
		if k.outFull {
			k.kbdFIFO.clear()
		}
	case 0xAB: // interface test
		k.pushKbdLocked(0x00)
	case 0xAD: // disable keyboard
		k.kbdClockEnabled = false
		k.commandByte |= cmdByteDisableKbd
	case 0xAE: // enable keyboard
		k.kbdClockEnabled = true
		k.commandByte &^= cmdByteDisableKbd
	case 0xC0: // read input port
		k.pushKbdLocked(0x80)
	case 0xD0: // read output port
		k.pushKbdLocked(k.outputPortByteLocked())
	case 0xD1:
		k.expectDest = kbdExpectOutputPort
	case 0xD2:
		k.expectDest = kbdExpectKbdBuf
	case 0xD3:
		k.expectDest = kbdExpectMouseBuf
	case 0xD4:
		k.expectDest = kbdExpectToMouse
	case 0xFE: // reset
		k.resetLocked()
	default:
		// 0xF0-0xFD, 0xFF: silently accepted.
	}
}

func (k *KBD8042) outputPortByteLocked() byte {
	b := byte(0x02) // A20 gate always enabled; bit0 (system reset line) always deasserted
	if k.outFull && !k.outIsAux {
		b |= 0x10
	}
	if k.outFull && k.outIsAux {
		b |= 0x20
	}
	return b
}

func (k *KBD8042) resetLocked() {
	k.kbdFIFO.clear()
	k.mouseFIFO.clear()
	k.staging = nil
	k.outFull = false
	k.outIsAux = false
	k.commandByte = cmdByteAllowIRQ1 | cmdByteAllowIRQ12 | cmdByteTranslate
	k.kbdClockEnabled = true
	k.auxClockEnabled = true
	k.scanningEnabled = true
	k.currentScanSet = 2
	k.expectingLED = false
	k.expectingTypematic = false
	k.expectingMakeBreak = false
	k.expectingScancodeSet = false
	k.mode = mouseModeStream
	k.mouseEnabled = false
	k.imMode = false
	k.sampleRateHistory = nil
	k.expectMouseParam = mouseParamNone
	k.expectDest = kbdExpectNone
}

// keyboardCommandLocked implements spec.md §4.4's keyboard state
// machine, consuming a byte addressed (directly or via a pending
// multi-byte expectation) to the keyboard device itself.
func (k *KBD8042) keyboardCommandLocked(val byte) {
	switch {
	case k.expectingLED:
		k.ledState = val
		k.expectingLED = false
		k.pushKbdLocked(kbdAck)
		return
	case k.expectingTypematic:
		k.typematic = val
		k.expectingTypematic = false
		k.pushKbdLocked(kbdAck)
		return
	case k.expectingMakeBreak:
		k.expectingMakeBreak = false
		k.pushKbdLocked(kbdAck)
		return
	case k.expectingScancodeSet:
		k.expectingScancodeSet = false
		if val == 0 {
			k.pushKbdLocked(kbdAck)
			k.pushKbdLocked(k.currentScanSet)
		} else {
			k.currentScanSet = val
			k.pushKbdLocked(kbdAck)
		}
		return
	}

	switch val {
	case 0xED:
		k.expectingLED = true
		k.pushKbdLocked(kbdAck)
	case 0xEE:
		k.pushKbdLocked(0xEE)
	case 0xF0:
		k.expectingScancodeSet = true
		k.pushKbdLocked(kbdAck)
	case 0xF2:
		k.pushKbdLocked(kbdAck)
		k.pushKbdLocked(0xAB)
		if k.translate() {
			k.pushKbdLocked(0x41)
		} else {
			k.pushKbdLocked(0x83)
		}
	case 0xF3:
		k.expectingTypematic = true
		k.pushKbdLocked(kbdAck)
	case 0xF4:
		k.scanningEnabled = true
		k.pushKbdLocked(kbdAck)
	case 0xF5:
		k.scanningEnabled = false
		k.pushKbdLocked(kbdAck)
	case 0xF6:
		k.scanningEnabled = true
		k.typematic = 0
		k.ledState = 0
		k.currentScanSet = 2
		k.pushKbdLocked(kbdAck)
	case 0xFC:
		k.expectingMakeBreak = true
		k.pushKbdLocked(kbdAck)
	case 0xFF:
		k.scanningEnabled = true
		k.currentScanSet = 2
		k.pushKbdLocked(kbdAck)
		k.pushKbdLocked(kbdBAT)
	default:
		k.pushKbdLocked(kbdResend)
	}
}

// mouseCommandLocked implements spec.md §4.4's mouse state machine.
func (k *KBD8042) mouseCommandLocked(val byte) {
	if k.expectMouseParam != mouseParamNone {
		dest := k.expectMouseParam
		k.expectMouseParam = mouseParamNone
		switch dest {
		case mouseParamSampleRate:
			k.sampleRate = val
			k.sampleRateHistory = append(k.sampleRateHistory, val)
			if len(k.sampleRateHistory) > 3 {
				k.sampleRateHistory = k.sampleRateHistory[len(k.sampleRateHistory)-3:]
			}
			if len(k.sampleRateHistory) == 3 &&
				k.sampleRateHistory[0] == 200 &&
				k.sampleRateHistory[1] == 100 &&
				k.sampleRateHistory[2] == 80 {
				k.imMode = true
			}
		case mouseParamResolution:
			k.resolution = val
		}
		k.pushMouseLocked(kbdAck)
		return
	}

	switch val {
	case 0xF3:
		k.expectMouseParam = mouseParamSampleRate
		k.pushMouseLocked(kbdAck)
	case 0xE8:
		k.expectMouseParam = mouseParamResolution
		k.pushMouseLocked(kbdAck)
	case 0xE6:
		k.scaling = 1
		k.pushMouseLocked(kbdAck)
	case 0xE7:
		k.scaling = 2
		k.pushMouseLocked(kbdAck)
	case 0xEA:
		k.mode = mouseModeStream
		k.pushMouseLocked(kbdAck)
	case 0xF0:
		k.mode = mouseModeRemote
		k.pushMouseLocked(kbdAck)
	case 0xEE:
		k.savedMode = k.mode
		k.mode = mouseModeWrap
		k.pushMouseLocked(kbdAck)
	case 0xEC:
		k.mode = k.savedMode
		k.pushMouseLocked(kbdAck)
	case 0xF4:
		k.mouseEnabled = true
		k.pushMouseLocked(kbdAck)
	case 0xF5:
		k.mouseEnabled = false
		k.sampleRateHistory = nil
		k.pushMouseLocked(kbdAck)
	case 0xF6:
		k.resetMouseDefaultsLocked()
		k.pushMouseLocked(kbdAck)
	case 0xFF:
		k.resetMouseDefaultsLocked()
		k.pushMouseLocked(kbdAck)
		k.pushMouseLocked(kbdBAT)
		k.pushMouseLocked(0x00)
	case 0xE9:
		k.pushMouseLocked(kbdAck)
		k.pushMouseLocked(k.mouseStatusByteLocked())
		k.pushMouseLocked(k.resolution)
		k.pushMouseLocked(k.sampleRate)
	case 0xEB:
		k.pushMouseLocked(kbdAck)
		k.emitMousePacketLocked(true)
	case 0xF2:
		k.pushMouseLocked(kbdAck)
		if k.imMode {
			k.pushMouseLocked(0x03)
		} else {
			k.pushMouseLocked(0x00)
		}
	default:
		k.pushMouseLocked(kbdAck)
	}
}

func (k *KBD8042) resetMouseDefaultsLocked() {
	k.mode = mouseModeStream
	k.savedMode = mouseModeStream
	k.sampleRate = 100
	k.resolution = 2
	k.scaling = 1
	k.mouseEnabled = false
	k.deltaX, k.deltaY, k.deltaZ = 0, 0, 0
	k.buttons = 0
}

func (k *KBD8042) mouseStatusByteLocked() byte {
	var b byte
	if k.mouseEnabled {
		b |= 0x20
	}
	if k.scaling == 2 {
		b |= 0x10
	}
	b |= k.buttons & 0x07
	return b
}

// MouseMove accumulates a relative motion/button/wheel event from the
// host input collaborator. Packet emission happens on the next
// synthesizeMousePacketLocked (periodic tick) or on an explicit 0xEB read,
// which calls emitMousePacketLocked directly.
func (k *KBD8042) MouseMove(dx, dy, dz int, buttons byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.deltaX += dx
	k.deltaY += dy
	k.deltaZ += dz
	k.buttons = buttons
}

func clampDelta(v int) int {
	if v > 254 {
		return 254
	}
	if v < -254 {
		return -254
	}
	return v
}

// emitMousePacketLocked synthesizes a standard 3-byte (or 4-byte wheel)
// PS/2 mouse packet per spec.md §4.4, always emitting regardless of the
// accumulated delta when forced (the 0xEB "read data" command).
func (k *KBD8042) emitMousePacketLocked(forced bool) {
	if !forced && k.deltaX == 0 && k.deltaY == 0 {
		return
	}
	dx := clampDelta(k.deltaX)
	dy := clampDelta(k.deltaY)

	var b1 byte
	b1 |= k.buttons & 0x07
	if dx < 0 {
		b1 |= 0x10
	}
	if dy < 0 {
		b1 |= 0x20
	}
	b1 |= 0x08 // bit 3 always set in a standard packet

	k.mouseFIFO.push(b1)
	k.mouseFIFO.push(byte(int8(dx)))
	k.mouseFIFO.push(byte(int8(dy)))
	if k.imMode {
		dz := clampDelta(k.deltaZ)
		k.mouseFIFO.push(byte(int8(dz)))
		k.deltaZ -= dz
	}

	k.deltaX -= dx
	k.deltaY -= dy
}

// synthesizeMousePacketLocked is the periodic-tick half of packet
// synthesis: only streams a packet when the mouse FIFO is empty and a
// delta is outstanding (spec.md §4.4).
func (k *KBD8042) synthesizeMousePacketLocked() {
	if k.mode != mouseModeStream || !k.mouseEnabled {
		return
	}
	if !k.mouseFIFO.empty() {
		return
	}
	if k.deltaX == 0 && k.deltaY == 0 {
		return
	}
	k.emitMousePacketLocked(false)
}

// GenScancode injects a keypress/release from the host input
// collaborator (spec.md §6 "Scancode injection"). Translation and
// break-prefix handling follow spec.md §4.4; the keysym table itself is
// out of scope and supplied by the caller.
func (k *KBD8042) GenScancode(keysym byte, released bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.kbdClockEnabled || !k.scanningEnabled {
		return
	}
	raw := genScancode(keysym, released)
	if k.translate() {
		raw = translateScanSet2ToSet1(raw)
	}
	for _, b := range raw {
		k.kbdFIFO.push(b)
	}
}

// Tick implements spec.md §4.4's periodic action and §4.8 step 1.
func (k *KBD8042) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.synthesizeMousePacketLocked()

	if k.outFull {
		return
	}
	if k.kbdClockEnabled && !k.kbdFIFO.empty() {
		b, _ := k.kbdFIFO.pop()
		k.pushKbdLocked(b)
		return
	}
	if k.auxClockEnabled && !k.mouseFIFO.empty() {
		b, _ := k.mouseFIFO.pop()
		k.pushMouseLocked(b)
	}
}

// pendingByteV1 is pendingByte's fixed-layout form for the staging queue.
type pendingByteV1 struct {
	Val byte
	Aux bool
}

// kbd8042StateV1 is the fixed-layout savestate body. The sample-rate
// history is not framed: it is a short rolling window (spec.md §4.4's
// IntelliMouse-unlock sequence) that only matters mid-unlock-handshake,
// and a restore mid-handshake simply restarts the host's 3-write sequence
// rather than resuming it — equivalent to the host re-issuing the probe.
type kbd8042StateV1 struct {
	KbdBuf    [kbdFIFOCapacity]byte
	KbdHead   int32
	KbdCount  int32
	MouseBuf  [mouseFIFOCapacity]byte
	MouseHead int32
	MouseCount int32

	OutBuf   byte
	OutFull  bool
	OutIsAux bool

	Staging    [kbdStagingCapacity]pendingByteV1
	StagingLen int32

	CommandByte     byte
	KbdClockEnabled bool
	AuxClockEnabled bool
	LastCommand     byte
	LastWriteWasCmd bool
	SysFlag         bool
	TimeoutFlag     bool

	ExpectDest int32

	ScanningEnabled      bool
	CurrentScanSet       byte
	ExpectingLED         bool
	ExpectingTypematic   bool
	ExpectingMakeBreak   bool
	ExpectingScancodeSet bool
	LedState             byte
	Typematic            byte

	Mode             int32
	SavedMode        int32
	MouseEnabled     bool
	SampleRate       byte
	Resolution       byte
	Scaling          byte
	ImMode           bool
	ExpectMouseParam int32
	Buttons          byte
	DeltaX, DeltaY   int32
	DeltaZ           int32
}

// SaveState implements core.Savable.
func (k *KBD8042) SaveState() ([]byte, error) {
	k.mu.Lock()
	var s kbd8042StateV1
	copy(s.KbdBuf[:], k.kbdFIFO.buf)
	s.KbdHead, s.KbdCount = int32(k.kbdFIFO.head), int32(k.kbdFIFO.count)
	copy(s.MouseBuf[:], k.mouseFIFO.buf)
	s.MouseHead, s.MouseCount = int32(k.mouseFIFO.head), int32(k.mouseFIFO.count)

	s.OutBuf, s.OutFull, s.OutIsAux = k.outBuf, k.outFull, k.outIsAux

	if len(k.staging) > kbdStagingCapacity {
		s.StagingLen = kbdStagingCapacity
	} else {
		s.StagingLen = int32(len(k.staging))
	}
	for i := 0; i < int(s.StagingLen); i++ {
		s.Staging[i] = pendingByteV1{Val: k.staging[i].val, Aux: k.staging[i].aux}
	}

	s.CommandByte = k.commandByte
	s.KbdClockEnabled, s.AuxClockEnabled = k.kbdClockEnabled, k.auxClockEnabled
	s.LastCommand, s.LastWriteWasCmd = k.lastCommand, k.lastWriteWasCmd
	s.SysFlag, s.TimeoutFlag = k.sysFlag, k.timeoutFlag
	s.ExpectDest = int32(k.expectDest)

	s.ScanningEnabled, s.CurrentScanSet = k.scanningEnabled, k.currentScanSet
	s.ExpectingLED, s.ExpectingTypematic = k.expectingLED, k.expectingTypematic
	s.ExpectingMakeBreak, s.ExpectingScancodeSet = k.expectingMakeBreak, k.expectingScancodeSet
	s.LedState, s.Typematic = k.ledState, k.typematic

	s.Mode, s.SavedMode = int32(k.mode), int32(k.savedMode)
	s.MouseEnabled = k.mouseEnabled
	s.SampleRate, s.Resolution, s.Scaling = k.sampleRate, k.resolution, k.scaling
	s.ImMode = k.imMode
	s.ExpectMouseParam = int32(k.expectMouseParam)
	s.Buttons = k.buttons
	s.DeltaX, s.DeltaY, s.DeltaZ = int32(k.deltaX), int32(k.deltaY), int32(k.deltaZ)
	k.mu.Unlock()
	return core.EncodeFixed(s)
}

// RestoreState implements core.Savable.
func (k *KBD8042) RestoreState(data []byte) error {
	var s kbd8042StateV1
	if err := core.DecodeFixed(data, &s); err != nil {
		return err
	}
	k.mu.Lock()
	if k.kbdFIFO == nil || len(k.kbdFIFO.buf) != len(s.KbdBuf) {
		k.kbdFIFO = newByteRing(len(s.KbdBuf))
	}
	copy(k.kbdFIFO.buf, s.KbdBuf[:])
	k.kbdFIFO.head, k.kbdFIFO.count = int(s.KbdHead), int(s.KbdCount)

	if k.mouseFIFO == nil || len(k.mouseFIFO.buf) != len(s.MouseBuf) {
		k.mouseFIFO = newByteRing(len(s.MouseBuf))
	}
	copy(k.mouseFIFO.buf, s.MouseBuf[:])
	k.mouseFIFO.head, k.mouseFIFO.count = int(s.MouseHead), int(s.MouseCount)

	k.outBuf, k.outFull, k.outIsAux = s.OutBuf, s.OutFull, s.OutIsAux

	k.staging = k.staging[:0]
	for i := 0; i < int(s.StagingLen); i++ {
		k.staging = append(k.staging, pendingByte{val: s.Staging[i].Val, aux: s.Staging[i].Aux})
	}

	k.commandByte = s.CommandByte
	k.kbdClockEnabled, k.auxClockEnabled = s.KbdClockEnabled, s.AuxClockEnabled
	k.lastCommand, k.lastWriteWasCmd = s.LastCommand, s.LastWriteWasCmd
	k.sysFlag, k.timeoutFlag = s.SysFlag, s.TimeoutFlag
	k.expectDest = kbdExpectDest(s.ExpectDest)

	k.scanningEnabled, k.currentScanSet = s.ScanningEnabled, s.CurrentScanSet
	k.expectingLED, k.expectingTypematic = s.ExpectingLED, s.ExpectingTypematic
	k.expectingMakeBreak, k.expectingScancodeSet = s.ExpectingMakeBreak, s.ExpectingScancodeSet
	k.ledState, k.typematic = s.LedState, s.Typematic

	k.mode, k.savedMode = mouseMode(s.Mode), mouseMode(s.SavedMode)
	k.mouseEnabled = s.MouseEnabled
	k.sampleRate, k.resolution, k.scaling = s.SampleRate, s.Resolution, s.Scaling
	k.imMode = s.ImMode
	k.expectMouseParam = mouseParamDest(s.ExpectMouseParam)
	k.buttons = s.Buttons
	k.deltaX, k.deltaY, k.deltaZ = int(s.DeltaX), int(s.DeltaY), int(s.DeltaZ)
	k.sampleRateHistory = nil
	k.mu.Unlock()
	return nil
}

var _ core.Savable = (*KBD8042)(nil)

var (
	_ core.LegacyIO = (*KBD8042)(nil)
	_ core.Clocked  = (*KBD8042)(nil)
)

// ReadIO implements core.LegacyIO for ports 0x60 and 0x64.
func (k *KBD8042) ReadIO(port uint16, size int) (uint32, error) {
	if size != 1 {
		return 0, fmt.Errorf("KBD8042: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	switch port {
	case KBDDataPort:
		return uint32(k.readDataLocked()), nil
	case KBDStatusPort:
		return uint32(k.statusLocked()), nil
	}
	return 0, fmt.Errorf("KBD8042: unhandled port 0x%x", port)
}

// WriteIO implements core.LegacyIO.
func (k *KBD8042) WriteIO(port uint16, size int, value uint32) error {
	if size != 1 {
		return fmt.Errorf("KBD8042: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	val := byte(value)
	k.mu.Lock()
	defer k.mu.Unlock()
	switch port {
	case KBDDataPort:
		k.writeDataLocked(val)
	case KBDStatusPort:
		k.writeCommandLocked(val)
	default:
		return fmt.Errorf("KBD8042: unhandled port 0x%x", port)
	}
	return nil
}
