package scsi

import (
	"encoding/binary"
	"fmt"

	"github.com/es40core/peripherals/core"
	"github.com/es40core/peripherals/core/storage"
)

// SCSITarget is one target's bus-phase state machine (spec.md §4.6). The
// initiator drives it through exactly three methods per phase: Expected,
// XferPtr, XferDone.
//
// Grounded on original_source/src/Sym53C895.h's per-target sub-buffer
// names (msgi/msgo/cmd/dati/dato/stat); the PCI SCRIPTS engine that wraps
// them in the original is out of spec.md §4.6's scope (a "bus-phase state
// machine + command handler", not a register-accurate SIOP), so this
// package exposes the phase machine directly rather than behind PCI BAR
// registers.
type SCSITarget struct {
	bd        *storage.BlockDevice
	atapiMode bool

	phase          Phase
	lunSelected    bool
	disconnectPriv bool
	willDisconnect bool
	disconnected   bool
	reselected     bool

	msgi    []byte
	msgiLen int
	msgiPtr int

	msgo    []byte
	msgoLen int

	cmd    []byte
	cmdLen int

	dati    []byte
	datiPtr int

	dato    []byte
	datoPtr int

	stat    []byte
	statPtr int

	blockSize              uint32
	pendingLBA             uint64
	pendingBlocksRemaining uint32
	pendingWrite           bool

	senseKey byte
	senseASC byte
}

// NewSCSITarget builds a target backed by bd. atapiMode selects the
// ATAPI-emulation selection shortcut spec.md §4.6 names ("enter COMMAND
// directly" instead of MSG_OUT).
func NewSCSITarget(bd *storage.BlockDevice, atapiMode bool) *SCSITarget {
	t := &SCSITarget{bd: bd, atapiMode: atapiMode}
	if bd != nil {
		t.blockSize = bd.GetBlockSize()
	}
	t.msgi = make([]byte, msgiCap)
	t.msgo = make([]byte, msgoCap)
	t.cmd = make([]byte, cmdCap)
	t.stat = make([]byte, statCap)
	return t
}

// Select implements the selection sequence (spec.md §4.6 "On selection").
func (t *SCSITarget) Select() {
	t.msgiLen, t.msgiPtr = 0, 0
	t.msgoLen = 0
	t.cmdLen = 0
	t.dati, t.datiPtr = nil, 0
	t.dato, t.datoPtr = nil, 0
	t.statPtr = 0
	t.lunSelected = false
	t.disconnected = false
	t.reselected = false
	if t.atapiMode {
		t.phase = PhaseCommand
		return
	}
	t.phase = PhaseMsgOut
}

// Phase reports the currently active bus phase.
func (t *SCSITarget) Phase() Phase { return t.phase }

// Expected implements `expected() -> bytes still transferable in the
// current phase`.
func (t *SCSITarget) Expected() int {
	switch t.phase {
	case PhaseMsgOut:
		return msgoCap - t.msgoLen
	case PhaseCommand:
		if t.cmdLen == 0 {
			return 1 // opcode not seen yet; length depends on it
		}
		return cdbLength(t.cmd[0]) - t.cmdLen
	case PhaseDataOut:
		return len(t.dato) - t.datoPtr
	case PhaseDataIn:
		return len(t.dati) - t.datiPtr
	case PhaseStatus:
		return len(t.stat) - t.statPtr
	case PhaseMsgIn:
		return t.msgiLen - t.msgiPtr
	default:
		return 0
	}
}

// XferPtr implements `xfer_ptr(bytes) -> pointer into the correct
// sub-buffer, advance the cursor`. Receive phases (MSG_OUT, COMMAND,
// DATA_OUT) return a window the caller fills; send phases (DATA_IN,
// STATUS, MSG_IN) return a window already filled by the target.
func (t *SCSITarget) XferPtr(n int) ([]byte, error) {
	switch t.phase {
	case PhaseMsgOut:
		if t.msgoLen+n > msgoCap {
			return nil, fmt.Errorf("scsi: msgo overflow: %w", core.ErrProtocolViolation)
		}
		buf := t.msgo[t.msgoLen : t.msgoLen+n]
		t.msgoLen += n
		return buf, nil
	case PhaseCommand:
		if t.cmdLen+n > cmdCap {
			return nil, fmt.Errorf("scsi: cmd overflow: %w", core.ErrProtocolViolation)
		}
		buf := t.cmd[t.cmdLen : t.cmdLen+n]
		t.cmdLen += n
		return buf, nil
	case PhaseDataOut:
		if t.datoPtr+n > len(t.dato) {
			return nil, fmt.Errorf("scsi: dato overrun: %w", core.ErrProtocolViolation)
		}
		buf := t.dato[t.datoPtr : t.datoPtr+n]
		t.datoPtr += n
		return buf, nil
	case PhaseDataIn:
		if t.datiPtr+n > len(t.dati) {
			return nil, fmt.Errorf("scsi: dati overrun: %w", core.ErrProtocolViolation)
		}
		buf := t.dati[t.datiPtr : t.datiPtr+n]
		t.datiPtr += n
		return buf, nil
	case PhaseStatus:
		if t.statPtr+n > len(t.stat) {
			return nil, fmt.Errorf("scsi: stat overrun: %w", core.ErrProtocolViolation)
		}
		buf := t.stat[t.statPtr : t.statPtr+n]
		t.statPtr += n
		return buf, nil
	case PhaseMsgIn:
		if t.msgiPtr+n > t.msgiLen {
			return nil, fmt.Errorf("scsi: msgi overrun: %w", core.ErrProtocolViolation)
		}
		buf := t.msgi[t.msgiPtr : t.msgiPtr+n]
		t.msgiPtr += n
		return buf, nil
	default:
		return nil, fmt.Errorf("scsi: xfer_ptr in phase %s: %w", t.phase, core.ErrProtocolViolation)
	}
}

// XferDone implements the phase transitions of spec.md §4.6 "Transitions
// in xfer_done".
func (t *SCSITarget) XferDone() {
	switch t.phase {
	case PhaseDataOut:
		if t.datoPtr < len(t.dato) {
			return
		}
		t.finishDataOutLocked()
	case PhaseDataIn:
		if t.datiPtr < len(t.dati) {
			return
		}
		if t.pendingBlocksRemaining > 0 {
			t.loadNextReadBlockLocked()
			return
		}
		t.prepareStatus(StatusGood)
		t.phase = PhaseStatus
	case PhaseCommand:
		if t.cmdLen < cdbLength(t.cmd[0]) {
			return
		}
		t.runCommandLocked()
	case PhaseStatus:
		t.prepareCompleteMessage()
		t.phase = PhaseMsgIn
	case PhaseMsgOut:
		if t.processMsgOutLocked() {
			t.phase = PhaseMsgIn
		} else {
			t.phase = PhaseCommand
		}
	case PhaseMsgIn:
		// An SDTR/WDTR negotiation reply (staged by processMsgOutLocked
		// before any CDB arrived) leaves cmdLen short of a full CDB; the
		// initiator still owes us a command, so go back to COMMAND instead
		// of disconnecting. A COMMAND COMPLETE message, by contrast, always
		// follows a fully-received CDB.
		if t.cmdLen == 0 || t.cmdLen < cdbLength(t.cmd[0]) {
			t.phase = PhaseCommand
		} else {
			t.phase = PhaseBusFree
			t.disconnected = true
		}
	}
}

func cdbLength(opcode byte) int {
	switch opcode {
	case CmdRead10, CmdWrite10, CmdModeSense10, CmdReadCapacity:
		return 10
	case CmdRead12, CmdReadCD:
		return 12
	default:
		return 6
	}
}

func (t *SCSITarget) prepareStatus(code byte) {
	t.stat = []byte{code}
	t.statPtr = 0
}

func (t *SCSITarget) prepareDataIn(data []byte) {
	t.dati = data
	t.datiPtr = 0
}

func (t *SCSITarget) prepareCompleteMessage() {
	t.msgi = append(t.msgi[:0], 0x00) // COMMAND COMPLETE
	t.msgiLen = 1
	t.msgiPtr = 0
}

func (t *SCSITarget) abortWithSense(key, asc byte) {
	t.senseKey, t.senseASC = key, asc
	t.prepareStatus(StatusCheckCondition)
	t.phase = PhaseStatus
}

// processMsgOutLocked handles IDENTIFY and extended SDTR/WDTR messages
// (spec.md §4.6 "Messages handled"). Returns true if a reply was staged
// into MSG_IN.
func (t *SCSITarget) processMsgOutLocked() bool {
	replied := false
	i := 0
	for i < t.msgoLen {
		b := t.msgo[i]
		switch {
		case b&msgIdentifyMask != 0:
			t.lunSelected = true
			t.disconnectPriv = b&msgIdentifyDisconnect != 0
			i++
		case b == msgExtended && i+1 < t.msgoLen:
			length := int(t.msgo[i+1])
			if i+2+length > t.msgoLen {
				i = t.msgoLen
				break
			}
			code := t.msgo[i+2]
			switch code {
			case msgExtSDTR, msgExtWDTR:
				t.msgi = append(t.msgi[:0], t.msgo[i:i+2+length]...)
				t.msgiLen = len(t.msgi)
				t.msgiPtr = 0
				replied = true
			}
			i += 2 + length
		default:
			i++
		}
	}
	return replied
}

// runCommandLocked decodes cmd[0:cmdLen] and dispatches (spec.md §4.6
// "Commands recognized").
func (t *SCSITarget) runCommandLocked() {
	if t.bd == nil {
		t.abortWithSense(senseIllegalRequest, ascInvalidCommand)
		return
	}
	switch t.cmd[0] {
	case CmdTestUnitReady, CmdStartStop, CmdPreventAllow, CmdSynchronizeCache:
		t.prepareStatus(StatusGood)
		t.phase = PhaseStatus
	case CmdRequestSense:
		t.prepareDataIn(t.buildSenseData())
		t.phase = PhaseDataIn
	case CmdInquiry:
		t.prepareDataIn(t.buildInquiryData())
		t.phase = PhaseDataIn
	case CmdModeSense6, CmdModeSense10:
		t.prepareDataIn(t.buildModeSenseData())
		t.phase = PhaseDataIn
	case CmdModeSelect6:
		length := int(t.cmd[4])
		t.dato = make([]byte, length)
		t.datoPtr = 0
		t.phase = PhaseDataOut
	case CmdReadCapacity:
		t.prepareDataIn(t.buildReadCapacityData())
		t.phase = PhaseDataIn
	case CmdReadTOC:
		t.prepareDataIn(synthesizeTOC())
		t.phase = PhaseDataIn
	case CmdRead6, CmdRead10, CmdRead12, CmdReadCD:
		lba, count := decodeReadWriteLBA(t.cmd[0], t.cmd)
		if lba+uint64(count) > t.bd.GetLBASize() {
			t.abortWithSense(senseIllegalRequest, ascLBAOutOfRange)
			return
		}
		t.pendingLBA = lba
		t.pendingBlocksRemaining = count
		t.loadNextReadBlockLocked()
		t.phase = PhaseDataIn
	case CmdWrite6, CmdWrite10:
		lba, count := decodeReadWriteLBA(t.cmd[0], t.cmd)
		if lba+uint64(count) > t.bd.GetLBASize() {
			t.abortWithSense(senseIllegalRequest, ascLBAOutOfRange)
			return
		}
		t.pendingLBA = lba
		t.pendingBlocksRemaining = count
		t.pendingWrite = true
		t.dato = make([]byte, t.bd.GetBlockSize())
		t.datoPtr = 0
		t.phase = PhaseDataOut
	default:
		t.abortWithSense(senseIllegalRequest, ascInvalidCommand)
	}
}

func (t *SCSITarget) loadNextReadBlockLocked() {
	block := make([]byte, t.bd.GetBlockSize())
	if err := t.bd.SeekBlock(t.pendingLBA); err != nil {
		t.abortWithSense(senseMediumError, ascLBAOutOfRange)
		return
	}
	if err := t.bd.ReadBlocks(block, 1); err != nil {
		t.abortWithSense(senseMediumError, ascLBAOutOfRange)
		return
	}
	t.prepareDataIn(block)
	t.pendingLBA++
	t.pendingBlocksRemaining--
}

func (t *SCSITarget) finishDataOutLocked() {
	if t.pendingWrite {
		if err := t.bd.SeekBlock(t.pendingLBA); err != nil {
			t.abortWithSense(senseMediumError, ascLBAOutOfRange)
			t.pendingWrite = false
			return
		}
		if err := t.bd.WriteBlocks(t.dato, 1); err != nil {
			t.abortWithSense(senseMediumError, ascLBAOutOfRange)
			t.pendingWrite = false
			return
		}
		t.pendingLBA++
		t.pendingBlocksRemaining--
		if t.pendingBlocksRemaining > 0 {
			t.dato = make([]byte, t.bd.GetBlockSize())
			t.datoPtr = 0
			return // stay in DATA_OUT for the next block
		}
		t.pendingWrite = false
		t.prepareStatus(StatusGood)
		t.phase = PhaseStatus
		return
	}

	// MODE SELECT parameter list: short header + optional block
	// descriptor (bytes 5-7 hold the new block size, big-endian).
	if len(t.dato) >= 8 {
		blockDescLen := int(t.dato[3])
		if blockDescLen >= 8 {
			size := uint32(t.dato[5])<<16 | uint32(t.dato[6])<<8 | uint32(t.dato[7])
			if size > 0 {
				t.bd.SetBlockSize(size)
				t.blockSize = size
			}
		}
	}
	t.prepareStatus(StatusGood)
	t.phase = PhaseStatus
}

func decodeReadWriteLBA(opcode byte, cmd []byte) (uint64, uint32) {
	switch opcode {
	case CmdRead6, CmdWrite6:
		lba := uint64(cmd[1]&0x1F)<<16 | uint64(cmd[2])<<8 | uint64(cmd[3])
		count := uint32(cmd[4])
		if count == 0 {
			count = 256
		}
		return lba, count
	case CmdRead12, CmdReadCD:
		lba := uint64(cmd[2])<<24 | uint64(cmd[3])<<16 | uint64(cmd[4])<<8 | uint64(cmd[5])
		count := uint32(cmd[6])<<16 | uint32(cmd[7])<<8 | uint32(cmd[8])
		return lba, count
	default: // CmdRead10, CmdWrite10
		lba := uint64(cmd[2])<<24 | uint64(cmd[3])<<16 | uint64(cmd[4])<<8 | uint64(cmd[5])
		count := uint32(cmd[7])<<8 | uint32(cmd[8])
		return lba, count
	}
}

// buildReadCapacityData implements spec.md §8 property 9: big-endian
// (lba_size-1, block_size).
func (t *SCSITarget) buildReadCapacityData() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(t.bd.GetLBASize()-1))
	binary.BigEndian.PutUint32(buf[4:8], t.bd.GetBlockSize())
	return buf
}

func (t *SCSITarget) buildSenseData() []byte {
	buf := make([]byte, 18)
	buf[0] = 0x70 // current errors, fixed format
	buf[2] = t.senseKey
	buf[7] = 10 // additional sense length
	buf[12] = t.senseASC
	return buf
}

func (t *SCSITarget) buildInquiryData() []byte {
	if t.cmd[1]&0x01 != 0 { // EVPD
		switch t.cmd[2] {
		case 0x80:
			return t.buildUnitSerialNumberPage()
		}
	}
	buf := make([]byte, 36)
	if t.bd.CDROM() {
		buf[0] = 0x05 // CD-ROM device type
	}
	buf[2] = 2  // ANSI version
	buf[3] = 2  // response data format
	buf[4] = 31 // additional length
	copy(buf[8:16], padRight("ES40", 8))
	copy(buf[16:32], padRight(t.bd.GetModel(), 16))
	copy(buf[32:36], padRight(t.bd.GetRev(), 4))
	return buf
}

// buildUnitSerialNumberPage is VPD page 0x80 (spec.md:214), the unit
// serial number EVPD reply.
func (t *SCSITarget) buildUnitSerialNumberPage() []byte {
	serial := t.bd.GetSerial()
	buf := make([]byte, 4+len(serial))
	if t.bd.CDROM() {
		buf[0] = 0x05
	}
	buf[1] = 0x80
	buf[3] = byte(len(serial))
	copy(buf[4:], serial)
	return buf
}

func padRight(s string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, s)
	for i := len(s); i < n; i++ {
		buf[i] = ' '
	}
	return buf
}

// buildModeSenseData synthesizes a minimal mode-parameter header plus the
// requested page (spec.md §4.6 pages 0x00/0x01/0x03/0x04/0x05/0x2A).
func (t *SCSITarget) buildModeSenseData() []byte {
	pageCode := t.cmd[2] & 0x3F
	page := modeSensePage(pageCode, t.bd)
	header := []byte{byte(3 + len(page)), 0x00, 0x00, 0x00}
	return append(header, page...)
}

func modeSensePage(pageCode byte, bd *storage.BlockDevice) []byte {
	switch pageCode {
	case 0x01: // read-write error recovery
		return []byte{0x01, 0x0A, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	case 0x03: // format device
		return []byte{0x03, 0x16, 0, 0, 0, 0, byte(bd.GetSectors() >> 8), byte(bd.GetSectors()),
			0, 0, byte(bd.GetBlockSize() >> 8), byte(bd.GetBlockSize()), 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0}
	case 0x04: // rigid disk geometry
		cyl := bd.GetCylinders()
		return []byte{0x04, 0x16, byte(cyl >> 16), byte(cyl >> 8), byte(cyl),
			byte(bd.GetHeads()), 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	case 0x2A: // CD-ROM capabilities
		return []byte{0x2A, 0x14, 0x03, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	default: // 0x00/0x05/unknown: empty vendor-specific page
		return []byte{pageCode, 0x00}
	}
}

func synthesizeTOC() []byte {
	return []byte{0x00, 0x0A, 0x01, 0x01, 0x00, 0x14, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// Advance runs one ClockDispatch tick's worth of progress (spec.md §4.8
// step 5, "if any step yielded"). The phase machine above completes
// synchronously within a single initiator call since BlockDevice I/O is
// synchronous; Advance exists for the disconnect/reselect path, which
// this target does not otherwise exercise (no multi-initiator bus
// contention is modeled), so it is a no-op placeholder kept for
// ClockDispatch's fixed step order.
func (t *SCSITarget) Advance() {}

// stateV1 is the fixed-layout savestate body (spec.md §6); the in-flight
// sub-buffer contents are transient bus-transfer state, not device
// identity, so only the phase/flags/pointers are framed (unlike
// core/ide, whose channel state does carry its data buffer).
type stateV1 struct {
	Phase                  int32
	LunSelected            bool
	DisconnectPriv         bool
	WillDisconnect         bool
	Disconnected           bool
	Reselected             bool
	BlockSize              uint32
	PendingLBA             uint64
	PendingBlocksRemaining uint32
	PendingWrite           bool
	SenseKey               byte
	SenseASC               byte
}

// SaveState implements core.Savable.
func (t *SCSITarget) SaveState() ([]byte, error) {
	s := stateV1{
		Phase:                  int32(t.phase),
		LunSelected:            t.lunSelected,
		DisconnectPriv:         t.disconnectPriv,
		WillDisconnect:         t.willDisconnect,
		Disconnected:           t.disconnected,
		Reselected:             t.reselected,
		BlockSize:              t.blockSize,
		PendingLBA:             t.pendingLBA,
		PendingBlocksRemaining: t.pendingBlocksRemaining,
		PendingWrite:           t.pendingWrite,
		SenseKey:               t.senseKey,
		SenseASC:               t.senseASC,
	}
	return core.EncodeFixed(s)
}

// RestoreState implements core.Savable.
func (t *SCSITarget) RestoreState(data []byte) error {
	var s stateV1
	if err := core.DecodeFixed(data, &s); err != nil {
		return err
	}
	t.phase = Phase(s.Phase)
	t.lunSelected = s.LunSelected
	t.disconnectPriv = s.DisconnectPriv
	t.willDisconnect = s.WillDisconnect
	t.disconnected = s.Disconnected
	t.reselected = s.Reselected
	t.blockSize = s.BlockSize
	t.pendingLBA = s.PendingLBA
	t.pendingBlocksRemaining = s.PendingBlocksRemaining
	t.pendingWrite = s.PendingWrite
	t.senseKey = s.SenseKey
	t.senseASC = s.SenseASC
	if t.bd != nil {
		return t.bd.SetBlockSize(t.blockSize)
	}
	return nil
}

var _ core.Savable = (*SCSITarget)(nil)
