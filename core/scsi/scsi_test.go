package scsi

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/es40core/peripherals/core/storage"
)

func newBackedDisk(t *testing.T, blocks int, blockSize int, cdrom bool) *storage.BlockDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.Truncate(int64(blocks) * int64(blockSize)); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	bd, err := storage.Open(path, false, cdrom, "SN1", "1.0", "TEST DISK")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	if !cdrom {
		if err := bd.SetBlockSize(uint32(blockSize)); err != nil {
			t.Fatalf("SetBlockSize: %v", err)
		}
	}
	return bd
}

// selectAndIdentify drives the selection + MSG_OUT IDENTIFY handshake,
// leaving the target in COMMAND phase.
func selectAndIdentify(t *testing.T, target *SCSITarget) {
	t.Helper()
	target.Select()
	if target.Phase() != PhaseMsgOut {
		t.Fatalf("phase after Select = %s, want MSG_OUT", target.Phase())
	}
	buf, err := target.XferPtr(1)
	if err != nil {
		t.Fatalf("XferPtr(msgout): %v", err)
	}
	buf[0] = 0x80 // IDENTIFY, no disconnect privilege, LUN 0
	target.XferDone()
	if target.Phase() != PhaseCommand {
		t.Fatalf("phase after IDENTIFY = %s, want COMMAND", target.Phase())
	}
}

func sendCDB(t *testing.T, target *SCSITarget, cdb []byte) {
	t.Helper()
	for i, b := range cdb {
		buf, err := target.XferPtr(1)
		if err != nil {
			t.Fatalf("XferPtr(command byte %d): %v", i, err)
		}
		buf[0] = b
		target.XferDone()
	}
}

func readDataIn(t *testing.T, target *SCSITarget) []byte {
	t.Helper()
	if target.Phase() != PhaseDataIn {
		t.Fatalf("phase = %s, want DATA_IN", target.Phase())
	}
	var out []byte
	for target.Phase() == PhaseDataIn {
		n := target.Expected()
		if n == 0 {
			target.XferDone()
			continue
		}
		buf, err := target.XferPtr(n)
		if err != nil {
			t.Fatalf("XferPtr(data_in): %v", err)
		}
		out = append(out, buf...)
		target.XferDone()
	}
	return out
}

func readStatusAndMessage(t *testing.T, target *SCSITarget) byte {
	t.Helper()
	if target.Phase() != PhaseStatus {
		t.Fatalf("phase = %s, want STATUS", target.Phase())
	}
	buf, err := target.XferPtr(target.Expected())
	if err != nil {
		t.Fatalf("XferPtr(status): %v", err)
	}
	status := buf[0]
	target.XferDone()
	if target.Phase() != PhaseMsgIn {
		t.Fatalf("phase after STATUS = %s, want MSG_IN", target.Phase())
	}
	target.XferPtr(target.Expected())
	target.XferDone()
	if target.Phase() != PhaseBusFree {
		t.Fatalf("phase after MSG_IN = %s, want BUS_FREE", target.Phase())
	}
	return status
}

// TestReadCapacityAcrossBlockSizes is spec.md §8 property 9.
func TestReadCapacityAcrossBlockSizes(t *testing.T) {
	for _, blockSize := range []int{512, 1024, 2048, 4096} {
		bd := newBackedDisk(t, 16, blockSize, false)
		target := NewSCSITarget(bd, false)

		selectAndIdentify(t, target)
		sendCDB(t, target, []byte{CmdReadCapacity, 0, 0, 0, 0, 0, 0, 0, 0, 0})
		data := readDataIn(t, target)
		status := readStatusAndMessage(t, target)

		if status != StatusGood {
			t.Fatalf("block size %d: status = 0x%x, want GOOD", blockSize, status)
		}
		if len(data) != 8 {
			t.Fatalf("block size %d: len(data) = %d, want 8", blockSize, len(data))
		}
		lastLBA := binary.BigEndian.Uint32(data[0:4])
		gotBlockSize := binary.BigEndian.Uint32(data[4:8])
		if gotBlockSize != uint32(blockSize) {
			t.Fatalf("block size %d: reported %d", blockSize, gotBlockSize)
		}
		if lastLBA != uint32(bd.GetLBASize()-1) {
			t.Fatalf("block size %d: last LBA = %d, want %d", blockSize, lastLBA, bd.GetLBASize()-1)
		}
		bd.Close()
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	bd := newBackedDisk(t, 4, 512, false)
	defer bd.Close()

	pattern := make([]byte, 2*512)
	for i := range pattern {
		pattern[i] = byte(i*3 + 1)
	}

	target := NewSCSITarget(bd, false)
	selectAndIdentify(t, target)
	sendCDB(t, target, []byte{CmdWrite10, 0, 0, 0, 0, 1, 0, 0, 2, 0})
	if target.Phase() != PhaseDataOut {
		t.Fatalf("phase = %s, want DATA_OUT", target.Phase())
	}
	written := 0
	for target.Phase() == PhaseDataOut {
		n := target.Expected()
		buf, err := target.XferPtr(n)
		if err != nil {
			t.Fatalf("XferPtr(data_out): %v", err)
		}
		copy(buf, pattern[written:written+n])
		written += n
		target.XferDone()
	}
	if status := readStatusAndMessage(t, target); status != StatusGood {
		t.Fatalf("write status = 0x%x, want GOOD", status)
	}

	target2 := NewSCSITarget(bd, false)
	selectAndIdentify(t, target2)
	sendCDB(t, target2, []byte{CmdRead10, 0, 0, 0, 0, 1, 0, 0, 2, 0})
	data := readDataIn(t, target2)
	if status := readStatusAndMessage(t, target2); status != StatusGood {
		t.Fatalf("read status = 0x%x, want GOOD", status)
	}
	if !bytes.Equal(data, pattern) {
		t.Fatalf("round trip mismatch")
	}
}

func TestInquiryReportsConfiguredModel(t *testing.T) {
	bd := newBackedDisk(t, 4, 512, false)
	defer bd.Close()
	target := NewSCSITarget(bd, false)

	selectAndIdentify(t, target)
	sendCDB(t, target, []byte{CmdInquiry, 0, 0, 0, 36, 0})
	data := readDataIn(t, target)
	if status := readStatusAndMessage(t, target); status != StatusGood {
		t.Fatalf("status = 0x%x, want GOOD", status)
	}
	model := bytes.TrimRight(data[16:32], " ")
	if string(model) != "TEST DISK" {
		t.Fatalf("model = %q, want %q", model, "TEST DISK")
	}
}

// TestInquiryEVPDSerialPage is spec.md:214's VPD page 0x80 (unit serial
// number) requirement: EVPD=1, page code 0x80.
func TestInquiryEVPDSerialPage(t *testing.T) {
	bd := newBackedDisk(t, 4, 512, false)
	defer bd.Close()
	target := NewSCSITarget(bd, false)

	selectAndIdentify(t, target)
	sendCDB(t, target, []byte{CmdInquiry, 0x01, 0x80, 0, 36, 0})
	data := readDataIn(t, target)
	if status := readStatusAndMessage(t, target); status != StatusGood {
		t.Fatalf("status = 0x%x, want GOOD", status)
	}

	serial := bd.GetSerial()
	if data[1] != 0x80 {
		t.Fatalf("page code = 0x%x, want 0x80", data[1])
	}
	if int(data[3]) != len(serial) {
		t.Fatalf("page length = %d, want %d", data[3], len(serial))
	}
	if string(data[4:4+len(serial)]) != serial {
		t.Fatalf("serial = %q, want %q", data[4:4+len(serial)], serial)
	}
}

// TestSDTRNegotiationReturnsToCommand covers a negotiation-only MSG_OUT
// (no CDB yet): after the SDTR reply drains through MSG_IN, the target
// must return to COMMAND rather than disconnect, since the initiator
// still owes it an actual command.
func TestSDTRNegotiationReturnsToCommand(t *testing.T) {
	bd := newBackedDisk(t, 4, 512, false)
	defer bd.Close()
	target := NewSCSITarget(bd, false)

	target.Select()
	if target.Phase() != PhaseMsgOut {
		t.Fatalf("phase after Select = %s, want MSG_OUT", target.Phase())
	}

	buf, err := target.XferPtr(5)
	if err != nil {
		t.Fatalf("XferPtr(msgout): %v", err)
	}
	copy(buf, []byte{0x01, 0x03, 0x01, 25, 0x0F}) // EXTENDED MESSAGE, len=3, SDTR, period, offset
	target.XferDone()
	if target.Phase() != PhaseMsgIn {
		t.Fatalf("phase after SDTR = %s, want MSG_IN", target.Phase())
	}

	reply, err := target.XferPtr(target.Expected())
	if err != nil {
		t.Fatalf("XferPtr(msgin): %v", err)
	}
	if len(reply) != 5 || reply[2] != 0x01 {
		t.Fatalf("SDTR reply = % x", reply)
	}
	target.XferDone()
	if target.Phase() != PhaseCommand {
		t.Fatalf("phase after SDTR MSG_IN drain = %s, want COMMAND (no CDB sent yet)", target.Phase())
	}

	sendCDB(t, target, []byte{CmdTestUnitReady, 0, 0, 0, 0, 0})
	if status := readStatusAndMessage(t, target); status != StatusGood {
		t.Fatalf("status after SDTR+TUR = 0x%x, want GOOD", status)
	}
}

func TestUnsupportedCommandChecksCondition(t *testing.T) {
	bd := newBackedDisk(t, 4, 512, false)
	defer bd.Close()
	target := NewSCSITarget(bd, false)

	selectAndIdentify(t, target)
	sendCDB(t, target, []byte{0xFF, 0, 0, 0, 0, 0})
	status := readStatusAndMessage(t, target)
	if status != StatusCheckCondition {
		t.Fatalf("status = 0x%x, want CHECK CONDITION", status)
	}
}

func TestSaveRestoreStateRoundTrip(t *testing.T) {
	bd := newBackedDisk(t, 4, 512, false)
	defer bd.Close()
	target := NewSCSITarget(bd, false)
	target.Select()
	target.pendingLBA = 3
	target.pendingBlocksRemaining = 2
	target.pendingWrite = true

	data, err := target.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	restored := NewSCSITarget(bd, false)
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}
	if restored.pendingLBA != 3 || restored.pendingBlocksRemaining != 2 || !restored.pendingWrite {
		t.Fatalf("restored state mismatch: %+v", restored)
	}
}
