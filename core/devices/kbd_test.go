package devices

import "testing"

// TestKBDSelfTestScenario is the literal scenario from spec.md §8: port
// 0x64 <- 0xAA yields OBF set and 0x55 readable from port 0x60, after
// which OBF clears.
func TestKBDSelfTestScenario(t *testing.T) {
	sink := newMockSink()
	kbd := NewKBD8042(sink)

	kbd.WriteIO(KBDStatusPort, 1, 0xAA)

	status, _ := kbd.ReadIO(KBDStatusPort, 1)
	if status&uint32(kbdStatusOBF) == 0 {
		t.Fatalf("OBF not set after self-test command")
	}

	data, _ := kbd.ReadIO(KBDDataPort, 1)
	if data != 0x55 {
		t.Fatalf("self-test result = 0x%x, want 0x55", data)
	}

	status, _ = kbd.ReadIO(KBDStatusPort, 1)
	if status&uint32(kbdStatusOBF) != 0 {
		t.Fatalf("OBF still set after draining port 0x60")
	}
}

// TestMouseWheelEnableScenario is the literal scenario from spec.md §8:
// F3,200 F3,100 F3,80 must ACK every byte and set im_mode, after which
// F2 yields ACK,0x03.
func TestMouseWheelEnableScenario(t *testing.T) {
	sink := newMockSink()
	kbd := NewKBD8042(sink)

	sendMouseCmd := func(cmd byte) byte {
		kbd.WriteIO(KBDStatusPort, 1, 0xD4)
		kbd.WriteIO(KBDDataPort, 1, cmd)
		v, _ := kbd.ReadIO(KBDDataPort, 1)
		return byte(v)
	}

	steps := []struct {
		cmd, param byte
	}{
		{0xF3, 200},
		{0xF3, 100},
		{0xF3, 80},
	}
	for _, s := range steps {
		if got := sendMouseCmd(s.cmd); got != kbdAck {
			t.Fatalf("F3 ack = 0x%x, want 0x%x", got, kbdAck)
		}
		if got := sendMouseCmd(s.param); got != kbdAck {
			t.Fatalf("param ack = 0x%x, want 0x%x", got, kbdAck)
		}
	}

	if !kbd.imMode {
		t.Fatalf("im_mode not set after 200,100,80 sequence")
	}

	ack := sendMouseCmd(0xF2)
	if ack != kbdAck {
		t.Fatalf("F2 ack = 0x%x, want 0x%x", ack, kbdAck)
	}
	id, _ := kbd.ReadIO(KBDDataPort, 1)
	if id != 0x03 {
		t.Fatalf("device id = 0x%x, want 0x03", id)
	}
}

// TestKBDOutputBufferSingleOccupant is invariant 3 from spec.md §8: at
// most one byte occupies the shared output buffer at a time, even when
// several controller responses are queued back to back.
func TestKBDOutputBufferSingleOccupant(t *testing.T) {
	sink := newMockSink()
	kbd := NewKBD8042(sink)

	// Identify keyboard: queues ACK, 0xAB, 0x41 (translate on by default).
	kbd.WriteIO(KBDDataPort, 1, 0xF2)

	if !kbd.outFull {
		t.Fatalf("expected output buffer occupied after queuing responses")
	}
	if len(kbd.staging) != 2 {
		t.Fatalf("staging depth = %d, want 2", len(kbd.staging))
	}

	first, _ := kbd.ReadIO(KBDDataPort, 1)
	if first != kbdAck {
		t.Fatalf("first byte = 0x%x, want ACK", first)
	}
	second, _ := kbd.ReadIO(KBDDataPort, 1)
	if second != 0xAB {
		t.Fatalf("second byte = 0x%x, want 0xAB", second)
	}
	third, _ := kbd.ReadIO(KBDDataPort, 1)
	if third != 0x41 {
		t.Fatalf("third byte = 0x%x, want 0x41 (translate enabled)", third)
	}
}

func TestKBDDisableInhibitsScanning(t *testing.T) {
	sink := newMockSink()
	kbd := NewKBD8042(sink)

	kbd.WriteIO(KBDStatusPort, 1, 0xAD) // disable keyboard
	kbd.GenScancode(0x1C, false)        // 'A' make code in scan set 2
	if !kbd.kbdFIFO.empty() {
		t.Fatalf("scancode accepted while keyboard clock disabled")
	}
}

func TestKBDInvalidAccessSize(t *testing.T) {
	kbd := NewKBD8042(newMockSink())
	if _, err := kbd.ReadIO(KBDDataPort, 2); err == nil {
		t.Fatalf("expected error for 2-byte read")
	}
}

func TestKBDSaveRestoreStateRoundTrip(t *testing.T) {
	kbd := NewKBD8042(newMockSink())

	kbd.WriteIO(KBDDataPort, 1, 0xF2) // identify keyboard: queues ACK, 0xAB, 0x41
	kbd.WriteIO(KBDStatusPort, 1, 0xAD)

	data, err := kbd.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := NewKBD8042(newMockSink())
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}

	if !restored.outFull {
		t.Fatalf("restored output buffer should still hold the queued identify response")
	}
	if len(restored.staging) != 2 {
		t.Fatalf("restored staging depth = %d, want 2", len(restored.staging))
	}
	first, _ := restored.ReadIO(KBDDataPort, 1)
	if first != kbdAck {
		t.Fatalf("restored first byte = 0x%x, want ACK", first)
	}
}
