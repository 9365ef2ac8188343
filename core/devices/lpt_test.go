package devices

import (
	"bytes"
	"testing"
)

func TestLPTStrobeWritesToSink(t *testing.T) {
	var sink bytes.Buffer
	lpt := NewLPT(&sink)

	lpt.WriteIO(LPTDataPort, 1, 'A')
	lpt.WriteIO(LPTControlPort, 1, lptControlInit) // strobe low
	lpt.WriteIO(LPTControlPort, 1, lptControlInit|lptControlStrobe) // rising edge

	if sink.String() != "A" {
		t.Fatalf("sink contents = %q, want %q", sink.String(), "A")
	}

	status, _ := lpt.ReadIO(LPTStatusPort, 1)
	if status&uint32(lptStatusAck) == 0 {
		t.Fatalf("expected ack bit set after strobe")
	}
}

func TestLPTNoSinkDoesNotPanic(t *testing.T) {
	lpt := NewLPT(nil)
	lpt.WriteIO(LPTDataPort, 1, 'Z')
	lpt.WriteIO(LPTControlPort, 1, lptControlStrobe)
}

func TestLPTInvalidAccessSize(t *testing.T) {
	lpt := NewLPT(nil)
	if err := lpt.WriteIO(LPTDataPort, 4, 0); err == nil {
		t.Fatalf("expected error for 4-byte write")
	}
}

func TestLPTSaveRestoreStateRoundTrip(t *testing.T) {
	lpt := NewLPT(nil)
	lpt.WriteIO(LPTDataPort, 1, 'Q')
	lpt.WriteIO(LPTControlPort, 1, lptControlInit)

	data, err := lpt.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := NewLPT(nil)
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}

	v, _ := restored.ReadIO(LPTDataPort, 1)
	if v != 'Q' {
		t.Fatalf("restored data register = 0x%x, want 'Q'", v)
	}
}
