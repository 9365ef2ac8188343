package devices

import "testing"

// TestPITMode3Underflow is the literal scenario from spec.md §8: mode 3,
// counter 0, reload 65536, one underflow must raise IRQ0 exactly once.
func TestPITMode3Underflow(t *testing.T) {
	sink := newMockSink()
	pit := NewPIT(sink)

	pit.WriteIO(PITCommandPort, 1, 0x36)
	pit.WriteIO(PITCounter0Port, 1, 0x00)
	pit.WriteIO(PITCounter0Port, 1, 0x00)

	for i := 0; i < 65536; i++ {
		pit.Tick()
	}

	if got := sink.countRaised(IRQPIT); got != 1 {
		t.Fatalf("IRQ0 raised %d times, want 1", got)
	}
}

func TestPITLOHILatchSequencing(t *testing.T) {
	sink := newMockSink()
	pit := NewPIT(sink)

	pit.WriteIO(PITCommandPort, 1, 0x30) // counter0, LOHI, mode0
	pit.WriteIO(PITCounter0Port, 1, 0x34)
	pit.WriteIO(PITCounter0Port, 1, 0x12) // reload = 0x1234

	lo, _ := pit.ReadIO(PITCounter0Port, 1)
	hi, _ := pit.ReadIO(PITCounter0Port, 1)
	if lo != 0x34 || hi != 0x12 {
		t.Fatalf("readback = 0x%02x 0x%02x, want 0x34 0x12", lo, hi)
	}
}

func TestPITGatePortReflectsCounter2Output(t *testing.T) {
	sink := newMockSink()
	pit := NewPIT(sink)

	pit.WriteIO(PITCommandPort, 1, 0xB6) // counter2, LOHI, mode3
	pit.WriteIO(PITCounter2Port, 1, 0x02)
	pit.WriteIO(PITCounter2Port, 1, 0x00) // reload = 2

	for i := 0; i < 2; i++ {
		pit.Tick()
	}
	v, _ := pit.ReadIO(PITGatePort, 1)
	if v&0x20 == 0 {
		t.Fatalf("gate port bit5 not set after counter2 output high: 0x%02x", v)
	}
}
