package devices

import "testing"

func TestSouthbridgeRoutesLegacyPorts(t *testing.T) {
	sb := NewSouthbridge(nil, nil)

	if err := sb.Bus.Write(PICMasterCmdPort, 1, 0x00); err != nil {
		t.Fatalf("PIC write via bus: %v", err)
	}
	if err := sb.Bus.Write(PITCommandPort, 1, 0x36); err != nil {
		t.Fatalf("PIT write via bus: %v", err)
	}
	if _, err := sb.Bus.Read(KBDStatusPort, 1); err != nil {
		t.Fatalf("KBD read via bus: %v", err)
	}
	if _, err := sb.Bus.Read(TOYIndexPort, 1); err != nil {
		t.Fatalf("TOY read via bus: %v", err)
	}
	if _, err := sb.Bus.Read(UART1Base+uartRegLSR, 1); err != nil {
		t.Fatalf("COM1 read via bus: %v", err)
	}
}

// TestSouthbridgePCIIdentity is spec.md:279's literal ALi M1543C
// identity: vendor/device 0x153310B9, class 0x060100.
func TestSouthbridgePCIIdentity(t *testing.T) {
	sb := NewSouthbridge(nil, nil)

	id, err := sb.ReadBar(0, 0x00, 4)
	if err != nil {
		t.Fatalf("read CFID: %v", err)
	}
	if id != 0x153310B9 {
		t.Fatalf("CFID = 0x%x, want 0x153310B9", id)
	}

	class, err := sb.ReadBar(0, 0x08, 4)
	if err != nil {
		t.Fatalf("read CFRV: %v", err)
	}
	if class>>8 != 0x060100 {
		t.Fatalf("class code = 0x%06x, want 0x060100", class>>8)
	}

	// Identity is read-only: writes to CFID must not stick.
	if err := sb.WriteBar(0, 0x00, 4, 0xDEADBEEF); err != nil {
		t.Fatalf("write CFID: %v", err)
	}
	id, _ = sb.ReadBar(0, 0x00, 4)
	if id != 0x153310B9 {
		t.Fatalf("CFID changed after guest write = 0x%x", id)
	}

	// CFIT's interrupt-line byte is guest-writable per the mask.
	if err := sb.WriteBar(0, 0x3c, 1, 0x0B); err != nil {
		t.Fatalf("write CFIT: %v", err)
	}
	v, _ := sb.ReadBar(0, 0x3c, 1)
	if v != 0x0B {
		t.Fatalf("CFIT interrupt line = 0x%x, want 0x0B", v)
	}
}

func TestSouthbridgeTickAdvancesPIT(t *testing.T) {
	sb := NewSouthbridge(nil, nil)
	sb.Bus.Write(PICMasterDataPort, 1, 0x00) // unmask master (PIC powers up fully masked)
	sb.Bus.Write(PITCommandPort, 1, 0x36)
	sb.Bus.Write(PITCounter0Port, 1, 0x01)
	sb.Bus.Write(PITCounter0Port, 1, 0x00) // reload = 1

	sb.Tick()

	if !sb.PIC.InterruptPending() {
		t.Fatalf("expected IRQ0 to reach the PIC after one tick with reload=1")
	}
}
