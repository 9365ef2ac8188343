package devices

import "testing"

func TestDMAChannelAddressCountRoundTrip(t *testing.T) {
	d := NewDMAController()

	// Channel 1 address/count via ports 0x02/0x03 (two bytes each, LSB first).
	d.WriteIO(0x02, 1, 0x34)
	d.WriteIO(0x02, 1, 0x12) // address = 0x1234
	d.WriteIO(0x03, 1, 0x78)
	d.WriteIO(0x03, 1, 0x56) // count = 0x5678

	if got := d.dma1.channels[1].currentAddress; got != 0x1234 {
		t.Fatalf("channel1 address = 0x%04x, want 0x1234", got)
	}
	if got := d.dma1.channels[1].currentCount; got != 0x5678 {
		t.Fatalf("channel1 count = 0x%04x, want 0x5678", got)
	}
}

func TestDMASingleChannelMask(t *testing.T) {
	d := NewDMAController()
	d.WriteIO(DMA1Base+dma1SingleMask, 1, 0x02|0x04) // mask channel 2

	if !d.dma1.channels[2].masked {
		t.Fatalf("channel2 expected masked")
	}
	d.WriteIO(DMA1Base+dma1ClearMask, 1, 0x00)
	if d.dma1.channels[2].masked {
		t.Fatalf("channel2 expected unmasked after clear-mask")
	}
}

func TestDMAPageRegisters(t *testing.T) {
	d := NewDMAController()
	d.WriteIO(DMAPageBase+2, 1, 0xAB)
	v, _ := d.ReadIO(DMAPageBase+2, 1)
	if v != 0xAB {
		t.Fatalf("page register readback = 0x%x, want 0xAB", v)
	}
}

func TestDMAInvalidAccessSize(t *testing.T) {
	d := NewDMAController()
	if _, err := d.ReadIO(DMA1Base, 2); err == nil {
		t.Fatalf("expected error for 2-byte read")
	}
}

func TestDMASaveRestoreStateRoundTrip(t *testing.T) {
	d := NewDMAController()
	d.WriteIO(0x02, 1, 0x34)
	d.WriteIO(0x02, 1, 0x12)
	d.WriteIO(0x03, 1, 0x78)
	d.WriteIO(0x03, 1, 0x56)
	d.WriteIO(DMA1Base+dma1SingleMask, 1, 0x02|0x04)
	d.WriteIO(DMAPageBase+2, 1, 0xAB)

	data, err := d.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := NewDMAController()
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}

	if got := restored.dma1.channels[1].currentAddress; got != 0x1234 {
		t.Fatalf("restored channel1 address = 0x%04x, want 0x1234", got)
	}
	if got := restored.dma1.channels[1].currentCount; got != 0x5678 {
		t.Fatalf("restored channel1 count = 0x%04x, want 0x5678", got)
	}
	if !restored.dma1.channels[2].masked {
		t.Fatalf("restored channel2 expected masked")
	}
	v, _ := restored.ReadIO(DMAPageBase+2, 1)
	if v != 0xAB {
		t.Fatalf("restored page register = 0x%x, want 0xAB", v)
	}
}
