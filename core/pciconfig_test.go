package core

import "testing"

func TestPCIConfigSpaceMaskGatesWrites(t *testing.T) {
	var data, mask [64]uint32
	data[0] = 0x153310B9 // identity: read-only
	mask[1] = 0x000000FF // low byte of word 1 is guest-writable

	c := NewPCIConfigSpace(data, mask)

	if err := c.WriteBar(0, 0x00, 4, 0xFFFFFFFF); err != nil {
		t.Fatalf("WriteBar: %v", err)
	}
	v, err := c.ReadBar(0, 0x00, 4)
	if err != nil {
		t.Fatalf("ReadBar: %v", err)
	}
	if v != 0x153310B9 {
		t.Fatalf("identity word changed to 0x%x, mask should have blocked the write", v)
	}

	if err := c.WriteBar(0, 0x04, 1, 0xAB); err != nil {
		t.Fatalf("WriteBar: %v", err)
	}
	v, err = c.ReadBar(0, 0x04, 1)
	if err != nil {
		t.Fatalf("ReadBar: %v", err)
	}
	if v != 0xAB {
		t.Fatalf("masked byte = 0x%x, want 0xAB", v)
	}
}

func TestPCIConfigSpaceRejectsNonZeroBar(t *testing.T) {
	c := NewPCIConfigSpace([64]uint32{}, [64]uint32{})
	if _, err := c.ReadBar(1, 0, 4); err == nil {
		t.Fatalf("expected error for non-zero bar")
	}
}

func TestPCIConfigSpaceRejectsBadSize(t *testing.T) {
	c := NewPCIConfigSpace([64]uint32{}, [64]uint32{})
	if _, err := c.ReadBar(0, 0, 3); err == nil {
		t.Fatalf("expected error for 3-byte access")
	}
}

func TestPCIConfigSpaceSaveRestoreStateRoundTrip(t *testing.T) {
	var mask [64]uint32
	mask[1] = 0xFFFFFFFF
	c := NewPCIConfigSpace([64]uint32{}, mask)
	c.WriteBar(0, 0x04, 4, 0xCAFEBABE)

	data, err := c.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := NewPCIConfigSpace([64]uint32{}, mask)
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}
	if got := restored.Word(1); got != 0xCAFEBABE {
		t.Fatalf("restored word1 = 0x%x, want 0xCAFEBABE", got)
	}
}
