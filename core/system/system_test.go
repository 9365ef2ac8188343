package system

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/es40core/peripherals/core/devices"
	"github.com/es40core/peripherals/core/ide"
	"github.com/es40core/peripherals/core/scsi"
	"github.com/es40core/peripherals/core/storage"
)

// mockGuestMemory is a flat byte-array double for ide.GuestMemory,
// grounded on the teacher's ne2000_test.go mock-double style and shaped
// like core/ide/ide_test.go's mockMemory.
type mockGuestMemory struct {
	buf []byte
}

func newMockGuestMemory(size int) *mockGuestMemory { return &mockGuestMemory{buf: make([]byte, size)} }

func (m *mockGuestMemory) ReadAt(addr uint32, p []byte) error {
	copy(p, m.buf[addr:])
	return nil
}

func (m *mockGuestMemory) WriteAt(addr uint32, p []byte) error {
	copy(m.buf[addr:], p)
	return nil
}

var _ ide.GuestMemory = (*mockGuestMemory)(nil)

func newBackedDisk(t *testing.T, blocks, blockSize int, cdrom bool, model string) *storage.BlockDevice {
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
	bd, err := storage.Open(path, false, cdrom, "SN1", "1.0", model)
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

func newTestSystem(t *testing.T) (*System, *storage.BlockDevice) {
	t.Helper()
	sys := NewSystem(nil, nil, newMockGuestMemory(1<<20))
	bd := newBackedDisk(t, 16, 512, false, "TEST DISK")
	sys.IDE.Primary.AttachDrive(0, bd)
	target := scsi.NewSCSITarget(bd, false)
	sys.AttachSCSITarget(0, target)
	return sys, bd
}

// TestTickAdvancesEveryDevice exercises the full ClockDispatch order
// (spec.md §4.8) without faulting, across several ticks.
func TestTickAdvancesEveryDevice(t *testing.T) {
	sys, bd := newTestSystem(t)
	defer bd.Close()

	for i := 0; i < 10; i++ {
		sys.Tick()
	}
}

// TestSCSITargetLookup verifies the attach/lookup pairing spec.md §9's
// capability-injection design implies: a System is the single place that
// knows the SCSI-ID-to-target mapping.
func TestSCSITargetLookup(t *testing.T) {
	sys, bd := newTestSystem(t)
	defer bd.Close()

	if _, ok := sys.SCSITarget(0); !ok {
		t.Fatalf("expected target at id 0")
	}
	if _, ok := sys.SCSITarget(5); ok {
		t.Fatalf("unexpected target at id 5")
	}
}

// TestSaveRestoreStateRoundTrip is spec.md §8 property 10 at the
// system-composite level: every hosted device's state round-trips
// together through one SaveState/RestoreState pair.
func TestSaveRestoreStateRoundTrip(t *testing.T) {
	sys, bd := newTestSystem(t)
	defer bd.Close()

	sys.Southbridge.PIC.Write(0, 1, 0x3C) // mask a few lines so state differs from zero value
	sys.Southbridge.PIT.WriteCommand(0x34)
	sys.Southbridge.PIT.WriteCounter(0, 0x12)
	sys.Southbridge.PIT.WriteCounter(0, 0x34)

	data, err := sys.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := NewSystem(nil, nil, newMockGuestMemory(1<<20))
	restored.IDE.Primary.AttachDrive(0, bd)
	restoredTarget := scsi.NewSCSITarget(bd, false)
	restored.AttachSCSITarget(0, restoredTarget)

	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}

	if got := restored.Southbridge.PIC.Read(0, 1); got != 0x3C {
		t.Fatalf("restored PIC mask = 0x%x, want 0x3C", got)
	}
	if got := restored.Southbridge.PIT.ReadCounter(0); got != 0x12 {
		t.Fatalf("restored PIT counter 0 LSB = 0x%x, want 0x12", got)
	}
}

// TestRestoreUnknownSCSIIDFails confirms a topology mismatch on restore
// is reported rather than silently dropped.
func TestRestoreUnknownSCSIIDFails(t *testing.T) {
	sys, bd := newTestSystem(t)
	defer bd.Close()

	data, err := sys.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	bare := NewSystem(nil, nil, newMockGuestMemory(1<<20))
	bare.IDE.Primary.AttachDrive(0, bd)
	if err := bare.RestoreState(data); err == nil {
		t.Fatalf("expected RestoreState to fail against a system missing the scsi0 target")
	}
}

var _ devices.SerialBackend // referenced for doc clarity; nil backends are exercised above
