// Package core provides the shared pieces (capability interfaces, error
// kinds, savestate framing, lock discipline and the PCI config-space
// register file) that the peripheral device packages under core/devices,
// core/ide and core/scsi build on. Device ownership and clock dispatch
// live in core/devices (Southbridge) and core/system.
package core

import "errors"

// Error kinds named in spec.md §7. These are sentinels, not a type
// hierarchy: device code wraps one of these with fmt.Errorf("...: %w", Err...)
// and callers compare with errors.Is.
var (
	// ErrInvalidAccess is a wrong-size access to a legacy port (e.g. a
	// 16-bit read where only 8-bit accesses are supported).
	ErrInvalidAccess = errors.New("invalid access size")

	// ErrUnsupportedCommand is an ATA/SCSI/keyboard/mouse opcode this core
	// does not synthesize.
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrProtocolViolation covers host misbehavior such as writing data
	// while DRQ is false, a PRD total mismatched against the buffer, or an
	// LBA outside the backing store.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrDeviceAbsent is a command addressed to a drive slot with no
	// backing BlockDevice.
	ErrDeviceAbsent = errors.New("device absent")

	// ErrTimeout is a selection timeout or a lock-acquire timeout.
	ErrTimeout = errors.New("timeout")

	// ErrStateFileMismatch is a magic or size mismatch on savestate restore.
	ErrStateFileMismatch = errors.New("state file mismatch")

	// ErrAllocation is a buffer allocation failure.
	ErrAllocation = errors.New("allocation failure")
)

// IsFatal reports whether err represents one of the emulator-integrity
// errors spec.md §7 requires to terminate the run, as opposed to a
// guest-visible device-level error that must instead be turned into a
// register-level abort and an interrupt.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrStateFileMismatch):
		return true
	case errors.Is(err, ErrAllocation):
		return true
	case errors.Is(err, ErrTimeout):
		return true
	case errors.Is(err, ErrInvalidAccess):
		return true
	default:
		return false
	}
}
