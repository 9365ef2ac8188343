package devices

import (
	"fmt"
	"io"
	"sync"

	"github.com/es40core/peripherals/core"
)

// LPT implements the LPT of spec.md §2/§6: the data/status/control
// register triple of a standard parallel port at 0x3BC-0x3BE, with an
// optional file sink that receives each byte latched on a strobe rising
// edge. No teacher or pack example models a parallel port; built
// directly from spec.md's port map in the per-register-switch style
// `pic.go`/`toy.go` use.
type LPT struct {
	mu      sync.Mutex
	data    byte
	status  byte
	control byte
	sink    io.Writer
}

// NewLPT creates an LPT with no device attached (idle, selected,
// no error, no paper out) and an optional file sink for latched bytes.
func NewLPT(sink io.Writer) *LPT {
	return &LPT{
		status: lptStatusSelect | lptStatusBusy,
		sink:   sink,
	}
}

func (l *LPT) writeControlLocked(val byte) {
	prevStrobe := l.control&lptControlStrobe != 0
	l.control = val
	newStrobe := val&lptControlStrobe != 0
	if !prevStrobe && newStrobe {
		l.latchByteLocked()
	}
	if val&lptControlInit == 0 {
		// Init line pulled low: reset to idle-selected-ready.
		l.status = lptStatusSelect | lptStatusBusy
	}
}

func (l *LPT) latchByteLocked() {
	if l.sink != nil {
		l.sink.Write([]byte{l.data})
	}
	l.status |= lptStatusAck
}

// lptStateV1 is the fixed-layout savestate body. The file sink is not
// framed: it is a live io.Writer a restore cannot recreate from bytes,
// and is left as whatever the restoring LPT was already constructed with.
type lptStateV1 struct {
	Data    byte
	Status  byte
	Control byte
}

// SaveState implements core.Savable.
func (l *LPT) SaveState() ([]byte, error) {
	l.mu.Lock()
	s := lptStateV1{Data: l.data, Status: l.status, Control: l.control}
	l.mu.Unlock()
	return core.EncodeFixed(s)
}

// RestoreState implements core.Savable.
func (l *LPT) RestoreState(data []byte) error {
	var s lptStateV1
	if err := core.DecodeFixed(data, &s); err != nil {
		return err
	}
	l.mu.Lock()
	l.data, l.status, l.control = s.Data, s.Status, s.Control
	l.mu.Unlock()
	return nil
}

var _ core.Savable = (*LPT)(nil)

var _ core.LegacyIO = (*LPT)(nil)

// ReadIO implements core.LegacyIO for ports 0x3BC-0x3BE.
func (l *LPT) ReadIO(port uint16, size int) (uint32, error) {
	if size != 1 {
		return 0, fmt.Errorf("LPT: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	switch port {
	case LPTDataPort:
		return uint32(l.data), nil
	case LPTStatusPort:
		s := l.status
		l.status &^= lptStatusAck // self-clears once observed
		return uint32(s), nil
	case LPTControlPort:
		return uint32(l.control), nil
	}
	return 0, fmt.Errorf("LPT: unhandled port 0x%x", port)
}

// WriteIO implements core.LegacyIO.
func (l *LPT) WriteIO(port uint16, size int, value uint32) error {
	if size != 1 {
		return fmt.Errorf("LPT: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	val := byte(value)
	l.mu.Lock()
	defer l.mu.Unlock()
	switch port {
	case LPTDataPort:
		l.data = val
	case LPTStatusPort:
		// read-only on real hardware; accepted and ignored
	case LPTControlPort:
		l.writeControlLocked(val)
	default:
		return fmt.Errorf("LPT: unhandled port 0x%x", port)
	}
	return nil
}
