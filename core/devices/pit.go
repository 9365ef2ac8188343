package devices

import (
	"fmt"
	"sync"

	"github.com/es40core/peripherals/core"
)

// pitCounter is one of the three 16-bit counters in spec.md §3 "PIT
// counter". Field names follow the teacher's pit.go (`value`, `reload`,
// `rwMode` renamed `accessMode`).
type pitCounter struct {
	value      uint16
	reload     uint16
	accessMode byte // bits 5-4 of the control word
	opMode     byte // bits 3-1 of the control word
	nullCount  bool // status bit 6: true until a full reload has landed

	writeHalf byte // which half of a LOHI write sequence is next (0=LSB,1=MSB)
	readHalf  byte

	latched      bool
	latchedValue uint16

	output bool // current counter output level
}

func (c *pitCounter) status() byte {
	var s byte
	if c.output {
		s |= 0x80
	}
	if c.nullCount {
		s |= 0x40
	}
	s |= c.accessMode << 4
	s |= (c.opMode & 0x7) << 1
	return s
}

// PIT implements the IntervalTimer of spec.md §4.2: three 8254 counters
// in modes 0/2/3, driving IRQ0 from counter 0's mode-3 output transitions.
// Grounded on the teacher's devices/pit.go (port layout, LSB/MSB/LOHI
// latch sequencing) which never actually counted down; this adds the
// tick-driven decrement/reload/output state machine spec.md §4.2
// requires.
type PIT struct {
	mu       sync.Mutex
	counters [3]pitCounter
	sink     core.InterruptSink

	// tickDecrement approximates the real 1.193182 MHz PIT rate against
	// this core's slow clock (spec.md §4.2 "the emulator approximates
	// wall-clock rate by choosing this step").
	tickDecrement uint16

	gateByte byte // low bits of port 0x61 this core does not otherwise model
}

// NewPIT creates a PIT that raises IRQ0 through sink.
func NewPIT(sink core.InterruptSink) *PIT {
	p := &PIT{sink: sink, tickDecrement: 1}
	for i := range p.counters {
		p.counters[i].nullCount = true
	}
	return p
}

// SetTickDecrement overrides the per-tick decrement step (default 1).
func (p *PIT) SetTickDecrement(step uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if step == 0 {
		step = 1
	}
	p.tickDecrement = step
}

// WriteCommand implements the port 0x43 control-port write of spec.md §4.2.
func (p *PIT) WriteCommand(val byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel := (val >> 6) & 0x3
	if sel == 3 {
		// Readback command: accepted, unused (spec.md §4.2).
		return
	}
	c := &p.counters[sel]
	access := (val >> 4) & 0x3
	if access == pitAccessLatch {
		c.latched = true
		c.latchedValue = c.value
		c.readHalf = 0
		return
	}
	c.accessMode = access
	c.opMode = (val >> 1) & 0x7
	c.writeHalf = 0
	c.readHalf = 0
	c.latched = false
}

// WriteCounter implements a data write to ports 0x40-0x42.
func (p *PIT) WriteCounter(index int, val byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := &p.counters[index]

	complete := false
	switch c.accessMode {
	case pitAccessLSB:
		c.reload = (c.reload &^ 0xFF) | uint16(val)
		complete = true
	case pitAccessMSB:
		c.reload = (c.reload &^ 0xFF00) | (uint16(val) << 8)
		complete = true
	case pitAccessLOHI:
		if c.writeHalf == 0 {
			c.reload = (c.reload &^ 0xFF) | uint16(val)
			c.writeHalf = 1
		} else {
			c.reload = (c.reload &^ 0xFF00) | (uint16(val) << 8)
			c.writeHalf = 0
			complete = true
		}
	}

	if complete {
		// A reload of 0 means 0x10000 (spec.md §4.2); stored as a 16-bit
		// value this wraps to 0, which stepCounterLocked treats as the
		// full 65536-count span rather than an immediate terminal count.
		c.value = c.reload
		c.nullCount = false
	}
}

// ReadCounter implements a data read from ports 0x40-0x42.
func (p *PIT) ReadCounter(index int) byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := &p.counters[index]

	src := c.value
	if c.latched {
		src = c.latchedValue
	}

	var b byte
	switch c.accessMode {
	case pitAccessLSB:
		b = byte(src)
	case pitAccessMSB:
		b = byte(src >> 8)
	default: // LOHI, and LATCH reads follow the same two-step order
		if c.readHalf == 0 {
			b = byte(src)
			c.readHalf = 1
		} else {
			b = byte(src >> 8)
			c.readHalf = 0
			c.latched = false
		}
	}
	return b
}

// Tick advances all three counters by one slow-clock step (spec.md
// §4.2). Counters in null-count (never loaded) do not decrement.
func (p *PIT) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.counters {
		c := &p.counters[i]
		if c.nullCount {
			continue
		}
		p.stepCounterLocked(i, c)
	}
}

// stepCounterLocked decrements one counter and, when the decrement
// crosses the terminal count (0, which a reload of 0 represents as the
// full 65536-count span — see WriteCounter), applies the mode-specific
// reload/output behavior of spec.md §4.2.
//
// before==0 on entry means the counter sits at the top of a just-loaded
// (or just-reloaded) 65536 span, not at the terminal count, so it is
// excluded from the crossing check: only a transition through a nonzero
// value that the step size reaches or passes counts as "terminal count
// reached".
func (p *PIT) stepCounterLocked(index int, c *pitCounter) {
	before := c.value
	dec := p.tickDecrement
	crossed := before != 0 && before <= dec

	if !crossed {
		c.value = before - dec // uint16 wraparound handles before==0 correctly
		return
	}

	switch c.opMode {
	case 0: // interrupt on terminal count: raise output, leave it at zero
		c.value = 0
		if !c.output {
			c.output = true
			if index == 0 {
				p.sink.Interrupt(IRQPIT)
			}
		}
	case 3: // square wave: toggle output and reload
		wasLow := !c.output
		c.output = !c.output
		c.value = c.reload
		if index == 0 && wasLow && c.output {
			p.sink.Interrupt(IRQPIT)
		}
	default:
		// Modes 2 and others: accepted silently, just reload and continue.
		c.value = c.reload
	}
}

var _ core.LegacyIO = (*PIT)(nil)

// ReadIO implements core.LegacyIO for ports 0x40-0x43 and 0x61.
func (p *PIT) ReadIO(port uint16, size int) (uint32, error) {
	if size != 1 {
		return 0, fmt.Errorf("PIT: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	switch port {
	case PITCounter0Port:
		return uint32(p.ReadCounter(0)), nil
	case PITCounter1Port:
		return uint32(p.ReadCounter(1)), nil
	case PITCounter2Port:
		return uint32(p.ReadCounter(2)), nil
	case PITGatePort:
		return uint32(p.readGate()), nil
	}
	return 0, fmt.Errorf("PIT: unhandled port 0x%x", port)
}

// WriteIO implements core.LegacyIO.
func (p *PIT) WriteIO(port uint16, size int, value uint32) error {
	if size != 1 {
		return fmt.Errorf("PIT: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	val := byte(value)
	switch port {
	case PITCounter0Port:
		p.WriteCounter(0, val)
	case PITCounter1Port:
		p.WriteCounter(1, val)
	case PITCounter2Port:
		p.WriteCounter(2, val)
	case PITCommandPort:
		p.WriteCommand(val)
	case PITGatePort:
		p.mu.Lock()
		p.gateByte = val & 0x03
		p.mu.Unlock()
	default:
		return fmt.Errorf("PIT: unhandled port 0x%x", port)
	}
	return nil
}

// readGate composes port 0x61: bit 5 reflects counter 2's output level
// (spec.md §9's resolution of the open question), low bits are the
// speaker-gate bits last written.
func (p *PIT) readGate() byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.gateByte
	if p.counters[2].output {
		b |= 0x20
	}
	return b
}

type counterStateV1 struct {
	Value        uint16
	Reload       uint16
	AccessMode   byte
	OpMode       byte
	NullCount    bool
	WriteHalf    byte
	ReadHalf     byte
	Latched      bool
	LatchedValue uint16
	Output       bool
}

type pitStateV1 struct {
	Counters      [3]counterStateV1
	TickDecrement uint16
	GateByte      byte
}

// SaveState implements core.Savable.
func (p *PIT) SaveState() ([]byte, error) {
	p.mu.Lock()
	var s pitStateV1
	for i, c := range p.counters {
		s.Counters[i] = counterStateV1{
			Value: c.value, Reload: c.reload, AccessMode: c.accessMode,
			OpMode: c.opMode, NullCount: c.nullCount, WriteHalf: c.writeHalf,
			ReadHalf: c.readHalf, Latched: c.latched, LatchedValue: c.latchedValue,
			Output: c.output,
		}
	}
	s.TickDecrement = p.tickDecrement
	s.GateByte = p.gateByte
	p.mu.Unlock()
	return core.EncodeFixed(s)
}

// RestoreState implements core.Savable.
func (p *PIT) RestoreState(data []byte) error {
	var s pitStateV1
	if err := core.DecodeFixed(data, &s); err != nil {
		return err
	}
	p.mu.Lock()
	for i, cs := range s.Counters {
		c := &p.counters[i]
		c.value, c.reload, c.accessMode = cs.Value, cs.Reload, cs.AccessMode
		c.opMode, c.nullCount, c.writeHalf = cs.OpMode, cs.NullCount, cs.WriteHalf
		c.readHalf, c.latched, c.latchedValue = cs.ReadHalf, cs.Latched, cs.LatchedValue
		c.output = cs.Output
	}
	p.tickDecrement = s.TickDecrement
	p.gateByte = s.GateByte
	p.mu.Unlock()
	return nil
}

var _ core.Savable = (*PIT)(nil)
