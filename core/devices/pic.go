package devices

import (
	"fmt"
	"sync"

	"github.com/es40core/peripherals/core"
)

// picBank is one physical 8259A (spec.md §3 "Interrupt pair").
type picBank struct {
	mode       picMode
	vectorBase uint8
	mask       uint8
	asserted   uint8
	edgeLevel  uint8

	// readRegSelect: which register a reg-0 read returns, 0=IRR(asserted), 1=ISR.
	// This core folds IRR/ISR into a single `asserted` byte (spec.md §3 only
	// names a single asserted byte), so both selections read `asserted`;
	// the selector is kept only so OCW3 read-select writes are accepted.
	readRegSelect byte
}

// PIC implements the 8259A-pair InterruptController of spec.md §4.1:
// a master and a cascaded slave, reachable either through the generic
// bank/register API the spec names, or through the legacy 0x20/0x21/
// 0xA0/0xA1 port range via LegacyIO.
//
// Grounded on the teacher's devices/pic.go (PICController split into
// master/slave, ICW/OCW field names); generalized to the spec's
// read/write/interrupt/deassert/iack API and extended so that a specific
// EOI on the slave which empties its asserted byte also clears IRQ2 on
// the master (spec.md §9's resolved Open Question).
type PIC struct {
	mu     sync.Mutex
	master picBank
	slave  picBank

	cpuLineAsserted bool
}

// NewPIC creates a PIC pair with both banks fully masked, matching BIOS
// power-on state (spec.md's invariant says nothing about initial mask,
// but "all masked until programmed" is the universal 8259A reset state
// the teacher's NewPICDevice also begins from).
func NewPIC() *PIC {
	return &PIC{
		master: picBank{mask: 0xFF},
		slave:  picBank{mask: 0xFF},
	}
}

func (p *PIC) bank(n int) *picBank {
	if n == 0 {
		return &p.master
	}
	return &p.slave
}

// Read implements spec.md §4.1 `read(bank, reg)`.
func (p *PIC) Read(bank, reg int) byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readLocked(bank, reg)
}

func (p *PIC) readLocked(bank, reg int) byte {
	b := p.bank(bank)
	if reg == 1 {
		return b.mask
	}
	if b.readRegSelect == 1 {
		return b.asserted // ISR-equivalent
	}
	return b.asserted // IRR-equivalent
}

// Write implements spec.md §4.1 `write(bank, reg, byte)`.
func (p *PIC) Write(bank, reg int, val byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.bank(bank)

	if reg == 0 {
		p.writeCommandLocked(bank, b, val)
		return
	}

	// reg == 1: data register.
	if b.mode == picModeSTD {
		newlyMasked := val &^ b.mask
		b.mask = val
		b.asserted &^= newlyMasked
		if bank == 0 {
			p.syncCPULineLocked()
		}
		return
	}

	// ICW2/ICW3/ICW4: accepted and discarded (spec.md §4.1).
	switch b.mode {
	case picModeINIT0:
		b.mode = picModeINIT1
	case picModeINIT1:
		b.mode = picModeINIT2
	case picModeINIT2:
		b.mode = picModeSTD
	}
}

func (p *PIC) writeCommandLocked(bank int, b *picBank, val byte) {
	if val&picICW1INIT != 0 {
		// ICW1: enter the init sequence; vector base is taken directly
		// from this write, masked to the low 3 bits zero (spec.md §4.1).
		b.vectorBase = val & 0xF8
		b.mode = picModeINIT0
		b.mask = 0
		b.asserted = 0
		if bank == 0 {
			p.syncCPULineLocked()
		}
		return
	}

	if val&0x18 == 0x08 { // OCW3: bits 4,3 = 0,1
		if val&picOCW3RR != 0 {
			b.readRegSelect = (val & picOCW3RIS)
		}
		return
	}

	// OCW2.
	op := (val >> 5) & 0x7
	level := val & 0x7
	switch op {
	case 1: // non-specific EOI
		b.asserted = 0
		p.afterEOILocked(bank, b)
	case 3: // specific EOI
		b.asserted &^= 1 << level
		p.afterEOILocked(bank, b)
	}
}

// afterEOILocked applies the cascade-clear rule: an EOI on the slave that
// empties its asserted byte also clears IRQ2 on the master.
func (p *PIC) afterEOILocked(bank int, b *picBank) {
	if bank == 1 && b.asserted == 0 {
		p.master.asserted &^= 1 << IRQCascade
	}
	p.syncCPULineLocked()
}

// syncCPULineLocked re-evaluates the composite "master has any asserted
// bit" signal (spec.md §4.8 "monotone within a tick... re-evaluated after
// each change").
func (p *PIC) syncCPULineLocked() {
	p.cpuLineAsserted = p.master.asserted != 0
}

// InterruptPending reports the current CPU interrupt line level, as of
// the most recent PIC mutation (spec.md §5 "IACK reads the PIC state
// as-of the most recent tick").
func (p *PIC) InterruptPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cpuLineAsserted
}

// InterruptBank implements spec.md §4.1 `interrupt(bank, line)`.
func (p *PIC) InterruptBank(bank int, line uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interruptLocked(bank, line)
}

func (p *PIC) interruptLocked(bank int, line uint8) {
	b := p.bank(bank)
	if line > 7 {
		return
	}
	if b.mask&(1<<line) != 0 {
		return
	}
	if b.asserted&(1<<line) != 0 {
		return
	}
	b.asserted |= 1 << line
	if bank == 1 {
		p.interruptLocked(0, IRQCascade)
	}
	if bank == 0 {
		p.syncCPULineLocked()
	}
}

// DeassertBank implements spec.md §4.1 `deassert(bank, line)`, used for
// level-triggered lines going inactive.
func (p *PIC) DeassertBank(bank int, line uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.bank(bank)
	if line > 7 {
		return
	}
	b.asserted &^= 1 << line
	if bank == 1 && b.asserted == 0 {
		p.master.asserted &^= 1 << IRQCascade
	}
	p.syncCPULineLocked()
}

// IACK implements spec.md §4.1 `iack() → 8-bit vector`.
func (p *PIC) IACK() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := uint8(0); i < 8; i++ {
		if p.master.asserted&(1<<i) == 0 {
			continue
		}
		if i == IRQCascade && p.slave.asserted != 0 {
			for j := uint8(0); j < 8; j++ {
				if p.slave.asserted&(1<<j) != 0 {
					return p.slave.vectorBase + j
				}
			}
		}
		return p.master.vectorBase + i
	}
	return 0
}

// Interrupt implements core.InterruptSink for a flat 0-15 IRQ numbering
// (lines 8-15 are slave lines), the capability form devices are handed at
// construction per spec.md §9 "Cyclic references".
func (p *PIC) Interrupt(line uint8) {
	if line < 8 {
		p.InterruptBank(0, line)
	} else {
		p.InterruptBank(1, line-8)
	}
}

// Deassert implements core.InterruptSink.
func (p *PIC) Deassert(line uint8) {
	if line < 8 {
		p.DeassertBank(0, line)
	} else {
		p.DeassertBank(1, line-8)
	}
}

var _ core.InterruptSink = (*PIC)(nil)
var _ core.LegacyIO = (*PIC)(nil)

// ReadIO implements core.LegacyIO for the legacy port range
// 0x20/0x21 (master) and 0xA0/0xA1 (slave). Only byte accesses are
// supported on these ports (spec.md §6).
func (p *PIC) ReadIO(port uint16, size int) (uint32, error) {
	if size != 1 {
		return 0, fmt.Errorf("PIC: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	switch port {
	case PICMasterCmdPort:
		return uint32(p.Read(0, 0)), nil
	case PICMasterDataPort:
		return uint32(p.Read(0, 1)), nil
	case PICSlaveCmdPort:
		return uint32(p.Read(1, 0)), nil
	case PICSlaveDataPort:
		return uint32(p.Read(1, 1)), nil
	}
	return 0, fmt.Errorf("PIC: unhandled port 0x%x", port)
}

// WriteIO implements core.LegacyIO.
func (p *PIC) WriteIO(port uint16, size int, value uint32) error {
	if size != 1 {
		return fmt.Errorf("PIC: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	val := byte(value)
	switch port {
	case PICMasterCmdPort:
		p.Write(0, 0, val)
	case PICMasterDataPort:
		p.Write(0, 1, val)
	case PICSlaveCmdPort:
		p.Write(1, 0, val)
	case PICSlaveDataPort:
		p.Write(1, 1, val)
	default:
		return fmt.Errorf("PIC: unhandled port 0x%x", port)
	}
	return nil
}

// bankStateV1 is one bank's fixed-layout savestate body.
type bankStateV1 struct {
	Mode          int32
	VectorBase    uint8
	Mask          uint8
	Asserted      uint8
	EdgeLevel     uint8
	ReadRegSelect uint8
}

type picStateV1 struct {
	Master          bankStateV1
	Slave           bankStateV1
	CPULineAsserted bool
}

func (b *picBank) toState() bankStateV1 {
	return bankStateV1{
		Mode:          int32(b.mode),
		VectorBase:    b.vectorBase,
		Mask:          b.mask,
		Asserted:      b.asserted,
		EdgeLevel:     b.edgeLevel,
		ReadRegSelect: b.readRegSelect,
	}
}

func (b *picBank) fromState(s bankStateV1) {
	b.mode = picMode(s.Mode)
	b.vectorBase = s.VectorBase
	b.mask = s.Mask
	b.asserted = s.Asserted
	b.edgeLevel = s.EdgeLevel
	b.readRegSelect = s.ReadRegSelect
}

// SaveState implements core.Savable.
func (p *PIC) SaveState() ([]byte, error) {
	p.mu.Lock()
	s := picStateV1{
		Master:          p.master.toState(),
		Slave:           p.slave.toState(),
		CPULineAsserted: p.cpuLineAsserted,
	}
	p.mu.Unlock()
	return core.EncodeFixed(s)
}

// RestoreState implements core.Savable.
func (p *PIC) RestoreState(data []byte) error {
	var s picStateV1
	if err := core.DecodeFixed(data, &s); err != nil {
		return err
	}
	p.mu.Lock()
	p.master.fromState(s.Master)
	p.slave.fromState(s.Slave)
	p.cpuLineAsserted = s.CPULineAsserted
	p.mu.Unlock()
	return nil
}

var _ core.Savable = (*PIC)(nil)
