package devices

import (
	"github.com/es40core/peripherals/core"
)

// aliM1543CCfgData and aliM1543CCfgMask are the ALi M1543C southbridge's
// PCI function-0 (ISA bridge) config-space power-up values and
// write-mask, per spec.md:279's literal identity (vendor/device
// 0x153310B9, class 0x060100). Laid out the same way the original
// source's per-function cfg_data/cfg_mask tables are (NewIde.cpp's
// newide_cfg_data/newide_cfg_mask is the sibling IDE-function table this
// mirrors): command/status and latency/cache-line are guest-writable,
// identity/class/revision are not, and — unlike IDE — this function
// publishes no BARs, since the ISA-bridge side of the chip bridges
// fixed-decoded legacy ports rather than a relocatable memory/IO window.
var (
	aliM1543CCfgData = [64]uint32{
		0x153310B9, // CFID: vendor + device
		0x02800000, // CFCS: command + status
		0x06010000, // CFRV: class (060100) + revision
		0x00000000, // CFLT: latency timer + cache line size
		0, 0, 0, 0, 0, 0, 0, 0, 0, // BAR0-5, CCIC, CSID, BAR6 (unused: no BARs on this function)
		0x00000000, // CCAP: capabilities pointer
		0,
		0x00000000, // CFIT: interrupt configuration
	}
	aliM1543CCfgMask = [64]uint32{
		0x00000000, // CFID
		0x00000105, // CFCS
		0x00000000, // CFRV
		0x0000FFFF, // CFLT
		0, 0, 0, 0, 0, 0, 0, 0, 0,
		0x00000000, // CCAP
		0,
		0x000000FF, // CFIT: interrupt line is guest-writable
	}
)

// Southbridge implements the Southbridge of spec.md §2/§4.8: it hosts
// the PIC pair, PIT, TOY, KBD8042, DMA controller, LPT and serial
// lines, wires them onto a shared IOBus at their legacy port ranges,
// and drives the first three steps of the slow-clock ClockDispatch
// (keyboard/mouse scan, PIT, UART poll) each tick. IDE and SCSI
// (§4.8 steps 4-6) are ticked by core/system, which owns them.
//
// Grounded on the teacher's virtual_machine.go device-construction-and-
// wiring sequence: explicit struct fields per device, built once in the
// constructor, no package-level singletons (spec.md §9's "Ambient
// singletons" design note).
type Southbridge struct {
	Bus *IOBus

	PIC   *PIC
	PIT   *PIT
	TOY   *TOY
	KBD   *KBD8042
	DMA   *DMAController
	LPT   *LPT
	COM1  *UART
	COM2  *UART

	// PCI is the ALi M1543C's function-0 (ISA bridge) config space
	// (spec.md:279).
	PCI *core.PCIConfigSpace
}

// NewSouthbridge constructs every hosted device, wires them onto bus at
// their spec.md §6 legacy port ranges, and returns the assembled
// southbridge. com1Backend/com2Backend may be nil.
func NewSouthbridge(com1Backend, com2Backend SerialBackend) *Southbridge {
	pic := NewPIC()
	sb := &Southbridge{
		Bus:  NewIOBus(),
		PIC:  pic,
		PIT:  NewPIT(pic),
		TOY:  NewTOY(),
		KBD:  NewKBD8042(pic),
		DMA:  NewDMAController(),
		LPT:  NewLPT(nil),
		COM1: NewUART(UART1Base, IRQSerial1, pic, com1Backend),
		COM2: NewUART(UART2Base, IRQSerial2, pic, com2Backend),
		PCI:  core.NewPCIConfigSpace(aliM1543CCfgData, aliM1543CCfgMask),
	}

	sb.Bus.RegisterDevice(PICMasterCmdPort, PICMasterCmdPort+1, sb.PIC)
	sb.Bus.RegisterDevice(PICSlaveCmdPort, PICSlaveCmdPort+1, sb.PIC)
	sb.Bus.RegisterDevice(PITCounter0Port, PITCommandPort, sb.PIT)
	sb.Bus.RegisterDevice(PITGatePort, PITGatePort, sb.PIT)
	sb.Bus.RegisterDevice(KBDDataPort, KBDDataPort, sb.KBD)
	sb.Bus.RegisterDevice(KBDStatusPort, KBDStatusPort, sb.KBD)
	sb.Bus.RegisterDevice(TOYIndexPort, TOYExtDataPort, sb.TOY)
	sb.Bus.RegisterDevice(DMA1Base, DMA1End, sb.DMA)
	sb.Bus.RegisterDevice(DMA2Base, DMA2End, sb.DMA)
	sb.Bus.RegisterDevice(DMAPageBase, DMAPageEnd, sb.DMA)
	sb.Bus.RegisterDevice(DMAExtPageBase, DMAExtPageEnd, sb.DMA)
	sb.Bus.RegisterDevice(LPTDataPort, LPTControlPort, sb.LPT)
	sb.Bus.RegisterDevice(UART1Base, UART1Base+7, sb.COM1)
	sb.Bus.RegisterDevice(UART2Base, UART2Base+7, sb.COM2)

	return sb
}

var _ core.Clocked = (*Southbridge)(nil)

// Tick runs ClockDispatch steps 1-3 (spec.md §4.8): keyboard/mouse
// periodic scan, PIT advance, UART poll advance.
func (sb *Southbridge) Tick() {
	sb.KBD.Tick()
	sb.PIT.Tick()
	sb.COM1.Tick()
	sb.COM2.Tick()
}

// ReadBar and WriteBar implement core.PciBar by delegating straight to
// the ALi M1543C's function-0 config space.
func (sb *Southbridge) ReadBar(bar int, offset uint32, size int) (uint32, error) {
	return sb.PCI.ReadBar(bar, offset, size)
}

func (sb *Southbridge) WriteBar(bar int, offset uint32, size int, value uint32) error {
	return sb.PCI.WriteBar(bar, offset, size, value)
}

var _ core.PciBar = (*Southbridge)(nil)
