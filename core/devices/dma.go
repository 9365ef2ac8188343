package devices

import (
	"fmt"
	"sync"

	"github.com/es40core/peripherals/core"
)

// dmaChannel is one 8237 channel's address/count pair plus its mode and
// page-register byte (spec.md §2 "DMACtrl: register model of 8237 pair
// + page registers" — functional transfers are out of scope: the IDE
// controller's own bus-master engine, §4.5.6, is the only DMA path this
// core actually moves bytes through; the floppy controller that would
// exercise channel 2 here is explicitly absent from spec.md's component
// table).
type dmaChannel struct {
	baseAddress, currentAddress uint16
	baseCount, currentCount     uint16
	mode                        byte
	page                        byte
	masked                      bool
}

// dmaGroup models one 8237 chip (4 channels) and its shared
// address/count byte flip-flop.
type dmaGroup struct {
	channels [4]dmaChannel
	flipFlop bool
	command  byte
	request  byte
}

func (g *dmaGroup) writeChannelReg(offset int, val byte) {
	idx := offset / 2
	ch := &g.channels[idx]
	target := &ch.currentAddress
	base := &ch.baseAddress
	if offset%2 == 1 {
		target = &ch.currentCount
		base = &ch.baseCount
	}
	if !g.flipFlop {
		*target = (*target &^ 0xFF) | uint16(val)
	} else {
		*target = (*target &^ 0xFF00) | (uint16(val) << 8)
		*base = *target
	}
	g.flipFlop = !g.flipFlop
}

func (g *dmaGroup) readChannelReg(offset int) byte {
	idx := offset / 2
	ch := &g.channels[idx]
	src := ch.currentAddress
	if offset%2 == 1 {
		src = ch.currentCount
	}
	var b byte
	if !g.flipFlop {
		b = byte(src)
	} else {
		b = byte(src >> 8)
	}
	g.flipFlop = !g.flipFlop
	return b
}

func (g *dmaGroup) writeModeOrMask(reg int, val byte) {
	switch reg {
	case dma1ModeOff:
		g.channels[val&0x03].mode = val
	case dma1SingleMask:
		g.channels[val&0x03].masked = val&0x04 != 0
	case dma1ClearMask:
		for i := range g.channels {
			g.channels[i].masked = false
		}
	case dma1AllMaskOff:
		for i := range g.channels {
			g.channels[i].masked = val&(1<<uint(i)) != 0
		}
	case dma1ClearFFOff:
		g.flipFlop = false
	case dma1MasterClear:
		*g = dmaGroup{}
	case dma1CommandOff:
		g.command = val
	case dma1RequestOff:
		g.request = val
	}
}

func (g *dmaGroup) statusByte() byte {
	var s byte
	for i, ch := range g.channels {
		if ch.currentCount == 0xFFFF {
			s |= 1 << uint(i) // terminal-count flag for channel i
		}
		if ch.masked {
			// request-pending bits (4-7) are left clear: no real transfer engine
		}
	}
	return s
}

func (g *dmaGroup) allMaskByte() byte {
	var b byte
	for i, ch := range g.channels {
		if ch.masked {
			b |= 1 << uint(i)
		}
	}
	return b
}

// DMAController implements the DMACtrl of spec.md §2/§4: the two
// cascaded 8237 chips at 0x00-0x0F (8-bit channels 0-3) and 0xC0-0xDF
// (16-bit channels 4-7), plus the chipset's byte and extended page
// registers. Grounded on spec.md's legacy port map (§6); no teacher or
// pack example models an 8237, so this is built directly from the
// published register layout in the teacher's per-port-switch style.
type DMAController struct {
	mu        sync.Mutex
	dma1      dmaGroup
	dma2      dmaGroup
	pages     [16]byte
	extPages  [16]byte
}

// NewDMAController creates a DMA controller with both chips unmasked-by-default cleared state.
func NewDMAController() *DMAController {
	return &DMAController{}
}

// dmaChannelStateV1 is dmaChannel's fixed-layout savestate form.
type dmaChannelStateV1 struct {
	BaseAddress, CurrentAddress uint16
	BaseCount, CurrentCount     uint16
	Mode                        byte
	Page                        byte
	Masked                      bool
}

// dmaGroupStateV1 is dmaGroup's fixed-layout savestate form.
type dmaGroupStateV1 struct {
	Channels [4]dmaChannelStateV1
	FlipFlop bool
	Command  byte
	Request  byte
}

type dmaStateV1 struct {
	DMA1     dmaGroupStateV1
	DMA2     dmaGroupStateV1
	Pages    [16]byte
	ExtPages [16]byte
}

func (g *dmaGroup) toState() dmaGroupStateV1 {
	var s dmaGroupStateV1
	for i, ch := range g.channels {
		s.Channels[i] = dmaChannelStateV1{
			BaseAddress: ch.baseAddress, CurrentAddress: ch.currentAddress,
			BaseCount: ch.baseCount, CurrentCount: ch.currentCount,
			Mode: ch.mode, Page: ch.page, Masked: ch.masked,
		}
	}
	s.FlipFlop, s.Command, s.Request = g.flipFlop, g.command, g.request
	return s
}

func (g *dmaGroup) fromState(s dmaGroupStateV1) {
	for i, cs := range s.Channels {
		ch := &g.channels[i]
		ch.baseAddress, ch.currentAddress = cs.BaseAddress, cs.CurrentAddress
		ch.baseCount, ch.currentCount = cs.BaseCount, cs.CurrentCount
		ch.mode, ch.page, ch.masked = cs.Mode, cs.Page, cs.Masked
	}
	g.flipFlop, g.command, g.request = s.FlipFlop, s.Command, s.Request
}

// SaveState implements core.Savable.
func (d *DMAController) SaveState() ([]byte, error) {
	d.mu.Lock()
	s := dmaStateV1{
		DMA1:     d.dma1.toState(),
		DMA2:     d.dma2.toState(),
		Pages:    d.pages,
		ExtPages: d.extPages,
	}
	d.mu.Unlock()
	return core.EncodeFixed(s)
}

// RestoreState implements core.Savable.
func (d *DMAController) RestoreState(data []byte) error {
	var s dmaStateV1
	if err := core.DecodeFixed(data, &s); err != nil {
		return err
	}
	d.mu.Lock()
	d.dma1.fromState(s.DMA1)
	d.dma2.fromState(s.DMA2)
	d.pages = s.Pages
	d.extPages = s.ExtPages
	d.mu.Unlock()
	return nil
}

var _ core.Savable = (*DMAController)(nil)

var _ core.LegacyIO = (*DMAController)(nil)

// ReadIO implements core.LegacyIO across the DMA1/DMA2/page port ranges.
func (d *DMAController) ReadIO(port uint16, size int) (uint32, error) {
	if size != 1 {
		return 0, fmt.Errorf("DMAController: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case port >= DMA1Base && port <= DMA1End:
		off := int(port - DMA1Base)
		if off == dma1CommandOff {
			return uint32(d.dma1.statusByte()), nil
		}
		if off == dma1AllMaskOff {
			return uint32(d.dma1.allMaskByte()), nil
		}
		if off < 0x08 {
			return uint32(d.dma1.readChannelReg(off)), nil
		}
		return 0, nil
	case port >= DMA2Base && port <= DMA2End:
		off := int(port - DMA2Base)
		if off == dma2CommandOff {
			return uint32(d.dma2.statusByte()), nil
		}
		if off < 0x10 {
			return uint32(d.dma2.readChannelReg(off / 2)), nil
		}
		return 0, nil
	case port >= DMAPageBase && port <= DMAPageEnd:
		return uint32(d.pages[port-DMAPageBase]), nil
	case port >= DMAExtPageBase && port <= DMAExtPageEnd:
		return uint32(d.extPages[port-DMAExtPageBase]), nil
	}
	return 0, fmt.Errorf("DMAController: unhandled port 0x%x", port)
}

// WriteIO implements core.LegacyIO.
func (d *DMAController) WriteIO(port uint16, size int, value uint32) error {
	if size != 1 {
		return fmt.Errorf("DMAController: port 0x%x: %w", port, core.ErrInvalidAccess)
	}
	val := byte(value)
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case port >= DMA1Base && port <= DMA1End:
		off := int(port - DMA1Base)
		if off < 0x08 {
			d.dma1.writeChannelReg(off, val)
		} else {
			d.dma1.writeModeOrMask(off, val)
		}
	case port >= DMA2Base && port <= DMA2End:
		off := int(port - DMA2Base)
		if off < 0x10 {
			d.dma2.writeChannelReg(off/2, val)
		} else {
			d.dma2.writeModeOrMask(off/2, val)
		}
	case port >= DMAPageBase && port <= DMAPageEnd:
		d.pages[port-DMAPageBase] = val
	case port >= DMAExtPageBase && port <= DMAExtPageEnd:
		d.extPages[port-DMAExtPageBase] = val
	default:
		return fmt.Errorf("DMAController: unhandled port 0x%x", port)
	}
	return nil
}
