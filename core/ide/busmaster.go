package ide

import (
	"fmt"

	"github.com/es40core/peripherals/core"
)

// readBusMasterLocked implements the 8-byte bus-master register block
// of spec.md §4.5.6/§4.5.1.
func (c *IDEChannel) readBusMasterLocked(off uint16, size int) (uint32, error) {
	switch off {
	case BMRegCommand:
		if size != 1 {
			return 0, fmt.Errorf("ide: busmaster command read size %d: %w", size, core.ErrInvalidAccess)
		}
		return uint32(c.bmCommand), nil
	case BMRegStatus:
		if size != 1 {
			return 0, fmt.Errorf("ide: busmaster status read size %d: %w", size, core.ErrInvalidAccess)
		}
		return uint32(c.bmStatus), nil
	case BMRegPRDAddr:
		if size != 4 {
			return 0, fmt.Errorf("ide: busmaster PRD-address read size %d: %w", size, core.ErrInvalidAccess)
		}
		return c.bmPRDAddr, nil
	default:
		return 0, nil // reserved byte
	}
}

func (c *IDEChannel) writeBusMasterLocked(off uint16, size int, value uint32) error {
	switch off {
	case BMRegCommand:
		if size != 1 {
			return fmt.Errorf("ide: busmaster command write size %d: %w", size, core.ErrInvalidAccess)
		}
		old := c.bmCommand
		c.bmCommand = byte(value) & (BMCommandStartStop | BMCommandWrite)
		if old&BMCommandStartStop == 0 && c.bmCommand&BMCommandStartStop != 0 {
			c.runBusMasterTransferLocked()
		}
		return nil
	case BMRegStatus:
		if size != 1 {
			return fmt.Errorf("ide: busmaster status write size %d: %w", size, core.ErrInvalidAccess)
		}
		v := byte(value)
		if v&BMStatusError != 0 {
			c.bmStatus &^= BMStatusError
		}
		if v&BMStatusInterrupt != 0 {
			c.bmStatus &^= BMStatusInterrupt
		}
		return nil
	case BMRegPRDAddr:
		if size != 4 {
			return fmt.Errorf("ide: busmaster PRD-address write size %d: %w", size, core.ErrInvalidAccess)
		}
		c.bmPRDAddr = value
		return nil
	default:
		return nil // reserved byte
	}
}

type prdEntry struct {
	base  uint32
	count int
}

// runBusMasterTransferLocked walks the PRD table rooted at bmPRDAddr and
// copies bytes between the channel's data buffer and guest memory
// (spec.md §4.5.6). Direction is bit 3 of the command register: clear
// means disk-to-host (pop the channel buffer, write guest memory), set
// means host-to-disk (read guest memory, push the channel buffer) —
// the same pop/push helpers the command-block data port uses, so PIO
// and bus-master consumers share one DRQ-clearing completion path.
func (c *IDEChannel) runBusMasterTransferLocked() {
	c.bmStatus |= BMStatusActive
	if c.mem == nil {
		c.bmStatus = (c.bmStatus &^ BMStatusActive) | BMStatusError
		return
	}

	writeDir := c.bmCommand&BMCommandWrite != 0
	bufferRemaining := (c.dataSize - c.dataPtr) * 2

	var entries []prdEntry
	prdTotal := 0
	addr := c.bmPRDAddr
	for {
		raw := make([]byte, prdEntrySize)
		if err := c.mem.ReadAt(addr, raw); err != nil {
			c.bmStatus = (c.bmStatus &^ BMStatusActive) | BMStatusError
			return
		}
		base := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
		count := int(raw[4]) | int(raw[5])<<8
		if count == 0 {
			count = 65536
		}
		final := raw[7]&prdFlagEOT != 0
		entries = append(entries, prdEntry{base: base, count: count})
		prdTotal += count
		addr += prdEntrySize
		if final {
			break
		}
	}

	toCopy := prdTotal
	if bufferRemaining < toCopy {
		toCopy = bufferRemaining
	}
	copied := 0
	for _, e := range entries {
		if copied >= toCopy {
			break
		}
		n := e.count
		if copied+n > toCopy {
			n = toCopy - copied
		}
		if err := c.copyChunkLocked(e.base, n, writeDir); err != nil {
			c.bmStatus = (c.bmStatus &^ BMStatusActive) | BMStatusError
			return
		}
		copied += n
	}

	if toCopy == bufferRemaining {
		c.dataExhaustedIfDoneLocked(c.selectedDrive())
	}

	switch {
	case prdTotal == bufferRemaining:
		c.bmStatus &^= BMStatusActive
		c.requestInterruptLocked()
	case prdTotal < bufferRemaining:
		c.bmStatus &^= BMStatusActive
	default: // prdTotal > bufferRemaining
		c.bmStatus |= BMStatusActive
		c.requestInterruptLocked()
	}
}

func (c *IDEChannel) copyChunkLocked(base uint32, n int, writeDir bool) error {
	if n <= 0 {
		return nil
	}
	if writeDir {
		chunk := make([]byte, n)
		if err := c.mem.ReadAt(base, chunk); err != nil {
			return err
		}
		for i := 0; i < n; i += 2 {
			lo := chunk[i]
			var hi byte
			if i+1 < n {
				hi = chunk[i+1]
			}
			c.pushDataWordLocked(uint16(lo) | uint16(hi)<<8)
		}
		return nil
	}
	words := (n + 1) / 2
	raw := make([]byte, 0, words*2)
	for i := 0; i < words; i++ {
		w := c.popDataWordLocked()
		raw = append(raw, byte(w), byte(w>>8))
	}
	return c.mem.WriteAt(base, raw[:n])
}
