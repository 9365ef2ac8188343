package ide

// atapiStepLocked advances the ATAPI packet state machine by one tick
// (spec.md §4.5.5). currentCommand stays CmdPacket for the whole
// NONE->DP1->DP2->DP34->DI lifetime; this is the coroutine-like flow's
// re-entrant step function (spec.md §9 "the ATAPI state machine must
// make progress across ticks while keeping all phase transitions
// re-entrant... no implicit suspension, no generators").
func (c *IDEChannel) atapiStepLocked(drive *Drive) {
	switch drive.packetPhase {
	case packetNone:
		c.atapiEnterLocked(drive)
	case packetDP1:
		c.atapiDP1Locked(drive)
	case packetDP2:
		c.atapiDP2Locked(drive)
	case packetDP34:
		c.atapiDP34Locked(drive)
	case packetDI:
		c.atapiDILocked(drive)
	}
}

// atapiEnterLocked is the 0xA0 entry (spec.md §4.5.5 "Entry").
func (c *IDEChannel) atapiEnterLocked(drive *Drive) {
	const featureOverlap = 0x02
	const featureDMA = 0x01
	if drive.features&featureOverlap != 0 {
		c.abortCommandLocked(drive)
		return
	}
	drive.reasonReg = reasonCD
	drive.status = (drive.status &^ StatusBsy) | StatusDrq
	c.dataSize = 6
	c.dataPtr = 0
	drive.packetDMA = drive.features&featureDMA != 0
	drive.packetPhase = packetDP1
}

// atapiDP1Locked waits for the host to write the 12-byte packet command
// (six words) then assembles it.
func (c *IDEChannel) atapiDP1Locked(drive *Drive) {
	if drive.status&StatusDrq != 0 {
		return
	}
	raw := wordsToBytes(c.dataBuffer[:6])
	copy(drive.packetCommand[:], raw)
	drive.packetBufferSize = int(drive.cylinderHi)<<8 | int(drive.cylinderLo)
	drive.status |= StatusBsy
	drive.packetPhase = packetDP2
}

// atapiDP2Locked decodes packet_command[0] and either prepares a reply
// for the device-to-host data phase, goes straight to DI, or fails
// (spec.md §4.5.5 "Prepare").
func (c *IDEChannel) atapiDP2Locked(drive *Drive) {
	cmd := drive.packetCommand[0]
	switch cmd {
	case 0x00: // TEST UNIT READY
		drive.packetPhase = packetDI
	case 0x1E: // PREVENT/ALLOW MEDIUM REMOVAL: no-op
		drive.packetPhase = packetDI
	case 0x25: // READ CAPACITY
		if drive.bd == nil {
			c.atapiAbortLocked(drive)
			return
		}
		lastLBA := uint32(drive.bd.GetLBASize()) - 1
		blockSize := drive.bd.GetBlockSize()
		words := []uint16{
			uint16(lastLBA >> 16), uint16(lastLBA),
			uint16(blockSize >> 16), uint16(blockSize),
		}
		copy(c.dataBuffer, words)
		c.dataSize = 4
		c.dataPtr = 0
		c.setByteCountLocked(drive, 8)
		drive.packetPhase = packetDP34
	case 0x28, 0xA8: // READ(10)/READ(12)
		if drive.bd == nil {
			c.atapiAbortLocked(drive)
			return
		}
		lba, count := decodeReadLBA(cmd, drive.packetCommand)
		data := make([]byte, uint64(count)*uint64(drive.bd.GetBlockSize()))
		if err := drive.bd.SeekBlock(lba); err != nil {
			c.atapiAbortLocked(drive)
			return
		}
		if err := drive.bd.ReadBlocks(data, count); err != nil {
			c.atapiAbortLocked(drive)
			return
		}
		words := bytesToWords(data)
		if len(c.dataBuffer) < len(words) {
			c.dataBuffer = make([]uint16, len(words))
		}
		copy(c.dataBuffer, words)
		c.dataSize = len(data) / 2
		c.dataPtr = 0
		c.setByteCountLocked(drive, len(data))
		drive.packetPhase = packetDP34
	case 0x43: // READ TOC
		toc := synthesizeTOC()
		copy(c.dataBuffer, bytesToWords(toc))
		c.dataSize = len(toc) / 2
		c.dataPtr = 0
		c.setByteCountLocked(drive, len(toc))
		drive.packetPhase = packetDP34
	default:
		c.atapiAbortLocked(drive)
	}
}

// atapiDP34Locked arms the data-phase transfer, then waits for it to
// drain — through PIO data-port reads or through the bus-master engine,
// both of which go through the same popDataWordLocked/
// dataExhaustedIfDoneLocked path that clears DRQ on exhaustion.
func (c *IDEChannel) atapiDP34Locked(drive *Drive) {
	if drive.packetDMA {
		c.atapiDP34DMALocked(drive)
		return
	}
	if drive.status&StatusBsy != 0 {
		drive.status = (drive.status &^ StatusBsy) | StatusDrq
		drive.reasonReg = reasonIO
		c.requestInterruptLocked()
		return
	}
	if drive.status&StatusDrq != 0 {
		return
	}
	drive.packetPhase = packetDI
}

// atapiDP34DMALocked is atapiDP34Locked's DMA-mode sibling. Unlike the PIO
// branch above, it raises no interrupt when arming the data phase: the
// host drains the transfer through the bus-master engine (busmaster.go),
// and that engine's own completion path (runBusMasterTransferLocked)
// requests the interrupt once the transfer is actually done (Advance
// dispatches it at the end of the next tick). dataPtr==0
// (rather than the Busy flag alone) gates the arming step, since
// dataExhaustedIfDoneLocked sets Busy again on completion and dataPtr
// has moved on by then.
func (c *IDEChannel) atapiDP34DMALocked(drive *Drive) {
	switch {
	case drive.status&StatusBsy != 0 && c.dataPtr == 0:
		drive.status = (drive.status &^ StatusBsy) | StatusDrq
		drive.reasonReg = reasonIO
	case drive.status&StatusDrq != 0:
		// transfer still pending or in progress via the bus-master engine
	default:
		drive.packetPhase = packetDI
	}
}

// atapiDILocked is the terminal phase (spec.md §4.5.5 "DI").
func (c *IDEChannel) atapiDILocked(drive *Drive) {
	drive.reasonReg = reasonCD | reasonIO
	drive.status = (drive.status &^ (StatusBsy | StatusDrq)) | StatusDrdy
	drive.packetPhase = packetNone
	drive.commandInProgress = false
	c.requestInterruptLocked()
}

// setByteCountLocked records a data phase's byte count both in
// packet_buffersize and in the cylinder register pair the host reads it
// back from in ATAPI mode (spec.md §4.5.5 "BYTE_COUNT=8").
func (c *IDEChannel) setByteCountLocked(drive *Drive, n int) {
	drive.packetBufferSize = n
	drive.cylinderLo = byte(n)
	drive.cylinderHi = byte(n >> 8)
}

func (c *IDEChannel) atapiAbortLocked(drive *Drive) {
	drive.packetPhase = packetNone
	c.abortCommandLocked(drive)
}

// decodeReadLBA decodes the LBA/length fields of a READ(10) (0x28) or
// READ(12) (0xA8) CDB.
func decodeReadLBA(cmd byte, pkt [12]byte) (uint64, uint32) {
	lba := uint64(pkt[2])<<24 | uint64(pkt[3])<<16 | uint64(pkt[4])<<8 | uint64(pkt[5])
	if cmd == 0xA8 {
		count := uint32(pkt[6])<<24 | uint32(pkt[7])<<16 | uint32(pkt[8])<<8 | uint32(pkt[9])
		return lba, count
	}
	count := uint32(pkt[7])<<8 | uint32(pkt[8])
	return lba, count
}

// synthesizeTOC returns the fixed minimal one-track TOC reply spec.md
// §8's literal ATAPI TOC scenario names byte-for-byte.
func synthesizeTOC() []byte {
	return []byte{0x00, 0x0A, 0x01, 0x01, 0x00, 0x14, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
}
