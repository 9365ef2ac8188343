// Package storage implements the block-device contract of spec.md §3/§6:
// a backing store with auto-derived CHS geometry, shared by the IDE and
// SCSI target implementations.
package storage

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/es40core/peripherals/core"
)

const (
	defaultHardDiskBlockSize = 512
	defaultCDROMBlockSize    = 2048

	// geometryHeads/geometrySectors are the fixed CHS-assist translation
	// spec.md's BlockDevice derives cylinders from (original_source's
	// Disk.cpp `calc_cylinders`, which holds heads/sectors fixed and only
	// derives cylinders; this picks the same 16-head/63-sector assist
	// translation the original's disk subclasses configure).
	geometryHeads   = 16
	geometrySectors = 63
)

// BlockDevice implements spec.md §6's "Block-device contract": a
// synchronous, single-writer backing store over an io.ReaderAt/WriterAt,
// with CHS geometry auto-derived from its size on open or on any
// set_block_size call (spec.md §6 "after restore set_block_size is
// invoked to recompute geometry").
//
// Grounded on original_source/src/Disk.cpp (`calc_cylinders`, the
// is_cdrom 2048-vs-512 default block size, serial/rev/model fields) and
// on spec.md §3/§6 directly for the method contract itself — no teacher
// analogue exists (the teacher has no storage layer at all).
type BlockDevice struct {
	mu sync.Mutex

	backing  *os.File
	readOnly bool
	isCDROM  bool

	blockSize  uint32
	lbaBlocks  uint64
	cylinders  uint32
	heads      uint32
	sectors    uint32

	cursor uint64 // current LBA, set by SeekBlock

	serial string
	rev    string
	model  string
}

// Open creates a BlockDevice backed by path. readOnly forces write
// rejection regardless of the file's own permissions; cdrom selects the
// 2048-byte default block size per original_source's is_cdrom rule.
func Open(path string, readOnly, cdrom bool, serial, rev, model string) (*BlockDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}

	bd := &BlockDevice{
		backing:  f,
		readOnly: readOnly,
		isCDROM:  cdrom,
		serial:   serial,
		rev:      rev,
		model:    model,
	}
	initial := uint32(defaultHardDiskBlockSize)
	if cdrom {
		initial = defaultCDROMBlockSize
	}
	bd.setBlockSizeLocked(initial, uint64(info.Size()))
	return bd, nil
}

// setBlockSizeLocked recomputes lba_blocks and CHS geometry for the
// current file size (original_source's calc_cylinders).
func (bd *BlockDevice) setBlockSizeLocked(size uint32, byteSize uint64) {
	bd.blockSize = size
	bd.lbaBlocks = byteSize / uint64(size)
	bd.heads = geometryHeads
	bd.sectors = geometrySectors
	perCylinder := uint64(bd.heads) * uint64(bd.sectors)
	if perCylinder == 0 {
		bd.cylinders = 0
		return
	}
	cyl := bd.lbaBlocks / perCylinder
	if cyl*perCylinder < bd.lbaBlocks {
		cyl++ // calc_cylinders: round up so CHS geometry covers the whole disk
	}
	bd.cylinders = uint32(cyl)
}

// SetBlockSize implements `set_block_size(u32)`.
func (bd *BlockDevice) SetBlockSize(size uint32) error {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	info, err := bd.backing.Stat()
	if err != nil {
		return fmt.Errorf("storage: stat: %w", err)
	}
	bd.setBlockSizeLocked(size, uint64(info.Size()))
	return nil
}

// SeekBlock implements `seek_block(lba)`.
func (bd *BlockDevice) SeekBlock(lba uint64) error {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	if lba > bd.lbaBlocks {
		return fmt.Errorf("storage: seek to lba %d beyond %d: %w", lba, bd.lbaBlocks, core.ErrProtocolViolation)
	}
	bd.cursor = lba
	return nil
}

// ReadBlocks implements `read_blocks(buf, n)`: reads n blocks starting
// at the current cursor into buf, which must hold at least
// n*GetBlockSize() bytes, and always completes fully or fails.
func (bd *BlockDevice) ReadBlocks(buf []byte, n uint32) error {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	want := uint64(n) * uint64(bd.blockSize)
	if uint64(len(buf)) < want {
		return fmt.Errorf("storage: read_blocks: buffer too small: %w", core.ErrAllocation)
	}
	off := int64(bd.cursor) * int64(bd.blockSize)
	if _, err := bd.backing.ReadAt(buf[:want], off); err != nil && err != io.EOF {
		return fmt.Errorf("storage: read_blocks: %w", err)
	}
	bd.cursor += uint64(n)
	return nil
}

// WriteBlocks implements `write_blocks(buf, n)`.
func (bd *BlockDevice) WriteBlocks(buf []byte, n uint32) error {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	if bd.readOnly {
		return fmt.Errorf("storage: write_blocks: device is read-only: %w", core.ErrProtocolViolation)
	}
	want := uint64(n) * uint64(bd.blockSize)
	if uint64(len(buf)) < want {
		return fmt.Errorf("storage: write_blocks: buffer too small: %w", core.ErrAllocation)
	}
	off := int64(bd.cursor) * int64(bd.blockSize)
	if _, err := bd.backing.WriteAt(buf[:want], off); err != nil {
		return fmt.Errorf("storage: write_blocks: %w", err)
	}
	bd.cursor += uint64(n)
	return nil
}

// GetLBASize implements `get_lba_size() -> u64`.
func (bd *BlockDevice) GetLBASize() uint64 {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.lbaBlocks
}

// GetBlockSize implements `get_block_size() -> u32`.
func (bd *BlockDevice) GetBlockSize() uint32 {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.blockSize
}

// GetCylinders, GetHeads, GetSectors implement
// `get_cylinders/heads/sectors()`.
func (bd *BlockDevice) GetCylinders() uint32 {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.cylinders
}

func (bd *BlockDevice) GetHeads() uint32 {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.heads
}

func (bd *BlockDevice) GetSectors() uint32 {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.sectors
}

// CDROM implements `cdrom() -> bool`.
func (bd *BlockDevice) CDROM() bool { return bd.isCDROM }

// RO implements `ro() -> bool`.
func (bd *BlockDevice) RO() bool { return bd.readOnly }

// GetSerial, GetRev, GetModel implement
// `get_serial/rev/model() -> &str`.
func (bd *BlockDevice) GetSerial() string { return bd.serial }
func (bd *BlockDevice) GetRev() string    { return bd.rev }
func (bd *BlockDevice) GetModel() string  { return bd.model }

// Close releases the backing file.
func (bd *BlockDevice) Close() error { return bd.backing.Close() }

var _ core.Savable = (*BlockDevice)(nil)

// stateV1 is the fixed-layout savestate body for a BlockDevice,
// grounded on original_source/src/Disk.cpp's disk_magic1/disk_magic2
// framing convention (read_only/is_cdrom/block_size/cursor — the part
// of CDisk::state that is not itself the backing file).
type stateV1 struct {
	BlockSize uint32
	Cylinders uint32
	Heads     uint32
	Sectors   uint32
	Cursor    uint64
	ReadOnly  bool
	IsCDROM   bool
}

// SaveState implements core.Savable.
func (bd *BlockDevice) SaveState() ([]byte, error) {
	bd.mu.Lock()
	s := stateV1{
		BlockSize: bd.blockSize,
		Cylinders: bd.cylinders,
		Heads:     bd.heads,
		Sectors:   bd.sectors,
		Cursor:    bd.cursor,
		ReadOnly:  bd.readOnly,
		IsCDROM:   bd.isCDROM,
	}
	bd.mu.Unlock()
	return core.EncodeFixed(s)
}

// RestoreState implements core.Savable. Per spec.md §6, after restore
// set_block_size is invoked to recompute geometry against the current
// backing file's actual size.
func (bd *BlockDevice) RestoreState(data []byte) error {
	var s stateV1
	if err := core.DecodeFixed(data, &s); err != nil {
		return err
	}
	bd.mu.Lock()
	bd.cursor = s.Cursor
	bd.readOnly = s.ReadOnly
	bd.isCDROM = s.IsCDROM
	bd.mu.Unlock()
	return bd.SetBlockSize(s.BlockSize)
}
