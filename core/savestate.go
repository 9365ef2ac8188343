package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Savestate framing magics (spec.md §6): a component's raw state bytes are
// bracketed by two independent magic words so a restore can detect a
// truncated or misordered stream even if the size field happens to match.
const (
	stateMagic1 uint32 = 0x53345330 // "S4S0"
	stateMagic2 uint32 = 0x30533453 // "0S4S"
)

// FrameState wraps raw component state bytes in the magic/size framing
// spec.md §6 describes: MAGIC1(u32) | size(i64) | state | MAGIC2(u32).
func FrameState(state []byte) []byte {
	buf := make([]byte, 0, 4+8+len(state)+4)
	w := bytes.NewBuffer(buf)
	binary.Write(w, binary.LittleEndian, stateMagic1)
	binary.Write(w, binary.LittleEndian, int64(len(state)))
	w.Write(state)
	binary.Write(w, binary.LittleEndian, stateMagic2)
	return w.Bytes()
}

// UnframeState validates the magic/size framing and returns the enclosed
// state bytes. Any magic or size mismatch is ErrStateFileMismatch, which
// is fatal per spec.md §7.
func UnframeState(framed []byte, wantSize int) ([]byte, error) {
	if len(framed) < 4+8+4 {
		return nil, fmt.Errorf("frame too short (%d bytes): %w", len(framed), ErrStateFileMismatch)
	}
	r := bytes.NewReader(framed)

	var magic1 uint32
	if err := binary.Read(r, binary.LittleEndian, &magic1); err != nil || magic1 != stateMagic1 {
		return nil, fmt.Errorf("bad leading magic 0x%x: %w", magic1, ErrStateFileMismatch)
	}

	var size int64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("reading size: %w", ErrStateFileMismatch)
	}
	if size < 0 || int(size) != wantSize {
		return nil, fmt.Errorf("size mismatch: frame says %d, struct is %d: %w", size, wantSize, ErrStateFileMismatch)
	}

	state := make([]byte, size)
	if _, err := r.Read(state); err != nil {
		return nil, fmt.Errorf("reading state body: %w", ErrStateFileMismatch)
	}

	var magic2 uint32
	if err := binary.Read(r, binary.LittleEndian, &magic2); err != nil || magic2 != stateMagic2 {
		return nil, fmt.Errorf("bad trailing magic 0x%x: %w", magic2, ErrStateFileMismatch)
	}

	return state, nil
}

// UnframeStateAny validates the magic/size framing like UnframeState but
// does not require the caller to know the exact encoded size ahead of
// decode. Composite containers (e.g. a top-level system savestate
// assembling a variable number of per-device sub-frames) don't have a
// fixed-layout struct to size against; this still checks both magics and
// that the declared size fits within the supplied bytes.
func UnframeStateAny(framed []byte) ([]byte, error) {
	if len(framed) < 4+8+4 {
		return nil, fmt.Errorf("frame too short (%d bytes): %w", len(framed), ErrStateFileMismatch)
	}
	r := bytes.NewReader(framed)

	var magic1 uint32
	if err := binary.Read(r, binary.LittleEndian, &magic1); err != nil || magic1 != stateMagic1 {
		return nil, fmt.Errorf("bad leading magic 0x%x: %w", magic1, ErrStateFileMismatch)
	}

	var size int64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("reading size: %w", ErrStateFileMismatch)
	}
	if size < 0 || size > int64(len(framed)) {
		return nil, fmt.Errorf("implausible size %d: %w", size, ErrStateFileMismatch)
	}

	state := make([]byte, size)
	if _, err := io.ReadFull(r, state); err != nil {
		return nil, fmt.Errorf("reading state body: %w", ErrStateFileMismatch)
	}

	var magic2 uint32
	if err := binary.Read(r, binary.LittleEndian, &magic2); err != nil || magic2 != stateMagic2 {
		return nil, fmt.Errorf("bad trailing magic 0x%x: %w", magic2, ErrStateFileMismatch)
	}

	return state, nil
}

// EncodeFixed frames a fixed-layout struct (only fixed-width numeric and
// bool fields — no strings, slices, or pointers) via encoding/binary,
// for components whose Savable.SaveState is a direct field dump.
func EncodeFixed(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("encoding fixed state: %w", err)
	}
	return FrameState(buf.Bytes()), nil
}

// DecodeFixed is the inverse of EncodeFixed: it unframes framed and
// decodes directly into v, which must be a pointer to the same
// fixed-layout struct type that produced the frame.
func DecodeFixed(framed []byte, v interface{}) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("state type has no fixed binary size: %w", ErrStateFileMismatch)
	}
	state, err := UnframeState(framed, size)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(state), binary.LittleEndian, v)
}
