package core

import (
	"errors"
	"testing"
)

func TestFrameStateRoundTrip(t *testing.T) {
	state := []byte{0x01, 0x02, 0x03, 0x04}
	framed := FrameState(state)

	got, err := UnframeState(framed, len(state))
	if err != nil {
		t.Fatalf("UnframeState: %v", err)
	}
	if string(got) != string(state) {
		t.Fatalf("got %v, want %v", got, state)
	}
}

func TestUnframeStateRejectsSizeMismatch(t *testing.T) {
	framed := FrameState([]byte{1, 2, 3, 4})
	_, err := UnframeState(framed, 5)
	if !errors.Is(err, ErrStateFileMismatch) {
		t.Fatalf("error = %v, want ErrStateFileMismatch", err)
	}
}

func TestUnframeStateRejectsBadMagic(t *testing.T) {
	framed := FrameState([]byte{1, 2, 3, 4})
	framed[0] ^= 0xFF
	_, err := UnframeState(framed, 4)
	if !errors.Is(err, ErrStateFileMismatch) {
		t.Fatalf("error = %v, want ErrStateFileMismatch", err)
	}
}

func TestUnframeStateRejectsTruncated(t *testing.T) {
	_, err := UnframeState([]byte{1, 2, 3}, 4)
	if !errors.Is(err, ErrStateFileMismatch) {
		t.Fatalf("error = %v, want ErrStateFileMismatch", err)
	}
}

type fixedSample struct {
	A uint32
	B uint64
	C bool
}

func TestEncodeDecodeFixedRoundTrip(t *testing.T) {
	in := fixedSample{A: 0xDEADBEEF, B: 123456789, C: true}
	framed, err := EncodeFixed(in)
	if err != nil {
		t.Fatalf("EncodeFixed: %v", err)
	}

	var out fixedSample
	if err := DecodeFixed(framed, &out); err != nil {
		t.Fatalf("DecodeFixed: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}
