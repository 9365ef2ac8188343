package devices

// byteRing is a small bounded FIFO ring buffer, grounded on the teacher's
// ne2000.go ring-buffer wraparound arithmetic (next-page/wrap-when-full
// shape), re-expressed here as a plain byte queue for the keyboard and
// mouse input streams (spec.md §4.4's "bounded ring buffers with head
// and count").
type byteRing struct {
	buf   []byte
	head  int
	count int
}

func newByteRing(capacity int) *byteRing {
	return &byteRing{buf: make([]byte, capacity)}
}

// push enqueues a byte, dropping it if the ring is full (spec.md §4.4
// does not specify overflow behavior beyond "bounded"; drop-newest
// matches the teacher's ne2000 receive-ring overflow policy).
func (r *byteRing) push(b byte) bool {
	if r.count == len(r.buf) {
		return false
	}
	tail := (r.head + r.count) % len(r.buf)
	r.buf[tail] = b
	r.count++
	return true
}

func (r *byteRing) pop() (byte, bool) {
	if r.count == 0 {
		return 0, false
	}
	b := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return b, true
}

func (r *byteRing) empty() bool { return r.count == 0 }

func (r *byteRing) clear() {
	r.head = 0
	r.count = 0
}

// genScancode translates a raw make/break keysym into scan-set-2 bytes
// for the keyboard FIFO. The keysym-to-scan-set table itself and the
// keysym encoding are supplied by the GUI collaborator and out of scope
// (spec.md §6 "Scancode injection"); this applies only the 0xF0
// break prefix. The bit-7 folding of translated mode is done by
// translateScanSet2ToSet1.
func genScancode(keysym byte, released bool) []byte {
	if released {
		return []byte{0xF0, keysym}
	}
	return []byte{keysym}
}

// translateScanSet2ToSet1 applies the break-prefix part of the 8042's
// "scan translate" command-byte bit: a 0xF0 break prefix is consumed and
// folded into bit 7 of the following byte rather than being passed
// through. No set-2 to set-1 code table is applied: every other byte is
// passed through unchanged.
func translateScanSet2ToSet1(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	pendingBreak := false
	for _, b := range raw {
		if b == 0xF0 {
			pendingBreak = true
			continue
		}
		if pendingBreak {
			out = append(out, b|0x80)
			pendingBreak = false
			continue
		}
		out = append(out, b)
	}
	return out
}
