package devices

import "testing"

// fakeBackend is a hand-rolled SerialBackend test double, grounded on
// the same pattern as mockSink: no mocking library, just a minimal
// struct recording writes and handing back queued inbound bytes.
type fakeBackend struct {
	written []byte
	inbound [][]byte
}

func (f *fakeBackend) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeBackend) Poll() ([]byte, error) {
	if len(f.inbound) == 0 {
		return nil, nil
	}
	next := f.inbound[0]
	f.inbound = f.inbound[1:]
	return next, nil
}

func TestUARTWriteForwardsToBackend(t *testing.T) {
	sink := newMockSink()
	backend := &fakeBackend{}
	u := NewUART(UART1Base, IRQSerial1, sink, backend)

	u.WriteIO(UART1Base+uartRegData, 1, 'H')
	u.WriteIO(UART1Base+uartRegData, 1, 'i')

	if string(backend.written) != "Hi" {
		t.Fatalf("backend received %q, want %q", backend.written, "Hi")
	}
}

func TestUARTReceivePopulatesRxAndSetsLSR(t *testing.T) {
	sink := newMockSink()
	u := NewUART(UART1Base, IRQSerial1, sink, nil)
	u.WriteIO(UART1Base+uartRegIER, 1, uartIERRxData)

	u.Receive([]byte("AB"))

	if sink.countRaised(IRQSerial1) != 1 {
		t.Fatalf("expected IRQ raised once on receive")
	}

	lsr, _ := u.ReadIO(UART1Base+uartRegLSR, 1)
	if lsr&uint32(uartLSRDataReady) == 0 {
		t.Fatalf("LSR.DR not set with data pending")
	}

	b1, _ := u.ReadIO(UART1Base+uartRegData, 1)
	b2, _ := u.ReadIO(UART1Base+uartRegData, 1)
	if b1 != 'A' || b2 != 'B' {
		t.Fatalf("RHR sequence = %c %c, want A B", b1, b2)
	}

	lsr, _ = u.ReadIO(UART1Base+uartRegLSR, 1)
	if lsr&uint32(uartLSRDataReady) != 0 {
		t.Fatalf("LSR.DR still set after draining RX FIFO")
	}
}

func TestUARTTickPollsBackendOnStride(t *testing.T) {
	sink := newMockSink()
	backend := &fakeBackend{inbound: [][]byte{[]byte("X")}}
	u := NewUART(UART2Base, IRQSerial2, sink, backend)
	u.SetPollStride(3)

	u.Tick()
	u.Tick()
	if !u.rx.empty() {
		t.Fatalf("RX FIFO populated before stride elapsed")
	}
	u.Tick()
	if u.rx.empty() {
		t.Fatalf("RX FIFO empty after stride elapsed")
	}
}

func TestUARTDLABSwitchesToDivisorLatch(t *testing.T) {
	u := NewUART(UART1Base, IRQSerial1, newMockSink(), nil)
	u.WriteIO(UART1Base+uartRegLCR, 1, uint32(uartLCRDLAB))
	u.WriteIO(UART1Base+uartRegData, 1, 0x0C)
	u.WriteIO(UART1Base+uartRegIER, 1, 0x00)

	dll, _ := u.ReadIO(UART1Base+uartRegData, 1)
	if dll != 0x0C {
		t.Fatalf("DLL readback = 0x%x, want 0x0C", dll)
	}
}

func TestUARTInvalidAccessSize(t *testing.T) {
	u := NewUART(UART1Base, IRQSerial1, newMockSink(), nil)
	if _, err := u.ReadIO(UART1Base, 2); err == nil {
		t.Fatalf("expected error for 2-byte read")
	}
}

func TestUARTSaveRestoreStateRoundTrip(t *testing.T) {
	u := NewUART(UART1Base, IRQSerial1, newMockSink(), nil)
	u.WriteIO(UART1Base+uartRegIER, 1, uartIERRxData)
	u.Receive([]byte("AB"))
	u.WriteIO(UART1Base+uartRegLCR, 1, uint32(uartLCRDLAB))
	u.WriteIO(UART1Base+uartRegData, 1, 0x0C)
	u.WriteIO(UART1Base+uartRegLCR, 1, 0x00)

	data, err := u.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	restored := NewUART(UART1Base, IRQSerial1, newMockSink(), nil)
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}

	b1, _ := restored.ReadIO(UART1Base+uartRegData, 1)
	b2, _ := restored.ReadIO(UART1Base+uartRegData, 1)
	if b1 != 'A' || b2 != 'B' {
		t.Fatalf("restored RX sequence = %c %c, want A B", b1, b2)
	}
	if restored.dll != 0x0C {
		t.Fatalf("restored DLL = 0x%x, want 0x0C", restored.dll)
	}
}
