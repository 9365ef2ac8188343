package devices

import (
	"fmt"
	"log"

	"github.com/es40core/peripherals/core"
)

// IOBus routes guest programmed I/O to the device registered for a given
// legacy port (spec.md §6 "legacy port map"). Grounded on the teacher's
// devices/iobus.go: a device is registered for each port in a range
// rather than stored as a range record, which keeps routing a flat map
// lookup — cheap at the few hundred legacy ports this core addresses.
type IOBus struct {
	ports map[uint16]core.LegacyIO
}

// NewIOBus creates an empty IOBus.
func NewIOBus() *IOBus {
	return &IOBus{ports: make(map[uint16]core.LegacyIO)}
}

// RegisterDevice registers device to handle every port in
// [startPort, endPort] inclusive.
func (bus *IOBus) RegisterDevice(startPort, endPort uint16, device core.LegacyIO) {
	if device == nil {
		log.Printf("IOBus: attempted to register a nil device for ports 0x%x-0x%x", startPort, endPort)
		return
	}
	for port := startPort; ; port++ {
		bus.ports[port] = device
		if port == endPort || port == 0xFFFF {
			break
		}
	}
}

// Read performs a guest IN of size bytes from port.
func (bus *IOBus) Read(port uint16, size int) (uint32, error) {
	device, ok := bus.ports[port]
	if !ok {
		return 0, fmt.Errorf("IOBus: unhandled read from port 0x%x", port)
	}
	return device.ReadIO(port, size)
}

// Write performs a guest OUT of size bytes to port.
func (bus *IOBus) Write(port uint16, size int, value uint32) error {
	device, ok := bus.ports[port]
	if !ok {
		return fmt.Errorf("IOBus: unhandled write to port 0x%x", port)
	}
	return device.WriteIO(port, size, value)
}
