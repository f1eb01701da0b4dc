//go:build tinygo

package gpio

import (
	"machine"
	"runtime/interrupt"
	"time"
)

// Machine denotes a Driver for TinyGo targets, using the machine package pins
// directly and masking interrupts for atomic sections
type Machine struct {
	state interrupt.State
	depth int
}

// NewMachine instantiates a new Machine driver
func NewMachine() *Machine {
	return &Machine{}
}

// ConfigureOutput configures a pin as a digital output (driven low)
func (m *Machine) ConfigureOutput(pin Pin) error {
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	return nil
}

// ConfigureInput configures a pin as a digital input
func (m *Machine) ConfigureInput(pin Pin) error {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

// Write sets an output pin to the given level
func (m *Machine) Write(pin Pin, level Level) {
	machine.Pin(pin).Set(bool(level))
}

// Read returns the current level of an input pin
func (m *Machine) Read(pin Pin) Level {
	return Level(machine.Pin(pin).Get())
}

// DelayMicroseconds blocks for n microseconds
func (m *Machine) DelayMicroseconds(n uint32) {
	time.Sleep(time.Duration(n) * time.Microsecond)
}

// DelayMilliseconds blocks for n milliseconds
func (m *Machine) DelayMilliseconds(n uint32) {
	time.Sleep(time.Duration(n) * time.Millisecond)
}

// EnterAtomic disables interrupts (nesting is supported)
func (m *Machine) EnterAtomic() {
	state := interrupt.Disable()
	if m.depth == 0 {
		m.state = state
	}
	m.depth++
}

// ExitAtomic restores interrupts once the outermost section ends
func (m *Machine) ExitAtomic() {
	if m.depth == 0 {
		return
	}
	m.depth--
	if m.depth == 0 {
		interrupt.Restore(m.state)
	}
}
