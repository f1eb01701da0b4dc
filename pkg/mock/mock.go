package mock

import (
	"sync"

	"github.com/fako1024/hxscale/pkg/gpio"
)

const (
	dataBits = 24
	mask24   = 0xFFFFFF
)

// Transfer denotes a completed read cycle as observed by the simulated device
type Transfer struct {

	// Value is the (sign-extended) sample shifted out during the transfer
	Value int32

	// Clocks is the total number of clock pulses of the transfer
	Clocks int

	// GainPulses is the number of clock pulses following the data bits
	GainPulses int

	// Interrupted is set if any clock edge of the transfer happened outside of
	// an atomic section
	Interrupted bool
}

// Device denotes a simulated HX711 load cell amplifier attached to a clock and a
// data pin. It implements gpio.Driver so it can be handed to a driver directly
type Device struct {
	clock gpio.Pin
	data  gpio.Pin

	outputs map[gpio.Pin]bool
	inputs  map[gpio.Pin]bool

	samples  []int32
	next     int
	notReady int

	clockLevel  gpio.Level
	current     uint32
	clocks      int
	interrupted bool
	atomic      int

	transfers   []Transfer
	readyPolls  int
	microDelays []uint32
	milliDelays []uint32

	mu sync.Mutex
}

// New instantiates a new simulated device on the given clock and data pins,
// reporting the given raw samples (the last one is repeated once exhausted)
func New(clock, data gpio.Pin, samples ...int32) *Device {
	if len(samples) == 0 {
		samples = []int32{0}
	}

	return &Device{
		clock:   clock,
		data:    data,
		outputs: make(map[gpio.Pin]bool),
		inputs:  make(map[gpio.Pin]bool),
		samples: samples,
	}
}

// SetSamples replaces the queue of samples to report
func (d *Device) SetSamples(samples ...int32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(samples) == 0 {
		samples = []int32{0}
	}
	d.samples, d.next = samples, 0
}

// SetNotReady makes the device report "not ready" for the next n polls of the
// data line. A negative value keeps the device busy forever
func (d *Device) SetNotReady(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notReady = n
}

// Transfers returns all completed transfers
func (d *Device) Transfers() []Transfer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Transfer(nil), d.transfers...)
}

// LastTransfer returns the most recent completed transfer, if any
func (d *Device) LastTransfer() (Transfer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.transfers) == 0 {
		return Transfer{}, false
	}
	return d.transfers[len(d.transfers)-1], true
}

// ReadyPolls returns how often the data line was polled for readiness
func (d *Device) ReadyPolls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyPolls
}

// MicroDelays returns all requested microsecond delays
func (d *Device) MicroDelays() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.microDelays...)
}

// MilliDelays returns all requested millisecond delays
func (d *Device) MilliDelays() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.milliDelays...)
}

// InAtomic returns if an atomic section is currently active
func (d *Device) InAtomic() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.atomic > 0
}

// IsOutput returns if the pin was configured as output
func (d *Device) IsOutput(pin gpio.Pin) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputs[pin]
}

// IsInput returns if the pin was configured as input
func (d *Device) IsInput(pin gpio.Pin) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputs[pin]
}

////////////////////////////////////////////////////////////////////////////////

// ConfigureOutput marks the pin as output
func (d *Device) ConfigureOutput(pin gpio.Pin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs[pin] = true
	return nil
}

// ConfigureInput marks the pin as input
func (d *Device) ConfigureInput(pin gpio.Pin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs[pin] = true
	return nil
}

// Write drives the clock line. A rising edge shifts out the next bit (or counts
// a gain pulse once all data bits have been shifted out)
func (d *Device) Write(pin gpio.Pin, level gpio.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pin != d.clock {
		return
	}

	rising := level == gpio.High && d.clockLevel == gpio.Low
	d.clockLevel = level
	if !rising {
		return
	}

	if d.clocks == 0 {
		d.current = uint32(d.nextSample()) & mask24
		d.interrupted = false
	}
	if d.atomic == 0 {
		d.interrupted = true
	}
	d.clocks++
}

// Read returns the level of the data line: low while a conversion is available
// (ready), the current bit during a transfer and high after the data bits
func (d *Device) Read(pin gpio.Pin) gpio.Level {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pin != d.data {
		return gpio.Low
	}

	if d.clocks == 0 {
		d.readyPolls++
		if d.notReady < 0 {
			return gpio.High
		}
		if d.notReady > 0 {
			d.notReady--
			return gpio.High
		}
		return gpio.Low
	}

	if d.clocks > dataBits {
		return gpio.High
	}

	return gpio.Level(d.current&(1<<(dataBits-d.clocks)) != 0)
}

// DelayMicroseconds records the delay
func (d *Device) DelayMicroseconds(n uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.microDelays = append(d.microDelays, n)
}

// DelayMilliseconds records the delay
func (d *Device) DelayMilliseconds(n uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.milliDelays = append(d.milliDelays, n)
}

// EnterAtomic starts an atomic section
func (d *Device) EnterAtomic() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.atomic++
}

// ExitAtomic ends an atomic section, completing a pending transfer once the
// outermost section ends
func (d *Device) ExitAtomic() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.atomic > 0 {
		d.atomic--
	}
	if d.atomic == 0 && d.clocks > 0 {
		d.complete()
	}
}

////////////////////////////////////////////////////////////////////////////////

func (d *Device) nextSample() int32 {
	v := d.samples[d.next]
	if d.next < len(d.samples)-1 {
		d.next++
	}
	return v
}

func (d *Device) complete() {
	value := int32(d.current<<8) >> 8

	pulses := d.clocks - dataBits
	if pulses < 0 {
		pulses = 0
	}

	d.transfers = append(d.transfers, Transfer{
		Value:       value,
		Clocks:      d.clocks,
		GainPulses:  pulses,
		Interrupted: d.interrupted,
	})
	d.clocks = 0
}
