package gpio

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Periph denotes a Driver backed by the periph.io host drivers (e.g. a Raspberry Pi)
type Periph struct {
	pins map[Pin]pgpio.PinIO

	errs error
	mu   sync.Mutex
}

// NewPeriph initializes the host drivers and instantiates a new Periph driver
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	return &Periph{
		pins: make(map[Pin]pgpio.PinIO),
	}, nil
}

// ConfigureOutput configures a pin as a digital output (driven low)
func (p *Periph) ConfigureOutput(pin Pin) error {
	io, err := p.lookup(pin)
	if err != nil {
		return err
	}
	if err := io.Out(pgpio.Low); err != nil {
		return fmt.Errorf("failed to configure %s as output: %w", io, err)
	}

	return nil
}

// ConfigureInput configures a pin as a digital input
func (p *Periph) ConfigureInput(pin Pin) error {
	io, err := p.lookup(pin)
	if err != nil {
		return err
	}
	if err := io.In(pgpio.PullNoChange, pgpio.NoEdge); err != nil {
		return fmt.Errorf("failed to configure %s as input: %w", io, err)
	}

	return nil
}

// Write sets an output pin to the given level. Failures are collected and
// reported by Close
func (p *Periph) Write(pin Pin, level Level) {
	io, ok := p.pins[pin]
	if !ok {
		p.appendErr(fmt.Errorf("write to unconfigured pin %d", pin))
		return
	}
	if err := io.Out(pgpio.Level(level)); err != nil {
		p.appendErr(err)
	}
}

// Read returns the current level of an input pin
func (p *Periph) Read(pin Pin) Level {
	io, ok := p.pins[pin]
	if !ok {
		p.appendErr(fmt.Errorf("read from unconfigured pin %d", pin))
		return High
	}

	return Level(io.Read())
}

// DelayMicroseconds busy-waits for n microseconds (the scheduler's sleep
// granularity is far too coarse for clock pulses)
func (p *Periph) DelayMicroseconds(n uint32) {
	deadline := time.Now().Add(time.Duration(n) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

// DelayMilliseconds sleeps for n milliseconds
func (p *Periph) DelayMilliseconds(n uint32) {
	time.Sleep(time.Duration(n) * time.Millisecond)
}

// EnterAtomic pins the calling goroutine to its OS thread. Userspace cannot mask
// interrupts, so this is the strongest guarantee available on a hosted system
func (p *Periph) EnterAtomic() {
	runtime.LockOSThread()
}

// ExitAtomic releases the OS thread locked by EnterAtomic
func (p *Periph) ExitAtomic() {
	runtime.UnlockOSThread()
}

// Close halts all configured pins and returns any error collected during operation
func (p *Periph) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.errs
	for _, io := range p.pins {
		err = multierr.Append(err, io.Halt())
	}

	return err
}

////////////////////////////////////////////////////////////////////////////////

func (p *Periph) lookup(pin Pin) (pgpio.PinIO, error) {
	if io, ok := p.pins[pin]; ok {
		return io, nil
	}

	io := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if io == nil {
		return nil, fmt.Errorf("failed to find pin GPIO%d", pin)
	}
	p.pins[pin] = io

	return io, nil
}

func (p *Periph) appendErr(err error) {
	p.mu.Lock()
	p.errs = multierr.Append(p.errs, err)
	p.mu.Unlock()
}
