package gpio

// Level denotes the logic level of a digital pin
type Level bool

const (

	// Low denotes a logic low level
	Low Level = false

	// High denotes a logic high level
	High Level = true
)

// String returns a human-readable representation of the level
func (l Level) String() string {
	if l {
		return "High"
	}
	return "Low"
}

// Pin identifies a hardware GPIO pin
type Pin int

// Driver denotes the digital pin capability a bit-banged device driver consumes
type Driver interface {

	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin Pin) error

	// ConfigureInput configures a pin as a digital input
	ConfigureInput(pin Pin) error

	// Write sets an output pin to the given level
	Write(pin Pin, level Level)

	// Read returns the current level of an input pin
	Read(pin Pin) Level

	// DelayMicroseconds blocks for (at least) n microseconds
	DelayMicroseconds(n uint32)

	// DelayMilliseconds blocks for (at least) n milliseconds
	DelayMilliseconds(n uint32)

	// EnterAtomic suppresses preemption of the calling context
	EnterAtomic()

	// ExitAtomic ends a section started by EnterAtomic
	ExitAtomic()
}

// Lock enters an atomic section on the driver and returns the function that
// releases it. Callers should defer the release so that every exit path ends
// the section:
//
//	release := gpio.Lock(drv)
//	defer release()
func Lock(d Driver) (release func()) {
	d.EnterAtomic()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		d.ExitAtomic()
	}
}
