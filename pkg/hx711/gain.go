package hx711

import "fmt"

// Gain denotes the amplifier gain (channel A), selected by the number of clock
// pulses following the 24 data bits of a read cycle
type Gain int

const (

	// GainHigh denotes a gain of 128 (1 extra pulse, 25 clocks per read)
	GainHigh Gain = 128

	// GainLow denotes a gain of 64 (3 extra pulses, 27 clocks per read)
	GainLow Gain = 64
)

// ParseGain returns the gain setting for the given amplification factor
func ParseGain(factor int) (Gain, error) {
	g := Gain(factor)
	if g.Pulses() == 0 {
		return 0, fmt.Errorf("%w: %d (supported: %d, %d)", ErrInvalidGain, factor, GainHigh, GainLow)
	}
	return g, nil
}

// Pulses returns the number of extra clock pulses selecting the gain, or zero
// for an unsupported gain
func (g Gain) Pulses() int {
	switch g {
	case GainHigh:
		return 1
	case GainLow:
		return 3
	default:
		return 0
	}
}

// String returns a human-readable representation of the gain
func (g Gain) String() string {
	return fmt.Sprintf("x%d", int(g))
}
