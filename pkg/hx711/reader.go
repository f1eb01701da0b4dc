package hx711

import (
	"context"
	"fmt"
	"time"

	"github.com/fako1024/hxscale/pkg/gpio"
)

// IsReady returns if a conversion is available (data line pulled low)
func (s *Scale) IsReady() bool {
	return s.pins.Read(s.dataPin) == gpio.Low
}

// ReadRaw reads a single raw (sign-extended 24 bit) sample from the device. The
// extra clock pulses following the data select the gain for the next conversion
func (s *Scale) ReadRaw(ctx context.Context) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.waitReady(ctx); err != nil {
		return 0, err
	}

	pulses := s.Gain().Pulses()

	var data [3]byte
	func() {
		release := gpio.Lock(s.pins)
		defer release()

		for i := range data {
			data[i] = s.readByte()
		}
		for i := 0; i < pulses; i++ {
			s.pulse()
		}
	}()

	value := decode24(data)
	s.logger.Debugf("read raw sample %d (% x, %d gain pulses)", value, data, pulses)

	return value, nil
}

// ReadCalibratedRaw reads a raw sample and subtracts the offset
func (s *Scale) ReadCalibratedRaw(ctx context.Context) (int32, error) {
	raw, err := s.ReadRaw(ctx)
	if err != nil {
		return 0, err
	}

	return raw - s.Offset(), nil
}

////////////////////////////////////////////////////////////////////////////////

func (s *Scale) waitReady(ctx context.Context) error {
	pollMillis := uint32(s.readyPoll / time.Millisecond)
	if pollMillis == 0 {
		pollMillis = 1
	}

	// The timeout is counted in polls of the effective (whole millisecond) interval
	maxPolls := 0
	if s.readyTimeout > 0 {
		if maxPolls = int(s.readyTimeout / (time.Duration(pollMillis) * time.Millisecond)); maxPolls < 1 {
			maxPolls = 1
		}
	}

	for polls := 0; !s.IsReady(); polls++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if maxPolls > 0 && polls >= maxPolls {
			s.sendMessage("ERROR! Sensor not ready.")
			s.logger.Errorf("sensor on data pin %d not ready within %v", s.dataPin, s.readyTimeout)
			return fmt.Errorf("%w within %v", ErrSensorTimeout, s.readyTimeout)
		}
		s.pins.DelayMilliseconds(pollMillis)
	}

	return nil
}

func (s *Scale) readByte() (value byte) {
	hold := s.holdMicros()
	for i := 0; i < 8; i++ {
		s.pins.Write(s.clockPin, gpio.High)
		s.pins.DelayMicroseconds(hold)
		if s.pins.Read(s.dataPin) == gpio.High {
			value |= 1 << (7 - i)
		}
		s.pins.Write(s.clockPin, gpio.Low)
		s.pins.DelayMicroseconds(hold)
	}

	return
}

func (s *Scale) pulse() {
	hold := s.holdMicros()
	s.pins.Write(s.clockPin, gpio.High)
	s.pins.DelayMicroseconds(hold)
	s.pins.Write(s.clockPin, gpio.Low)
	s.pins.DelayMicroseconds(hold)
}

// holdMicros returns the pulse hold time, rounded up to whole microseconds
func (s *Scale) holdMicros() uint32 {
	hold := uint32((s.pulseHold + time.Microsecond - 1) / time.Microsecond)
	if hold == 0 {
		hold = 1
	}

	return hold
}

// decode24 assembles three bytes (most significant first) of a 24 bit two's
// complement value and sign-extends the result
func decode24(data [3]byte) int32 {
	value := int32(data[0])<<16 | int32(data[1])<<8 | int32(data[2])
	if data[0]&0x80 != 0 {
		value |= -0x1000000
	}

	return value
}
