// Package hx711 implements a driver for HX711 class 24 bit load cell amplifiers,
// read via a bit-banged two-wire (clock / data) protocol
package hx711

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/hxscale/pkg/gpio"
	"github.com/fako1024/hxscale/pkg/message"
	"github.com/fako1024/hxscale/pkg/scale"
	"github.com/fako1024/hxscale/pkg/sched"
	"github.com/fatih/stopwatch"
)

const (

	// DefaultPulseHold denotes the default time the clock line is held high / low
	// per pulse (the device requires at least 0.2µs)
	DefaultPulseHold = time.Microsecond

	// DefaultReadyPoll denotes the default data line polling interval while
	// waiting for a conversion
	DefaultReadyPoll = time.Millisecond

	// DefaultReferenceMass denotes the default mass of the calibration weight (in grams)
	DefaultReferenceMass = 125.83

	// DefaultDetectionThreshold denotes the default deviation from zero (in raw
	// units) above which the calibration weight is considered placed, well above
	// the noise floor of an unloaded cell
	DefaultDetectionThreshold = 100000

	// DefaultSettleDelay denotes the default time granted for mechanical
	// vibrations to damp after the calibration weight was detected
	DefaultSettleDelay = 2 * time.Second

	msgZeroPointSet  = "Zero point set"
	msgNotCalibrated = "WARNING! Scale is not calibrated."
)

// Status denotes a snapshot of the state of a scale
type Status struct {
	Gain            Gain
	Offset          int32
	ScaleFactor     float64
	Calibrated      bool
	Step            CalibrationStep
	LastWeight      float64
	CalibrationTime time.Duration
}

// Scale denotes a load cell attached to an HX711 amplifier
type Scale struct {
	pins     gpio.Driver
	clockPin gpio.Pin
	dataPin  gpio.Pin

	tx message.Sender
	rx message.Receiver

	gain        Gain
	offset      int32
	scaleFactor float64
	calibrated  bool
	weightGrams float64
	step        CalibrationStep
	timer       *stopwatch.Stopwatch
	stateMu     sync.RWMutex

	pulseHold          time.Duration
	readyPoll          time.Duration
	readyTimeout       time.Duration
	referenceMass      float64
	detectionThreshold int32
	weightTimeout      time.Duration
	settleDelay        time.Duration

	dataHandler func(data scale.DataPoint)
	dataChan    chan scale.DataPoint

	scheduler sched.Scheduler
	logger    scale.Logger
}

var _ scale.Scale = (*Scale)(nil)

// New instantiates a new Scale on the given clock / data pins, executing
// functional options, if any. Status messages are sent (best effort) to tx, rx
// is reserved for inbound messages
func New(pins gpio.Driver, clockPin, dataPin gpio.Pin, tx message.Sender, rx message.Receiver, options ...func(*Scale)) (*Scale, error) {
	if pins == nil {
		return nil, ErrNilDriver
	}
	if tx == nil {
		tx = message.Discard{}
	}

	// Initialize a new instance of a Scale
	s := &Scale{
		pins:               pins,
		clockPin:           clockPin,
		dataPin:            dataPin,
		tx:                 tx,
		rx:                 rx,
		gain:               GainHigh,
		pulseHold:          DefaultPulseHold,
		readyPoll:          DefaultReadyPoll,
		referenceMass:      DefaultReferenceMass,
		detectionThreshold: DefaultDetectionThreshold,
		settleDelay:        DefaultSettleDelay,
		scheduler:          sched.Clock{},
		logger:             &scale.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(s)
	}

	if s.gain.Pulses() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGain, s.gain)
	}
	if s.referenceMass <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMass, s.referenceMass)
	}
	if s.readyPoll <= 0 {
		s.readyPoll = DefaultReadyPoll
	}

	if err := pins.ConfigureOutput(clockPin); err != nil {
		return nil, fmt.Errorf("failed to configure clock pin %d: %w", clockPin, err)
	}
	if err := pins.ConfigureInput(dataPin); err != nil {
		return nil, fmt.Errorf("failed to configure data pin %d: %w", dataPin, err)
	}

	// A clock line held high puts the device into power down mode
	pins.Write(clockPin, gpio.Low)

	return s, nil
}

// SetGain sets the gain, taking effect with the next read
func (s *Scale) SetGain(gain Gain) error {
	if gain.Pulses() == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGain, gain)
	}

	s.stateMu.Lock()
	s.gain = gain
	s.stateMu.Unlock()

	s.logger.Debugf("gain set to %s", gain)
	return nil
}

// Gain returns the current gain
func (s *Scale) Gain() Gain {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.gain
}

// Offset returns the current offset (in raw units)
func (s *Scale) Offset() int32 {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.offset
}

// IsCalibrated returns if a scale factor has been established
func (s *Scale) IsCalibrated() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.calibrated
}

// LastWeight returns the most recently measured weight in grams
func (s *Scale) LastWeight() float64 {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.weightGrams
}

// Status returns a snapshot of the current state
func (s *Scale) Status() Status {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	status := Status{
		Gain:        s.gain,
		Offset:      s.offset,
		ScaleFactor: s.scaleFactor,
		Calibrated:  s.calibrated,
		Step:        s.step,
		LastWeight:  s.weightGrams,
	}
	if s.timer != nil {
		status.CalibrationTime = s.timer.ElapsedTime()
	}

	return status
}

// Inbound returns the (reserved) inbound message channel
func (s *Scale) Inbound() message.Receiver {
	return s.rx
}

// SetDataHandler defines a handler function that is called upon retrieval of data
func (s *Scale) SetDataHandler(fn func(data scale.DataPoint)) {
	s.dataHandler = fn
}

// SetDataChannel defines a channel that receives all retrieved data (dropped if full)
func (s *Scale) SetDataChannel(ch chan scale.DataPoint) {
	s.dataChan = ch
}

// Tare sets the offset to the current raw reading
func (s *Scale) Tare(ctx context.Context) error {
	s.sendMessage(msgZeroPointSet)

	raw, err := s.ReadRaw(ctx)
	if err != nil {
		return fmt.Errorf("failed to tare: %w", err)
	}

	s.stateMu.Lock()
	s.offset = raw
	s.stateMu.Unlock()

	s.logger.Infof("zero point set to %d", raw)
	return nil
}

// Grams returns the current weight in grams. An uncalibrated scale is not read
// and reports ErrNotCalibrated (after emitting a warning)
func (s *Scale) Grams(ctx context.Context) (float64, error) {
	s.stateMu.RLock()
	calibrated, factor := s.calibrated, s.scaleFactor
	s.stateMu.RUnlock()

	if !calibrated || factor == 0 {
		s.sendMessage(msgNotCalibrated)
		return 0, ErrNotCalibrated
	}

	value, err := s.ReadCalibratedRaw(ctx)
	if err != nil {
		return 0, err
	}
	grams := float64(value) / factor

	s.stateMu.Lock()
	s.weightGrams = grams
	s.stateMu.Unlock()

	s.publish(grams)

	return grams, nil
}

// Kilograms returns the current weight in kilograms
func (s *Scale) Kilograms(ctx context.Context) (float64, error) {
	grams, err := s.Grams(ctx)
	if err != nil {
		return 0, err
	}

	return grams / 1000., nil
}

////////////////////////////////////////////////////////////////////////////////

func (s *Scale) sendMessage(text string) {
	if !s.tx.TrySend(message.NewRecord(text)) {
		s.logger.Debugf("dropped status message `%s`", text)
	}
}

func (s *Scale) publish(grams float64) {
	dataPoint := scale.DataPoint{
		TimeStamp: time.Now(),
		Unit:      scale.UnitGrams,
		Weight:    grams,
	}

	// Call handler function, if any
	if s.dataHandler != nil {
		s.dataHandler(dataPoint)
	}

	// Put data point on channel, if any
	if s.dataChan != nil {
		select {
		case s.dataChan <- dataPoint:
		default:
		}
	}
}
