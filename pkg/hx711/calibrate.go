package hx711

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/stopwatch"
)

const (
	countdownTicks   = 5
	countdownPeriod  = time.Second
	weightPollPeriod = 200 * time.Millisecond

	msgCalibrating    = "Calibrating"
	msgRemoveWeight   = "Remove all weight."
	msgZeroPointIn    = "Setting zero point in:"
	msgPutWeight      = "Put a weight between 100g and 500g on the scale."
	msgWeightDetected = "Weight detected."
	msgCalibrated     = "Calibration complete."
	msgAborted        = "Calibration aborted: "
)

// CalibrationStep denotes a step of the calibration procedure
type CalibrationStep int

const (

	// StepIdle is active while no calibration is running
	StepIdle CalibrationStep = iota

	// StepAnnounce announces the calibration and invalidates the scale factor
	StepAnnounce

	// StepCountdown counts down to zeroing (the operator removes all weight)
	StepCountdown

	// StepTare captures the zero point
	StepTare

	// StepPromptWeight requests the reference weight to be placed
	StepPromptWeight

	// StepWaitForWeight polls until the reference weight is detected
	StepWaitForWeight

	// StepSettle waits for mechanical vibrations to damp
	StepSettle

	// StepComputeFactor derives the scale factor from the reference weight
	StepComputeFactor

	// StepDone denotes a completed calibration
	StepDone
)

var stepNames = map[CalibrationStep]string{
	StepIdle:          "idle",
	StepAnnounce:      "announce",
	StepCountdown:     "countdown",
	StepTare:          "tare",
	StepPromptWeight:  "prompt_weight",
	StepWaitForWeight: "wait_for_weight",
	StepSettle:        "settle",
	StepComputeFactor: "compute_factor",
	StepDone:          "done",
}

// String returns a human-readable representation of the step
func (c CalibrationStep) String() string {
	if name, ok := stepNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(c))
}

// Calibrate zeroes the scale and derives the scale factor from the reference
// weight placed by the operator, reporting progress via status messages. It
// blocks until the procedure completes, fails or the context is done. On
// failure, offset / scale factor / calibration flag are restored to their
// state before the calibration
func (s *Scale) Calibrate(ctx context.Context) error {
	s.stateMu.Lock()
	s.timer = stopwatch.Start(0)
	s.stateMu.Unlock()

	defer func() {
		s.stateMu.Lock()
		s.timer.Stop()
		s.stateMu.Unlock()
	}()

	c := newCalibration(s)
	for c.step != StepDone {
		if err := c.advance(ctx); err != nil {
			step := c.step
			c.abort(err)
			return fmt.Errorf("calibration failed in step %s: %w", step, err)
		}
	}

	return nil
}

////////////////////////////////////////////////////////////////////////////////

type calibrationState struct {
	offset      int32
	scaleFactor float64
	calibrated  bool
}

type calibration struct {
	s    *Scale
	step CalibrationStep

	lastWake  time.Time
	counting  bool
	remaining int
	waitStart time.Time

	saved calibrationState
}

func newCalibration(s *Scale) *calibration {
	c := &calibration{s: s}
	c.enter(StepAnnounce)

	return c
}

// advance performs (one tick of) the current step, entering the next step once
// it is complete
func (c *calibration) advance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.s
	switch c.step {

	case StepAnnounce:
		s.sendMessage(msgCalibrating)
		s.stateMu.Lock()
		c.saved = calibrationState{
			offset:      s.offset,
			scaleFactor: s.scaleFactor,
			calibrated:  s.calibrated,
		}
		s.calibrated = false
		s.stateMu.Unlock()
		s.logger.Infof("starting calibration (reference mass %.2fg)", s.referenceMass)
		c.enter(StepCountdown)

	case StepCountdown:
		if !c.counting {
			c.lastWake = s.scheduler.Now()
			s.sendMessage(msgRemoveWeight)
			s.sendMessage(msgZeroPointIn)
			c.counting, c.remaining = true, countdownTicks
		}

		c.remaining--
		s.sendMessage(strconv.Itoa(c.remaining))
		if err := s.scheduler.DelayUntil(ctx, &c.lastWake, countdownPeriod); err != nil {
			return err
		}
		if c.remaining == 0 {
			c.enter(StepTare)
		}

	case StepTare:
		if err := s.Tare(ctx); err != nil {
			return err
		}
		c.enter(StepPromptWeight)

	case StepPromptWeight:
		s.sendMessage(msgPutWeight)
		c.lastWake = s.scheduler.Now()
		c.waitStart = c.lastWake
		c.enter(StepWaitForWeight)

	case StepWaitForWeight:
		value, err := s.ReadCalibratedRaw(ctx)
		if err != nil {
			return err
		}
		if abs(value) > int64(s.detectionThreshold) {
			s.logger.Debugf("calibration weight detected (raw deviation %d)", value)
			c.enter(StepSettle)
			return nil
		}
		if s.weightTimeout > 0 && s.scheduler.Now().Sub(c.waitStart) >= s.weightTimeout {
			return fmt.Errorf("%w within %v", ErrWeightTimeout, s.weightTimeout)
		}
		if err := s.scheduler.DelayUntil(ctx, &c.lastWake, weightPollPeriod); err != nil {
			return err
		}

	case StepSettle:
		s.sendMessage(msgWeightDetected)
		c.lastWake = s.scheduler.Now()
		if err := s.scheduler.DelayUntil(ctx, &c.lastWake, s.settleDelay); err != nil {
			return err
		}
		c.enter(StepComputeFactor)

	case StepComputeFactor:
		value, err := s.ReadCalibratedRaw(ctx)
		if err != nil {
			return err
		}
		factor := float64(value) / s.referenceMass
		if factor == 0 {
			return ErrInvalidScaleFactor
		}

		s.stateMu.Lock()
		s.scaleFactor = factor
		s.calibrated = true
		s.stateMu.Unlock()

		s.sendMessage(msgCalibrated)
		s.logger.Infof("calibration complete, scale factor %.4f raw units per gram", factor)
		c.enter(StepDone)

	default:
		return fmt.Errorf("unexpected calibration step %s", c.step)
	}

	return nil
}

func (c *calibration) enter(step CalibrationStep) {
	c.step = step

	c.s.stateMu.Lock()
	c.s.step = step
	c.s.stateMu.Unlock()
}

// abort restores the state saved when the calibration was announced
func (c *calibration) abort(err error) {
	s := c.s
	if c.step > StepAnnounce {
		s.stateMu.Lock()
		s.offset = c.saved.offset
		s.scaleFactor = c.saved.scaleFactor
		s.calibrated = c.saved.calibrated
		s.stateMu.Unlock()
	}
	c.enter(StepIdle)

	s.sendMessage(msgAborted + err.Error())
	s.logger.Warnf("calibration aborted: %s", err)
}

func abs(v int32) int64 {
	if v < 0 {
		return -int64(v)
	}
	return int64(v)
}
