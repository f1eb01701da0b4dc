package hx711

import (
	"time"

	"github.com/fako1024/hxscale/pkg/config"
	"github.com/fako1024/hxscale/pkg/scale"
	"github.com/fako1024/hxscale/pkg/sched"
)

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Scale) {
	return func(s *Scale) {
		s.logger = logger
	}
}

// WithScheduler sets the scheduler used to pace the calibration procedure
func WithScheduler(scheduler sched.Scheduler) func(*Scale) {
	return func(s *Scale) {
		s.scheduler = scheduler
	}
}

// WithGain sets the initial gain
func WithGain(gain Gain) func(*Scale) {
	return func(s *Scale) {
		s.gain = gain
	}
}

// WithPulseHold sets the time the clock line is held high / low per pulse
func WithPulseHold(hold time.Duration) func(*Scale) {
	return func(s *Scale) {
		s.pulseHold = hold
	}
}

// WithReadyPoll sets the interval the data line is polled at while waiting for
// a conversion
func WithReadyPoll(interval time.Duration) func(*Scale) {
	return func(s *Scale) {
		s.readyPoll = interval
	}
}

// WithReadyTimeout bounds the wait for a conversion (zero waits indefinitely)
func WithReadyTimeout(timeout time.Duration) func(*Scale) {
	return func(s *Scale) {
		s.readyTimeout = timeout
	}
}

// WithReferenceMass sets the mass (in grams) of the calibration weight
func WithReferenceMass(grams float64) func(*Scale) {
	return func(s *Scale) {
		s.referenceMass = grams
	}
}

// WithDetectionThreshold sets the deviation from zero (in raw units) above which
// the calibration weight is considered placed
func WithDetectionThreshold(raw int32) func(*Scale) {
	return func(s *Scale) {
		s.detectionThreshold = raw
	}
}

// WithWeightTimeout bounds the wait for the calibration weight (zero waits indefinitely)
func WithWeightTimeout(timeout time.Duration) func(*Scale) {
	return func(s *Scale) {
		s.weightTimeout = timeout
	}
}

// WithSettleDelay sets the time to wait for the calibration weight to settle
func WithSettleDelay(delay time.Duration) func(*Scale) {
	return func(s *Scale) {
		s.settleDelay = delay
	}
}

// WithScaleFactor presets offset and scale factor (raw units per gram) from a
// previous calibration, marking the scale as calibrated. A zero factor is ignored
func WithScaleFactor(offset int32, factor float64) func(*Scale) {
	return func(s *Scale) {
		if factor == 0 {
			return
		}
		s.offset = offset
		s.scaleFactor = factor
		s.calibrated = true
	}
}

// WithConfig applies gain, timing and calibration settings from a configuration
func WithConfig(cfg *config.Config) func(*Scale) {
	return func(s *Scale) {
		s.gain = Gain(cfg.Gain)
		s.pulseHold = cfg.Timing.PulseHold
		s.readyPoll = cfg.Timing.ReadyPoll
		s.readyTimeout = cfg.Timing.ReadyTimeout
		s.referenceMass = cfg.Calibration.ReferenceMass
		s.detectionThreshold = cfg.Calibration.DetectionThreshold
		s.weightTimeout = cfg.Calibration.WeightTimeout
		s.settleDelay = cfg.Calibration.SettleDelay

		WithScaleFactor(cfg.Calibration.Offset, cfg.Calibration.ScaleFactor)(s)
	}
}
