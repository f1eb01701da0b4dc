package hx711

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fako1024/hxscale/pkg/message"
	"github.com/fako1024/hxscale/pkg/mock"
	"github.com/fako1024/hxscale/pkg/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog records status messages and scheduler waits in the order they occur
type eventLog struct {
	events []string
	mu     sync.Mutex
}

func (l *eventLog) TrySend(r message.Record) bool {
	l.add(r.String())
	return true
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type calibrationEnv struct {
	scale     *Scale
	device    *mock.Device
	scheduler *sched.Virtual
	log       *eventLog
}

func newCalibrationEnv(t *testing.T, samples []int32, options ...func(*Scale)) calibrationEnv {
	t.Helper()

	env := calibrationEnv{
		device:    mock.New(testClockPin, testDataPin, samples...),
		scheduler: sched.NewVirtual(testStart),
		log:       &eventLog{},
	}
	env.scheduler.OnDelay(func(n int, _ time.Time) {
		delays := env.scheduler.Delays()
		env.log.add("wait " + delays[n-1].String())
	})

	options = append([]func(*Scale){WithScheduler(env.scheduler)}, options...)
	s, err := New(env.device, testClockPin, testDataPin, env.log, nil, options...)
	require.NoError(t, err)
	env.scale = s

	return env
}

func TestCalibrate(t *testing.T) {
	env := newCalibrationEnv(t, []int32{1000, 1000, 1000, 126953, 126953})

	var calibratedDuringWaits []bool
	env.scheduler.OnDelay(func(n int, _ time.Time) {
		env.log.add("wait " + env.scheduler.Delays()[n-1].String())
		calibratedDuringWaits = append(calibratedDuringWaits, env.scale.IsCalibrated())
	})

	require.NoError(t, env.scale.Calibrate(context.Background()))

	status := env.scale.Status()
	assert.True(t, status.Calibrated)
	assert.Equal(t, int32(1000), status.Offset)
	assert.InDelta(t, float64(126953-1000)/DefaultReferenceMass, status.ScaleFactor, 1e-6)
	assert.InDelta(t, 1000.98, status.ScaleFactor, 0.01)
	assert.Equal(t, StepDone, status.Step)

	// The scale is only considered calibrated once the whole sequence completed
	require.NotEmpty(t, calibratedDuringWaits)
	for _, calibrated := range calibratedDuringWaits {
		assert.False(t, calibrated)
	}

	assert.Equal(t, []string{
		"Calibrating",
		"Remove all weight.",
		"Setting zero point in:",
		"4", "wait 1s",
		"3", "wait 1s",
		"2", "wait 1s",
		"1", "wait 1s",
		"0", "wait 1s",
		"Zero point set",
		"Put a weight between 100g and 500g on the scale.",
		"wait 200ms",
		"wait 200ms",
		"Weight detected.",
		"wait 2s",
		"Calibration complete.",
	}, env.log.Events())

	// Tare, three polls while waiting for the weight and the final reading
	assert.Len(t, env.device.Transfers(), 5)
	assert.Equal(t, testStart.Add(5*time.Second+400*time.Millisecond+2*time.Second), env.scheduler.Now())

	grams, err := env.scale.Grams(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, DefaultReferenceMass, grams, 1e-6)
}

func TestCalibrateWeightDetectionThreshold(t *testing.T) {
	env := newCalibrationEnv(t, []int32{
		1000,   // tare
		101000, // exactly at the threshold
		-99000, // exactly at the (negative) threshold
		101001, // first sample exceeding the threshold
		101001,
	})

	require.NoError(t, env.scale.Calibrate(context.Background()))

	transfers := env.device.Transfers()
	require.Len(t, transfers, 5)

	var polls int
	for _, event := range env.log.Events() {
		if event == "wait 200ms" {
			polls++
		}
	}
	assert.Equal(t, 2, polls)
	assert.InDelta(t, 100001./DefaultReferenceMass, env.scale.Status().ScaleFactor, 1e-6)
}

func TestCalibrateNegativeLoad(t *testing.T) {
	env := newCalibrationEnv(t, []int32{0, -150000, -150000})

	require.NoError(t, env.scale.Calibrate(context.Background()))
	assert.InDelta(t, -150000./DefaultReferenceMass, env.scale.Status().ScaleFactor, 1e-6)
}

func TestCalibrateCustomParameters(t *testing.T) {
	env := newCalibrationEnv(t, []int32{0, 600, 600},
		WithReferenceMass(200),
		WithDetectionThreshold(500),
		WithSettleDelay(500*time.Millisecond),
	)

	require.NoError(t, env.scale.Calibrate(context.Background()))
	assert.InDelta(t, 3., env.scale.Status().ScaleFactor, 1e-9)
	assert.Contains(t, env.log.Events(), "wait 500ms")
}

func TestCalibrateCanceledRestoresState(t *testing.T) {
	env := newCalibrationEnv(t, []int32{1000}, WithScaleFactor(50, 2.5))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.scheduler.OnDelay(func(n int, _ time.Time) {
		if n == 8 {
			cancel()
		}
	})

	err := env.scale.Calibrate(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), StepWaitForWeight.String())

	status := env.scale.Status()
	assert.True(t, status.Calibrated)
	assert.Equal(t, int32(50), status.Offset)
	assert.InDelta(t, 2.5, status.ScaleFactor, 1e-9)
	assert.Equal(t, StepIdle, status.Step)
	assert.Equal(t, GainHigh, status.Gain)

	events := env.log.Events()
	require.NotEmpty(t, events)
	assert.True(t, strings.HasPrefix(events[len(events)-1], "Calibration aborted: "))
}

func TestCalibrateCanceledDuringCountdown(t *testing.T) {
	env := newCalibrationEnv(t, []int32{1000})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.scheduler.OnDelay(func(n int, _ time.Time) {
		if n == 2 {
			cancel()
		}
	})

	err := env.scale.Calibrate(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The device was never read
	assert.Empty(t, env.device.Transfers())
	assert.False(t, env.scale.IsCalibrated())
}

func TestCalibrateWeightTimeout(t *testing.T) {
	env := newCalibrationEnv(t, []int32{1000}, WithWeightTimeout(time.Second))

	err := env.scale.Calibrate(context.Background())
	require.ErrorIs(t, err, ErrWeightTimeout)
	assert.False(t, env.scale.IsCalibrated())
	assert.Zero(t, env.scale.Offset())

	// Tare plus polls at 0, 200, 400, 600, 800 and 1000ms
	assert.Len(t, env.device.Transfers(), 7)
}

func TestCalibrateSensorTimeout(t *testing.T) {
	env := newCalibrationEnv(t, []int32{1000}, WithReadyTimeout(5*time.Millisecond), WithScaleFactor(0, 10))
	env.device.SetNotReady(-1)

	err := env.scale.Calibrate(context.Background())
	require.ErrorIs(t, err, ErrSensorTimeout)
	assert.Contains(t, err.Error(), StepTare.String())
	assert.True(t, env.scale.IsCalibrated())
}

func TestCalibrateZeroFactor(t *testing.T) {
	env := newCalibrationEnv(t, []int32{0, 200000, 0})

	err := env.scale.Calibrate(context.Background())
	require.ErrorIs(t, err, ErrInvalidScaleFactor)
	assert.False(t, env.scale.IsCalibrated())
	assert.Zero(t, env.scale.Status().ScaleFactor)
}

func TestCalibrateRepeated(t *testing.T) {
	env := newCalibrationEnv(t, []int32{0, 125830, 125830})
	require.NoError(t, env.scale.Calibrate(context.Background()))
	assert.InDelta(t, 1000., env.scale.Status().ScaleFactor, 1e-6)

	env.device.SetSamples(500, 251160, 251160)
	require.NoError(t, env.scale.Calibrate(context.Background()))
	assert.InDelta(t, 1992.05, env.scale.Status().ScaleFactor, 0.01)
	assert.Equal(t, int32(500), env.scale.Offset())
}

func TestCalibrationStepString(t *testing.T) {
	assert.Equal(t, "idle", StepIdle.String())
	assert.Equal(t, "wait_for_weight", StepWaitForWeight.String())
	assert.Equal(t, "done", StepDone.String())
	assert.Equal(t, "unknown(42)", CalibrationStep(42).String())
}
