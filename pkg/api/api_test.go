package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fako1024/hxscale/pkg/gpio"
	"github.com/fako1024/hxscale/pkg/hx711"
	"github.com/fako1024/hxscale/pkg/message"
	"github.com/fako1024/hxscale/pkg/mock"
	"github.com/fako1024/hxscale/pkg/scale"
	"github.com/fako1024/hxscale/pkg/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clockPin gpio.Pin = 5
	dataPin  gpio.Pin = 6
)

func newTestAPI(t *testing.T, samples []int32, options ...func(*hx711.Scale)) (*API, *hx711.Scale, *mock.Device) {
	t.Helper()

	device := mock.New(clockPin, dataPin, samples...)
	options = append([]func(*hx711.Scale){
		hx711.WithScheduler(sched.NewVirtual(time.Now())),
	}, options...)

	s, err := hx711.New(device, clockPin, dataPin, message.NewQueue(64), nil, options...)
	require.NoError(t, err)

	return New(s, nil), s, device
}

func do(t *testing.T, api *API, method, target string, out interface{}) int {
	t.Helper()

	resp, err := api.App().Test(httptest.NewRequest(method, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func TestWeightUncalibrated(t *testing.T) {
	api, _, device := newTestAPI(t, []int32{5000})

	var resp ErrorResponse
	assert.Equal(t, http.StatusPreconditionFailed, do(t, api, http.MethodGet, "/weight", &resp))
	assert.Equal(t, hx711.ErrNotCalibrated.Error(), resp.Error)
	assert.Empty(t, device.Transfers())
}

func TestWeight(t *testing.T) {
	api, _, _ := newTestAPI(t, []int32{251000}, hx711.WithScaleFactor(1000, 2000))

	var resp WeightResponse
	require.Equal(t, http.StatusOK, do(t, api, http.MethodGet, "/weight", &resp))
	assert.Equal(t, "g", string(resp.Unit))
	assert.InDelta(t, 125., resp.Weight, 1e-9)

	require.Equal(t, http.StatusOK, do(t, api, http.MethodGet, "/weight?unit=kg", &resp))
	assert.Equal(t, "kg", string(resp.Unit))
	assert.InDelta(t, 0.125, resp.Weight, 1e-9)

	assert.Equal(t, http.StatusBadRequest, do(t, api, http.MethodGet, "/weight?unit=oz", nil))
}

func TestWeightSensorTimeout(t *testing.T) {
	api, _, device := newTestAPI(t, nil, hx711.WithScaleFactor(0, 1), hx711.WithReadyTimeout(time.Millisecond))
	device.SetNotReady(-1)

	assert.Equal(t, http.StatusGatewayTimeout, do(t, api, http.MethodGet, "/weight", nil))
}

func TestTare(t *testing.T) {
	api, s, _ := newTestAPI(t, []int32{4242})

	assert.Equal(t, http.StatusNoContent, do(t, api, http.MethodPost, "/tare", nil))
	assert.Equal(t, int32(4242), s.Offset())

	var status StatusResponse
	require.Equal(t, http.StatusOK, do(t, api, http.MethodGet, "/status", &status))
	assert.Equal(t, int32(4242), status.Offset)
	assert.False(t, status.Calibrated)
	assert.Equal(t, "idle", status.Step)
}

func TestSetGain(t *testing.T) {
	api, s, device := newTestAPI(t, nil)

	assert.Equal(t, http.StatusNoContent, do(t, api, http.MethodPut, "/gain/64", nil))
	assert.Equal(t, hx711.GainLow, s.Gain())

	assert.Equal(t, http.StatusBadRequest, do(t, api, http.MethodPut, "/gain/32", nil))
	assert.Equal(t, http.StatusBadRequest, do(t, api, http.MethodPut, "/gain/high", nil))
	assert.Equal(t, hx711.GainLow, s.Gain())

	// The new gain is applied with the next read
	assert.Equal(t, http.StatusNoContent, do(t, api, http.MethodPost, "/tare", nil))
	transfer, ok := device.LastTransfer()
	require.True(t, ok)
	assert.Equal(t, 3, transfer.GainPulses)
}

func TestCalibrate(t *testing.T) {
	api, s, _ := newTestAPI(t, []int32{1000, 1000, 126830, 126830})

	assert.Equal(t, http.StatusAccepted, do(t, api, http.MethodPost, "/calibrate", nil))

	var status StatusResponse
	require.Eventually(t, func() bool {
		do(t, api, http.MethodGet, "/status", &status)
		return !status.Calibrating && status.Calibrated
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, "done", status.Step)
	assert.Empty(t, status.Error)
	assert.InDelta(t, 1000., status.ScaleFactor, 1e-6)
	assert.True(t, s.IsCalibrated())

	var weight WeightResponse
	require.Equal(t, http.StatusOK, do(t, api, http.MethodGet, "/weight", &weight))
	assert.InDelta(t, 125.83, weight.Weight, 1e-6)
}

func TestCalibrateBusyAndCancel(t *testing.T) {

	// The weight is never placed, so the calibration runs until canceled
	api, s, _ := newTestAPI(t, []int32{1000})

	assert.Equal(t, http.StatusNotFound, do(t, api, http.MethodDelete, "/calibrate", nil))
	require.Equal(t, http.StatusAccepted, do(t, api, http.MethodPost, "/calibrate", nil))

	require.Eventually(t, func() bool {
		return s.Status().Step == hx711.StepWaitForWeight
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, http.StatusConflict, do(t, api, http.MethodPost, "/tare", nil))
	assert.Equal(t, http.StatusConflict, do(t, api, http.MethodGet, "/weight", nil))
	assert.Equal(t, http.StatusConflict, do(t, api, http.MethodPost, "/calibrate", nil))

	assert.Equal(t, http.StatusAccepted, do(t, api, http.MethodDelete, "/calibrate", nil))

	var status StatusResponse
	require.Eventually(t, func() bool {
		do(t, api, http.MethodGet, "/status", &status)
		return !status.Calibrating
	}, 5*time.Second, 5*time.Millisecond)

	assert.Contains(t, status.Error, "context canceled")
	assert.Equal(t, "idle", status.Step)
	assert.False(t, status.Calibrated)

	require.Eventually(t, func() bool {
		return do(t, api, http.MethodPost, "/tare", nil) == http.StatusNoContent
	}, 5*time.Second, 5*time.Millisecond)
}

// stubDevice fails its first calibration and blocks every subsequent one until
// canceled
type stubDevice struct {
	calibrations int
	mu           sync.Mutex
}

func (d *stubDevice) Tare(context.Context) error { return nil }
func (d *stubDevice) Grams(context.Context) (float64, error) { return 0, nil }
func (d *stubDevice) Kilograms(context.Context) (float64, error) { return 0, nil }
func (d *stubDevice) LastWeight() float64 { return 0 }
func (d *stubDevice) IsCalibrated() bool { return false }
func (d *stubDevice) SetDataHandler(func(data scale.DataPoint)) {}
func (d *stubDevice) SetDataChannel(chan scale.DataPoint) {}
func (d *stubDevice) SetGain(hx711.Gain) error { return nil }
func (d *stubDevice) Status() hx711.Status { return hx711.Status{} }

func (d *stubDevice) Calibrate(ctx context.Context) error {
	d.mu.Lock()
	d.calibrations++
	n := d.calibrations
	d.mu.Unlock()

	if n == 1 {
		return hx711.ErrWeightTimeout
	}
	<-ctx.Done()
	return ctx.Err()
}

// blockingLogger blocks on warnings until released
type blockingLogger struct {
	scale.NullLogger
	warned  chan struct{}
	release chan struct{}
}

func (l *blockingLogger) Warnf(format string, args ...interface{}) {
	l.warned <- struct{}{}
	<-l.release
}

func TestCalibrateRestartWhileLoggingFailure(t *testing.T) {
	logger := &blockingLogger{
		warned:  make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	api := New(&stubDevice{}, logger)

	// The first calibration fails and its goroutine blocks while logging
	require.Equal(t, http.StatusAccepted, do(t, api, http.MethodPost, "/calibrate", nil))
	<-logger.warned

	require.Equal(t, http.StatusAccepted, do(t, api, http.MethodPost, "/calibrate", nil))
	close(logger.release)

	var status StatusResponse
	require.Equal(t, http.StatusOK, do(t, api, http.MethodGet, "/status", &status))
	assert.True(t, status.Calibrating)
	assert.Equal(t, http.StatusConflict, do(t, api, http.MethodPost, "/tare", nil))

	// The second calibration can still be canceled
	assert.Equal(t, http.StatusAccepted, do(t, api, http.MethodDelete, "/calibrate", nil))
	require.Eventually(t, func() bool {
		return do(t, api, http.MethodPost, "/tare", nil) == http.StatusNoContent
	}, 5*time.Second, 5*time.Millisecond)

	require.Equal(t, http.StatusOK, do(t, api, http.MethodGet, "/status", &status))
	assert.False(t, status.Calibrating)
	assert.Contains(t, status.Error, "context canceled")
}
