package api

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/fako1024/hxscale/pkg/hx711"
	"github.com/fako1024/hxscale/pkg/scale"
	"github.com/gofiber/fiber/v2"
)

// Device denotes the scale functionality exposed by the API
type Device interface {
	scale.Scale

	SetGain(gain hx711.Gain) error
	Status() hx711.Status
}

// API denotes a REST API for a scale
type API struct {
	scale  Device
	router *fiber.App

	// device serializes all operations accessing the device
	device sync.Mutex

	calibrating   bool
	calibrateErr  error
	cancelCalib   context.CancelFunc
	calibrationMu sync.Mutex

	logger scale.Logger
}

// StatusResponse denotes the response to a status request
type StatusResponse struct {
	Gain            int     `json:"gain"`
	Offset          int32   `json:"offset"`
	ScaleFactor     float64 `json:"scale_factor"`
	Calibrated      bool    `json:"calibrated"`
	Step            string  `json:"step"`
	LastWeight      float64 `json:"last_weight"`
	Calibrating     bool    `json:"calibrating"`
	CalibrationTime string  `json:"calibration_time"`
	Error           string  `json:"error,omitempty"`
}

// WeightResponse denotes the response to a weight request
type WeightResponse struct {
	TimeStamp time.Time  `json:"timestamp"`
	Unit      scale.Unit `json:"unit"`
	Weight    float64    `json:"weight"`
}

// ErrorResponse denotes the response to a failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// New instantiates a new API
func New(s Device, logger scale.Logger) *API {
	if logger == nil {
		logger = &scale.NullLogger{}
	}

	api := API{
		scale: s,
		router: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		logger: logger,
	}

	// Setup routes
	api.router.Get("/status", api.handleStatus())
	api.router.Get("/weight", api.handleWeight())
	api.router.Post("/tare", api.handleTare())
	api.router.Put("/gain/:gain", api.handleSetGain())
	api.router.Post("/calibrate", api.handleStartCalibration())
	api.router.Delete("/calibrate", api.handleCancelCalibration())

	return &api
}

// Listen serves the API on the given endpoint (blocking)
func (api *API) Listen(endpoint string) error {
	return api.router.Listen(endpoint)
}

// Shutdown cancels a running calibration and stops serving
func (api *API) Shutdown() error {
	api.cancelCalibration()
	return api.router.Shutdown()
}

// App returns the underlying fiber application
func (api *API) App() *fiber.App {
	return api.router
}

////////////////////////////////////////////////////////////////////////////////

func (api *API) handleStatus() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		status := api.scale.Status()

		api.calibrationMu.Lock()
		calibrating, calibrateErr := api.calibrating, api.calibrateErr
		api.calibrationMu.Unlock()

		resp := StatusResponse{
			Gain:            int(status.Gain),
			Offset:          status.Offset,
			ScaleFactor:     status.ScaleFactor,
			Calibrated:      status.Calibrated,
			Step:            status.Step.String(),
			LastWeight:      status.LastWeight,
			Calibrating:     calibrating,
			CalibrationTime: status.CalibrationTime.String(),
		}
		if calibrateErr != nil {
			resp.Error = calibrateErr.Error()
		}

		return c.JSON(resp)
	}
}

func (api *API) handleWeight() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		unit := scale.ParseUnit(c.Query("unit"))
		if unit == scale.UnitUnknown {
			return respondError(c, fiber.StatusBadRequest, errors.New("unsupported unit: "+c.Query("unit")))
		}

		if !api.device.TryLock() {
			return respondError(c, fiber.StatusConflict, errBusy)
		}
		defer api.device.Unlock()

		grams, err := api.scale.Grams(c.UserContext())
		if err != nil {
			return respondError(c, statusCode(err), err)
		}

		return c.JSON(WeightResponse{
			TimeStamp: time.Now(),
			Unit:      unit,
			Weight:    unit.Convert(grams),
		})
	}
}

func (api *API) handleTare() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if !api.device.TryLock() {
			return respondError(c, fiber.StatusConflict, errBusy)
		}
		defer api.device.Unlock()

		if err := api.scale.Tare(c.UserContext()); err != nil {
			return respondError(c, statusCode(err), err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (api *API) handleSetGain() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		factor, err := strconv.Atoi(c.Params("gain"))
		if err != nil {
			return respondError(c, fiber.StatusBadRequest, err)
		}
		gain, err := hx711.ParseGain(factor)
		if err != nil {
			return respondError(c, fiber.StatusBadRequest, err)
		}

		if !api.device.TryLock() {
			return respondError(c, fiber.StatusConflict, errBusy)
		}
		defer api.device.Unlock()

		if err := api.scale.SetGain(gain); err != nil {
			return respondError(c, statusCode(err), err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (api *API) handleStartCalibration() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if !api.device.TryLock() {
			return respondError(c, fiber.StatusConflict, errBusy)
		}

		ctx, cancel := context.WithCancel(context.Background())
		api.calibrationMu.Lock()
		api.calibrating, api.calibrateErr, api.cancelCalib = true, nil, cancel
		api.calibrationMu.Unlock()

		go func() {
			err := api.scale.Calibrate(ctx)
			cancel()

			// The calibration state must be reset before the device is released,
			// otherwise a subsequent calibration could lose its cancel function
			api.calibrationMu.Lock()
			api.calibrating, api.calibrateErr, api.cancelCalib = false, err, nil
			api.calibrationMu.Unlock()
			api.device.Unlock()

			if err != nil {
				api.logger.Warnf("calibration failed: %s", err)
			}
		}()

		return c.SendStatus(fiber.StatusAccepted)
	}
}

func (api *API) handleCancelCalibration() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if !api.cancelCalibration() {
			return respondError(c, fiber.StatusNotFound, errors.New("no calibration running"))
		}

		return c.SendStatus(fiber.StatusAccepted)
	}
}

func (api *API) cancelCalibration() bool {
	api.calibrationMu.Lock()
	defer api.calibrationMu.Unlock()

	if api.cancelCalib == nil {
		return false
	}
	api.cancelCalib()

	return true
}

var errBusy = errors.New("scale is busy")

func statusCode(err error) int {
	switch {
	case errors.Is(err, hx711.ErrNotCalibrated):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, hx711.ErrInvalidGain):
		return fiber.StatusBadRequest
	case errors.Is(err, hx711.ErrSensorTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, code int, err error) error {
	return c.Status(code).JSON(ErrorResponse{
		Error: err.Error(),
	})
}
