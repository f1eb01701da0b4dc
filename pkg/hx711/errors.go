package hx711

// Error denotes a sentinel error of the driver
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrNilDriver          = Error("no pin driver provided")
	ErrInvalidGain        = Error("invalid gain setting")
	ErrInvalidMass        = Error("invalid reference mass")
	ErrInvalidScaleFactor = Error("invalid (zero) scale factor")
	ErrNotCalibrated      = Error("scale is not calibrated")
	ErrSensorTimeout      = Error("sensor did not signal data ready")
	ErrWeightTimeout      = Error("no calibration weight detected")
)
