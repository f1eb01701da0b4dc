package scale

import "context"

// Basic denotes a basic weighing scale
type Basic interface {

	// Tare zeroes the scale against the current load
	Tare(ctx context.Context) error

	// Grams returns the current weight in grams
	Grams(ctx context.Context) (float64, error)

	// Kilograms returns the current weight in kilograms
	Kilograms(ctx context.Context) (float64, error)

	// LastWeight returns the most recently measured weight in grams (without
	// accessing the device)
	LastWeight() float64

	// IsCalibrated returns if a scale factor has been established
	IsCalibrated() bool

	// SetDataHandler defines a handler function that is called upon retrieval of data
	SetDataHandler(fn func(data DataPoint))

	// SetDataChannel defines a channel that receives all retrieved data
	SetDataChannel(ch chan DataPoint)
}

// Calibrator denotes interactive calibration functionality
type Calibrator interface {

	// Calibrate runs the calibration procedure, blocking until it completes,
	// fails or the context is done
	Calibrate(ctx context.Context) error
}

// Scale denotes the "default" scale containing all functionality
type Scale interface {
	Basic
	Calibrator
}
