// Package btle publishes the weight measured by a scale as a Bluetooth LE
// peripheral (Weight Scale Service)
package btle

import (
	"encoding/binary"
	"math"

	"github.com/fako1024/gatt"
	"github.com/fako1024/hxscale/pkg/scale"
	"go.uber.org/multierr"
)

const (
	defaultDeviceName = "HXSCALE"

	// Resolution of the weight field of a weight measurement (in kg)
	weightResolution = 0.005
)

var (
	weightScaleService       = gatt.UUID16(0x181D)
	weightMeasurementCharact = gatt.UUID16(0x2A9D)
)

// WeightSource denotes anything providing the most recent weight (in grams)
// without accessing a device
type WeightSource interface {
	LastWeight() float64
}

// Peripheral denotes a Bluetooth LE peripheral publishing weight measurements
type Peripheral struct {
	source     WeightSource
	deviceName string

	btDevice gatt.Device

	logger scale.Logger
}

// New instantiates a new Peripheral, executing functional options, if any
func New(source WeightSource, options ...func(*Peripheral)) (*Peripheral, error) {

	// Initialize a new instance of a Peripheral
	p := &Peripheral{
		source:     source,
		deviceName: defaultDeviceName,
		logger:     &scale.NullLogger{},
	}

	// Execute functional options (if any)
	for _, option := range options {
		option(p)
	}

	// Initialize a new GATT device (if not provided as option)
	if p.btDevice == nil {
		btDevice, err := gatt.NewDevice(defaultBTServerOptions...)
		if err != nil {
			return nil, err
		}
		p.btDevice = btDevice
	}

	return p, p.btDevice.Init(p.onStateChanged)
}

// WithDeviceName sets the advertised Bluetooth device name
func WithDeviceName(deviceName string) func(*Peripheral) {
	return func(p *Peripheral) {
		p.deviceName = deviceName
	}
}

// WithDevice sets the Bluetooth device
func WithDevice(btDevice gatt.Device) func(*Peripheral) {
	return func(p *Peripheral) {
		p.btDevice = btDevice
	}
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Peripheral) {
	return func(p *Peripheral) {
		p.logger = logger
	}
}

// Close stops advertising and removes all services
func (p *Peripheral) Close() error {
	return multierr.Combine(
		p.btDevice.StopAdvertising(),
		p.btDevice.RemoveAllServices(),
	)
}

////////////////////////////////////////////////////////////////////////////////

func (p *Peripheral) onStateChanged(d gatt.Device, s gatt.State) {
	if s != gatt.StatePoweredOn {
		p.logger.Debugf("bluetooth device state changed to %s", s)
		return
	}

	service := gatt.NewService(weightScaleService)
	service.AddCharacteristic(weightMeasurementCharact).HandleReadFunc(
		func(rsp gatt.ResponseWriter, req *gatt.ReadRequest) {
			if _, err := rsp.Write(encodeWeight(p.source.LastWeight())); err != nil {
				p.logger.Warnf("failed to write weight measurement: %s", err)
			}
		})

	if err := d.AddService(service); err != nil {
		p.logger.Errorf("failed to add weight scale service: %s", err)
		return
	}
	if err := d.AdvertiseNameAndServices(p.deviceName, []gatt.UUID{weightScaleService}); err != nil {
		p.logger.Errorf("failed to advertise `%s`: %s", p.deviceName, err)
		return
	}

	p.logger.Infof("advertising weight scale service as `%s`", p.deviceName)
}

// encodeWeight encodes a weight (in grams) as a Weight Measurement value: a flags
// byte (SI units, no optional fields) followed by the weight in units of 5g
// (uint16, little endian), clamped to the representable range
func encodeWeight(grams float64) []byte {
	units := math.Round(grams / 1000. / weightResolution)
	if units < 0 || math.IsNaN(units) {
		units = 0
	}
	if units > math.MaxUint16 {
		units = math.MaxUint16
	}

	buf := make([]byte, 3)
	binary.LittleEndian.PutUint16(buf[1:], uint16(units))

	return buf
}
