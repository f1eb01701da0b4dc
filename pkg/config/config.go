package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Pins        PinConfig         `yaml:"pins"`
	Gain        int               `yaml:"gain"`
	Timing      TimingConfig      `yaml:"timing"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Messages    MessageConfig     `yaml:"messages"`
	API         APIConfig         `yaml:"api"`
	Bluetooth   BluetoothConfig   `yaml:"bluetooth"`
}

// PinConfig contains the GPIO pin assignment
type PinConfig struct {
	Clock int `yaml:"clock"`
	Data  int `yaml:"data"`
}

// TimingConfig contains the read protocol timing
type TimingConfig struct {
	PulseHold    time.Duration `yaml:"pulse_hold"`    // Clock high / low hold time per pulse
	ReadyPoll    time.Duration `yaml:"ready_poll"`    // Data line polling interval while waiting for a conversion
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // Maximum wait for a conversion (0 = unbounded)
}

// CalibrationConfig contains calibration parameters
type CalibrationConfig struct {
	ReferenceMass      float64       `yaml:"reference_mass"`      // Mass of the calibration weight (g)
	DetectionThreshold int32         `yaml:"detection_threshold"` // Raw deviation indicating a placed weight
	WeightTimeout      time.Duration `yaml:"weight_timeout"`      // Maximum wait for the weight (0 = unbounded)
	SettleDelay        time.Duration `yaml:"settle_delay"`        // Time granted for the weight to settle
	Offset             int32         `yaml:"offset"`              // Preset offset (raw units)
	ScaleFactor        float64       `yaml:"scale_factor"`        // Preset scale factor (raw units / g, 0 = uncalibrated)
}

// MessageConfig contains status message transport parameters
type MessageConfig struct {
	QueueSize  int    `yaml:"queue_size"`
	SerialPort string `yaml:"serial_port"` // Forward status messages to this port (optional)
	BaudRate   int    `yaml:"baud_rate"`
}

// APIConfig contains REST API parameters
type APIConfig struct {
	Listen string `yaml:"listen"` // Listen address (empty = disabled)
}

// BluetoothConfig contains BLE peripheral parameters
type BluetoothConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

// Default returns a default configuration with sensible values
func Default() *Config {
	return &Config{
		Pins: PinConfig{
			Clock: 5,
			Data:  6,
		},
		Gain: 128,
		Timing: TimingConfig{
			PulseHold:    time.Microsecond,
			ReadyPoll:    time.Millisecond,
			ReadyTimeout: time.Second, // The device converts at 10 or 80 SPS
		},
		Calibration: CalibrationConfig{
			ReferenceMass:      125.83,
			DetectionThreshold: 100000,
			WeightTimeout:      0,
			SettleDelay:        2 * time.Second,
		},
		Messages: MessageConfig{
			QueueSize: 16,
			BaudRate:  115200,
		},
		API: APIConfig{
			Listen: "",
		},
		Bluetooth: BluetoothConfig{
			Enabled: false,
			Name:    "HXSCALE",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, cfg.Validate()
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Pins.Clock == c.Pins.Data {
		return fmt.Errorf("clock and data pin must differ (both %d)", c.Pins.Clock)
	}
	if c.Gain != 64 && c.Gain != 128 {
		return fmt.Errorf("unsupported gain %d (supported: 64, 128)", c.Gain)
	}
	if c.Calibration.ReferenceMass <= 0 {
		return fmt.Errorf("invalid reference mass %v", c.Calibration.ReferenceMass)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Gain == 0 {
		c.Gain = def.Gain
	}

	if c.Timing.PulseHold == 0 {
		c.Timing.PulseHold = def.Timing.PulseHold
	}
	if c.Timing.ReadyPoll == 0 {
		c.Timing.ReadyPoll = def.Timing.ReadyPoll
	}

	if c.Calibration.ReferenceMass == 0 {
		c.Calibration.ReferenceMass = def.Calibration.ReferenceMass
	}
	if c.Calibration.DetectionThreshold == 0 {
		c.Calibration.DetectionThreshold = def.Calibration.DetectionThreshold
	}
	if c.Calibration.SettleDelay == 0 {
		c.Calibration.SettleDelay = def.Calibration.SettleDelay
	}

	if c.Messages.QueueSize == 0 {
		c.Messages.QueueSize = def.Messages.QueueSize
	}
	if c.Messages.BaudRate == 0 {
		c.Messages.BaudRate = def.Messages.BaudRate
	}

	if c.Bluetooth.Name == "" {
		c.Bluetooth.Name = def.Bluetooth.Name
	}
}
