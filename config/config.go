// Package config defines the file based configuration of the robot core.
package config

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"periph.io/x/conn/v3/physic"

	"github.com/pirocon/initio/components/board"
	"github.com/pirocon/initio/components/servo/servoblaster"
	"github.com/pirocon/initio/logging"
)

// A Config describes how the core talks to the host. Keys left out of a config file keep
// their Default values.
type Config struct {
	ConfigFilePath string `json:"-"`

	DescriptorPath      string `json:"descriptor_path"`
	ServoDevicePath     string `json:"servo_device_path"`
	ServodExecutable    string `json:"servod_executable,omitempty"`
	ServodUseSudo       bool   `json:"servod_use_sudo"`
	ServodIdleTimeoutMs int    `json:"servod_idle_timeout_ms"`
	PWMFrequencyHz      int    `json:"pwm_frequency_hz"`
	LogLevel            string `json:"log_level,omitempty"`
	LogFile             string `json:"log_file,omitempty"`

	// PinOverrides replaces entries of the board pin table, keyed by role name
	// (e.g. "ultrasonic": 23).
	PinOverrides map[string]interface{} `json:"pin_overrides,omitempty"`
}

// Default returns the configuration of a stock Initio.
func Default() *Config {
	return &Config{
		DescriptorPath:      board.DefaultDescriptorPath,
		ServoDevicePath:     servoblaster.DefaultDevicePath,
		ServodUseSudo:       true,
		ServodIdleTimeoutMs: int(servoblaster.DefaultIdleTimeout / time.Millisecond),
		PWMFrequencyHz:      100,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.DescriptorPath == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "descriptor_path")
	}
	if c.ServoDevicePath == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "servo_device_path")
	}
	if c.ServodIdleTimeoutMs < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("servod_idle_timeout_ms must not be negative, got %d", c.ServodIdleTimeoutMs))
	}
	if c.PWMFrequencyHz <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("pwm_frequency_hz must be positive, got %d", c.PWMFrequencyHz))
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// IdleTimeout returns the servo daemon idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.ServodIdleTimeoutMs) * time.Millisecond
}

// PWMFrequency returns the software PWM frequency.
func (c *Config) PWMFrequency() physic.Frequency {
	return physic.Frequency(c.PWMFrequencyHz) * physic.Hertz
}

// ServoConfig returns the servo daemon settings for the given pin table.
func (c *Config) ServoConfig(pins board.PinMap) servoblaster.Config {
	return servoblaster.Config{
		Executable:  c.ServodExecutable,
		UseSudo:     c.ServodUseSudo,
		IdleTimeout: c.IdleTimeout(),
		DevicePath:  c.ServoDevicePath,
		PanPin:      pins.ServoPanPin,
		TiltPin:     pins.ServoTiltPin,
	}
}
