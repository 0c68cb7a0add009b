package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
	"periph.io/x/conn/v3/physic"

	"github.com/pirocon/initio/components/board"
	"github.com/pirocon/initio/components/servo/servoblaster"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "initio.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)
	test.That(t, cfg.DescriptorPath, test.ShouldEqual, "/proc/device-tree/hat/product")
	test.That(t, cfg.ServoDevicePath, test.ShouldEqual, "/dev/servoblaster")
	test.That(t, cfg.ServodUseSudo, test.ShouldBeTrue)
	test.That(t, cfg.IdleTimeout(), test.ShouldEqual, 20*time.Second)
	test.That(t, cfg.PWMFrequency(), test.ShouldEqual, 100*physic.Hertz)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		mutate   func(c *Config)
		contains string
	}{
		{func(c *Config) { c.DescriptorPath = "" }, "descriptor_path"},
		{func(c *Config) { c.ServoDevicePath = "" }, "servo_device_path"},
		{func(c *Config) { c.ServodIdleTimeoutMs = -1 }, "servod_idle_timeout_ms"},
		{func(c *Config) { c.PWMFrequencyHz = 0 }, "pwm_frequency_hz"},
		{func(c *Config) { c.LogLevel = "loud" }, "loud"},
	} {
		cfg := Default()
		tc.mutate(cfg)
		err := cfg.Validate("config")
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, tc.contains)
	}
}

func TestRead(t *testing.T) {
	t.Setenv("INITIO_LOG_DIR", "/var/log/initio")
	path := writeConfig(t, `{
		"descriptor_path": "/tmp/product",
		"servod_use_sudo": false,
		"servod_idle_timeout_ms": 5000,
		"log_level": "debug",
		"log_file": "${INITIO_LOG_DIR}/initio.log",
		"pin_overrides": {"ultrasonic": 23}
	}`)

	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.DescriptorPath, test.ShouldEqual, "/tmp/product")
	test.That(t, cfg.ServoDevicePath, test.ShouldEqual, servoblaster.DefaultDevicePath)
	test.That(t, cfg.ServodUseSudo, test.ShouldBeFalse)
	test.That(t, cfg.IdleTimeout(), test.ShouldEqual, 5*time.Second)
	test.That(t, cfg.PWMFrequencyHz, test.ShouldEqual, 100)
	test.That(t, cfg.LogLevel, test.ShouldEqual, "debug")
	test.That(t, cfg.LogFile, test.ShouldEqual, "/var/log/initio/initio.log")
	test.That(t, cfg.PinOverrides, test.ShouldResemble, map[string]interface{}{"ultrasonic": float64(23)})
}

func TestReadErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Read(writeConfig(t, `{"descriptor_path": `))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode")

	_, err = Read(writeConfig(t, `{"sonar_pin": 23}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "sonar_pin")

	_, err = FromReader("inline", strings.NewReader(`{"pwm_frequency_hz": -5}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pwm_frequency_hz")
}

func TestServoConfig(t *testing.T) {
	cfg := Default()
	cfg.ServodExecutable = "/opt/servod"
	pins, err := board.Profile{Variant: board.PiRoCon}.Pins()
	test.That(t, err, test.ShouldBeNil)

	test.That(t, cfg.ServoConfig(pins), test.ShouldResemble, servoblaster.Config{
		Executable:  "/opt/servod",
		UseSudo:     true,
		IdleTimeout: 20 * time.Second,
		DevicePath:  "/dev/servoblaster",
		PanPin:      18,
		TiltPin:     22,
	})
}
