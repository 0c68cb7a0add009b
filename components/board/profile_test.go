package board

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/pirocon/initio/components/gpio"
	"github.com/pirocon/initio/logging"
	"github.com/pirocon/initio/testutils"
	"github.com/pirocon/initio/utils"
)

func TestIdentify(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("absent descriptor is the legacy board", func(t *testing.T) {
		r := NewResolver(filepath.Join(t.TempDir(), "missing"), logger)
		profile := r.Identify()
		test.That(t, profile.Variant, test.ShouldEqual, PiRoCon)
		test.That(t, profile.Descriptor, test.ShouldBeEmpty)
		pins, err := profile.Pins()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pins.MotorPins(), test.ShouldResemble, []gpio.Pin{19, 21, 24, 26})
	})

	t.Run("known signatures", func(t *testing.T) {
		for _, tc := range []struct {
			content  string
			expected Variant
		}{
			{"PiRoCon v2\x00", PiRoCon},
			{"4tronix RoboHAT\x00", RoboHAT},
			{"  robohat\n", RoboHAT},
		} {
			profile := NewResolver(testutils.WriteTempFile(t, "product", tc.content), logger).Identify()
			test.That(t, profile.Variant, test.ShouldEqual, tc.expected)
		}
	})

	t.Run("unrecognized descriptor is ambiguous", func(t *testing.T) {
		profile := NewResolver(testutils.WriteTempFile(t, "product", "Sense HAT\x00"), logger).Identify()
		test.That(t, profile.Variant, test.ShouldEqual, Unidentified)
		test.That(t, profile.Descriptor, test.ShouldEqual, "Sense HAT")
		_, err := profile.Pins()
		test.That(t, errors.Is(err, utils.ErrConfigurationAmbiguous), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "Sense HAT")
	})

	t.Run("resolution happens once", func(t *testing.T) {
		path := testutils.WriteTempFile(t, "product", "RoboHAT")
		r := NewResolver(path, logger)
		first := r.Identify()
		test.That(t, os.Remove(path), test.ShouldBeNil)
		second := r.Identify()
		test.That(t, second, test.ShouldResemble, first)
		test.That(t, second.Variant, test.ShouldEqual, RoboHAT)
	})
}

func TestIdentifyBoardIsStable(t *testing.T) {
	test.That(t, IdentifyBoard(), test.ShouldResemble, IdentifyBoard())
}

func TestUsedPins(t *testing.T) {
	pins := pinMaps[PiRoCon].UsedPins()
	test.That(t, pins, test.ShouldResemble, []gpio.Pin{15, 16, 7, 11, 12, 13, 8, 19, 21, 24, 26, 18, 22})

	shared := pinMaps[PiRoCon]
	shared.RightLine = shared.LeftLine
	test.That(t, shared.UsedPins(), test.ShouldHaveLength, 12)
}

func TestWithOverrides(t *testing.T) {
	base := pinMaps[PiRoCon]

	same, err := base.WithOverrides(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldResemble, base)

	// values decoded from json arrive as float64
	moved, err := base.WithOverrides(map[string]interface{}{"ultrasonic": float64(23), "left_line": 29})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moved.Ultrasonic, test.ShouldEqual, gpio.Pin(23))
	test.That(t, moved.LeftLine, test.ShouldEqual, gpio.Pin(29))
	test.That(t, moved.LeftMotorForward, test.ShouldEqual, base.LeftMotorForward)
	test.That(t, base.Ultrasonic, test.ShouldEqual, gpio.Pin(8))

	_, err = base.WithOverrides(map[string]interface{}{"sonar": 23})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "sonar")

	_, err = base.WithOverrides(map[string]interface{}{"ultrasonic": 3})
	test.That(t, err, test.ShouldBeNil)

	_, err = base.WithOverrides(map[string]interface{}{"ultrasonic": 1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not a GPIO pin")
}

func TestProfileString(t *testing.T) {
	test.That(t, Profile{Variant: PiRoCon}.String(), test.ShouldEqual, "pirocon")
	test.That(t, Profile{Variant: RoboHAT, Descriptor: "RoboHAT"}.String(), test.ShouldEqual, "robohat (RoboHAT)")
}
