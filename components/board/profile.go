// Package board identifies which controller board is attached to the Raspberry Pi and
// provides the pin table for it. A profile is resolved once per process and never changes.
package board

import (
	"bytes"
	"os"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/pirocon/initio/components/gpio"
	"github.com/pirocon/initio/logging"
	"github.com/pirocon/initio/utils"
)

// DefaultDescriptorPath is where the Pi firmware exposes the product string of an attached HAT.
const DefaultDescriptorPath = "/proc/device-tree/hat/product"

// Variant is a known controller board.
type Variant string

// The board variants.
const (
	// Unidentified means a HAT descriptor exists but names no board we know of.
	Unidentified = Variant("unidentified")
	// PiRoCon is the legacy controller. It carries no HAT descriptor.
	PiRoCon = Variant("pirocon")
	// RoboHAT is the 4tronix RoboHAT.
	RoboHAT = Variant("robohat")
)

// PinMap binds every role used by the core to a physical header pin. Servo channels are
// channel numbers of the pulse service, not pins.
type PinMap struct {
	LeftMotorForward  gpio.Pin `json:"left_motor_forward"`
	LeftMotorReverse  gpio.Pin `json:"left_motor_reverse"`
	RightMotorForward gpio.Pin `json:"right_motor_forward"`
	RightMotorReverse gpio.Pin `json:"right_motor_reverse"`
	LeftWheel         gpio.Pin `json:"left_wheel"`
	RightWheel        gpio.Pin `json:"right_wheel"`
	LeftObstacle      gpio.Pin `json:"left_obstacle"`
	RightObstacle     gpio.Pin `json:"right_obstacle"`
	LeftLine          gpio.Pin `json:"left_line"`
	RightLine         gpio.Pin `json:"right_line"`
	Ultrasonic        gpio.Pin `json:"ultrasonic"`
	ServoPanChannel   int      `json:"servo_pan_channel"`
	ServoTiltChannel  int      `json:"servo_tilt_channel"`
	ServoPanPin       gpio.Pin `json:"servo_pan_pin"`
	ServoTiltPin      gpio.Pin `json:"servo_tilt_pin"`
}

var pinMaps = map[Variant]PinMap{
	PiRoCon: {
		LeftMotorForward:  19,
		LeftMotorReverse:  21,
		RightMotorForward: 24,
		RightMotorReverse: 26,
		LeftWheel:         15,
		RightWheel:        16,
		LeftObstacle:      7,
		RightObstacle:     11,
		LeftLine:          12,
		RightLine:         13,
		Ultrasonic:        8, // 23 on some PiRoCon revisions
		ServoPanChannel:   0,
		ServoTiltChannel:  1,
		ServoPanPin:       18,
		ServoTiltPin:      22,
	},
	RoboHAT: {
		LeftMotorForward:  36,
		LeftMotorReverse:  35,
		RightMotorForward: 33,
		RightMotorReverse: 32,
		LeftWheel:         15,
		RightWheel:        16,
		LeftObstacle:      7,
		RightObstacle:     11,
		LeftLine:          29,
		RightLine:         13,
		Ultrasonic:        38,
		ServoPanChannel:   0,
		ServoTiltChannel:  1,
		ServoPanPin:       18,
		ServoTiltPin:      22,
	},
}

// signatures are matched case-insensitively against the descriptor content.
var signatures = []struct {
	match   string
	variant Variant
}{
	{"pirocon", PiRoCon},
	{"robohat", RoboHAT},
}

// Profile is the outcome of board identification.
type Profile struct {
	Variant Variant
	// Descriptor is the trimmed descriptor content, empty when no descriptor exists.
	Descriptor string
}

// Pins returns the pin table of the profile. An unidentified board has no table.
func (p Profile) Pins() (PinMap, error) {
	pins, ok := pinMaps[p.Variant]
	if !ok {
		return PinMap{}, utils.NewConfigurationAmbiguousError(p.Descriptor)
	}
	return pins, nil
}

func (p Profile) String() string {
	if p.Descriptor == "" {
		return string(p.Variant)
	}
	return string(p.Variant) + " (" + p.Descriptor + ")"
}

// MotorPins returns the four coil pins in the order L1, L2, R1, R2.
func (m PinMap) MotorPins() []gpio.Pin {
	return []gpio.Pin{m.LeftMotorForward, m.LeftMotorReverse, m.RightMotorForward, m.RightMotorReverse}
}

// SensorPins returns every pin read as a digital input, the ultrasonic pin excluded.
func (m PinMap) SensorPins() []gpio.Pin {
	return []gpio.Pin{m.LeftWheel, m.RightWheel, m.LeftObstacle, m.RightObstacle, m.LeftLine, m.RightLine}
}

// UsedPins returns every physical pin the core touches without duplicates, in the order
// they are acquired: sensor inputs, the ultrasonic pin, motor coils, then the servo pins.
func (m PinMap) UsedPins() []gpio.Pin {
	pins := append(m.SensorPins(), m.Ultrasonic)
	pins = append(pins, m.MotorPins()...)
	pins = append(pins, m.ServoPanPin, m.ServoTiltPin)
	return lo.Uniq(pins)
}

// WithOverrides returns a copy of the table with the roles named in overrides replaced.
// Keys are the json role names; unknown roles are an error.
func (m PinMap) WithOverrides(overrides map[string]interface{}) (PinMap, error) {
	out := m
	if len(overrides) == 0 {
		return out, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      &out,
		ErrorUnused: true,
	})
	if err != nil {
		return m, err
	}
	if err := decoder.Decode(overrides); err != nil {
		return m, errors.Wrap(err, "invalid pin overrides")
	}
	for _, pin := range append(out.MotorPins(), out.SensorPins()...) {
		if _, ok := gpio.BCM(pin); !ok {
			return m, errors.Errorf("pin %s is not a GPIO pin", pin)
		}
	}
	if _, ok := gpio.BCM(out.Ultrasonic); !ok {
		return m, errors.Errorf("pin %s is not a GPIO pin", out.Ultrasonic)
	}
	return out, nil
}

// A Resolver identifies the board from a descriptor file. The first call to Identify reads
// the file; every later call returns the same Profile.
type Resolver struct {
	path   string
	logger logging.Logger

	once    sync.Once
	profile Profile
}

// NewResolver returns a Resolver reading the descriptor at path. An empty path selects
// DefaultDescriptorPath.
func NewResolver(path string, logger logging.Logger) *Resolver {
	if path == "" {
		path = DefaultDescriptorPath
	}
	return &Resolver{path: path, logger: logger}
}

// Identify returns the profile of the attached board.
func (r *Resolver) Identify() Profile {
	r.once.Do(func() {
		r.profile = r.identify()
		r.logger.Infow("board identified", "variant", r.profile.Variant, "descriptor", r.profile.Descriptor)
	})
	return r.profile
}

func (r *Resolver) identify() Profile {
	//nolint:gosec
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{Variant: PiRoCon}
		}
		r.logger.Warnw("cannot read board descriptor", "path", r.path, "error", err)
		return Profile{Variant: Unidentified, Descriptor: r.path}
	}
	return ParseDescriptor(raw)
}

// ParseDescriptor maps descriptor content to a profile. Device tree strings are NUL
// terminated, so NULs are trimmed along with surrounding whitespace.
func ParseDescriptor(raw []byte) Profile {
	descriptor := string(bytes.TrimSpace(bytes.Trim(raw, "\x00")))
	lower := strings.ToLower(descriptor)
	for _, sig := range signatures {
		if strings.Contains(lower, sig.match) {
			return Profile{Variant: sig.variant, Descriptor: descriptor}
		}
	}
	return Profile{Variant: Unidentified, Descriptor: descriptor}
}

var (
	defaultResolverOnce sync.Once
	defaultResolver     *Resolver
)

// IdentifyBoard identifies the board using the default descriptor path. The result is the
// same for the life of the process.
func IdentifyBoard() Profile {
	defaultResolverOnce.Do(func() {
		defaultResolver = NewResolver(DefaultDescriptorPath, logging.Global().Sublogger("board"))
	})
	return defaultResolver.Identify()
}
