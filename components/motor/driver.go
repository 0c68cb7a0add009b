// Package motor drives the two wheel motors of the robot through four PWM coils, a forward
// and a reverse coil per side.
package motor

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/pirocon/initio/components/board"
	"github.com/pirocon/initio/components/gpio"
	"github.com/pirocon/initio/logging"
)

// MaxDuty is the top of the PWM range used for every coil.
const MaxDuty = 100

// Coil order used by Duties and internally.
const (
	LeftForward = iota
	LeftReverse
	RightForward
	RightReverse
	numCoils
)

// A channel is one motor coil bound to a pin.
type channel struct {
	pin     gpio.Pin
	duty    int
	created bool
}

// Duties holds the duty of each coil, indexed by LeftForward..RightReverse.
type Duties [numCoils]int

// A Driver issues differential drive commands. Speeds are expected in [0, 100]; values out
// of that range are handed to the port unchanged and bounding them is up to the caller.
type Driver struct {
	mu       sync.Mutex
	port     gpio.Port
	channels [numCoils]channel
	logger   logging.Logger
}

// NewDriver returns a Driver for the motor pins of pins. No pin is touched until Start.
func NewDriver(port gpio.Port, pins board.PinMap, logger logging.Logger) *Driver {
	d := &Driver{port: port, logger: logger}
	for i, pin := range pins.MotorPins() {
		d.channels[i].pin = pin
	}
	return d
}

// Start creates the PWM output of every coil with a duty of 0.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.channels {
		if err := d.port.CreatePWM(ctx, d.channels[i].pin, 0, MaxDuty); err != nil {
			return err
		}
		d.channels[i].duty = 0
		d.channels[i].created = true
	}
	d.logger.Debugw("motor pwm created", "pins", d.pins())
	return nil
}

func (d *Driver) pins() []gpio.Pin {
	pins := make([]gpio.Pin, 0, numCoils)
	for _, ch := range d.channels {
		pins = append(pins, ch.pin)
	}
	return pins
}

func (d *Driver) set(ctx context.Context, duties Duties) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, duty := range duties {
		if err := d.port.WritePWM(ctx, d.channels[i].pin, duty); err != nil {
			return err
		}
		d.channels[i].duty = duty
	}
	d.logger.Debugw("motor duties", "duties", duties)
	return nil
}

// Stop sets every coil to 0.
func (d *Driver) Stop(ctx context.Context) error {
	return d.set(ctx, Duties{0, 0, 0, 0})
}

// DriveForward drives both wheels forward at speed.
func (d *Driver) DriveForward(ctx context.Context, speed int) error {
	return d.set(ctx, Duties{speed, 0, speed, 0})
}

// DriveReverse drives both wheels backwards at speed.
func (d *Driver) DriveReverse(ctx context.Context, speed int) error {
	return d.set(ctx, Duties{0, speed, 0, speed})
}

// SpinLeft turns on the spot to the left: left wheel backwards, right wheel forwards.
func (d *Driver) SpinLeft(ctx context.Context, speed int) error {
	return d.set(ctx, Duties{0, speed, speed, 0})
}

// SpinRight turns on the spot to the right.
func (d *Driver) SpinRight(ctx context.Context, speed int) error {
	return d.set(ctx, Duties{speed, 0, 0, speed})
}

// TurnForward moves forwards in an arc, each wheel at its own speed.
func (d *Driver) TurnForward(ctx context.Context, leftSpeed, rightSpeed int) error {
	return d.set(ctx, Duties{leftSpeed, 0, rightSpeed, 0})
}

// TurnReverse moves backwards in an arc.
func (d *Driver) TurnReverse(ctx context.Context, leftSpeed, rightSpeed int) error {
	return d.set(ctx, Duties{0, leftSpeed, 0, rightSpeed})
}

// Duties returns the last duty written to each coil.
func (d *Driver) Duties() Duties {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out Duties
	for i, ch := range d.channels {
		out[i] = ch.duty
	}
	return out
}

// Close stops the motors and tears down the PWM outputs created by Start, including those of
// a Start that failed part way. It keeps going past failures and returns all of them.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for i := range d.channels {
		if !d.channels[i].created {
			continue
		}
		err = multierr.Combine(
			err,
			d.port.WritePWM(ctx, d.channels[i].pin, 0),
			d.port.StopPWM(ctx, d.channels[i].pin),
		)
		d.channels[i].duty = 0
		d.channels[i].created = false
	}
	return err
}
