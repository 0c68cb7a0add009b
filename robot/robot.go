// Package robot ties the board profile, motors, sensors, ranger and servos of an Initio
// together and sequences their setup and teardown.
package robot

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/pirocon/initio/components/board"
	"github.com/pirocon/initio/components/gpio"
	"github.com/pirocon/initio/components/motor"
	"github.com/pirocon/initio/components/sensor/digital"
	"github.com/pirocon/initio/components/sensor/ultrasonic"
	"github.com/pirocon/initio/components/servo/servoblaster"
	"github.com/pirocon/initio/config"
	"github.com/pirocon/initio/logging"
	"github.com/pirocon/initio/rexec"
)

// Version is the version of the robot core.
const Version = 0.1

// ErrNotInitialized is returned by operations called before Init or after Cleanup.
var ErrNotInitialized = errors.New("robot is not initialized")

// An Option configures a Robot.
type Option func(*Robot)

// WithPort makes the Robot use port instead of opening the host GPIO driver. The Robot does
// not close a port it was given.
func WithPort(port gpio.Port) Option {
	return func(r *Robot) {
		r.port = port
	}
}

// WithResolver replaces the board resolver built from the config.
func WithResolver(resolver *board.Resolver) Option {
	return func(r *Robot) {
		r.resolver = resolver
	}
}

// WithClock replaces the wall clock used for ranging.
func WithClock(clk clock.Clock) Option {
	return func(r *Robot) {
		r.clock = clk
	}
}

// WithLauncher replaces the launcher used for the servo daemon.
func WithLauncher(launcher rexec.Launcher) Option {
	return func(r *Robot) {
		r.launcher = launcher
	}
}

// A Robot is the public surface of the core. It is meant to be driven from a single
// goroutine; callers that share it must serialize their calls.
type Robot struct {
	cfg      *config.Config
	logger   logging.Logger
	port     gpio.Port
	ownsPort bool
	resolver *board.Resolver
	clock    clock.Clock
	launcher rexec.Launcher

	profile     board.Profile
	pins        board.PinMap
	pinsKnown   bool
	initialized bool

	motors  *motor.Driver
	sensors *digital.Reader
	ranger  *ultrasonic.Ranger
	servos  *servoblaster.Manager
}

// New returns a Robot that has not touched any hardware yet. A nil cfg selects
// config.Default.
func New(cfg *config.Config, logger logging.Logger, opts ...Option) *Robot {
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Robot{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	if r.resolver == nil {
		r.resolver = board.NewResolver(cfg.DescriptorPath, logger.Sublogger("board"))
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.launcher == nil {
		r.launcher = rexec.NewLauncher(logger.Sublogger("process"))
	}
	return r
}

// Version returns the version of the robot core.
func (r *Robot) Version() float64 {
	return Version
}

// IdentifyBoard returns the profile of the attached board. It is resolved on first use and
// never changes afterwards.
func (r *Robot) IdentifyBoard() board.Profile {
	return r.resolver.Identify()
}

// Pins returns the pin table in use. It is only meaningful after Init.
func (r *Robot) Pins() board.PinMap {
	return r.pins
}

// Init identifies the board, configures the sensor pins as inputs, creates the motor PWM
// outputs, and starts the servo daemon. An unidentified board is fatal. When Init fails,
// Cleanup still undoes whatever was set up. Calling Init again before Cleanup does nothing.
func (r *Robot) Init(ctx context.Context) error {
	if r.initialized {
		r.logger.Debug("already initialized")
		return nil
	}
	r.profile = r.IdentifyBoard()
	pins, err := r.profile.Pins()
	if err != nil {
		return err
	}
	pins, err = pins.WithOverrides(r.cfg.PinOverrides)
	if err != nil {
		return err
	}
	r.pins = pins
	r.pinsKnown = true
	r.logger.Infow("initializing", "board", r.profile.String(), "version", Version)

	if r.port == nil {
		port, err := gpio.NewPort(r.cfg.PWMFrequency(), r.logger.Sublogger("gpio"))
		if err != nil {
			return err
		}
		r.port = port
		r.ownsPort = true
	}

	r.sensors = digital.NewReader(r.port, pins, r.logger.Sublogger("sensors"))
	r.ranger = ultrasonic.NewRanger(r.port, pins.Ultrasonic, r.clock, r.logger.Sublogger("ultrasonic"))
	r.motors = motor.NewDriver(r.port, pins, r.logger.Sublogger("motor"))
	r.servos = servoblaster.NewManager(r.cfg.ServoConfig(pins), r.launcher, r.logger.Sublogger("servo"))

	if err := r.sensors.Configure(ctx); err != nil {
		return err
	}
	if err := r.port.ConfigurePin(ctx, pins.Ultrasonic, gpio.Input); err != nil {
		return err
	}
	if err := r.motors.Start(ctx); err != nil {
		return err
	}
	if err := r.servos.Start(ctx); err != nil {
		return err
	}
	r.initialized = true
	return nil
}

// Cleanup stops the motors, tears down their PWM outputs, stops the servo daemon, and
// returns every pin the core uses to an input without pull, in the reverse of the order
// Init acquired them. It carries on past failures and returns all of them. It is safe to
// call after a failed Init or without Init.
func (r *Robot) Cleanup(ctx context.Context) error {
	var err error
	if r.motors != nil {
		err = multierr.Append(err, r.motors.Close(ctx))
	}
	if r.servos != nil {
		err = multierr.Append(err, r.servos.Stop(ctx))
	}
	if r.pinsKnown && r.port != nil {
		for _, pin := range lo.Reverse(r.pins.UsedPins()) {
			err = multierr.Append(err, multierr.Combine(
				r.port.SetPull(ctx, pin, gpio.PullNone),
				r.port.ConfigurePin(ctx, pin, gpio.Input),
			))
		}
	}
	if r.ownsPort && r.port != nil {
		err = multierr.Append(err, r.port.Close())
		r.port = nil
		r.ownsPort = false
	}
	for _, e := range multierr.Errors(err) {
		r.logger.Warnw("cleanup", "error", e)
	}

	r.motors = nil
	r.sensors = nil
	r.ranger = nil
	r.servos = nil
	r.initialized = false
	return err
}

func (r *Robot) ready() error {
	if !r.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Stop stops both motors.
func (r *Robot) Stop(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.motors.Stop(ctx)
}

// DriveForward drives forwards at speed in [0, 100].
func (r *Robot) DriveForward(ctx context.Context, speed int) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.motors.DriveForward(ctx, speed)
}

// DriveReverse drives backwards at speed in [0, 100].
func (r *Robot) DriveReverse(ctx context.Context, speed int) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.motors.DriveReverse(ctx, speed)
}

// SpinLeft turns left on the spot at speed in [0, 100].
func (r *Robot) SpinLeft(ctx context.Context, speed int) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.motors.SpinLeft(ctx, speed)
}

// SpinRight turns right on the spot at speed in [0, 100].
func (r *Robot) SpinRight(ctx context.Context, speed int) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.motors.SpinRight(ctx, speed)
}

// TurnForward moves forwards with separate wheel speeds.
func (r *Robot) TurnForward(ctx context.Context, leftSpeed, rightSpeed int) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.motors.TurnForward(ctx, leftSpeed, rightSpeed)
}

// TurnReverse moves backwards with separate wheel speeds.
func (r *Robot) TurnReverse(ctx context.Context, leftSpeed, rightSpeed int) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.motors.TurnReverse(ctx, leftSpeed, rightSpeed)
}

// MotorDuties returns the current duty of each motor coil.
func (r *Robot) MotorDuties() (motor.Duties, error) {
	if err := r.ready(); err != nil {
		return motor.Duties{}, err
	}
	return r.motors.Duties(), nil
}

func (r *Robot) probe(ctx context.Context, read func(*digital.Reader, context.Context) (bool, error)) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	return read(r.sensors, ctx)
}

// WheelSensorLeft returns the raw level of the left wheel sensor.
func (r *Robot) WheelSensorLeft(ctx context.Context) (bool, error) {
	return r.probe(ctx, (*digital.Reader).WheelLeft)
}

// WheelSensorRight returns the raw level of the right wheel sensor.
func (r *Robot) WheelSensorRight(ctx context.Context) (bool, error) {
	return r.probe(ctx, (*digital.Reader).WheelRight)
}

// IrLeft reports an obstacle on the left.
func (r *Robot) IrLeft(ctx context.Context) (bool, error) {
	return r.probe(ctx, (*digital.Reader).IrLeft)
}

// IrRight reports an obstacle on the right.
func (r *Robot) IrRight(ctx context.Context) (bool, error) {
	return r.probe(ctx, (*digital.Reader).IrRight)
}

// IrAny reports an obstacle on either side.
func (r *Robot) IrAny(ctx context.Context) (bool, error) {
	return r.probe(ctx, (*digital.Reader).IrAny)
}

// LineLeft reports a line under the left line sensor.
func (r *Robot) LineLeft(ctx context.Context) (bool, error) {
	return r.probe(ctx, (*digital.Reader).LineLeft)
}

// LineRight reports a line under the right line sensor.
func (r *Robot) LineRight(ctx context.Context) (bool, error) {
	return r.probe(ctx, (*digital.Reader).LineRight)
}

// SensorReadings returns one sample of every digital sensor.
func (r *Robot) SensorReadings(ctx context.Context) (map[string]interface{}, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.sensors.Readings(ctx)
}

// UsGetDistance returns the distance in cm to the nearest object, 0 when nothing is in range.
func (r *Robot) UsGetDistance(ctx context.Context) (uint, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	return r.ranger.Distance(ctx)
}

// Measure runs one ranging cycle and returns the full measurement.
func (r *Robot) Measure(ctx context.Context) (ultrasonic.Measurement, error) {
	if err := r.ready(); err != nil {
		return ultrasonic.Measurement{}, err
	}
	return r.ranger.Measure(ctx)
}

// StartServos (re)starts the servo daemon.
func (r *Robot) StartServos(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.servos.Start(ctx)
}

// StopServos stops the servo daemon.
func (r *Robot) StopServos(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.servos.Stop(ctx)
}

// SetServo moves a servo channel to degrees in [-90, 90], starting the daemon if needed.
func (r *Robot) SetServo(ctx context.Context, channel servoblaster.Channel, degrees int) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.servos.SetServo(ctx, channel, degrees)
}

// ServoState returns the lifecycle state of the servo daemon.
func (r *Robot) ServoState() servoblaster.State {
	if r.servos == nil {
		return servoblaster.Stopped
	}
	return r.servos.State()
}
