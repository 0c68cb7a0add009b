// Package ultrasonic measures distance with an ultrasonic ranger whose trigger and echo share
// a single pin.
package ultrasonic

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/pirocon/initio/components/gpio"
	"github.com/pirocon/initio/logging"
	"github.com/pirocon/initio/utils"
)

const (
	// TriggerPulse is how long the pin is held high to start a measurement.
	TriggerPulse = 10 * time.Microsecond
	// EchoTimeout bounds each of the two edge waits. An echo this long is reported as no object.
	EchoTimeout = 100 * time.Millisecond

	// Sound travels 344 mm per ms and the echo covers the distance twice, so
	// cm = us * 344 / 1000 / 10 / 2.
	speedOfSoundMmPerMs = 344
	usToCmDivisor       = 20000
)

// Measurement is the result of one ranging cycle. Valid is false when no echo was seen within
// EchoTimeout, in which case DistanceCm is 0.
type Measurement struct {
	DistanceCm uint
	Valid      bool
	Echo       time.Duration
}

// A Ranger runs the trigger/echo protocol on a shared pin. It keeps no state between calls.
type Ranger struct {
	port   gpio.Port
	pin    gpio.Pin
	clock  clock.Clock
	logger logging.Logger
}

// NewRanger returns a Ranger on pin. A nil clock selects the wall clock.
func NewRanger(port gpio.Port, pin gpio.Pin, clk clock.Clock, logger logging.Logger) *Ranger {
	if clk == nil {
		clk = clock.New()
	}
	return &Ranger{port: port, pin: pin, clock: clk, logger: logger}
}

func (r *Ranger) namedError(err error) error {
	return errors.Wrapf(err, "ultrasonic on %s", r.pin)
}

// Measure triggers the sensor and times the echo pulse. The two edge waits spin on the
// clock and each gives up after EchoTimeout; a timeout is a valid zero distance, not an error.
// A failed pin operation aborts the measurement with a hardware fault.
func (r *Ranger) Measure(ctx context.Context) (Measurement, error) {
	if err := r.trigger(ctx); err != nil {
		return Measurement{}, r.namedError(err)
	}

	// start trails the last low sample so the pulse is timed from the moment it began.
	waitStart := r.clock.Now()
	start, err := r.waitForLevel(ctx, true, waitStart, waitStart)
	if errors.Is(err, utils.ErrTimeout) {
		r.logger.Debugw("no echo", "pin", r.pin, "waited", start.Sub(waitStart))
		return Measurement{}, nil
	}
	if err != nil {
		return Measurement{}, r.namedError(err)
	}

	// stop is the last moment the pin was seen high. An echo that outlasts the wait is too
	// long to be a distance, which DistanceFromEcho reports.
	rise := r.clock.Now()
	stop, err := r.waitForLevel(ctx, false, rise, start)
	if err != nil && !errors.Is(err, utils.ErrTimeout) {
		return Measurement{}, r.namedError(err)
	}

	m := Measurement{Echo: stop.Sub(start)}
	m.DistanceCm, m.Valid = DistanceFromEcho(m.Echo)
	r.logger.Debugw("echo", "pin", r.pin, "echo", m.Echo, "distance_cm", m.DistanceCm)
	return m, nil
}

// waitForLevel polls the pin until it reads level and returns the time of the last sample
// that did not, or last if the first sample matched. It gives up with utils.ErrTimeout once
// EchoTimeout has passed since from.
func (r *Ranger) waitForLevel(ctx context.Context, level bool, from, last time.Time) (time.Time, error) {
	for {
		got, err := r.port.ReadDigital(ctx, r.pin)
		if err != nil {
			return last, err
		}
		if got == level {
			return last, nil
		}
		last = r.clock.Now()
		if last.Sub(from) >= EchoTimeout {
			return last, utils.ErrTimeout
		}
	}
}

func (r *Ranger) trigger(ctx context.Context) error {
	if err := r.port.ConfigurePin(ctx, r.pin, gpio.Output); err != nil {
		return err
	}
	if err := r.port.WriteDigital(ctx, r.pin, true); err != nil {
		return err
	}
	for pulseStart := r.clock.Now(); r.clock.Since(pulseStart) < TriggerPulse; {
	}
	if err := r.port.WriteDigital(ctx, r.pin, false); err != nil {
		return err
	}
	return r.port.ConfigurePin(ctx, r.pin, gpio.Input)
}

// DistanceFromEcho converts the length of an echo pulse to centimetres. Pulses of
// EchoTimeout or longer, and negative ones, are not a distance.
func DistanceFromEcho(echo time.Duration) (uint, bool) {
	if echo < 0 || echo >= EchoTimeout {
		return 0, false
	}
	us := uint(echo / time.Microsecond)
	return us * speedOfSoundMmPerMs / usToCmDivisor, true
}

// Distance returns the distance in cm to the nearest object, 0 when there is none.
func (r *Ranger) Distance(ctx context.Context) (uint, error) {
	m, err := r.Measure(ctx)
	if err != nil {
		return 0, err
	}
	return m.DistanceCm, nil
}

// Readings returns one measurement as a readings map.
func (r *Ranger) Readings(ctx context.Context) (map[string]interface{}, error) {
	m, err := r.Measure(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"distance_cm": m.DistanceCm,
		"valid":       m.Valid,
		"echo_us":     m.Echo.Microseconds(),
	}, nil
}
