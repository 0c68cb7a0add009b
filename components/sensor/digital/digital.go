// Package digital reads the obstacle, line, and wheel sensors of the robot. Every probe is a
// fresh sample of its pin.
package digital

import (
	"context"

	"github.com/pirocon/initio/components/board"
	"github.com/pirocon/initio/components/gpio"
	"github.com/pirocon/initio/logging"
)

// A Reader samples the digital sensor inputs. It keeps no state beyond the pin table.
type Reader struct {
	port   gpio.Port
	pins   board.PinMap
	logger logging.Logger
}

// NewReader returns a Reader for the sensor pins of pins.
func NewReader(port gpio.Port, pins board.PinMap, logger logging.Logger) *Reader {
	return &Reader{port: port, pins: pins, logger: logger}
}

// Configure makes every sensor pin an input.
func (r *Reader) Configure(ctx context.Context) error {
	for _, pin := range r.pins.SensorPins() {
		if err := r.port.ConfigurePin(ctx, pin, gpio.Input); err != nil {
			return err
		}
	}
	r.logger.Debugw("sensor pins configured", "pins", r.pins.SensorPins())
	return nil
}

// activeLow reports true when pin reads low. Obstacle and line sensors pull their output low
// when triggered.
func (r *Reader) activeLow(ctx context.Context, pin gpio.Pin) (bool, error) {
	high, err := r.port.ReadDigital(ctx, pin)
	if err != nil {
		return false, err
	}
	return !high, nil
}

// IrLeft reports whether the left obstacle sensor sees something.
func (r *Reader) IrLeft(ctx context.Context) (bool, error) {
	return r.activeLow(ctx, r.pins.LeftObstacle)
}

// IrRight reports whether the right obstacle sensor sees something.
func (r *Reader) IrRight(ctx context.Context) (bool, error) {
	return r.activeLow(ctx, r.pins.RightObstacle)
}

// IrAny reports whether either obstacle sensor sees something.
func (r *Reader) IrAny(ctx context.Context) (bool, error) {
	left, err := r.IrLeft(ctx)
	if err != nil || left {
		return left, err
	}
	return r.IrRight(ctx)
}

// LineLeft reports whether the left line sensor is over a line.
func (r *Reader) LineLeft(ctx context.Context) (bool, error) {
	return r.activeLow(ctx, r.pins.LeftLine)
}

// LineRight reports whether the right line sensor is over a line.
func (r *Reader) LineRight(ctx context.Context) (bool, error) {
	return r.activeLow(ctx, r.pins.RightLine)
}

// WheelLeft returns the raw level of the left wheel sensor. The level only changes while the
// wheel turns, so callers detect motion by watching for changes.
func (r *Reader) WheelLeft(ctx context.Context) (bool, error) {
	return r.port.ReadDigital(ctx, r.pins.LeftWheel)
}

// WheelRight returns the raw level of the right wheel sensor.
func (r *Reader) WheelRight(ctx context.Context) (bool, error) {
	return r.port.ReadDigital(ctx, r.pins.RightWheel)
}

// Readings returns one sample of every probe, keyed by probe name.
func (r *Reader) Readings(ctx context.Context) (map[string]interface{}, error) {
	probes := []struct {
		name string
		read func(context.Context) (bool, error)
	}{
		{"ir_left", r.IrLeft},
		{"ir_right", r.IrRight},
		{"line_left", r.LineLeft},
		{"line_right", r.LineRight},
		{"wheel_left", r.WheelLeft},
		{"wheel_right", r.WheelRight},
	}
	readings := make(map[string]interface{}, len(probes))
	for _, probe := range probes {
		v, err := probe.read(ctx)
		if err != nil {
			return nil, err
		}
		readings[probe.name] = v
	}
	return readings, nil
}
