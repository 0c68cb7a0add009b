// Package gpio wraps digital pin read/write, pin mode configuration, and software PWM
// behind a Port keyed by physical header pin numbers.
package gpio

import (
	"context"
	"fmt"
)

// Pin is a physical pin number on the 40 pin header (not a BCM/GPIO line number).
type Pin int

func (p Pin) String() string {
	return fmt.Sprintf("P1-%d", int(p))
}

// Mode is the direction a pin is configured for.
type Mode int

// The supported pin modes.
const (
	Input Mode = iota
	Output
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Pull is the pull resistor setting of an input pin.
type Pull int

// The supported pull settings.
const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return fmt.Sprintf("pull(%d)", int(p))
	}
}

// A Port is the host GPIO driver as seen by the rest of the core. Every failure reported by
// the underlying driver is returned as a hardware fault. The Port performs no validation of
// duty values, no debouncing, and no caching of reads.
type Port interface {
	// ConfigurePin sets the direction of pin.
	ConfigurePin(ctx context.Context, pin Pin, mode Mode) error

	// SetPull sets the pull resistor of pin.
	SetPull(ctx context.Context, pin Pin, pull Pull) error

	// ReadDigital samples the level of pin.
	ReadDigital(ctx context.Context, pin Pin) (bool, error)

	// WriteDigital drives pin high or low.
	WriteDigital(ctx context.Context, pin Pin, high bool) error

	// CreatePWM starts a PWM output on pin with a duty range of [0, maxDuty].
	CreatePWM(ctx context.Context, pin Pin, initialDuty, maxDuty int) error

	// WritePWM changes the duty of a PWM output created with CreatePWM.
	WritePWM(ctx context.Context, pin Pin, duty int) error

	// StopPWM stops the PWM output on pin and leaves it low.
	StopPWM(ctx context.Context, pin Pin) error

	// Close stops all PWM outputs and releases the driver.
	Close() error
}
