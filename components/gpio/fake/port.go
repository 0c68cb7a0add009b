// Package fake implements an in-memory gpio.Port that records every call. It backs the tests
// of the components built on the port and the --fake mode of the command line tool.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/pirocon/initio/components/gpio"
	"github.com/pirocon/initio/utils"
)

// A Call is one recorded operation on the port.
type Call struct {
	Op    string
	Pin   gpio.Pin
	Value int
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%d,%d)", c.Op, int(c.Pin), c.Value)
}

// The operation names recorded in Call.Op.
const (
	OpConfigure = "configure"
	OpPull      = "pull"
	OpWrite     = "write"
	OpCreatePWM = "create_pwm"
	OpWritePWM  = "write_pwm"
	OpStopPWM   = "stop_pwm"
)

// Port is a gpio.Port that keeps pin state in memory. Reads return the level last set with
// SetLevel or WriteDigital unless ReadFunc is set.
type Port struct {
	mu     sync.Mutex
	modes  map[gpio.Pin]gpio.Mode
	pulls  map[gpio.Pin]gpio.Pull
	levels map[gpio.Pin]bool
	maxes  map[gpio.Pin]int
	duties map[gpio.Pin]int
	calls  []Call
	closed bool

	// ReadFunc, when set, supplies the level for every ReadDigital call.
	ReadFunc func(pin gpio.Pin) (bool, error)
}

// NewPort returns an empty fake port.
func NewPort() *Port {
	return &Port{
		modes:  map[gpio.Pin]gpio.Mode{},
		pulls:  map[gpio.Pin]gpio.Pull{},
		levels: map[gpio.Pin]bool{},
		maxes:  map[gpio.Pin]int{},
		duties: map[gpio.Pin]int{},
	}
}

func (p *Port) record(op string, pin gpio.Pin, value int) {
	p.calls = append(p.calls, Call{Op: op, Pin: pin, Value: value})
}

// ConfigurePin records the mode of pin.
func (p *Port) ConfigurePin(ctx context.Context, pin gpio.Pin, mode gpio.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(OpConfigure, pin, int(mode))
	p.modes[pin] = mode
	return nil
}

// SetPull records the pull of pin.
func (p *Port) SetPull(ctx context.Context, pin gpio.Pin, pull gpio.Pull) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(OpPull, pin, int(pull))
	p.pulls[pin] = pull
	return nil
}

// ReadDigital returns the current level of pin.
func (p *Port) ReadDigital(ctx context.Context, pin gpio.Pin) (bool, error) {
	p.mu.Lock()
	readFunc := p.ReadFunc
	level := p.levels[pin]
	p.mu.Unlock()
	if readFunc != nil {
		return readFunc(pin)
	}
	return level, nil
}

// WriteDigital sets the level of pin.
func (p *Port) WriteDigital(ctx context.Context, pin gpio.Pin, high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	value := 0
	if high {
		value = 1
	}
	p.record(OpWrite, pin, value)
	p.levels[pin] = high
	return nil
}

// CreatePWM makes pin an output with the given duty range.
func (p *Port) CreatePWM(ctx context.Context, pin gpio.Pin, initialDuty, maxDuty int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(OpCreatePWM, pin, initialDuty)
	p.modes[pin] = gpio.Output
	p.maxes[pin] = maxDuty
	p.duties[pin] = initialDuty
	return nil
}

// WritePWM sets the duty of a pin created with CreatePWM.
func (p *Port) WritePWM(ctx context.Context, pin gpio.Pin, duty int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(OpWritePWM, pin, duty)
	if _, ok := p.maxes[pin]; !ok {
		return utils.NewHardwareFault(fmt.Sprintf("write pwm on %s", pin), errors.New("pwm not created"))
	}
	p.duties[pin] = duty
	return nil
}

// StopPWM removes the PWM output on pin.
func (p *Port) StopPWM(ctx context.Context, pin gpio.Pin) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(OpStopPWM, pin, 0)
	delete(p.maxes, pin)
	delete(p.duties, pin)
	p.levels[pin] = false
	return nil
}

// Close marks the port closed.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.maxes = map[gpio.Pin]int{}
	p.duties = map[gpio.Pin]int{}
	return nil
}

// SetLevel sets the level subsequent reads of pin observe.
func (p *Port) SetLevel(pin gpio.Pin, high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels[pin] = high
}

// Mode returns the configured mode of pin.
func (p *Port) Mode(pin gpio.Pin) (gpio.Mode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mode, ok := p.modes[pin]
	return mode, ok
}

// PullOf returns the configured pull of pin.
func (p *Port) PullOf(pin gpio.Pin) (gpio.Pull, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pull, ok := p.pulls[pin]
	return pull, ok
}

// Level returns the last level written to or set on pin.
func (p *Port) Level(pin gpio.Pin) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.levels[pin]
}

// Duty returns the PWM duty of pin and whether a PWM output exists on it.
func (p *Port) Duty(pin gpio.Pin) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	duty, ok := p.duties[pin]
	return duty, ok
}

// MaxDuty returns the PWM range of pin.
func (p *Port) MaxDuty(pin gpio.Pin) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	maxDuty, ok := p.maxes[pin]
	return maxDuty, ok
}

// Calls returns a copy of the recorded calls in order.
func (p *Port) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// ResetCalls forgets the recorded calls.
func (p *Port) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
