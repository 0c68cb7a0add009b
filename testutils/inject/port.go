package inject

import (
	"context"

	"github.com/pirocon/initio/components/gpio"
)

// Port is a gpio.Port whose methods can be overridden one at a time. Methods without an
// override fall through to the embedded Port.
type Port struct {
	gpio.Port
	ConfigurePinFunc func(ctx context.Context, pin gpio.Pin, mode gpio.Mode) error
	SetPullFunc      func(ctx context.Context, pin gpio.Pin, pull gpio.Pull) error
	ReadDigitalFunc  func(ctx context.Context, pin gpio.Pin) (bool, error)
	WriteDigitalFunc func(ctx context.Context, pin gpio.Pin, high bool) error
	CreatePWMFunc    func(ctx context.Context, pin gpio.Pin, initialDuty, maxDuty int) error
	WritePWMFunc     func(ctx context.Context, pin gpio.Pin, duty int) error
	StopPWMFunc      func(ctx context.Context, pin gpio.Pin) error
	CloseFunc        func() error
}

func (p *Port) ConfigurePin(ctx context.Context, pin gpio.Pin, mode gpio.Mode) error {
	if p.ConfigurePinFunc == nil {
		return p.Port.ConfigurePin(ctx, pin, mode)
	}
	return p.ConfigurePinFunc(ctx, pin, mode)
}

func (p *Port) SetPull(ctx context.Context, pin gpio.Pin, pull gpio.Pull) error {
	if p.SetPullFunc == nil {
		return p.Port.SetPull(ctx, pin, pull)
	}
	return p.SetPullFunc(ctx, pin, pull)
}

func (p *Port) ReadDigital(ctx context.Context, pin gpio.Pin) (bool, error) {
	if p.ReadDigitalFunc == nil {
		return p.Port.ReadDigital(ctx, pin)
	}
	return p.ReadDigitalFunc(ctx, pin)
}

func (p *Port) WriteDigital(ctx context.Context, pin gpio.Pin, high bool) error {
	if p.WriteDigitalFunc == nil {
		return p.Port.WriteDigital(ctx, pin, high)
	}
	return p.WriteDigitalFunc(ctx, pin, high)
}

func (p *Port) CreatePWM(ctx context.Context, pin gpio.Pin, initialDuty, maxDuty int) error {
	if p.CreatePWMFunc == nil {
		return p.Port.CreatePWM(ctx, pin, initialDuty, maxDuty)
	}
	return p.CreatePWMFunc(ctx, pin, initialDuty, maxDuty)
}

func (p *Port) WritePWM(ctx context.Context, pin gpio.Pin, duty int) error {
	if p.WritePWMFunc == nil {
		return p.Port.WritePWM(ctx, pin, duty)
	}
	return p.WritePWMFunc(ctx, pin, duty)
}

func (p *Port) StopPWM(ctx context.Context, pin gpio.Pin) error {
	if p.StopPWMFunc == nil {
		return p.Port.StopPWM(ctx, pin)
	}
	return p.StopPWMFunc(ctx, pin)
}

func (p *Port) Close() error {
	if p.CloseFunc == nil {
		if p.Port == nil {
			return nil
		}
		return p.Port.Close()
	}
	return p.CloseFunc()
}
