package fake

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/pirocon/initio/components/gpio"
	"github.com/pirocon/initio/utils"
)

func TestPortRecordsState(t *testing.T) {
	ctx := context.Background()
	p := NewPort()

	test.That(t, p.ConfigurePin(ctx, 7, gpio.Input), test.ShouldBeNil)
	test.That(t, p.SetPull(ctx, 7, gpio.PullUp), test.ShouldBeNil)
	mode, ok := p.Mode(7)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mode, test.ShouldEqual, gpio.Input)
	pull, ok := p.PullOf(7)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pull, test.ShouldEqual, gpio.PullUp)

	p.SetLevel(7, true)
	high, err := p.ReadDigital(ctx, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeTrue)

	test.That(t, p.WriteDigital(ctx, 8, true), test.ShouldBeNil)
	test.That(t, p.Level(8), test.ShouldBeTrue)

	test.That(t, p.CreatePWM(ctx, 19, 0, 100), test.ShouldBeNil)
	test.That(t, p.WritePWM(ctx, 19, 150), test.ShouldBeNil)
	duty, ok := p.Duty(19)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, duty, test.ShouldEqual, 150)
	maxDuty, ok := p.MaxDuty(19)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, maxDuty, test.ShouldEqual, 100)

	test.That(t, p.StopPWM(ctx, 19), test.ShouldBeNil)
	_, ok = p.Duty(19)
	test.That(t, ok, test.ShouldBeFalse)

	err = p.WritePWM(ctx, 19, 10)
	test.That(t, errors.Is(err, utils.ErrHardwareFault), test.ShouldBeTrue)

	test.That(t, p.Calls(), test.ShouldResemble, []Call{
		{OpConfigure, 7, int(gpio.Input)},
		{OpPull, 7, int(gpio.PullUp)},
		{OpWrite, 8, 1},
		{OpCreatePWM, 19, 0},
		{OpWritePWM, 19, 150},
		{OpStopPWM, 19, 0},
		{OpWritePWM, 19, 10},
	})

	p.ResetCalls()
	test.That(t, p.Calls(), test.ShouldBeEmpty)
	test.That(t, p.Close(), test.ShouldBeNil)
	test.That(t, p.Closed(), test.ShouldBeTrue)
}

func TestPortReadFunc(t *testing.T) {
	p := NewPort()
	fault := utils.NewHardwareFault("read", nil)
	p.ReadFunc = func(pin gpio.Pin) (bool, error) {
		if pin == 8 {
			return false, fault
		}
		return true, nil
	}
	high, err := p.ReadDigital(context.Background(), 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeTrue)

	_, err = p.ReadDigital(context.Background(), 8)
	test.That(t, err, test.ShouldEqual, fault)
}
