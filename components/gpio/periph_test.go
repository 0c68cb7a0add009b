package gpio

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"github.com/pirocon/initio/logging"
	"github.com/pirocon/initio/utils"
)

// newTestPort returns a port whose lines for pins are in-memory periph pins.
func newTestPort(t *testing.T, pins ...Pin) (*periphPort, map[Pin]*gpiotest.Pin) {
	t.Helper()
	p := newPeriphPort(300*physic.Hertz, logging.NewTestLogger(t))
	lines := map[Pin]*gpiotest.Pin{}
	for _, pin := range pins {
		bcm, ok := BCM(pin)
		test.That(t, ok, test.ShouldBeTrue)
		l := &gpiotest.Pin{N: fmt.Sprintf("GPIO%d", bcm), Num: bcm}
		p.lines[pin] = l
		lines[pin] = l
	}
	t.Cleanup(func() {
		test.That(t, p.Close(), test.ShouldBeNil)
	})
	return p, lines
}

func (p *periphPort) pwmSettingOf(pin Pin) (*pwmSetting, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	setting, ok := p.pwms[pin]
	return setting, ok
}

func isClosed(done chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func waitForLevel(t *testing.T, l *gpiotest.Pin, level gpio.Level) {
	t.Helper()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, l.Read(), test.ShouldEqual, level)
	})
}

func TestPeriphDigital(t *testing.T) {
	ctx := context.Background()
	p, lines := newTestPort(t, 19)

	test.That(t, p.ConfigurePin(ctx, 19, Output), test.ShouldBeNil)
	test.That(t, lines[19].Read(), test.ShouldEqual, gpio.Low)

	test.That(t, p.WriteDigital(ctx, 19, true), test.ShouldBeNil)
	high, err := p.ReadDigital(ctx, 19)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeTrue)

	test.That(t, p.WriteDigital(ctx, 19, false), test.ShouldBeNil)
	high, err = p.ReadDigital(ctx, 19)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeFalse)

	test.That(t, p.ConfigurePin(ctx, 19, Input), test.ShouldBeNil)
	err = p.ConfigurePin(ctx, 19, Mode(9))
	test.That(t, utils.IsHardwareFault(err), test.ShouldBeTrue)
}

func TestPeriphSetPull(t *testing.T) {
	ctx := context.Background()
	p, lines := newTestPort(t, 7)

	for _, tc := range []struct {
		pull     Pull
		expected gpio.Pull
	}{
		{PullUp, gpio.PullUp},
		{PullDown, gpio.PullDown},
		{PullNone, gpio.Float},
	} {
		t.Run(tc.pull.String(), func(t *testing.T) {
			test.That(t, p.SetPull(ctx, 7, tc.pull), test.ShouldBeNil)
			test.That(t, lines[7].Pull(), test.ShouldEqual, tc.expected)
		})
	}

	err := p.SetPull(ctx, 7, Pull(5))
	test.That(t, utils.IsHardwareFault(err), test.ShouldBeTrue)
}

func TestPeriphUnknownPins(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPort(t)

	err := p.ConfigurePin(ctx, 1, Input)
	test.That(t, utils.IsHardwareFault(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not a GPIO pin")

	_, err = p.ReadDigital(ctx, 2)
	test.That(t, utils.IsHardwareFault(err), test.ShouldBeTrue)
}

func TestPeriphWritePWMWithoutCreate(t *testing.T) {
	p, _ := newTestPort(t, 19)
	err := p.WritePWM(context.Background(), 19, 50)
	test.That(t, utils.IsHardwareFault(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pwm not created")

	test.That(t, p.StopPWM(context.Background(), 19), test.ShouldBeNil)
}

func TestPeriphPWMDuty(t *testing.T) {
	ctx := context.Background()
	p, lines := newTestPort(t, 19)
	line := lines[19]

	test.That(t, p.CreatePWM(ctx, 19, 100, 100), test.ShouldBeNil)
	waitForLevel(t, line, gpio.High)

	test.That(t, p.WritePWM(ctx, 19, 0), test.ShouldBeNil)
	waitForLevel(t, line, gpio.Low)

	test.That(t, p.WritePWM(ctx, 19, 50), test.ShouldBeNil)
	var sawHigh, sawLow bool
	testutils.WaitForAssertionWithSleep(t, 100*time.Microsecond, 10000, func(tb testing.TB) {
		tb.Helper()
		if line.Read() == gpio.High {
			sawHigh = true
		} else {
			sawLow = true
		}
		test.That(tb, sawHigh && sawLow, test.ShouldBeTrue)
	})
}

func TestPeriphStopPWM(t *testing.T) {
	ctx := context.Background()
	p, lines := newTestPort(t, 19)

	test.That(t, p.CreatePWM(ctx, 19, 100, 100), test.ShouldBeNil)
	waitForLevel(t, lines[19], gpio.High)
	setting, ok := p.pwmSettingOf(19)
	test.That(t, ok, test.ShouldBeTrue)

	test.That(t, p.StopPWM(ctx, 19), test.ShouldBeNil)
	test.That(t, isClosed(setting.done), test.ShouldBeTrue)
	test.That(t, lines[19].Read(), test.ShouldEqual, gpio.Low)
	_, ok = p.pwmSettingOf(19)
	test.That(t, ok, test.ShouldBeFalse)

	err := p.WritePWM(ctx, 19, 10)
	test.That(t, utils.IsHardwareFault(err), test.ShouldBeTrue)
}

func TestPeriphCreatePWMReplacesLoop(t *testing.T) {
	ctx := context.Background()
	p, lines := newTestPort(t, 21)

	test.That(t, p.CreatePWM(ctx, 21, 0, 100), test.ShouldBeNil)
	first, ok := p.pwmSettingOf(21)
	test.That(t, ok, test.ShouldBeTrue)

	test.That(t, p.CreatePWM(ctx, 21, 100, 100), test.ShouldBeNil)
	test.That(t, isClosed(first.done), test.ShouldBeTrue)

	second, ok := p.pwmSettingOf(21)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, second, test.ShouldNotEqual, first)
	test.That(t, isClosed(second.done), test.ShouldBeFalse)
	waitForLevel(t, lines[21], gpio.High)
}

func TestPeriphCloseStopsEveryLoop(t *testing.T) {
	ctx := context.Background()
	p, lines := newTestPort(t, 19, 21)

	var settings []*pwmSetting
	for _, pin := range []Pin{19, 21} {
		test.That(t, p.CreatePWM(ctx, pin, 100, 100), test.ShouldBeNil)
		waitForLevel(t, lines[pin], gpio.High)
		setting, ok := p.pwmSettingOf(pin)
		test.That(t, ok, test.ShouldBeTrue)
		settings = append(settings, setting)
	}

	test.That(t, p.Close(), test.ShouldBeNil)
	for _, setting := range settings {
		test.That(t, isClosed(setting.done), test.ShouldBeTrue)
	}
	test.That(t, lines[19].Read(), test.ShouldEqual, gpio.Low)
	test.That(t, lines[21].Read(), test.ShouldEqual, gpio.Low)
	test.That(t, p.pwms, test.ShouldBeEmpty)
}
