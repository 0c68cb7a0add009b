package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/pirocon/initio/logging"
	"github.com/pirocon/initio/utils"
)

// DefaultPWMFrequency matches the 10ms period of a 100 step software PWM with 100us steps.
const DefaultPWMFrequency = 100 * physic.Hertz

type pwmSetting struct {
	duty    int
	maxDuty int

	cancelCtx  context.Context
	cancelFunc func()
	done       chan struct{}
}

type periphPort struct {
	mu        sync.RWMutex
	lines     map[Pin]gpio.PinIO
	pwms      map[Pin]*pwmSetting
	frequency physic.Frequency

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	logger                  logging.Logger
}

// NewPort initializes the periph.io host drivers and returns a Port for the Raspberry Pi
// header. A zero frequency selects DefaultPWMFrequency.
func NewPort(frequency physic.Frequency, logger logging.Logger) (Port, error) {
	if _, err := host.Init(); err != nil {
		return nil, utils.NewHardwareFault("initialize periph host", err)
	}
	return newPeriphPort(frequency, logger), nil
}

func newPeriphPort(frequency physic.Frequency, logger logging.Logger) *periphPort {
	if frequency == 0 {
		frequency = DefaultPWMFrequency
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &periphPort{
		lines:      map[Pin]gpio.PinIO{},
		pwms:       map[Pin]*pwmSetting{},
		frequency:  frequency,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		logger:     logger,
	}
}

// line resolves a physical pin to its periph line. Expects the lock to be held.
func (p *periphPort) line(pin Pin) (gpio.PinIO, error) {
	if l, ok := p.lines[pin]; ok {
		return l, nil
	}
	bcm, ok := BCM(pin)
	if !ok {
		return nil, utils.NewHardwareFault(fmt.Sprintf("resolve %s", pin), errors.New("not a GPIO pin"))
	}
	l := gpioreg.ByName(fmt.Sprintf("GPIO%d", bcm))
	if l == nil {
		return nil, utils.NewHardwareFault(fmt.Sprintf("resolve %s", pin), errors.Errorf("no global pin found for GPIO%d", bcm))
	}
	p.lines[pin] = l
	return l, nil
}

func (p *periphPort) ConfigurePin(ctx context.Context, pin Pin, mode Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, err := p.line(pin)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		err = l.In(gpio.PullNoChange, gpio.NoEdge)
	case Output:
		err = l.Out(gpio.Low)
	default:
		err = errors.Errorf("unknown mode %s", mode)
	}
	if err != nil {
		return utils.NewHardwareFault(fmt.Sprintf("configure %s as %s", pin, mode), err)
	}
	return nil
}

func (p *periphPort) SetPull(ctx context.Context, pin Pin, pull Pull) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, err := p.line(pin)
	if err != nil {
		return err
	}
	var periphPull gpio.Pull
	switch pull {
	case PullNone:
		periphPull = gpio.Float
	case PullUp:
		periphPull = gpio.PullUp
	case PullDown:
		periphPull = gpio.PullDown
	default:
		return utils.NewHardwareFault(fmt.Sprintf("set pull on %s", pin), errors.Errorf("unknown pull %s", pull))
	}
	if err := l.In(periphPull, gpio.NoEdge); err != nil {
		return utils.NewHardwareFault(fmt.Sprintf("set pull %s on %s", pull, pin), err)
	}
	return nil
}

func (p *periphPort) ReadDigital(ctx context.Context, pin Pin) (bool, error) {
	p.mu.Lock()
	l, err := p.line(pin)
	p.mu.Unlock()
	if err != nil {
		return false, err
	}
	return l.Read() == gpio.High, nil
}

func (p *periphPort) WriteDigital(ctx context.Context, pin Pin, high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, err := p.line(pin)
	if err != nil {
		return err
	}
	if err := l.Out(levelOf(high)); err != nil {
		return utils.NewHardwareFault(fmt.Sprintf("write %s", pin), err)
	}
	return nil
}

func (p *periphPort) CreatePWM(ctx context.Context, pin Pin, initialDuty, maxDuty int) error {
	p.mu.Lock()
	prev, ok := p.pwms[pin]
	delete(p.pwms, pin)
	p.mu.Unlock()
	if ok {
		prev.cancelFunc()
		<-prev.done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	l, err := p.line(pin)
	if err != nil {
		return err
	}
	if err := l.Out(gpio.Low); err != nil {
		return utils.NewHardwareFault(fmt.Sprintf("create pwm on %s", pin), err)
	}
	cancelCtx, cancelFunc := context.WithCancel(p.cancelCtx)
	setting := &pwmSetting{
		duty:       initialDuty,
		maxDuty:    maxDuty,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		done:       make(chan struct{}),
	}
	p.pwms[pin] = setting
	p.startSoftwarePWMLoop(pin, l, setting)
	return nil
}

func (p *periphPort) WritePWM(ctx context.Context, pin Pin, duty int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	setting, ok := p.pwms[pin]
	if !ok {
		return utils.NewHardwareFault(fmt.Sprintf("write pwm on %s", pin), errors.New("pwm not created"))
	}
	setting.duty = duty
	return nil
}

func (p *periphPort) StopPWM(ctx context.Context, pin Pin) error {
	p.mu.Lock()
	setting, ok := p.pwms[pin]
	if ok {
		delete(p.pwms, pin)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}

	// the loop must be gone before the final write, or it could leave the line high
	setting.cancelFunc()
	<-setting.done

	p.mu.Lock()
	defer p.mu.Unlock()
	l, err := p.line(pin)
	if err != nil {
		return err
	}
	if err := l.Out(gpio.Low); err != nil {
		return utils.NewHardwareFault(fmt.Sprintf("stop pwm on %s", pin), err)
	}
	return nil
}

// expects to already have lock acquired.
func (p *periphPort) startSoftwarePWMLoop(pin Pin, l gpio.PinIO, setting *pwmSetting) {
	p.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		p.softwarePWMLoop(pin, l, setting)
	}, func() {
		close(setting.done)
		p.activeBackgroundWorkers.Done()
	})
}

// softwarePWMLoop toggles the line until its setting is cancelled. The duty is sampled once
// per period, so changes land on period boundaries. No lock is held while waiting.
func (p *periphPort) softwarePWMLoop(pin Pin, l gpio.PinIO, setting *pwmSetting) {
	period := p.frequency.Period()
	for {
		p.mu.RLock()
		duty, maxDuty := setting.duty, setting.maxDuty
		p.mu.RUnlock()

		onPeriod := time.Duration(0)
		if maxDuty > 0 {
			onPeriod = time.Duration(int64(period) * int64(duty) / int64(maxDuty))
		}
		if onPeriod > 0 {
			if err := l.Out(gpio.High); err != nil {
				p.logger.Errorw("error setting pin", "pin", int(pin), "error", err)
			}
			if !goutils.SelectContextOrWait(setting.cancelCtx, onPeriod) {
				return
			}
		}
		if onPeriod >= period {
			continue
		}
		if err := l.Out(gpio.Low); err != nil {
			p.logger.Errorw("error setting pin", "pin", int(pin), "error", err)
		}
		if !goutils.SelectContextOrWait(setting.cancelCtx, period-onPeriod) {
			return
		}
	}
}

func (p *periphPort) Close() error {
	p.mu.Lock()
	p.cancelFunc()
	p.mu.Unlock()
	p.activeBackgroundWorkers.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for pin := range p.pwms {
		if l, ok := p.lines[pin]; ok {
			if outErr := l.Out(gpio.Low); outErr != nil {
				err = multierr.Append(err, utils.NewHardwareFault(fmt.Sprintf("stop pwm on %s", pin), outErr))
			}
		}
		delete(p.pwms, pin)
	}
	return err
}

func levelOf(high bool) gpio.Level {
	if high {
		return gpio.High
	}
	return gpio.Low
}
