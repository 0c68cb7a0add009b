// Package servoblaster positions servos through the ServoBlaster daemon. The daemon generates
// the pulses; this package starts it and writes "<channel>=<width>" lines to its device.
package servoblaster

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/pirocon/initio/components/gpio"
	"github.com/pirocon/initio/logging"
	"github.com/pirocon/initio/rexec"
	"github.com/pirocon/initio/utils"
)

const (
	// EnvExecutable names an alternate daemon executable.
	EnvExecutable = "SERVOD"
	// DefaultExecutable is the daemon started when nothing else is configured.
	DefaultExecutable = "servod"
	// DefaultDevicePath is where the daemon accepts commands.
	DefaultDevicePath = "/dev/servoblaster"
	// DefaultIdleTimeout is how long the daemon keeps pulsing after the last command.
	DefaultIdleTimeout = 20 * time.Second
)

// Channel is a daemon output channel, numbered in the order of the pins it was started with.
type Channel int

// The channels of the pan/tilt head.
const (
	Pan  = Channel(0)
	Tilt = Channel(1)
)

// State is the lifecycle state of a Manager.
type State string

// The Manager states.
const (
	Stopped  = State("stopped")
	Starting = State("starting")
	Running  = State("running")
)

// Config configures the daemon.
type Config struct {
	// Executable is used when the SERVOD environment variable is unset.
	Executable  string
	UseSudo     bool
	IdleTimeout time.Duration
	DevicePath  string
	PanPin      gpio.Pin
	TiltPin     gpio.Pin
}

// A Manager owns the daemon process and the stream to its device. Nothing else may write
// to the stream.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	launcher rexec.Launcher
	logger   logging.Logger

	state  State
	device *os.File
	writer *bufio.Writer
}

// NewManager returns a stopped Manager. Zero values in cfg select the defaults.
func NewManager(cfg Config, launcher rexec.Launcher, logger logging.Logger) *Manager {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.DevicePath == "" {
		cfg.DevicePath = DefaultDevicePath
	}
	return &Manager{cfg: cfg, launcher: launcher, logger: logger, state: Stopped}
}

// Executable returns the daemon executable: $SERVOD, else the configured one, else servod.
func (m *Manager) Executable() string {
	if exe := os.Getenv(EnvExecutable); exe != "" {
		return exe
	}
	if m.cfg.Executable != "" {
		return m.cfg.Executable
	}
	return DefaultExecutable
}

func (m *Manager) args() []string {
	return []string{
		"--pcm",
		fmt.Sprintf("--idle-timeout=%d", m.cfg.IdleTimeout.Milliseconds()),
		fmt.Sprintf("--p1pins=%d,%d", int(m.cfg.PanPin), int(m.cfg.TiltPin)),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start kills any running daemon, starts a new one, and opens its device. On failure the
// Manager is left Stopped.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.start(ctx)
}

func (m *Manager) start(ctx context.Context) (err error) {
	if closeErr := m.closeDevice(); closeErr != nil {
		m.logger.Warnw("error closing servo device", "error", closeErr)
	}
	m.state = Starting
	defer func() {
		if err != nil {
			m.state = Stopped
		}
	}()

	exe := m.Executable()
	if err := m.launcher.Signal(ctx, exe, m.cfg.UseSudo); err != nil {
		return err
	}
	if err := m.launcher.Run(ctx, rexec.ProcessConfig{
		Name: exe,
		Args: m.args(),
		Sudo: m.cfg.UseSudo,
		// the daemon keeps the stdout it inherits, so capturing it would never finish
		Log: false,
	}); err != nil {
		return err
	}

	//nolint:gosec
	device, err := os.OpenFile(m.cfg.DevicePath, os.O_WRONLY, 0)
	if err != nil {
		return utils.NewHardwareFault("open "+m.cfg.DevicePath, err)
	}
	m.device = device
	m.writer = bufio.NewWriter(device)
	m.state = Running
	m.logger.Infow("servo daemon started", "executable", exe, "device", m.cfg.DevicePath)
	return nil
}

// Stop asks any running daemon to exit and closes the device. Stopping a stopped Manager
// changes nothing.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := multierr.Combine(
		m.launcher.Signal(ctx, m.Executable(), m.cfg.UseSudo),
		m.closeDevice(),
	)
	if m.state != Stopped {
		m.logger.Info("servo daemon stopped")
	}
	m.state = Stopped
	return err
}

func (m *Manager) closeDevice() error {
	if m.device == nil {
		return nil
	}
	err := m.device.Close()
	m.device = nil
	m.writer = nil
	if err != nil {
		return utils.NewHardwareFault("close "+m.cfg.DevicePath, err)
	}
	return nil
}

// SetServo moves channel to degrees in [-90, 90]. A Manager that is not running is started
// first; if that fails the error is returned and nothing is written.
func (m *Manager) SetServo(ctx context.Context, channel Channel, degrees int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Running {
		if err := m.start(ctx); err != nil {
			return errors.Wrap(err, "cannot start servo daemon")
		}
	}
	unit := DegreesToUnit(degrees)
	if _, err := fmt.Fprintf(m.writer, "%d=%d\n", int(channel), unit); err != nil {
		return utils.NewHardwareFault("write "+m.cfg.DevicePath, err)
	}
	if err := m.writer.Flush(); err != nil {
		return utils.NewHardwareFault("flush "+m.cfg.DevicePath, err)
	}
	m.logger.Debugw("servo set", "channel", int(channel), "degrees", degrees, "unit", unit)
	return nil
}

// DegreesToUnit converts degrees to the daemon's pulse width unit of 10us. 90 maps to 50,
// -90 to 250, and every degree moves the pulse by 200/180 units.
func DegreesToUnit(degrees int) int {
	return 50 + (90-degrees)*200/180
}
