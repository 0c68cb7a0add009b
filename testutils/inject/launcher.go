package inject

import (
	"context"

	"github.com/pirocon/initio/rexec"
)

// Launcher is a rexec.Launcher whose methods can be overridden one at a time. Without an
// override a method falls through to the embedded Launcher, or succeeds when there is none.
type Launcher struct {
	rexec.Launcher
	RunFunc    func(ctx context.Context, config rexec.ProcessConfig) error
	SignalFunc func(ctx context.Context, executable string, sudo bool) error
}

func (l *Launcher) Run(ctx context.Context, config rexec.ProcessConfig) error {
	if l.RunFunc == nil {
		if l.Launcher == nil {
			return nil
		}
		return l.Launcher.Run(ctx, config)
	}
	return l.RunFunc(ctx, config)
}

func (l *Launcher) Signal(ctx context.Context, executable string, sudo bool) error {
	if l.SignalFunc == nil {
		if l.Launcher == nil {
			return nil
		}
		return l.Launcher.Signal(ctx, executable, sudo)
	}
	return l.SignalFunc(ctx, executable, sudo)
}
