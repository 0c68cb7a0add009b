// Package rexec starts and signals the helper processes the robot depends on.
package rexec

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/multierr"
	"go.viam.com/utils/pexec"

	"github.com/pirocon/initio/logging"
	"github.com/pirocon/initio/utils"
)

// ProcessConfig describes a helper process.
type ProcessConfig struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
	// Sudo runs the process through sudo.
	Sudo bool `json:"sudo"`
	// Log captures the output of the process and logs it once the process exits. A process
	// that leaves a child holding its stdout must not set it, or Run waits for the child.
	Log bool `json:"log"`
}

func (c ProcessConfig) commandLine() (string, []string) {
	if !c.Sudo {
		return c.Name, c.Args
	}
	return "sudo", append([]string{c.Name}, c.Args...)
}

// A Launcher runs helper processes and signals them by executable.
type Launcher interface {
	// Run starts the process and waits for it to exit. Daemons are expected to detach.
	Run(ctx context.Context, config ProcessConfig) error
	// Signal asks every process running executable to terminate. Finding no such process is
	// not an error. The calling process is never signalled.
	Signal(ctx context.Context, executable string, sudo bool) error
}

type launcher struct {
	logger logging.Logger
}

// NewLauncher returns a Launcher that runs processes on the host.
func NewLauncher(logger logging.Logger) Launcher {
	return &launcher{logger: logger}
}

func (l *launcher) Run(ctx context.Context, config ProcessConfig) error {
	name, args := config.commandLine()
	l.logger.Debugw("running process", "name", name, "args", strings.Join(args, " "))
	proc := pexec.NewManagedProcess(pexec.ProcessConfig{
		ID:      config.Name,
		Name:    name,
		Args:    args,
		OneShot: true,
		Log:     config.Log,
	}, l.logger.AsZap())
	if err := proc.Start(ctx); err != nil {
		return utils.NewHardwareFault("run "+config.Name, err)
	}
	return nil
}

func (l *launcher) Signal(ctx context.Context, executable string, sudo bool) error {
	procs, err := findProcesses(ctx, executable)
	if err != nil {
		return utils.NewHardwareFault("list processes", err)
	}
	if len(procs) == 0 {
		l.logger.Debugw("no process to signal", "executable", executable)
		return nil
	}

	if sudo {
		args := []string{"-TERM"}
		for _, proc := range procs {
			args = append(args, strconv.Itoa(int(proc.Pid)))
		}
		return l.Run(ctx, ProcessConfig{Name: "kill", Args: args, Sudo: true})
	}
	var errs error
	for _, proc := range procs {
		l.logger.Debugw("terminating process", "executable", executable, "pid", proc.Pid)
		if err := proc.TerminateWithContext(ctx); err != nil {
			errs = multierr.Append(errs, utils.NewHardwareFault("terminate "+executable,
				errors.Wrapf(err, "pid %d", proc.Pid)))
		}
	}
	return errs
}

// findProcesses returns every process other than this one that is running executable.
// Processes that exit while being inspected are skipped.
func findProcesses(ctx context.Context, executable string) ([]*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())
	var matched []*process.Process
	for _, proc := range procs {
		if proc.Pid == self {
			continue
		}
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cmdline, err := proc.CmdlineSliceWithContext(ctx)
		if err != nil {
			continue
		}
		if runsExecutable(executable, name, cmdline) {
			matched = append(matched, proc)
		}
	}
	return matched, nil
}

// runsExecutable reports whether a process with the given name and command line is running
// executable. Only the program itself is compared, never its arguments, so a shell or sudo
// that merely mentions executable does not match.
func runsExecutable(executable, name string, cmdline []string) bool {
	base := filepath.Base(executable)
	if len(cmdline) > 0 && (cmdline[0] == executable || filepath.Base(cmdline[0]) == base) {
		return true
	}
	return name == base
}

type dryRunLauncher struct {
	logger logging.Logger
}

// NewDryRunLauncher returns a Launcher that only logs what it would run.
func NewDryRunLauncher(logger logging.Logger) Launcher {
	return &dryRunLauncher{logger: logger}
}

func (l *dryRunLauncher) Run(ctx context.Context, config ProcessConfig) error {
	name, args := config.commandLine()
	l.logger.Infow("dry run", "name", name, "args", strings.Join(args, " "))
	return nil
}

func (l *dryRunLauncher) Signal(ctx context.Context, executable string, sudo bool) error {
	l.logger.Infow("dry run signal", "executable", executable, "sudo", sudo)
	return nil
}
