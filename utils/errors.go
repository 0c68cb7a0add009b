package utils

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrHardwareFault is matched by every error raised when a GPIO, process, or stream
	// operation fails at the host boundary.
	ErrHardwareFault = errors.New("hardware fault")

	// ErrTimeout marks a bounded wait that exceeded its deadline. Callers that treat a
	// timeout as a normal outcome convert it to their zero result instead of returning it.
	ErrTimeout = errors.New("timed out")

	// ErrConfigurationAmbiguous is returned when board identification found a descriptor it
	// does not recognize.
	ErrConfigurationAmbiguous = errors.New("board configuration is ambiguous")
)

// HardwareFaultError records the host operation that failed and its cause.
type HardwareFaultError struct {
	Op  string
	Err error
}

func (e *HardwareFaultError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrHardwareFault, e.Op)
	}
	return fmt.Sprintf("%s: %s: %s", ErrHardwareFault, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *HardwareFaultError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrHardwareFault.
func (e *HardwareFaultError) Is(target error) bool {
	return target == ErrHardwareFault
}

// NewHardwareFault is used when an operation at the host boundary fails. A nil cause is
// allowed for faults detected by the caller itself.
func NewHardwareFault(op string, err error) error {
	return &HardwareFaultError{Op: op, Err: err}
}

// NewConfigurationAmbiguousError is used when the board descriptor has unrecognized content.
func NewConfigurationAmbiguousError(descriptor string) error {
	return errors.Wrapf(ErrConfigurationAmbiguous, "unrecognized board descriptor %q", descriptor)
}

// IsHardwareFault reports whether err is, or wraps, a hardware fault.
func IsHardwareFault(err error) bool {
	return errors.Is(err, ErrHardwareFault)
}
