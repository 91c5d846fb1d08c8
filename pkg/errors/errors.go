package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"

	pkgerrors "github.com/pkg/errors"
)

// New returns an error with the supplied message and the call stack.
func New(msg string) error {
	return pkgerrors.New(msg)
}

// Errorf formats according to a format specifier and records the call stack.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// Wrap annotates err with msg and the call stack. Wrap returns nil if err is nil.
func Wrap(err error, msg string) error {
	return pkgerrors.Wrap(err, msg)
}

// Wrapf annotates err with a formatted message and the call stack.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// WithStack annotates err with the call stack.
func WithStack(err error) error {
	return pkgerrors.WithStack(err)
}

// Cause returns the underlying cause of the error, if possible.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// NewWithReport creates an error and sends it to the registered reporters.
func NewWithReport(msg string) error {
	err := New(msg)
	report(err)
	return err
}

// ErrorfAndReport formats an error and sends it to the registered reporters.
func ErrorfAndReport(format string, args ...interface{}) error {
	err := Errorf(format, args...)
	report(err)
	return err
}

// WrapAndReport wraps err and sends it to the registered reporters.
// A nil err is neither wrapped nor reported.
func WrapAndReport(err error, msg string) error {
	if err == nil {
		return nil
	}
	err = Wrap(err, msg)
	report(err)
	return err
}

// WithStackAndReport attaches the call stack to err and reports it.
func WithStackAndReport(err error) error {
	if err == nil {
		return nil
	}
	err = WithStack(err)
	report(err)
	return err
}

// WrapfAndReport is WrapAndReport with a formatted message.
func WrapfAndReport(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	err = Wrapf(err, format, args...)
	report(err)
	return err
}

const maxStackDepth = 32

type stack []uintptr

func callers() *stack {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(2, pcs[:])
	var st stack = pcs[0:n]
	return &st
}

// fullStack renders every frame as "function file:line".
// Index 0 is the reporter itself, index 2 is where the error was reported from.
func (s *stack) fullStack() []string {
	frames := runtime.CallersFrames(*s)
	lines := make([]string, 0, len(*s))
	for {
		frame, more := frames.Next()
		lines = append(lines, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	// Reporters index into the stack, keep it long enough.
	for len(lines) < 3 {
		lines = append(lines, "")
	}
	return lines
}
