package gmx

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingInput indicates required input files are absent.
	ErrMissingInput = errors.New("gmx: missing input files")

	// ErrCommandFailed indicates a GROMACS tool exited unsuccessfully.
	ErrCommandFailed = errors.New("gmx: command failed")

	// ErrMissingOutput indicates a tool succeeded without writing a declared output.
	ErrMissingOutput = errors.New("gmx: declared output not written")

	// ErrNoTrajectory indicates mdrun finished without a trajectory file.
	ErrNoTrajectory = errors.New("gmx: no trajectory produced")
)

// MissingInputError lists every required path that does not exist.
type MissingInputError struct {
	Paths []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input files: %s", strings.Join(e.Paths, ", "))
}

func (e *MissingInputError) Unwrap() error {
	return ErrMissingInput
}

// CommandError carries the exit status and captured stderr of a failed tool.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Wrapped  error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", strings.Join(e.Args, " "), e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	if e.Wrapped == nil {
		return []error{ErrCommandFailed}
	}
	return []error{ErrCommandFailed, e.Wrapped}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
