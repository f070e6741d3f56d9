package build

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrEnvironment         = errors.New("environment error")
	ErrFileSystemOperation = errors.New("file system operation failed")
	ErrUnsupportedStep     = errors.New("unsupported step")
)

// Returned when a copy step cannot read its source or write its destination.
type CopyError struct {
	Src  string // Source path on the host.
	Dest string // Destination path inside the environment.
	Err  error  // Underlying failure.
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s to %s: %v", e.Src, e.Dest, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// Returned when a directory required by a step cannot be created or inspected.
type PathError struct {
	Path string // Path inside the environment.
	Err  error  // Underlying failure.
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// Returned when a run step's command exits with a non-zero code.
type CommandError struct {
	Command  string // Command as passed to the shell.
	ExitCode int    // Exit code of the process.
	Stderr   string // Captured standard error.
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + lastLine(stderr)
	}
	return msg
}

// Returns the last line of s, which is usually the most specific part of a
// failing command's error output.
func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
