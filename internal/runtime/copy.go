package runtime

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Exit status of "test -d" when the path is not a directory.
const testFalse = 1

// Creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, path string) error {
	return c.mustExec(ctx, "mkdir", nil, "mkdir", "-p", path)
}

// Copies a tar stream into the container's filesystem.
//
// The contents of r are extracted into destDir by piping them to "tar xf - -C
// destDir" inside the container.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return c.mustExec(ctx, "tar extract", r, "tar", "xf", "-", "-C", destDir)
}

// Reports whether path is a directory inside the container.
//
// Evaluated with "test -d" so the answer reflects the container's own view
// of the filesystem, symlinks included.
func (c *Container) IsDir(ctx context.Context, path string) (bool, error) {
	exitCode, stderr, err := c.execCommand(ctx, nil, nil, nil, "", "test", "-d", path)
	if err != nil {
		return false, err
	}
	return isDirResult(exitCode, stderr)
}

// Interprets the exit status of "test -d".
func isDirResult(exitCode int, stderr string) (bool, error) {
	switch exitCode {
	case 0:
		return true, nil
	case testFalse:
		return false, nil
	default:
		return false, errors.Wrapf(ErrRuntime, "test -d failed with exit code %d (%s)", exitCode, stderr)
	}
}

// Helper method that runs a command inside the container, returning an error
// that includes desc if the process exits with a non-zero code.
func (c *Container) mustExec(ctx context.Context, desc string, stdin io.Reader, args ...string) error {
	exitCode, stderr, err := c.execCommand(ctx, stdin, nil, nil, "", args...)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return errors.Wrapf(ErrRuntime, "%s failed with exit code %d (%s)", desc, exitCode, stderr)
	}
	return nil
}
