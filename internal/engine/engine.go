// Package engine defines the contract between the build interpreter and the
// environments it drives.
//
// An [Engine] starts an [Environment] from a base image. The environment is
// a mutable filesystem plus a way to run commands inside it; the build
// package applies plan steps against it and finally exports the result.
// The runtime package implements the contract with containerd, the hostfs
// package with a plain directory on the host.
package engine

import (
	"context"
	"io"
)

// Starts build environments from base images.
type Engine interface {

	// Creates and starts an environment from image.
	//
	// The id must be unique among live environments of the same engine.
	// Platform is an OCI platform string such as "linux/amd64".
	Start(ctx context.Context, image, id, platform string) (Environment, error)
}

// A live build environment.
//
// Paths passed to an environment are absolute, slash-separated paths inside
// the environment's filesystem.
type Environment interface {

	// Creates a directory, including parents.
	MkdirAll(ctx context.Context, path string) error

	// Extracts a tar stream into destDir.
	CopyTo(ctx context.Context, r io.Reader, destDir string) error

	// Reports whether path exists and is a directory.
	IsDir(ctx context.Context, path string) (bool, error)

	// Runs command through shell ("shell -c command").
	//
	// A non-zero exit code is reported in the result, not as an error.
	Exec(ctx context.Context, shell, command string, env []string, workdir string) (*ExecResult, error)

	// Commits the environment's filesystem and writes an image archive
	// into the output directory. Returns the archive path.
	Export(ctx context.Context, output string, cfg ImageConfig) (string, error)

	// Releases all resources held by the environment.
	Destroy(ctx context.Context)
}

// Output of a command execution inside an environment.
type ExecResult struct {
	ExitCode int    // Exit code of the process.
	Stdout   string // Captured standard output.
	Stderr   string // Captured standard error.
}

// Image metadata recorded on an exported artifact.
type ImageConfig struct {
	Name       string   // Reference name annotated on the archive.
	BaseImage  string   // Image the environment was started from.
	Platform   string   // OCI platform of the image.
	Workdir    string   // Working directory for the image's process.
	Entrypoint []string // Entrypoint for the image's process.
	Cmd        []string // Default arguments for the entrypoint.
	Env        []string // "KEY=value" environment entries.
}
