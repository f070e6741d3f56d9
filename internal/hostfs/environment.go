package hostfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"time"

	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/cruciblehq/boxd/internal/oci"
	"github.com/cruciblehq/boxd/internal/paths"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
)

const (

	// Filename of the OCI archive produced by Export.
	exportFilename = "image.tar"

	// Variable exposing the root filesystem to commands run by Exec.
	rootfsEnv = "BOXD_ROOTFS"
)

// A build environment backed by a directory on the host.
//
// Filesystem operations are confined to the directory. Commands run by
// [Environment.Exec] are host processes: only their working directory is
// mapped into the environment, and the root is exported to them as
// $BOXD_ROOTFS.
type Environment struct {
	id       string // Environment identifier, also the directory name.
	dir      string // Host directory acting as the root filesystem.
	image    string // Base image the environment was started from.
	platform string // OCI platform recorded on export.
}

// Returns the host directory acting as the environment's root filesystem.
func (env *Environment) Root() string {
	return env.dir
}

// Maps an in-environment path to a host path under the root.
func (env *Environment) resolve(path string) (string, error) {
	return securejoin.SecureJoin(env.dir, path)
}

// Creates a directory inside the environment, including parents.
func (env *Environment) MkdirAll(ctx context.Context, path string) error {
	host, err := env.resolve(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHostfs, err)
	}
	if err := os.MkdirAll(host, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrHostfs, err)
	}
	return nil
}

// Extracts a tar stream into destDir.
func (env *Environment) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	if err := untar(r, env.dir, destDir); err != nil {
		return fmt.Errorf("%w: %w", ErrHostfs, err)
	}
	return nil
}

// Reports whether path exists inside the environment and is a directory.
func (env *Environment) IsDir(ctx context.Context, path string) (bool, error) {
	host, err := env.resolve(path)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrHostfs, err)
	}

	info, err := os.Stat(host)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrHostfs, err)
	}
	return info.IsDir(), nil
}

// Runs "shell -c command" as a host process in the mapped workdir.
//
// The process inherits the host environment with vars merged on top. A
// non-zero exit is reported through the result; an error is returned only
// when the process cannot be started or waited for.
func (env *Environment) Exec(ctx context.Context, shell, command string, vars []string, workdir string) (*engine.ExecResult, error) {
	if workdir == "" {
		workdir = "/"
	}
	dir, err := env.resolve(workdir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostfs, err)
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = dir
	cmd.Env = engine.MergeEnv(os.Environ(), slices.Concat(vars, []string{rootfsEnv + "=" + env.dir}))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
	default:
		return nil, fmt.Errorf("%w: %w", ErrHostfs, err)
	}

	return &engine.ExecResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Packs the root filesystem into a single-layer OCI archive at
// output/image.tar, returning its path.
func (env *Environment) Export(ctx context.Context, output string, cfg engine.ImageConfig) (string, error) {
	if err := os.MkdirAll(output, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrHostfs, err)
	}

	if cfg.BaseImage == "" {
		cfg.BaseImage = env.image
	}
	if cfg.Platform == "" {
		cfg.Platform = env.platform
	}

	exportPath := filepath.Join(output, exportFilename)
	f, err := os.Create(exportPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHostfs, err)
	}
	defer f.Close()

	// Overlay whiteouts left in the root by commands are exported as layer
	// whiteouts.
	packed, packW := io.Pipe()
	layer, layerW := io.Pipe()
	go func() {
		packW.CloseWithError(oci.PackDir(packW, env.dir))
	}()
	go func() {
		err := oci.FilterOverlayWhiteouts(layerW, packed)
		packed.CloseWithError(err)
		layerW.CloseWithError(err)
	}()

	desc, err := oci.WriteArchive(f, layer, cfg, time.Now())
	layer.CloseWithError(err)
	if err != nil {
		return "", err
	}

	slog.Info("image exported", "path", exportPath, "digest", desc.Digest)
	return exportPath, nil
}

// Removes the environment's root filesystem.
func (env *Environment) Destroy(ctx context.Context) {
	if err := os.RemoveAll(env.dir); err != nil {
		slog.Warn("failed to remove environment", "id", env.id, "error", err)
	}
}
