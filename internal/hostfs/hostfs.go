package hostfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/cruciblehq/boxd/internal/oci"
	"github.com/cruciblehq/boxd/internal/paths"
	"github.com/klauspost/pgzip"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Builds plans inside plain directories on the host.
type Engine struct {
	root string // Directory holding one subdirectory per environment.
}

// Creates an engine that keeps environment root filesystems under root.
//
// An empty root uses [paths.Roots].
func New(root string) *Engine {
	if root == "" {
		root = paths.Roots()
	}
	return &Engine{root: root}
}

// Returns the host directory backing the environment with the given id.
func (e *Engine) RootPath(id string) string {
	return filepath.Join(e.root, id)
}

// Creates the environment's root filesystem and seeds it from image.
//
// When image names a tarball on the host (".tar", ".tar.gz" or ".tgz") its
// contents become the initial root filesystem. An OCI image archive, such as
// one exported by a previous build, has its layers applied in order instead.
// Any other image is recorded as metadata only and the root filesystem
// starts empty. A stale directory left behind by a previous environment with
// the same id is removed first.
func (e *Engine) Start(ctx context.Context, image, id, platform string) (engine.Environment, error) {
	dir := e.RootPath(id)

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostfs, err)
	}
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostfs, err)
	}

	env := &Environment{
		id:       id,
		dir:      dir,
		image:    image,
		platform: platform,
	}

	if isArchivePath(image) {
		if err := env.seed(image); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
		slog.Debug("environment seeded", "id", id, "archive", image)
	} else {
		slog.Debug("environment started empty", "id", id, "image", image)
	}

	return env, nil
}

// Whether image names an existing tarball on the host.
func isArchivePath(image string) bool {
	if !strings.HasSuffix(image, ".tar") && !strings.HasSuffix(image, ".tar.gz") && !strings.HasSuffix(image, ".tgz") {
		return false
	}
	info, err := os.Stat(image)
	return err == nil && info.Mode().IsRegular()
}

// Unpacks a rootfs tarball or OCI image archive into the environment.
func (env *Environment) seed(archive string) error {
	if oci.IsArchive(archive) {
		err := oci.WalkLayers(archive, func(desc ocispec.Descriptor, r io.Reader) error {
			slog.Debug("applying layer", "id", env.id, "digest", desc.Digest)
			return applyLayer(r, env.dir)
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHostfs, err)
		}
		return nil
	}

	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHostfs, err)
	}
	defer f.Close()

	var r io.Reader = f
	if !strings.HasSuffix(archive, ".tar") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHostfs, err)
		}
		defer gz.Close()
		r = gz
	}

	if err := untar(r, env.dir, "/"); err != nil {
		return fmt.Errorf("%w: %w", ErrHostfs, err)
	}
	return nil
}
