package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/containerd/v2/core/content"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/containerd/v2/core/images/archive"
	"github.com/containerd/containerd/v2/pkg/rootfs"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/cruciblehq/boxd/internal/paths"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Filename of the OCI archive produced by Export.
const exportFilename = "image.tar"

// Commits the container's changes as a new layer and writes the resulting
// image to output/image.tar, returning the archive path.
//
// The committed manifest and config only live in the content store under a
// lease held for the duration of the export. The base image record is never
// updated, so the next build starts from the image as it was pulled.
func (c *Container) Export(ctx context.Context, output string, cfg engine.ImageConfig) (string, error) {
	if err := os.MkdirAll(output, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	loaded, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	info, err := loaded.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	ctx, release, err := c.client.WithLease(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	defer release(context.WithoutCancel(ctx))

	layer, err := rootfs.CreateDiff(ctx, info.SnapshotKey, c.client.SnapshotService(info.Snapshotter), c.client.DiffService())
	if err != nil {
		return "", fmt.Errorf("%w: diff %s: %w", ErrRuntime, c.id, err)
	}

	target, err := c.commit(ctx, info.Image, layer, cfg)
	if err != nil {
		return "", err
	}

	name := cfg.Name
	if name == "" {
		name = info.Image
	}

	exportPath := filepath.Join(output, exportFilename)
	if err := c.writeArchive(ctx, target, name, exportPath); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Info("image exported", "path", exportPath, "digest", target.Digest)
	return exportPath, nil
}

// Stores a manifest that extends the base image with layer and carries cfg,
// returning its descriptor.
func (c *Container) commit(ctx context.Context, imageName string, layer ocispec.Descriptor, cfg engine.ImageConfig) (ocispec.Descriptor, error) {
	cs := c.client.ContentStore()

	img, err := c.client.ImageService().Get(ctx, imageName)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	p, err := platforms.Parse(c.platform)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	manifest, err := images.Manifest(ctx, cs, img.Target, platforms.Only(p))
	if errdefs.IsNotFound(err) {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %s for %s: %w", ErrNoManifest, imageName, c.platform, err)
	}
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	config, err := readJSON[ocispec.Image](ctx, cs, manifest.Config)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	diffID, err := images.GetDiffID(ctx, cs, layer)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	now := time.Now().UTC()
	config.Created = &now
	config.RootFS.DiffIDs = append(config.RootFS.DiffIDs, diffID)
	config.History = append(config.History, ocispec.History{Created: &now, CreatedBy: "boxd", Comment: "from " + imageName})
	applyImageConfig(&config.Config, cfg)

	manifest.Config, err = writeJSON(ctx, cs, manifest.Config.MediaType, config, nil)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	manifest.Layers = append(manifest.Layers, layer)

	mediaType := manifest.MediaType
	if mediaType == "" {
		mediaType = ocispec.MediaTypeImageManifest
	}
	desc, err := writeJSON(ctx, cs, mediaType, manifest, gcRefLabels(manifest))
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	desc.Platform = &ocispec.Platform{OS: config.OS, Architecture: config.Architecture, Variant: config.Variant}
	return desc, nil
}

// Applies the recorded process settings to an image config.
//
// Entrypoint and cmd are replaced as a pair when either was recorded, so a
// recorded entrypoint never runs with the base image's arguments.
func applyImageConfig(dst *ocispec.ImageConfig, cfg engine.ImageConfig) {
	if cfg.Workdir != "" {
		dst.WorkingDir = cfg.Workdir
	}
	if cfg.Entrypoint != nil || cfg.Cmd != nil {
		dst.Entrypoint = cfg.Entrypoint
		dst.Cmd = cfg.Cmd
	}
	if len(cfg.Env) > 0 {
		dst.Env = engine.MergeEnv(dst.Env, cfg.Env)
	}
}

// Exports the manifest at target, annotated with name, as an OCI archive.
func (c *Container) writeArchive(ctx context.Context, target ocispec.Descriptor, name, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return c.client.Export(ctx, f, archive.WithManifest(target, name))
}

func readJSON[T any](ctx context.Context, p content.Provider, desc ocispec.Descriptor) (T, error) {
	var v T
	b, err := content.ReadBlob(ctx, p, desc)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(b, &v)
	return v, err
}

// Stores v as a JSON blob and returns its descriptor.
func writeJSON(ctx context.Context, cs content.Store, mediaType string, v any, labels map[string]string) (ocispec.Descriptor, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(b),
		Size:      int64(len(b)),
	}
	ref := "boxd-" + desc.Digest.Encoded()
	if err := content.WriteBlob(ctx, cs, ref, bytes.NewReader(b), desc, content.WithLabels(labels)); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Labels that let containerd's garbage collector reach a manifest's config
// and layers.
func gcRefLabels(m ocispec.Manifest) map[string]string {
	labels := map[string]string{
		"containerd.io/gc.ref.content.config": m.Config.Digest.String(),
	}
	for i, layer := range m.Layers {
		labels[fmt.Sprintf("containerd.io/gc.ref.content.l.%d", i)] = layer.Digest.String()
	}
	return labels
}
