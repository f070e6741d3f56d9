package oci

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/containerd/platforms"
	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/klauspost/pgzip"
	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (

	// Name of the index file at the root of an OCI layout.
	indexFile = "index.json"

	// Directory holding content-addressed blobs in an OCI layout.
	blobsDir = "blobs"
)

// Writes a single-image OCI archive to w.
//
// The layer is read as an uncompressed tar, gzip-compressed, and stored as
// the image's only layer. The image config carries cfg's workdir, env,
// entrypoint and cmd; the index entry is annotated with cfg.Name and
// cfg.BaseImage. Returns the manifest descriptor.
func WriteArchive(w io.Writer, layer io.Reader, cfg engine.ImageConfig, created time.Time) (ocispec.Descriptor, error) {
	p, err := parsePlatform(cfg.Platform)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	blob, err := os.CreateTemp("", "boxd-layer-*")
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	defer os.Remove(blob.Name())
	defer blob.Close()

	layerDesc, diffID, err := compressLayer(blob, layer)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	config := imageConfig(cfg, p, diffID, created)
	configBytes, configDesc, err := marshalBlob(ocispec.MediaTypeImageConfig, config)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	manifest := ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    configDesc,
		Layers:    []ocispec.Descriptor{layerDesc},
	}
	manifestBytes, manifestDesc, err := marshalBlob(ocispec.MediaTypeImageManifest, manifest)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	manifestDesc.Platform = &p
	manifestDesc.Annotations = indexAnnotations(cfg, created)

	index := ocispec.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageIndex,
		Manifests: []ocispec.Descriptor{manifestDesc},
	}
	indexBytes, err := json.Marshal(index)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	layoutBytes, err := json.Marshal(ocispec.ImageLayout{Version: ocispec.ImageLayoutVersion})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	if _, err := blob.Seek(0, io.SeekStart); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	tw := tar.NewWriter(w)
	entries := []struct {
		name string
		size int64
		r    io.Reader
	}{
		{ocispec.ImageLayoutFile, int64(len(layoutBytes)), bytes.NewReader(layoutBytes)},
		{indexFile, int64(len(indexBytes)), bytes.NewReader(indexBytes)},
		{blobPath(layerDesc.Digest), layerDesc.Size, blob},
		{blobPath(configDesc.Digest), configDesc.Size, bytes.NewReader(configBytes)},
		{blobPath(manifestDesc.Digest), manifestDesc.Size, bytes.NewReader(manifestBytes)},
	}
	for _, e := range entries {
		if err := writeFile(tw, e.name, e.size, e.r); err != nil {
			return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
		}
	}
	if err := tw.Close(); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	return manifestDesc, nil
}

// Compresses layer into dst, returning the compressed blob descriptor and
// the digest of the uncompressed content.
func compressLayer(dst io.Writer, layer io.Reader) (ocispec.Descriptor, digest.Digest, error) {
	compressed := digest.Canonical.Digester()
	uncompressed := digest.Canonical.Digester()
	counter := &countingWriter{}

	gz := pgzip.NewWriter(io.MultiWriter(dst, compressed.Hash(), counter))
	if _, err := io.Copy(gz, io.TeeReader(layer, uncompressed.Hash())); err != nil {
		gz.Close()
		return ocispec.Descriptor{}, "", err
	}
	if err := gz.Close(); err != nil {
		return ocispec.Descriptor{}, "", err
	}

	return ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageLayerGzip,
		Digest:    compressed.Digest(),
		Size:      counter.n,
	}, uncompressed.Digest(), nil
}

// Builds the image config for a single-layer image.
func imageConfig(cfg engine.ImageConfig, p ocispec.Platform, diffID digest.Digest, created time.Time) ocispec.Image {
	return ocispec.Image{
		Created:  &created,
		Platform: p,
		Config: ocispec.ImageConfig{
			Env:        cfg.Env,
			Entrypoint: cfg.Entrypoint,
			Cmd:        cfg.Cmd,
			WorkingDir: cfg.Workdir,
		},
		RootFS: ocispec.RootFS{
			Type:    "layers",
			DiffIDs: []digest.Digest{diffID},
		},
		History: []ocispec.History{{
			Created:   &created,
			CreatedBy: "boxd",
			Comment:   "from " + cfg.BaseImage,
		}},
	}
}

func indexAnnotations(cfg engine.ImageConfig, created time.Time) map[string]string {
	annotations := map[string]string{
		ocispec.AnnotationCreated: created.UTC().Format(time.RFC3339),
	}
	if cfg.Name != "" {
		annotations[ocispec.AnnotationRefName] = cfg.Name
	}
	if cfg.BaseImage != "" {
		annotations[ocispec.AnnotationBaseImageName] = cfg.BaseImage
	}
	return annotations
}

// Parses an OCI platform string, defaulting to the host platform.
func parsePlatform(s string) (ocispec.Platform, error) {
	if s == "" {
		return platforms.DefaultSpec(), nil
	}
	return platforms.Parse(s)
}

// Serializes v and returns the bytes with their descriptor.
func marshalBlob(mediaType string, v any) ([]byte, ocispec.Descriptor, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, ocispec.Descriptor{}, err
	}
	return b, ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(b),
		Size:      int64(len(b)),
	}, nil
}

// Returns the layout path of a blob ("blobs/sha256/<hex>").
func blobPath(d digest.Digest) string {
	return path.Join(blobsDir, d.Algorithm().String(), d.Encoded())
}

func writeFile(tw *tar.Writer, name string, size int64, r io.Reader) error {
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     size,
		Mode:     0644,
		ModTime:  time.Unix(0, 0),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := io.CopyN(tw, r, size)
	return err
}

// Counts bytes written through it.
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
