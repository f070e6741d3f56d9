package oci

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Docker schema 2 layer media types, found in images pulled from registries
// that predate OCI.
const (
	dockerLayer     = "application/vnd.docker.image.rootfs.diff.tar"
	dockerLayerGzip = "application/vnd.docker.image.rootfs.diff.tar.gzip"
)

// Reports whether the file at path is a tar archive holding an OCI image
// layout.
func IsArchive(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err != nil {
			return false
		}
		if entryName(hdr) == ocispec.ImageLayoutFile {
			return true
		}
	}
}

// Calls fn with the uncompressed content of each layer of the image in the
// archive at path, base layer first.
//
// Each blob is verified against its descriptor digest once fn returns, so a
// corrupted layer fails the walk even if fn consumed it without error.
func WalkLayers(path string, fn func(desc ocispec.Descriptor, r io.Reader) error) error {
	img, err := InspectFile(path)
	if err != nil {
		return err
	}

	for _, desc := range img.Manifest.Layers {
		if err := walkLayer(path, desc, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkLayer(archive string, desc ocispec.Descriptor, fn func(ocispec.Descriptor, io.Reader) error) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()

	name := blobPath(desc.Digest)
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("%w: missing layer %s", ErrRead, desc.Digest)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRead, err)
		}
		if entryName(hdr) == name {
			break
		}
	}

	if err := desc.Digest.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	verifier := desc.Digest.Verifier()
	blob := io.TeeReader(tr, verifier)

	r, err := decompress(desc.MediaType, blob)
	if err != nil {
		return err
	}
	err = fn(desc, r)

	// Stops any read-ahead before the rest of the blob is drained.
	r.Close()
	if err != nil {
		return err
	}

	if _, err := io.Copy(io.Discard, blob); err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	if !verifier.Verified() {
		return fmt.Errorf("%w: layer content does not match %s", ErrRead, desc.Digest)
	}
	return nil
}

// Wraps r in the decompressor for a layer media type.
func decompress(mediaType string, r io.Reader) (io.ReadCloser, error) {
	switch mediaType {
	case ocispec.MediaTypeImageLayer, dockerLayer:
		return io.NopCloser(r), nil

	case ocispec.MediaTypeImageLayerGzip, dockerLayerGzip:
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}
		return gz, nil

	case ocispec.MediaTypeImageLayerZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}
		return zr.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("%w: unsupported layer media type %q", ErrRead, mediaType)
}

// Returns an archive entry's name relative to the layout root.
func entryName(hdr *tar.Header) string {
	return path.Clean(hdr.Name)
}
