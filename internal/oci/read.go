package oci

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// Metadata of the image held by an archive written with [WriteArchive].
type Image struct {
	Index    ocispec.Index      // Top-level index.
	Manifest ocispec.Manifest   // Manifest of the first (only) index entry.
	Config   ocispec.Image      // Image config referenced by the manifest.
	Ref      ocispec.Descriptor // Index entry the manifest was resolved from.
}

// Reads the image metadata from the OCI archive at path.
func InspectFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()
	return Inspect(f)
}

// Reads the image metadata from an OCI archive stream.
//
// Blobs are indexed by path in a single pass. Layer blobs are skipped, so
// only the small JSON documents are held in memory.
func Inspect(r io.Reader) (*Image, error) {
	docs := make(map[string][]byte)

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}
		if hdr.Typeflag != tar.TypeReg || hdr.Size > maxDocumentSize {
			continue
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRead, err)
		}
		docs[entryName(hdr)] = b
	}

	var img Image
	if err := decodeDoc(docs, indexFile, &img.Index); err != nil {
		return nil, err
	}
	if len(img.Index.Manifests) == 0 {
		return nil, errors.Wrap(ErrRead, "index has no manifests")
	}
	img.Ref = img.Index.Manifests[0]

	if err := decodeDoc(docs, blobPath(img.Ref.Digest), &img.Manifest); err != nil {
		return nil, err
	}
	if err := decodeDoc(docs, blobPath(img.Manifest.Config.Digest), &img.Config); err != nil {
		return nil, err
	}
	return &img, nil
}

// JSON documents larger than this are assumed to be layers.
const maxDocumentSize = 4 << 20

func decodeDoc(docs map[string][]byte, name string, v any) error {
	b, ok := docs[name]
	if !ok {
		return errors.Wrapf(ErrRead, "missing %s", name)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRead, name, err)
	}
	return nil
}
