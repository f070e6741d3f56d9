package oci

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/cruciblehq/boxd/internal/engine"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Writes an image archive holding the tree from writeTree, returning its
// path and the uncompressed layer.
func writeImage(t *testing.T) (string, []byte) {
	t.Helper()
	var layer bytes.Buffer
	require.NoError(t, PackDir(&layer, writeTree(t)))

	path := filepath.Join(t.TempDir(), "image.tar")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = WriteArchive(f, bytes.NewReader(layer.Bytes()), engine.ImageConfig{Platform: "linux/amd64"}, time.Now())
	require.NoError(t, err)
	return path, layer.Bytes()
}

func readEntries(t *testing.T, r io.Reader) map[string]*tar.Header {
	t.Helper()
	entries := map[string]*tar.Header{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries
		}
		require.NoError(t, err)
		entries[hdr.Name] = hdr
	}
}

func TestIsArchive(t *testing.T) {
	path, layer := writeImage(t)
	assert.True(t, IsArchive(path))

	rootfs := filepath.Join(t.TempDir(), "rootfs.tar")
	require.NoError(t, os.WriteFile(rootfs, layer, 0o644))
	assert.False(t, IsArchive(rootfs))

	assert.False(t, IsArchive(filepath.Join(t.TempDir(), "missing.tar")))
}

func TestWalkLayers(t *testing.T) {
	path, layer := writeImage(t)

	var got [][]byte
	err := WalkLayers(path, func(desc ocispec.Descriptor, r io.Reader) error {
		assert.Equal(t, ocispec.MediaTypeImageLayerGzip, desc.MediaType)
		b, err := io.ReadAll(r)
		got = append(got, b)
		return err
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, layer, got[0])
}

func TestWalkLayersPartialRead(t *testing.T) {
	path, _ := writeImage(t)

	err := WalkLayers(path, func(desc ocispec.Descriptor, r io.Reader) error {
		_, err := tar.NewReader(r).Next()
		return err
	})
	require.NoError(t, err)
}

func TestWalkLayersRejectsCorruptBlob(t *testing.T) {
	path, _ := writeImage(t)
	img, err := InspectFile(path)
	require.NoError(t, err)
	layerName := blobPath(img.Manifest.Layers[0].Digest)

	src, err := os.ReadFile(path)
	require.NoError(t, err)

	var out bytes.Buffer
	tr := tar.NewReader(bytes.NewReader(src))
	tw := tar.NewWriter(&out)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		if hdr.Name == layerName {
			b[len(b)-1] ^= 0xff
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err = tw.Write(b)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	corrupt := filepath.Join(t.TempDir(), "corrupt.tar")
	require.NoError(t, os.WriteFile(corrupt, out.Bytes(), 0o644))

	err = WalkLayers(corrupt, func(desc ocispec.Descriptor, r io.Reader) error {
		_, err := io.Copy(io.Discard, r)
		return err
	})
	require.Error(t, err)
}

func TestPackDirHardlinksAndFifos(t *testing.T) {
	dir := writeTree(t)
	require.NoError(t, os.Link(filepath.Join(dir, "go/src/x/main.go"), filepath.Join(dir, "go/src/x/z.go")))
	require.NoError(t, syscall.Mkfifo(filepath.Join(dir, "go/pipe"), 0o600))

	var buf bytes.Buffer
	require.NoError(t, PackDir(&buf, dir))
	entries := readEntries(t, &buf)

	require.Contains(t, entries, "go/src/x/z.go")
	link := entries["go/src/x/z.go"]
	assert.Equal(t, byte(tar.TypeLink), link.Typeflag)
	assert.Equal(t, "go/src/x/main.go", link.Linkname)
	assert.Zero(t, link.Size)
	assert.Equal(t, byte(tar.TypeReg), entries["go/src/x/main.go"].Typeflag)

	require.Contains(t, entries, "go/pipe")
	assert.Equal(t, byte(tar.TypeFifo), entries["go/pipe"].Typeflag)
}

func TestFilterOverlayWhiteouts(t *testing.T) {
	var in bytes.Buffer
	tw := tar.NewWriter(&in)
	headers := []*tar.Header{
		{Name: "etc/", Typeflag: tar.TypeDir, Mode: 0755, Format: tar.FormatPAX},
		{Name: "etc/gone", Typeflag: tar.TypeChar, Mode: 0, Uid: 7, Format: tar.FormatPAX},
		{Name: "etc/null", Typeflag: tar.TypeChar, Mode: 0666, Devmajor: 1, Devminor: 3, Format: tar.FormatPAX},
		{Name: "var/", Typeflag: tar.TypeDir, Mode: 0755, Format: tar.FormatPAX, PAXRecords: map[string]string{paxOpaqueRecord: "y"}},
	}
	for _, hdr := range headers {
		require.NoError(t, tw.WriteHeader(hdr))
	}
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "var/kept", Typeflag: tar.TypeReg, Mode: 0644, Size: 2}))
	_, err := tw.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	var out bytes.Buffer
	require.NoError(t, FilterOverlayWhiteouts(&out, &in))
	entries := readEntries(t, &out)

	assert.NotContains(t, entries, "etc/gone")
	require.Contains(t, entries, "etc/.wh.gone")
	assert.Equal(t, byte(tar.TypeReg), entries["etc/.wh.gone"].Typeflag)
	assert.Equal(t, 7, entries["etc/.wh.gone"].Uid)

	require.Contains(t, entries, "etc/null")
	assert.Equal(t, byte(tar.TypeChar), entries["etc/null"].Typeflag)

	require.Contains(t, entries, "var/.wh..wh..opq")
	assert.NotContains(t, entries["var/"].PAXRecords, paxOpaqueRecord)
	assert.Contains(t, entries, "var/kept")
}
