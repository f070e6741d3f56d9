package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cruciblehq/boxd/internal/build"
	"github.com/cruciblehq/boxd/internal/client"
	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/cruciblehq/boxd/internal/oci"
	"github.com/cruciblehq/boxd/internal/protocol"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"generic", errors.New("boom"), 1},
		{"local command", fmt.Errorf("step 2 (run): %w", &build.CommandError{Command: "fetch", ExitCode: 3}), 3},
		{"signal", &build.CommandError{Command: "fetch", ExitCode: -1}, 1},
		{"remote command", &client.RemoteError{ErrorResult: protocol.ErrorResult{Kind: protocol.ErrorKindCommand, ExitCode: 4}}, 4},
		{"remote copy", &client.RemoteError{ErrorResult: protocol.ErrorResult{Kind: protocol.ErrorKindCopy}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Fatalf("ExitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	img := &oci.Image{
		Ref: ocispec.Descriptor{
			Digest: digest.FromString("manifest"),
			Annotations: map[string]string{
				ocispec.AnnotationRefName:       "x:latest",
				ocispec.AnnotationBaseImageName: "golang",
			},
		},
		Manifest: ocispec.Manifest{Layers: []ocispec.Descriptor{{}}},
	}
	img.Config.OS = "linux"
	img.Config.Architecture = "arm64"
	img.Config.Config.WorkingDir = "/go/src/x"
	img.Config.Config.Entrypoint = []string{"/bin/sh"}

	s := summarize(img)

	if s.Name != "x:latest" || s.BaseImage != "golang" {
		t.Fatalf("names = %q, %q", s.Name, s.BaseImage)
	}
	if s.Platform != "linux/arm64" {
		t.Fatalf("platform = %q", s.Platform)
	}
	if s.Layers != 1 || s.Workdir != "/go/src/x" || s.Manifest != img.Ref.Digest.String() {
		t.Fatalf("summary = %+v", s)
	}
}

// Writes an image archive and its artifact descriptor into a fresh build
// output directory.
func writeOutput(t *testing.T, a build.Artifact) string {
	t.Helper()
	out := t.TempDir()

	f, err := os.Create(filepath.Join(out, "image.tar"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var layer bytes.Buffer
	if err := oci.PackDir(&layer, t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if _, err := oci.WriteArchive(f, &layer, engine.ImageConfig{Name: a.Name, Platform: a.Platform, Workdir: a.Workdir}, time.Now()); err != nil {
		t.Fatal(err)
	}

	b, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(out, "artifact.json"), b, 0o644); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestInspectOutputDirectory(t *testing.T) {
	out := writeOutput(t, build.Artifact{
		ID:       "b1",
		Name:     "x:latest",
		Platform: "linux/arm64",
		Workdir:  "/go/src/x",
		Image:    "/moved/elsewhere/image.tar",
	})

	s, err := inspect(out)
	if err != nil {
		t.Fatal(err)
	}
	if s.Build != "b1" || s.Name != "x:latest" || s.Platform != "linux/arm64" || s.Workdir != "/go/src/x" {
		t.Fatalf("summary = %+v", s)
	}

	s, err = inspect(filepath.Join(out, "image.tar"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Build != "" || s.Name != "x:latest" {
		t.Fatalf("archive summary = %+v", s)
	}
}

func TestInspectOutputWithoutImage(t *testing.T) {
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "artifact.json"), []byte(`{"id":"b2"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := inspect(out); err == nil {
		t.Fatal("expected error for an output without an image")
	}
}

func TestInspectMissingArtifact(t *testing.T) {
	_, err := inspect(t.TempDir())
	if !errors.Is(err, build.ErrFileSystemOperation) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}
