package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cruciblehq/boxd/internal/build"
	"github.com/cruciblehq/boxd/internal/oci"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// Represents the 'boxd inspect' command.
type InspectCmd struct {
	Path string `arg:"" help:"Image archive written by 'boxd build -o', or the output directory holding it." type:"path"`
}

// Summary of an exported image.
type imageSummary struct {
	Build      string   `json:"build,omitempty"`
	Name       string   `json:"name,omitempty"`
	BaseImage  string   `json:"baseImage,omitempty"`
	Created    string   `json:"created,omitempty"`
	Platform   string   `json:"platform"`
	Manifest   string   `json:"manifest"`
	Layers     int      `json:"layers"`
	Workdir    string   `json:"workdir,omitempty"`
	Entrypoint []string `json:"entrypoint,omitempty"`
	Cmd        []string `json:"cmd,omitempty"`
	Env        []string `json:"env,omitempty"`
}

// Executes the inspect command.
func (c *InspectCmd) Run(ctx context.Context) error {
	s, err := inspect(c.Path)
	if err != nil {
		return err
	}
	return printJSON(s)
}

// Summarizes the image at path.
//
// A directory is read as a build output: its artifact descriptor names the
// archive next to it and contributes the build id.
func inspect(path string) (*imageSummary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		img, err := oci.InspectFile(path)
		if err != nil {
			return nil, err
		}
		s := summarize(img)
		return &s, nil
	}

	a, err := build.ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	if a.Image == "" {
		return nil, errors.Errorf("%s: build %s exported no image", path, a.ID)
	}

	img, err := oci.InspectFile(filepath.Join(path, filepath.Base(a.Image)))
	if err != nil {
		return nil, err
	}
	s := summarize(img)
	s.Build = a.ID
	return &s, nil
}

// Extracts the fields of interest from an inspected image.
func summarize(img *oci.Image) imageSummary {
	cfg := img.Config
	return imageSummary{
		Name:       img.Ref.Annotations[ocispec.AnnotationRefName],
		BaseImage:  img.Ref.Annotations[ocispec.AnnotationBaseImageName],
		Created:    img.Ref.Annotations[ocispec.AnnotationCreated],
		Platform:   cfg.OS + "/" + cfg.Architecture,
		Manifest:   img.Ref.Digest.String(),
		Layers:     len(img.Manifest.Layers),
		Workdir:    cfg.Config.WorkingDir,
		Entrypoint: cfg.Config.Entrypoint,
		Cmd:        cfg.Config.Cmd,
		Env:        cfg.Config.Env,
	}
}
