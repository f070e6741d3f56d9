package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/cruciblehq/boxd/internal/paths"
)

// Filename of the artifact descriptor written next to an exported image.
const artifactFilename = "artifact.json"

// Describes the product of a build: the final environment state that was
// exported, and the metadata needed to invoke it later.
type Artifact struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	BaseImage  string   `json:"baseImage"`
	Platform   string   `json:"platform"`
	Workdir    string   `json:"workdir"`
	Entrypoint []string `json:"entrypoint,omitempty"`
	Cmd        []string `json:"cmd,omitempty"`
	Env        []string `json:"env,omitempty"`
	Image      string   `json:"image,omitempty"` // Path to the exported image archive.
}

// Returns the image config recorded on export.
func (a Artifact) imageConfig() engine.ImageConfig {
	return engine.ImageConfig{
		Name:       a.Name,
		BaseImage:  a.BaseImage,
		Platform:   a.Platform,
		Workdir:    a.Workdir,
		Entrypoint: a.Entrypoint,
		Cmd:        a.Cmd,
		Env:        a.Env,
	}
}

// Writes the artifact descriptor to output/artifact.json.
func writeArtifact(output string, a Artifact) error {
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err := os.WriteFile(filepath.Join(output, artifactFilename), append(b, '\n'), paths.DefaultFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	return nil
}

// Reads an artifact descriptor previously written to dir.
func ReadArtifact(dir string) (*Artifact, error) {
	b, err := os.ReadFile(filepath.Join(dir, artifactFilename))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	return &a, nil
}
