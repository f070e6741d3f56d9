package runtime

import "github.com/pkg/errors"

var (
	ErrRuntime        = errors.New("runtime error")
	ErrNoManifest     = errors.New("image has no manifest for the platform")
	ErrEmptyArchive   = errors.New("archive contains no images")
	ErrMultipleImages = errors.New("archive contains multiple images")
)
