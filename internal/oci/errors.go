package oci

import "github.com/pkg/errors"

var (
	ErrPack    = errors.New("failed to pack layer")
	ErrArchive = errors.New("failed to write image archive")
	ErrRead    = errors.New("failed to read image archive")
)
