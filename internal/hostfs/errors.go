package hostfs

import "github.com/pkg/errors"

var (
	ErrHostfs           = errors.New("host environment error")
	ErrUnsupportedEntry = errors.New("unsupported tar entry")
)
