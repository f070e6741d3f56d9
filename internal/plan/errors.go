package plan

import "github.com/pkg/errors"

var (
	ErrInvalidPlan = errors.New("invalid plan")
	ErrReadPlan    = errors.New("failed to read plan")
)
