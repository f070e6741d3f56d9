package server

import "github.com/pkg/errors"

var (
	ErrServer   = errors.New("server error")
	ErrBuildReq = errors.New("invalid build request")
)
