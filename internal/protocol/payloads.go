package protocol

import (
	"github.com/cruciblehq/boxd/internal/build"
	"github.com/pkg/errors"
)

// Payload of a [CmdBuild] request.
//
// The plan travels as YAML text so the daemon parses it with the same
// decoder the CLI uses for local builds. Root and Output are paths on the
// daemon's host and must be absolute.
type BuildRequest struct {
	Plan     string `json:"plan"`
	Root     string `json:"root"`
	Output   string `json:"output,omitempty"`
	Platform string `json:"platform,omitempty"`
	Name     string `json:"name,omitempty"`
	Keep     bool   `json:"keep,omitempty"`
}

// Payload of a successful [CmdBuild] response.
type BuildResult struct {
	Artifact build.Artifact `json:"artifact"`
}

// Payload of a successful [CmdStatus] response.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Engine  string `json:"engine"`
	Builds  int    `json:"builds"` // Builds completed successfully.
	Failed  int    `json:"failed"` // Builds that returned an error.
	Active  int    `json:"active"` // Builds currently executing.
}

// Identifies which step failure an [ErrorResult] reports.
type ErrorKind string

const (
	ErrorKindCopy    ErrorKind = "copy"
	ErrorKindPath    ErrorKind = "path"
	ErrorKindCommand ErrorKind = "command"
)

// Payload of a [CmdError] response.
//
// Kind and ExitCode are set when the failure came from a plan step, so the
// CLI can report the same exit status for remote and local builds.
type ErrorResult struct {
	Message  string    `json:"message"`
	Kind     ErrorKind `json:"kind,omitempty"`
	ExitCode int       `json:"exitCode,omitempty"`
}

// Builds an error response from err, classifying build step failures.
func NewErrorResult(err error) *ErrorResult {
	res := &ErrorResult{Message: err.Error()}

	var (
		copyErr *build.CopyError
		pathErr *build.PathError
		cmdErr  *build.CommandError
	)
	switch {
	case errors.As(err, &cmdErr):
		res.Kind = ErrorKindCommand
		res.ExitCode = cmdErr.ExitCode
	case errors.As(err, &copyErr):
		res.Kind = ErrorKindCopy
	case errors.As(err, &pathErr):
		res.Kind = ErrorKindPath
	}
	return res
}
