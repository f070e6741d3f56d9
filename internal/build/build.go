package build

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	goruntime "runtime"

	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/cruciblehq/boxd/internal/plan"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Controls plan execution.
type Options struct {
	Plan     *plan.Plan // Plan to execute.
	ID       string     // Environment and artifact ID. Generated when empty.
	Name     string     // Reference name annotated on the exported image.
	Root     string     // Build context, for resolving copy sources. Defaults to ".".
	Output   string     // Directory for the exported image. Empty skips the export.
	Platform string     // Target platform (e.g., "linux/amd64"). Defaults to the host.
	Keep     bool       // Leave the environment in place after the build.
}

// Returned after successful plan execution.
type Result struct {
	Artifact Artifact
}

// Executes a plan against an engine.
//
// A single environment is started from the plan's base image, the steps are
// applied strictly in declaration order, and the first failure aborts the
// build. On success the recorded image config is exported to the output
// directory when one is set. The environment is destroyed afterwards unless
// [Options.Keep] is set.
func Run(ctx context.Context, eng engine.Engine, opts Options) (*Result, error) {
	if opts.Plan == nil {
		return nil, errors.Wrap(plan.ErrInvalidPlan, "no plan given")
	}
	if err := opts.Plan.Validate(); err != nil {
		return nil, err
	}

	if opts.ID == "" {
		opts.ID = "boxd-" + uuid.NewString()
	}
	if opts.Platform == "" {
		opts.Platform = "linux/" + goruntime.GOARCH
	}
	if opts.Root == "" {
		opts.Root = "."
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	opts.Root = root

	slog.Info("executing plan",
		"id", opts.ID,
		"from", opts.Plan.From,
		"steps", len(opts.Plan.Steps),
		"platform", opts.Platform,
		"output", opts.Output,
	)

	return newInterpreter(eng, opts).run(ctx)
}
