package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/boxd/internal/engine"
)

// Holds the state for a single plan execution.
//
// An interpreter is created per build and discarded with it.
type interpreter struct {
	eng  engine.Engine // Engine the environment is started from.
	opts Options       // Normalized build options.
}

// Creates a new [interpreter] from normalized options.
func newInterpreter(eng engine.Engine, opts Options) *interpreter {
	return &interpreter{eng: eng, opts: opts}
}

// Starts the environment, applies every step and produces the artifact.
func (in *interpreter) run(ctx context.Context) (*Result, error) {
	p := in.opts.Plan

	env, err := in.eng.Start(ctx, p.From, in.opts.ID, in.opts.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %w", ErrEnvironment, p.From, err)
	}
	if !in.opts.Keep {
		defer env.Destroy(context.WithoutCancel(ctx))
	}

	state := newStepState()

	if err := executeSteps(ctx, env, p.Steps, state, in.opts.Root); err != nil {
		return nil, err
	}

	artifact := in.artifact(state)

	if in.opts.Output != "" {
		if err := in.export(ctx, env, &artifact); err != nil {
			return nil, err
		}
	}

	slog.Info("plan complete", "id", artifact.ID, "workdir", artifact.Workdir, "image", artifact.Image)

	return &Result{Artifact: artifact}, nil
}

// Builds the artifact descriptor from the final step state.
func (in *interpreter) artifact(state *stepState) Artifact {
	return Artifact{
		ID:         in.opts.ID,
		Name:       in.opts.Name,
		BaseImage:  in.opts.Plan.From,
		Platform:   in.opts.Platform,
		Workdir:    state.workdir,
		Entrypoint: state.entrypoint,
		Cmd:        state.cmd,
		Env:        state.environ(),
	}
}

// Exports the environment as an image and records the artifact next to it.
func (in *interpreter) export(ctx context.Context, env engine.Environment, artifact *Artifact) error {
	image, err := env.Export(ctx, in.opts.Output, artifact.imageConfig())
	if err != nil {
		return fmt.Errorf("%w: export: %w", ErrEnvironment, err)
	}
	artifact.Image = image

	return writeArtifact(in.opts.Output, *artifact)
}
