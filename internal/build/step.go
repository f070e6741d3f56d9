package build

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/cruciblehq/boxd/internal/plan"
	"github.com/pkg/errors"
)

// Executes a list of steps in order against the environment.
//
// Execution stops at the first failing step. The returned error names the
// step's 1-based position and kind and wraps the step's own error, so
// [CopyError], [PathError] and [CommandError] remain reachable through
// errors.As.
func executeSteps(ctx context.Context, env engine.Environment, steps []plan.Step, state *stepState, buildCtx string) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "step %d (%s)", i+1, step.Kind())
		}
		if err := executeStep(ctx, env, step, state, buildCtx); err != nil {
			return errors.Wrapf(err, "step %d (%s)", i+1, step.Kind())
		}
	}
	return nil
}

// Executes a single step, dispatching on its concrete type.
func executeStep(ctx context.Context, env engine.Environment, step plan.Step, state *stepState, buildCtx string) error {
	switch s := step.(type) {
	case plan.CopyStep:
		return executeCopy(ctx, env, s, state, buildCtx)

	case plan.WorkdirStep:
		return executeWorkdir(ctx, env, s, state)

	case plan.RunStep:
		return executeRun(ctx, env, s, state)

	case plan.ExecConfigStep:
		slog.Debug("exec config", "entrypoint", s.Entrypoint, "cmd", s.Cmd)
		state.setExec(s.Entrypoint, s.Cmd)

	case plan.EnvStep:
		state.setEnv(s.Env)

	case plan.ShellStep:
		state.shell = s.Shell

	default:
		return errors.Wrapf(ErrUnsupportedStep, "%T", step)
	}

	return nil
}

// Creates the working directory and makes it current for later steps.
func executeWorkdir(ctx context.Context, env engine.Environment, step plan.WorkdirStep, state *stepState) error {
	dir := state.resolvePath(step.Path)

	if err := env.MkdirAll(ctx, dir); err != nil {
		return &PathError{Path: dir, Err: err}
	}

	slog.Debug("workdir", "path", dir)
	state.workdir = dir
	return nil
}

// Evaluates the step's guard and, when it holds, runs the command in the
// current workdir with the accumulated environment.
func executeRun(ctx context.Context, env engine.Environment, step plan.RunStep, state *stepState) error {
	if !step.Guard.IsZero() {
		dir := step.Guard.Path(state.workdir)

		exists, err := env.IsDir(ctx, dir)
		if err != nil {
			return &PathError{Path: dir, Err: err}
		}

		if !step.Guard.Holds(exists) {
			slog.Info("skipping run step", "command", step.Command, "guard", dir, "exists", exists)
			return nil
		}
	}

	slog.Info("run", "command", step.Command, "workdir", state.workdir)

	result, err := env.Exec(ctx, state.shell, step.Command, state.environ(), state.workdir)
	if err != nil {
		return errors.Wrapf(err, "run %q", step.Command)
	}

	if result.Stdout != "" {
		slog.Debug("run output", "stdout", result.Stdout)
	}

	if result.ExitCode != 0 {
		return &CommandError{
			Command:  step.Command,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}

	return nil
}
