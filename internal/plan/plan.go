package plan

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// An ordered sequence of steps applied on top of a base image.
//
// A plan is decoded once, validated, and handed to the build interpreter,
// which applies its steps strictly in declaration order.
type Plan struct {
	From  string            // Base image identifier.
	Vars  map[string]string // Substitution variables, already applied to Steps.
	Steps []Step            // Directives in declaration order.
}

// Reads and parses the plan file at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadPlan, path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return p, nil
}

// Checks structural constraints that decoding alone cannot enforce.
func (p *Plan) Validate() error {
	if p.From == "" {
		return errors.Wrap(ErrInvalidPlan, "missing base image (from)")
	}
	if len(p.Steps) == 0 {
		return errors.Wrap(ErrInvalidPlan, "plan has no steps")
	}

	for i, step := range p.Steps {
		if err := validateStep(step); err != nil {
			return errors.Wrapf(err, "step %d (%s)", i+1, step.Kind())
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch s := step.(type) {
	case CopyStep:
		if s.Src == "" || s.Dest == "" {
			return errors.Wrap(ErrInvalidPlan, "copy requires a source and a destination")
		}
	case WorkdirStep:
		if s.Path == "" {
			return errors.Wrap(ErrInvalidPlan, "workdir requires a path")
		}
	case RunStep:
		if s.Command == "" {
			return errors.Wrap(ErrInvalidPlan, "run requires a command")
		}
		if s.Guard.Unless != "" && s.Guard.If != "" {
			return errors.Wrap(ErrInvalidPlan, "run guard cannot set both if and unless")
		}
	case ExecConfigStep:
		if s.Entrypoint == nil && s.Cmd == nil {
			return errors.Wrap(ErrInvalidPlan, "exec config requires an entrypoint or a cmd")
		}
	case EnvStep:
		for k := range s.Env {
			if k == "" {
				return errors.Wrap(ErrInvalidPlan, "env keys cannot be empty")
			}
		}
	case ShellStep:
		if s.Shell == "" {
			return errors.Wrap(ErrInvalidPlan, "shell requires a path")
		}
	default:
		return errors.Wrapf(ErrInvalidPlan, "unsupported step type %T", step)
	}
	return nil
}
