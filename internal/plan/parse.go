package plan

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// On-disk shape of a plan file.
type document struct {
	From  string            `yaml:"from"`
	Vars  map[string]string `yaml:"vars"`
	Steps []rawStep         `yaml:"steps"`
}

// One entry of the steps list, before it is narrowed to a concrete [Step].
type rawStep struct {
	Copy       *copySpec         `yaml:"copy"`
	Workdir    string            `yaml:"workdir"`
	Run        string            `yaml:"run"`
	Unless     string            `yaml:"unless"`
	If         string            `yaml:"if"`
	Entrypoint *stringList       `yaml:"entrypoint"`
	Cmd        *stringList       `yaml:"cmd"`
	Env        map[string]string `yaml:"env"`
	Shell      string            `yaml:"shell"`
}

// Copy source and destination, written either as "src dest" or as a mapping.
type copySpec struct {
	Src  string `yaml:"src"`
	Dest string `yaml:"dest"`
}

func (c *copySpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parts := strings.Fields(node.Value)
		if len(parts) != 2 {
			return errors.Errorf("line %d: expected source and destination, got %q", node.Line, node.Value)
		}
		c.Src, c.Dest = parts[0], parts[1]
		return nil
	case yaml.MappingNode:
		type plain copySpec
		return node.Decode((*plain)(c))
	default:
		return errors.Errorf("line %d: copy must be a string or a mapping", node.Line)
	}
}

// A list of strings that also accepts a single scalar.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = stringList{node.Value}
		return nil
	}
	var items []string
	if err := node.Decode(&items); err != nil {
		return err
	}
	*l = items
	if *l == nil {
		*l = stringList{}
	}
	return nil
}

// Decodes, expands and validates a YAML plan.
//
// Unknown keys are rejected. Every entry under steps must carry exactly
// one directive; "unless" and "if" may only accompany "run", and
// "entrypoint" and "cmd" together form a single exec config step.
func Parse(data []byte) (*Plan, error) {
	var doc document

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, errors.Wrap(ErrInvalidPlan, "empty plan")
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	p := &Plan{
		From: doc.From,
		Vars: doc.Vars,
	}

	for i, raw := range doc.Steps {
		step, err := raw.narrow()
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i+1)
		}
		p.Steps = append(p.Steps, step)
	}

	p.expand()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Converts a decoded entry into its concrete step type.
func (r rawStep) narrow() (Step, error) {
	var steps []Step

	if r.Copy != nil {
		steps = append(steps, CopyStep{Src: r.Copy.Src, Dest: r.Copy.Dest})
	}
	if r.Workdir != "" {
		steps = append(steps, WorkdirStep{Path: r.Workdir})
	}
	if r.Run != "" {
		steps = append(steps, RunStep{
			Command: r.Run,
			Guard:   Guard{Unless: r.Unless, If: r.If},
		})
	}
	if r.Entrypoint != nil || r.Cmd != nil {
		steps = append(steps, ExecConfigStep{
			Entrypoint: listOrNil(r.Entrypoint),
			Cmd:        listOrNil(r.Cmd),
		})
	}
	if r.Env != nil {
		steps = append(steps, EnvStep{Env: r.Env})
	}
	if r.Shell != "" {
		steps = append(steps, ShellStep{Shell: r.Shell})
	}

	if len(steps) != 1 {
		return nil, errors.Wrapf(ErrInvalidPlan, "expected exactly one directive, found %d", len(steps))
	}
	if _, ok := steps[0].(RunStep); !ok && (r.Unless != "" || r.If != "") {
		return nil, errors.Wrap(ErrInvalidPlan, "unless/if are only valid on run steps")
	}
	return steps[0], nil
}

func listOrNil(l *stringList) []string {
	if l == nil {
		return nil
	}
	return []string(*l)
}
