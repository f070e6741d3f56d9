package plan

import "path"

// Identifies the directive a step carries.
type Kind string

const (
	KindCopy       Kind = "copy"
	KindWorkdir    Kind = "workdir"
	KindRun        Kind = "run"
	KindExecConfig Kind = "exec"
	KindEnv        Kind = "env"
	KindShell      Kind = "shell"
)

// A single directive in a [Plan].
//
// The concrete types are [CopyStep], [WorkdirStep], [RunStep],
// [ExecConfigStep], [EnvStep] and [ShellStep]. Consumers switch on the
// concrete type; Kind is used for logging and error context.
type Step interface {
	Kind() Kind
}

// Copies Src from the build context to Dest inside the environment.
type CopyStep struct {
	Src  string // Source path, relative to the build context.
	Dest string // Destination path, relative to the current workdir when not absolute.
}

func (CopyStep) Kind() Kind { return KindCopy }

// Sets the working directory for all subsequent steps.
type WorkdirStep struct {
	Path string
}

func (WorkdirStep) Kind() Kind { return KindWorkdir }

// Runs Command through the current shell when Guard holds.
type RunStep struct {
	Command string
	Guard   Guard
}

func (RunStep) Kind() Kind { return KindRun }

// Records the entrypoint and default command of the produced artifact.
//
// Both fields are replaced together; a step naming only an entrypoint
// clears any previously recorded command.
type ExecConfigStep struct {
	Entrypoint []string
	Cmd        []string
}

func (ExecConfigStep) Kind() Kind { return KindExecConfig }

// Adds or overrides environment variables for subsequent steps.
type EnvStep struct {
	Env map[string]string
}

func (EnvStep) Kind() Kind { return KindEnv }

// Replaces the shell used by subsequent run steps.
type ShellStep struct {
	Shell string
}

func (ShellStep) Kind() Kind { return KindShell }

// A directory-existence condition evaluated right before a run step.
//
// Unless holds when the directory is absent; If holds when it is present.
// A zero Guard always holds. At most one of the two may be set.
type Guard struct {
	Unless string `json:"unless,omitempty"`
	If     string `json:"if,omitempty"`
}

// Whether the guard carries a condition at all.
func (g Guard) IsZero() bool {
	return g.Unless == "" && g.If == ""
}

// Returns the directory the guard inspects, resolved against workdir.
func (g Guard) Path(workdir string) string {
	p := g.Unless
	if p == "" {
		p = g.If
	}
	if p == "" || path.IsAbs(p) {
		return p
	}
	if workdir == "" {
		workdir = "/"
	}
	return path.Join(workdir, p)
}

// Reports whether the guard holds given whether its directory exists.
func (g Guard) Holds(exists bool) bool {
	switch {
	case g.Unless != "":
		return !exists
	case g.If != "":
		return exists
	default:
		return true
	}
}
