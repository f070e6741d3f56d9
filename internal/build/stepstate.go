package build

import (
	"maps"
	"path"
	"slices"
)

const (

	// Default shell used for run steps when no shell step has been applied.
	defaultShell = "/bin/sh"

	// Working directory before any workdir step has been applied.
	defaultWorkdir = "/"
)

// The mutable build context threaded through step execution.
//
// State flows linearly through the step list. Each step reads the values
// left by the steps before it and may update them for the steps after it.
type stepState struct {
	shell      string
	workdir    string
	env        map[string]string
	entrypoint []string
	cmd        []string
}

// Creates a new [stepState] with default values.
func newStepState() *stepState {
	return &stepState{
		shell:   defaultShell,
		workdir: defaultWorkdir,
		env:     make(map[string]string),
	}
}

// Resolves p against the current working directory.
//
// Absolute paths are only cleaned. The result is always absolute.
func (s *stepState) resolvePath(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.workdir, p)
}

// Records an entrypoint and cmd pair, replacing the previous one.
func (s *stepState) setExec(entrypoint, cmd []string) {
	s.entrypoint = slices.Clone(entrypoint)
	s.cmd = slices.Clone(cmd)
}

// Merges vars into the environment, overriding existing keys.
func (s *stepState) setEnv(vars map[string]string) {
	maps.Copy(s.env, vars)
}

// Formats the environment as a sorted list of "key=value" strings suitable
// for passing to an environment's Exec.
func (s *stepState) environ() []string {
	env := make([]string, 0, len(s.env))
	for _, k := range slices.Sorted(maps.Keys(s.env)) {
		env = append(env, k+"="+s.env[k])
	}
	return env
}
