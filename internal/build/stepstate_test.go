package build

import (
	"slices"
	"testing"
)

func TestNewStepState(t *testing.T) {
	s := newStepState()
	if s.shell != defaultShell {
		t.Fatalf("shell = %q, want %q", s.shell, defaultShell)
	}
	if s.workdir != defaultWorkdir {
		t.Fatalf("workdir = %q, want %q", s.workdir, defaultWorkdir)
	}
	if len(s.env) != 0 {
		t.Fatalf("env = %v, want empty", s.env)
	}
	if s.entrypoint != nil || s.cmd != nil {
		t.Fatalf("exec config = %v %v, want unset", s.entrypoint, s.cmd)
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		workdir string
		path    string
		want    string
	}{
		{"/", "app", "/app"},
		{"/go/src/x", "vendor", "/go/src/x/vendor"},
		{"/go/src/x", "/opt/bin/", "/opt/bin"},
		{"/go/src/x", "../y", "/go/src/y"},
		{"/app", ".", "/app"},
		{"/", "../../etc", "/etc"},
	}

	for _, tt := range tests {
		s := newStepState()
		s.workdir = tt.workdir
		if got := s.resolvePath(tt.path); got != tt.want {
			t.Errorf("resolvePath(%q) in %q = %q, want %q", tt.path, tt.workdir, got, tt.want)
		}
	}
}

func TestSetExecReplacesPair(t *testing.T) {
	s := newStepState()

	s.setExec([]string{"/bin/sh"}, []string{"-c", "test"})
	s.setExec([]string{"/app/server"}, nil)

	if !slices.Equal(s.entrypoint, []string{"/app/server"}) {
		t.Fatalf("entrypoint = %v", s.entrypoint)
	}
	if s.cmd != nil {
		t.Fatalf("cmd = %v, want cleared", s.cmd)
	}
}

func TestSetExecClones(t *testing.T) {
	s := newStepState()
	entrypoint := []string{"/bin/sh"}

	s.setExec(entrypoint, nil)
	entrypoint[0] = "/bin/bash"

	if s.entrypoint[0] != "/bin/sh" {
		t.Fatalf("entrypoint aliased the caller's slice: %v", s.entrypoint)
	}
}

func TestSetEnv(t *testing.T) {
	s := newStepState()

	s.setEnv(map[string]string{"B": "2", "A": "1"})
	s.setEnv(map[string]string{"A": "override"})

	want := []string{"A=override", "B=2"}
	if got := s.environ(); !slices.Equal(got, want) {
		t.Fatalf("environ = %v, want %v", got, want)
	}
}
