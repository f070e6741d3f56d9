package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/cruciblehq/boxd/internal/hostfs"
	"github.com/cruciblehq/boxd/internal/oci"
	"github.com/cruciblehq/boxd/internal/plan"
)

// Creates a build context holding main.go and a vendor directory.
func buildContext(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "vendor", "dep"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vendor", "dep", "dep.go"), []byte("package dep\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func runFake(t *testing.T, opts Options, steps ...plan.Step) (*fakeEnv, *Result, error) {
	t.Helper()
	env := newFakeEnv()
	opts.Plan = &plan.Plan{From: "golang", Steps: steps}
	if opts.Root == "" {
		opts.Root = buildContext(t)
	}
	result, err := Run(context.Background(), &fakeEngine{env: env}, opts)
	return env, result, err
}

func TestRunGoBuildPlan(t *testing.T) {
	env, result, err := runFake(t, Options{},
		plan.CopyStep{Src: ".", Dest: "/go/src/x"},
		plan.WorkdirStep{Path: "/go/src/x"},
		plan.RunStep{Command: "fetch", Guard: plan.Guard{Unless: "vendor"}},
		plan.ExecConfigStep{Entrypoint: []string{"/bin/sh"}, Cmd: []string{"-c", "test"}},
	)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"mkdir /go/src/x",
		"copy /go/src/x",
		"mkdir /go/src/x",
		"isdir /go/src/x/vendor",
	}
	if !slices.Equal(env.calls, want) {
		t.Fatalf("calls = %q, want %q", env.calls, want)
	}
	if len(env.execs) != 0 {
		t.Fatalf("guarded command ran: %v", env.execs)
	}
	if env.files["/go/src/x/main.go"] != "package main\n" {
		t.Fatalf("main.go not copied: %v", env.files)
	}

	a := result.Artifact
	if a.Workdir != "/go/src/x" {
		t.Errorf("workdir = %q", a.Workdir)
	}
	if !slices.Equal(a.Entrypoint, []string{"/bin/sh"}) || !slices.Equal(a.Cmd, []string{"-c", "test"}) {
		t.Errorf("exec config = %v %v", a.Entrypoint, a.Cmd)
	}
	if a.BaseImage != "golang" {
		t.Errorf("base image = %q", a.BaseImage)
	}
	if !env.gone {
		t.Error("environment not destroyed")
	}
}

func TestRunGuardRunsWhenAbsent(t *testing.T) {
	env, _, err := runFake(t, Options{},
		plan.WorkdirStep{Path: "/app"},
		plan.RunStep{Command: "fetch", Guard: plan.Guard{Unless: "vendor"}},
		plan.RunStep{Command: "build", Guard: plan.Guard{If: "vendor"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(env.execs) != 1 || env.execs[0].command != "fetch" {
		t.Fatalf("execs = %v, want only fetch", env.execs)
	}
	if env.execs[0].workdir != "/app" {
		t.Fatalf("workdir = %q, want /app", env.execs[0].workdir)
	}
}

func TestRunCommandFailureAborts(t *testing.T) {
	env := newFakeEnv()
	env.exit["fetch"] = 2

	p := &plan.Plan{From: "golang", Steps: []plan.Step{
		plan.RunStep{Command: "fetch"},
		plan.RunStep{Command: "build"},
	}}

	_, err := Run(context.Background(), &fakeEngine{env: env}, Options{Plan: p, Root: t.TempDir(), Output: t.TempDir()})

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err = %v, want CommandError", err)
	}
	if cmdErr.ExitCode != 2 {
		t.Fatalf("exit code = %d, want 2", cmdErr.ExitCode)
	}
	if !strings.Contains(err.Error(), "step 1 (run)") || !strings.HasSuffix(err.Error(), "fetch: failed") {
		t.Fatalf("error message = %q", err.Error())
	}
	if len(env.execs) != 1 {
		t.Fatalf("later steps ran after failure: %v", env.execs)
	}
	if len(env.exports) != 0 {
		t.Fatal("failed build was exported")
	}
	if !env.gone {
		t.Fatal("environment not destroyed after failure")
	}
}

func TestRunExecConfigLastWins(t *testing.T) {
	_, result, err := runFake(t, Options{},
		plan.ExecConfigStep{Entrypoint: []string{"/bin/sh"}, Cmd: []string{"-c", "test"}},
		plan.ExecConfigStep{Entrypoint: []string{"/app/server"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(result.Artifact.Entrypoint, []string{"/app/server"}) {
		t.Fatalf("entrypoint = %v", result.Artifact.Entrypoint)
	}
	if result.Artifact.Cmd != nil {
		t.Fatalf("cmd = %v, want cleared", result.Artifact.Cmd)
	}
}

func TestRunCopyMissingSource(t *testing.T) {
	env, _, err := runFake(t, Options{},
		plan.CopyStep{Src: "missing.txt", Dest: "/app/"},
		plan.RunStep{Command: "build"},
	)

	var copyErr *CopyError
	if !errors.As(err, &copyErr) {
		t.Fatalf("err = %v, want CopyError", err)
	}
	if copyErr.Src != "missing.txt" {
		t.Fatalf("src = %q", copyErr.Src)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist cause", err)
	}
	if len(env.execs) != 0 {
		t.Fatal("steps ran after copy failure")
	}
}

func TestRunCopyCannotEscapeContext(t *testing.T) {
	root := t.TempDir()
	ctxDir := filepath.Join(root, "ctx")
	if err := os.MkdirAll(ctxDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "secret"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := runFake(t, Options{Root: ctxDir}, plan.CopyStep{Src: "../secret", Dest: "/app/"})

	var copyErr *CopyError
	if !errors.As(err, &copyErr) {
		t.Fatalf("err = %v, want CopyError", err)
	}
}

func TestRunCopyFileIntoDirectory(t *testing.T) {
	env, _, err := runFake(t, Options{},
		plan.WorkdirStep{Path: "/app"},
		plan.CopyStep{Src: "main.go", Dest: "src/"},
		plan.CopyStep{Src: "main.go", Dest: "/opt/renamed.go"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := env.files["/app/src/main.go"]; !ok {
		t.Errorf("relative dest not resolved against workdir: %v", env.files)
	}
	if _, ok := env.files["/opt/renamed.go"]; !ok {
		t.Errorf("file not renamed to dest: %v", env.files)
	}
}

func TestRunWorkdirFailure(t *testing.T) {
	env := newFakeEnv()
	env.mkdir = errors.New("read-only file system")

	p := &plan.Plan{From: "golang", Steps: []plan.Step{plan.WorkdirStep{Path: "/app"}}}
	_, err := Run(context.Background(), &fakeEngine{env: env}, Options{Plan: p, Root: t.TempDir()})

	var pathErr *PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("err = %v, want PathError", err)
	}
	if pathErr.Path != "/app" {
		t.Fatalf("path = %q", pathErr.Path)
	}
}

func TestRunEnvAndShell(t *testing.T) {
	env, result, err := runFake(t, Options{},
		plan.RunStep{Command: "first"},
		plan.EnvStep{Env: map[string]string{"GOFLAGS": "-mod=vendor", "CGO_ENABLED": "0"}},
		plan.ShellStep{Shell: "/bin/bash"},
		plan.RunStep{Command: "second"},
	)
	if err != nil {
		t.Fatal(err)
	}

	if env.execs[0].shell != defaultShell || len(env.execs[0].env) != 0 {
		t.Errorf("first exec = %+v, want defaults", env.execs[0])
	}
	want := []string{"CGO_ENABLED=0", "GOFLAGS=-mod=vendor"}
	if env.execs[1].shell != "/bin/bash" || !slices.Equal(env.execs[1].env, want) {
		t.Errorf("second exec = %+v", env.execs[1])
	}
	if !slices.Equal(result.Artifact.Env, want) {
		t.Errorf("artifact env = %v", result.Artifact.Env)
	}
}

func TestRunStartFailure(t *testing.T) {
	denied := errors.New("pull denied")
	p := &plan.Plan{From: "golang", Steps: []plan.Step{plan.WorkdirStep{Path: "/app"}}}
	_, err := Run(context.Background(), &fakeEngine{err: denied}, Options{Plan: p})
	if !errors.Is(err, ErrEnvironment) {
		t.Fatalf("err = %v, want ErrEnvironment", err)
	}
	if !errors.Is(err, denied) {
		t.Fatalf("err = %v, cause lost", err)
	}
}

func TestRunStartCancelledKeepsCause(t *testing.T) {
	p := &plan.Plan{From: "golang", Steps: []plan.Step{plan.WorkdirStep{Path: "/app"}}}
	_, err := Run(context.Background(), &fakeEngine{err: context.Canceled}, Options{Plan: p})
	if !errors.Is(err, ErrEnvironment) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrEnvironment wrapping context.Canceled", err)
	}
}

func TestRunInvalidPlan(t *testing.T) {
	_, err := Run(context.Background(), &fakeEngine{env: newFakeEnv()}, Options{Plan: &plan.Plan{}})
	if !errors.Is(err, plan.ErrInvalidPlan) {
		t.Fatalf("err = %v, want ErrInvalidPlan", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env := newFakeEnv()
	p := &plan.Plan{From: "golang", Steps: []plan.Step{plan.RunStep{Command: "build"}}}
	_, err := Run(ctx, &fakeEngine{env: env}, Options{Plan: p, Root: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(env.execs) != 0 {
		t.Fatal("step ran on a cancelled context")
	}
}

func TestRunDefaults(t *testing.T) {
	eng := &fakeEngine{env: newFakeEnv()}
	p := &plan.Plan{From: "golang", Steps: []plan.Step{plan.WorkdirStep{Path: "/app"}}}

	result, err := Run(context.Background(), eng, Options{Plan: p, Keep: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(eng.id, "boxd-") || result.Artifact.ID != eng.id {
		t.Errorf("id = %q, artifact id = %q", eng.id, result.Artifact.ID)
	}
	if !strings.HasPrefix(eng.platform, "linux/") {
		t.Errorf("platform = %q", eng.platform)
	}
	if eng.env.gone {
		t.Error("environment destroyed despite Keep")
	}
	if result.Artifact.Image != "" {
		t.Errorf("image = %q, want no export without output", result.Artifact.Image)
	}
}

func TestRunExportWritesArtifact(t *testing.T) {
	out := t.TempDir()
	env, result, err := runFake(t, Options{ID: "b1", Name: "x:latest", Output: out},
		plan.WorkdirStep{Path: "/go/src/x"},
		plan.ExecConfigStep{Entrypoint: []string{"/bin/sh"}},
	)
	if err != nil {
		t.Fatal(err)
	}

	if len(env.exports) != 1 {
		t.Fatalf("exports = %d, want 1", len(env.exports))
	}
	cfg := env.exports[0]
	if cfg.Workdir != "/go/src/x" || cfg.Name != "x:latest" || cfg.BaseImage != "golang" {
		t.Fatalf("image config = %+v", cfg)
	}

	a, err := ReadArtifact(out)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "b1" || a.Image != result.Artifact.Image || a.Workdir != "/go/src/x" {
		t.Fatalf("artifact = %+v", a)
	}
}

func TestRunOnHostfs(t *testing.T) {
	ctxDir := buildContext(t)
	out := t.TempDir()
	eng := hostfs.New(t.TempDir())

	p, err := plan.Parse([]byte(`
from: golang
steps:
  - copy: . /go/src/x
  - workdir: /go/src/x
  - run: test -d vendor || fetch
  - run: fetch
    unless: vendor
  - entrypoint: [/bin/sh]
    cmd: [-c, test]
`))
	if err != nil {
		t.Fatal(err)
	}

	result, err := Run(context.Background(), eng, Options{Plan: p, ID: "e2e", Root: ctxDir, Output: out, Platform: "linux/amd64", Keep: true})
	if err != nil {
		t.Fatal(err)
	}

	rootfs := eng.RootPath("e2e")
	t.Cleanup(func() { os.RemoveAll(rootfs) })

	for _, f := range []string{"go/src/x/main.go", "go/src/x/vendor/dep/dep.go"} {
		if _, err := os.Stat(filepath.Join(rootfs, f)); err != nil {
			t.Errorf("%s not copied: %v", f, err)
		}
	}

	img, err := oci.InspectFile(result.Artifact.Image)
	if err != nil {
		t.Fatal(err)
	}
	c := img.Config.Config
	if c.WorkingDir != "/go/src/x" {
		t.Errorf("workdir = %q", c.WorkingDir)
	}
	if !slices.Equal(c.Entrypoint, []string{"/bin/sh"}) || !slices.Equal(c.Cmd, []string{"-c", "test"}) {
		t.Errorf("exec config = %v %v", c.Entrypoint, c.Cmd)
	}
}
