package build

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/cruciblehq/boxd/internal/engine"
)

// Records every call made against it and keeps a set of directories and
// files in memory.
type fakeEnv struct {
	dirs    map[string]bool
	files   map[string]string
	calls   []string
	execs   []fakeExec
	exit    map[string]int // Exit code per command. Zero when absent.
	mkdir   error          // Returned by MkdirAll when set.
	exports []engine.ImageConfig
	gone    bool
}

type fakeExec struct {
	shell   string
	command string
	env     []string
	workdir string
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		dirs:  map[string]bool{"/": true},
		files: map[string]string{},
		exit:  map[string]int{},
	}
}

func (f *fakeEnv) MkdirAll(ctx context.Context, p string) error {
	f.calls = append(f.calls, "mkdir "+p)
	if f.mkdir != nil {
		return f.mkdir
	}
	for d := path.Clean(p); d != "/"; d = path.Dir(d) {
		f.dirs[d] = true
	}
	return nil
}

func (f *fakeEnv) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	f.calls = append(f.calls, "copy "+destDir)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		target := path.Join(destDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			f.dirs[target] = true
		case tar.TypeReg:
			b, err := io.ReadAll(tr)
			if err != nil {
				return err
			}
			f.files[target] = string(b)
		}
	}
}

func (f *fakeEnv) IsDir(ctx context.Context, p string) (bool, error) {
	f.calls = append(f.calls, "isdir "+p)
	return f.dirs[p], nil
}

func (f *fakeEnv) Exec(ctx context.Context, shell, command string, env []string, workdir string) (*engine.ExecResult, error) {
	f.calls = append(f.calls, "exec "+command)
	f.execs = append(f.execs, fakeExec{shell: shell, command: command, env: env, workdir: workdir})

	code := f.exit[command]
	var stderr string
	if code != 0 {
		stderr = "warming up\n" + strings.Fields(command)[0] + ": failed\n"
	}
	return &engine.ExecResult{ExitCode: code, Stderr: stderr}, nil
}

func (f *fakeEnv) Export(ctx context.Context, output string, cfg engine.ImageConfig) (string, error) {
	f.calls = append(f.calls, "export "+output)
	f.exports = append(f.exports, cfg)
	return path.Join(output, "image.tar"), nil
}

func (f *fakeEnv) Destroy(ctx context.Context) {
	f.gone = true
}

// Hands out a single prepared environment.
type fakeEngine struct {
	env      *fakeEnv
	err      error
	image    string
	id       string
	platform string
}

func (e *fakeEngine) Start(ctx context.Context, image, id, platform string) (engine.Environment, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.image, e.id, e.platform = image, id, platform
	return e.env, nil
}
