package build

import (
	"archive/tar"
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/boxd/internal/engine"
	"github.com/cruciblehq/boxd/internal/plan"
	securejoin "github.com/cyphar/filepath-securejoin"
)

// Executes a copy step, transferring files from the build context into the
// environment.
//
// The source is resolved inside the build context and cannot escape it. A
// directory source has its contents copied into dest. A file source becomes
// dest, or dest/<name> when dest ends with a slash. Relative destinations
// are joined with the current workdir.
func executeCopy(ctx context.Context, env engine.Environment, step plan.CopyStep, state *stepState, buildCtx string) error {
	dest := state.resolvePath(step.Dest)

	src, err := securejoin.SecureJoin(buildCtx, step.Src)
	if err != nil {
		return &CopyError{Src: step.Src, Dest: dest, Err: err}
	}

	info, err := os.Stat(src)
	if err != nil {
		return &CopyError{Src: step.Src, Dest: dest, Err: err}
	}

	if !info.IsDir() && strings.HasSuffix(step.Dest, "/") {
		dest = path.Join(dest, filepath.Base(src))
	}

	slog.Debug("copy", "src", src, "dest", dest, "dir", info.IsDir())

	// Directories are extracted into dest itself, files into its parent.
	extractDir := dest
	if !info.IsDir() {
		extractDir = path.Dir(dest)
	}
	if err := env.MkdirAll(ctx, extractDir); err != nil {
		return &CopyError{Src: step.Src, Dest: dest, Err: err}
	}

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		var writeErr error

		if info.IsDir() {
			writeErr = writeDirToTar(tw, src)
		} else {
			writeErr = writeFileToTar(tw, src, path.Base(dest))
		}

		if closeErr := tw.Close(); writeErr == nil {
			writeErr = closeErr
		}
		pw.CloseWithError(writeErr)
	}()

	err = env.CopyTo(ctx, pr, extractDir)
	pr.CloseWithError(err)
	if err != nil {
		return &CopyError{Src: step.Src, Dest: dest, Err: err}
	}

	return nil
}

// Writes a single file to a tar writer with the given archive name.
func writeFileToTar(tw *tar.Writer, hostPath, name string) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// Writes the contents of a directory tree to a tar writer, with archive
// names relative to hostDir. The directory itself is not included.
func writeDirToTar(tw *tar.Writer, hostDir string) error {
	return filepath.WalkDir(hostDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(hostDir, p)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		return writeTarEntry(tw, p, filepath.ToSlash(relPath), d)
	})
}

// Writes a single file, directory or symlink entry to a tar writer.
func writeTarEntry(tw *tar.Writer, hostPath, archivePath string, d os.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(hostPath); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = archivePath

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(hostPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}

	return nil
}
