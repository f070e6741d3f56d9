package hostfs

import (
	"archive/tar"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cruciblehq/boxd/internal/oci"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Extracts a tar stream under root, rooted at destDir.
//
// Entry names are resolved inside root, so absolute names, ".." components
// and symlinks planted by earlier entries cannot place files outside it.
// Whatever already sits at an entry's path is replaced unless both are
// directories; existing symlinks are never written through.
func untar(r io.Reader, root, destDir string) error {
	x := &extractor{root: root, destDir: destDir}
	return x.extract(r)
}

// Applies an image layer at the root of root.
//
// Works like [untar] but honours whiteouts: ".wh.<name>" removes name from
// the lower layers and ".wh..wh..opq" empties its directory of everything
// this layer did not itself unpack.
func applyLayer(r io.Reader, root string) error {
	x := &extractor{root: root, destDir: "/", whiteouts: true, unpacked: make(map[string]bool)}
	return x.extract(r)
}

type extractor struct {
	root      string
	destDir   string
	whiteouts bool
	unpacked  map[string]bool // Host paths written by the current layer.
}

type dirTimes struct {
	path string
	hdr  *tar.Header
}

func (x *extractor) extract(r io.Reader) error {
	tr := tar.NewReader(r)

	// Directory times are restored last since extracting their children
	// updates them.
	var dirs []dirTimes

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read tar entry")
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		target, err := resolveEntry(x.root, filepath.Join(x.destDir, hdr.Name))
		if err != nil {
			return errors.Wrapf(err, "resolve %s", hdr.Name)
		}

		if base := filepath.Base(target); x.whiteouts && strings.HasPrefix(base, oci.WhiteoutPrefix) {
			if err := x.whiteout(target, base); err != nil {
				return errors.Wrapf(err, "whiteout %s", hdr.Name)
			}
			continue
		}

		if err := x.extractEntry(tr, hdr, target); err != nil {
			return errors.Wrapf(err, "extract %s", hdr.Name)
		}
		if x.unpacked != nil {
			x.unpacked[target] = true
		}
		if hdr.Typeflag == tar.TypeDir {
			dirs = append(dirs, dirTimes{target, hdr})
		}
	}

	for _, d := range dirs {
		if err := setTimes(d.path, d.hdr); err != nil {
			return errors.Wrapf(err, "set times on %s", d.hdr.Name)
		}
	}
	return nil
}

// Resolves name inside root without following its final component, so the
// entry itself can be a symlink or replace one.
func resolveEntry(root, name string) (string, error) {
	parent, err := securejoin.SecureJoin(root, filepath.Dir(name))
	if err != nil {
		return "", err
	}
	base := filepath.Base(name)
	if base == "/" || base == "." {
		return parent, nil
	}
	return filepath.Join(parent, base), nil
}

func (x *extractor) extractEntry(tr *tar.Reader, hdr *tar.Header, target string) error {
	if target == filepath.Clean(x.root) && hdr.Typeflag != tar.TypeDir {
		return errors.Errorf("cannot replace the root with a %q entry", hdr.Typeflag)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := clearTarget(target, hdr.Typeflag == tar.TypeDir); err != nil {
		return err
	}

	mode := hdr.FileInfo().Mode() & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.Mkdir(target, 0700); err != nil && !os.IsExist(err) {
			return err
		}

	case tar.TypeReg:
		f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY|unix.O_NOFOLLOW, 0600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

	case tar.TypeSymlink:
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return err
		}

	case tar.TypeLink:
		source, err := resolveEntry(x.root, filepath.Join(x.destDir, hdr.Linkname))
		if err != nil {
			return err
		}
		return os.Link(source, target)

	case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		if err := mknod(target, hdr); err != nil {
			if hdr.Typeflag != tar.TypeFifo && errors.Is(err, fs.ErrPermission) {
				slog.Warn("skipping device node", "path", hdr.Name, "error", err)
				return nil
			}
			return err
		}

	default:
		return errors.Wrapf(ErrUnsupportedEntry, "type %q", hdr.Typeflag)
	}

	if err := setOwner(target, hdr); err != nil {
		return err
	}
	if hdr.Typeflag != tar.TypeSymlink {
		if err := os.Chmod(target, mode); err != nil {
			return err
		}
	}
	if hdr.Typeflag == tar.TypeDir {
		return nil
	}
	return setTimes(target, hdr)
}

// Clears the way for an entry at target. An existing directory is kept when
// the entry is a directory too; anything else, symlinks included, is
// removed.
func clearTarget(target string, dir bool) error {
	info, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		if dir {
			return nil
		}
		return os.RemoveAll(target)
	}
	return os.Remove(target)
}

// Applies a whiteout entry found at target.
func (x *extractor) whiteout(target, base string) error {
	parent := filepath.Dir(target)

	if base == oci.OpaqueWhiteout {
		return x.opaque(parent)
	}

	name := strings.TrimPrefix(base, oci.WhiteoutPrefix)
	if name == "" || name == "." || name == ".." {
		return errors.Errorf("invalid whiteout %q", base)
	}
	return os.RemoveAll(filepath.Join(parent, name))
}

// Removes everything under dir that the current layer did not unpack.
func (x *extractor) opaque(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir || x.unpacked[path] {
			return nil
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Creates a device node or FIFO for hdr at target.
func mknod(target string, hdr *tar.Header) error {
	mode := uint32(hdr.Mode & 07777)
	switch hdr.Typeflag {
	case tar.TypeChar:
		mode |= unix.S_IFCHR
	case tar.TypeBlock:
		mode |= unix.S_IFBLK
	case tar.TypeFifo:
		mode |= unix.S_IFIFO
	}
	dev := unix.Mkdev(uint32(hdr.Devmajor), uint32(hdr.Devminor))
	return unix.Mknod(target, mode, int(dev))
}

// Applies the entry's ownership without following symlinks. Unprivileged
// callers cannot give files away, so permission errors leave the extracting
// user as owner.
func setOwner(target string, hdr *tar.Header) error {
	err := os.Lchown(target, hdr.Uid, hdr.Gid)
	if err != nil && !errors.Is(err, fs.ErrPermission) {
		return err
	}
	return nil
}

// Applies the entry's access and modification times without following
// symlinks.
func setTimes(target string, hdr *tar.Header) error {
	atime := hdr.AccessTime
	if atime.IsZero() {
		atime = hdr.ModTime
	}
	ts := []unix.Timespec{timespec(atime), timespec(hdr.ModTime)}
	return unix.UtimesNanoAt(unix.AT_FDCWD, target, ts, unix.AT_SYMLINK_NOFOLLOW)
}

// Converts t for utimensat, clamping times before the epoch to it.
func timespec(t time.Time) unix.Timespec {
	if t.Before(time.Unix(0, 0)) {
		t = time.Unix(0, 0)
	}
	return unix.NsecToTimespec(t.UnixNano())
}
