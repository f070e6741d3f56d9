package oci

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (

	// Prefix marking a whiteout entry in a layer.
	WhiteoutPrefix = ".wh."

	// Whiteout hiding every lower entry of the directory it sits in.
	OpaqueWhiteout = WhiteoutPrefix + WhiteoutPrefix + ".opq"

	// Extended attribute overlayfs sets on opaque directories.
	overlayOpaqueXattr = "trusted.overlay.opaque"

	// PAX record carrying overlayOpaqueXattr through a tar stream.
	paxOpaqueRecord = "SCHILY.xattr." + overlayOpaqueXattr
)

// Writes the tree under dir as an uncompressed layer tar.
//
// Entries are emitted in lexical order with owner names stripped and
// modification times clamped to epoch, so identical trees produce identical
// layers. Regular files, directories, symlinks, device nodes and FIFOs are
// packed; files sharing an inode after the first are written as hard links.
// Sockets are skipped. Directories overlayfs marks opaque carry the marker
// as a PAX record for [FilterOverlayWhiteouts].
func PackDir(w io.Writer, dir string) error {
	p := &packer{
		tw:    tar.NewWriter(w),
		links: make(map[inode]string),
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		return p.writeEntry(path, filepath.ToSlash(rel), d)
	})
	if err != nil {
		p.tw.Close()
		return fmt.Errorf("%w: %w", ErrPack, err)
	}

	if err := p.tw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrPack, err)
	}
	return nil
}

type inode struct {
	dev, ino uint64
}

type packer struct {
	tw    *tar.Writer
	links map[inode]string // First name packed for each multiply-linked inode.
}

func (p *packer) writeEntry(path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	mode := info.Mode()

	var link string
	switch {
	case mode&fs.ModeSocket != 0:
		return nil
	case mode&fs.ModeSymlink != 0:
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
		if isOpaqueDir(path) {
			header.PAXRecords = map[string]string{paxOpaqueRecord: "y"}
		}
	}
	header.Uname, header.Gname = "", ""
	header.ModTime = time.Unix(0, 0)
	header.AccessTime, header.ChangeTime = time.Time{}, time.Time{}
	header.Format = tar.FormatPAX

	if mode.IsRegular() {
		if first, ok := p.hardlink(info, name); ok {
			header.Typeflag = tar.TypeLink
			header.Linkname = first
			header.Size = 0
		}
	}

	if err := p.tw.WriteHeader(header); err != nil {
		return err
	}

	if header.Typeflag != tar.TypeReg {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(p.tw, f)
	return err
}

// Returns the name an earlier entry sharing info's inode was packed under.
// The first name seen for an inode is recorded and reported as not linked.
func (p *packer) hardlink(info fs.FileInfo, name string) (string, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st.Nlink < 2 {
		return "", false
	}
	key := inode{dev: uint64(st.Dev), ino: uint64(st.Ino)}
	if first, ok := p.links[key]; ok {
		return first, true
	}
	p.links[key] = name
	return "", false
}

// Whether overlayfs marked the directory at path opaque. Reading trusted
// attributes needs privileges; without them no directory is opaque.
func isOpaqueDir(path string) bool {
	buf := make([]byte, 1)
	n, err := unix.Lgetxattr(path, overlayOpaqueXattr, buf)
	return err == nil && n == 1 && buf[0] == 'y'
}

// Copies a layer tar from r to w, rewriting overlayfs whiteouts as OCI
// whiteouts.
//
// Character devices numbered 0:0 become empty ".wh.<name>" files, and
// directories carrying the overlayfs opaque marker are followed by a
// ".wh..wh..opq" entry. Other entries pass through unchanged.
func FilterOverlayWhiteouts(w io.Writer, r io.Reader) error {
	tr := tar.NewReader(r)
	tw := tar.NewWriter(w)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPack, err)
		}

		if err := filterEntry(tw, tr, hdr); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPack, hdr.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrPack, err)
	}
	return nil
}

func filterEntry(tw *tar.Writer, tr *tar.Reader, hdr *tar.Header) error {
	switch {
	case hdr.Typeflag == tar.TypeChar && hdr.Devmajor == 0 && hdr.Devminor == 0:
		dir, base := path.Split(strings.TrimSuffix(hdr.Name, "/"))
		return tw.WriteHeader(whiteoutHeader(hdr, dir+WhiteoutPrefix+base))

	case hdr.Typeflag == tar.TypeDir && hdr.PAXRecords[paxOpaqueRecord] == "y":
		// The reader mirrors xattr records into Xattrs, which the writer
		// would emit again.
		delete(hdr.PAXRecords, paxOpaqueRecord)
		delete(hdr.Xattrs, overlayOpaqueXattr) //nolint:staticcheck
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		return tw.WriteHeader(whiteoutHeader(hdr, hdr.Name+OpaqueWhiteout))
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, tr)
	return err
}

// Returns an empty regular file entry named name, owned like hdr.
func whiteoutHeader(hdr *tar.Header, name string) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0600,
		Uid:      hdr.Uid,
		Gid:      hdr.Gid,
		ModTime:  hdr.ModTime,
		Format:   tar.FormatPAX,
	}
}
