// Package archive extracts untrusted tar+gzip archives into a directory.
//
// Extraction is two-phase: every member header is checked against the
// configured Limits and path rules before anything is written, so a rejected
// archive leaves the destination untouched.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	asmaerrors "github.com/samhoang/asma/internal/errors"
)

// Limits bounds what an archive may contain
type Limits struct {
	MaxTotalSize  int64 // sum of declared member sizes
	MaxFileCount  int   // number of members
	MaxFileSize   int64 // declared size of any single member
	MaxNameLength int   // member name length in bytes
}

// DefaultLimits returns the limits applied to GitHub tarballs
func DefaultLimits() Limits {
	return Limits{
		MaxTotalSize:  500 * 1024 * 1024,
		MaxFileCount:  10000,
		MaxFileSize:   100 * 1024 * 1024,
		MaxNameLength: 255,
	}
}

// privilegeBits are setuid and setgid
const privilegeBits = 0o6000

// Extractor validates and extracts tar+gzip archives
type Extractor struct {
	limits Limits
	logger *slog.Logger
}

// NewExtractor creates an extractor. Zero-valued limits fall back to defaults.
func NewExtractor(limits Limits, logger *slog.Logger) *Extractor {
	def := DefaultLimits()
	if limits.MaxTotalSize <= 0 {
		limits.MaxTotalSize = def.MaxTotalSize
	}
	if limits.MaxFileCount <= 0 {
		limits.MaxFileCount = def.MaxFileCount
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = def.MaxFileSize
	}
	if limits.MaxNameLength <= 0 {
		limits.MaxNameLength = def.MaxNameLength
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{limits: limits, logger: logger}
}

// member is a validated archive entry waiting to be written
type member struct {
	name     string
	target   string // absolute path under destDir
	typeflag byte
	mode     os.FileMode
	size     int64
	linkname string // symlink: raw target; hardlink: absolute source path
}

// ExtractStream spools r to a temporary file and extracts it.
// The spooled (compressed) size is capped at MaxTotalSize.
func (e *Extractor) ExtractStream(r io.Reader, destDir string) error {
	tmp, err := os.CreateTemp("", "asma-archive-*")
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := io.Copy(tmp, io.LimitReader(r, e.limits.MaxTotalSize+1))
	if err != nil {
		return fmt.Errorf("%w: reading archive: %v", asmaerrors.ErrTransport, err)
	}
	if n > e.limits.MaxTotalSize {
		return &asmaerrors.ArchiveError{
			Kind:   asmaerrors.ErrArchiveTooLarge,
			Limit:  asmaerrors.LimitOversizedTotal,
			Detail: fmt.Sprintf("compressed stream exceeds %d bytes", e.limits.MaxTotalSize),
		}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool file: %w", err)
	}
	return e.Extract(tmp, destDir)
}

// Extract validates every member of the tar+gzip archive and, only if all
// members pass, writes them under destDir. destDir must exist.
func (e *Extractor) Extract(archive io.ReadSeeker, destDir string) error {
	root, err := canonicalDir(destDir)
	if err != nil {
		return err
	}

	plan, err := e.validate(archive, root)
	if err != nil {
		return err
	}

	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind archive: %w", err)
	}

	if err := e.write(archive, plan); err != nil {
		return err
	}

	e.logger.Debug("archive extracted", "dest", root, "members", len(plan))
	return nil
}

// nextHeader ignores tar.ErrInsecurePath; member paths get stricter checks here.
func nextHeader(tr *tar.Reader) (*tar.Header, error) {
	hdr, err := tr.Next()
	if errors.Is(err, tar.ErrInsecurePath) && hdr != nil {
		return hdr, nil
	}
	return hdr, err
}

func canonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve extraction directory: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("extraction target is not a directory: %s", dir)
	}
	return resolved, nil
}

// validate reads headers only and returns the extraction plan
func (e *Extractor) validate(archive io.Reader, root string) ([]member, error) {
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	var (
		plan      []member
		count     int
		totalSize int64
	)

	for {
		hdr, err := nextHeader(tr)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		// GitHub tarballs start with a pax global header carrying the commit id.
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		count++
		if count > e.limits.MaxFileCount {
			return nil, &asmaerrors.ArchiveError{
				Kind:   asmaerrors.ErrArchiveTooLarge,
				Limit:  asmaerrors.LimitTooManyFiles,
				Detail: fmt.Sprintf("more than %d members, possible tar bomb", e.limits.MaxFileCount),
			}
		}

		if hdr.Size > e.limits.MaxFileSize {
			return nil, &asmaerrors.ArchiveError{
				Kind:   asmaerrors.ErrArchiveTooLarge,
				Limit:  asmaerrors.LimitOversizedFile,
				Member: hdr.Name,
				Detail: fmt.Sprintf("%d bytes, max %d", hdr.Size, e.limits.MaxFileSize),
			}
		}

		totalSize += hdr.Size
		if totalSize > e.limits.MaxTotalSize {
			return nil, &asmaerrors.ArchiveError{
				Kind:   asmaerrors.ErrArchiveTooLarge,
				Limit:  asmaerrors.LimitOversizedTotal,
				Detail: fmt.Sprintf("%d bytes, max %d", totalSize, e.limits.MaxTotalSize),
			}
		}

		m, err := e.checkMember(hdr, root)
		if err != nil {
			return nil, err
		}
		plan = append(plan, m)
	}

	return plan, nil
}

func (e *Extractor) checkMember(hdr *tar.Header, root string) (member, error) {
	name := hdr.Name

	if len(name) > e.limits.MaxNameLength {
		return member{}, &asmaerrors.ArchiveError{
			Kind:   asmaerrors.ErrUnsafeMember,
			Member: truncate(name, 50),
			Detail: fmt.Sprintf("filename too long (%d bytes, max %d)", len(name), e.limits.MaxNameLength),
		}
	}
	if strings.ContainsRune(name, 0) {
		return member{}, &asmaerrors.ArchiveError{
			Kind:   asmaerrors.ErrUnsafeMember,
			Member: strings.ReplaceAll(name, "\x00", `\0`),
			Detail: "null byte in filename",
		}
	}

	switch hdr.Typeflag {
	case tar.TypeReg, tar.TypeDir, tar.TypeSymlink, tar.TypeLink:
	case tar.TypeChar, tar.TypeBlock:
		return member{}, &asmaerrors.ArchiveError{Kind: asmaerrors.ErrUnsafeMember, Member: name, Detail: "device file not allowed"}
	case tar.TypeFifo:
		return member{}, &asmaerrors.ArchiveError{Kind: asmaerrors.ErrUnsafeMember, Member: name, Detail: "FIFO not allowed"}
	default:
		return member{}, &asmaerrors.ArchiveError{
			Kind:   asmaerrors.ErrUnsafeMember,
			Member: name,
			Detail: fmt.Sprintf("special entry type %q not allowed", hdr.Typeflag),
		}
	}

	mode := hdr.Mode &^ privilegeBits

	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return member{}, &asmaerrors.ArchiveError{Kind: asmaerrors.ErrUnsafePath, Member: name, Detail: "absolute path"}
	}

	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return member{}, &asmaerrors.ArchiveError{Kind: asmaerrors.ErrUnsafePath, Member: name, Detail: "escapes extraction directory"}
	}
	// Only a directory entry may name the extraction root itself.
	if target == root && hdr.Typeflag != tar.TypeDir {
		return member{}, &asmaerrors.ArchiveError{Kind: asmaerrors.ErrUnsafePath, Member: name, Detail: "replaces extraction directory"}
	}

	m := member{
		name:     name,
		target:   target,
		typeflag: hdr.Typeflag,
		mode:     os.FileMode(mode).Perm(),
		size:     hdr.Size,
	}

	if hdr.Typeflag == tar.TypeSymlink || hdr.Typeflag == tar.TypeLink {
		link, err := checkLink(root, name, hdr.Linkname, hdr.Typeflag)
		if err != nil {
			return member{}, err
		}
		m.linkname = link
	}

	return m, nil
}

// checkLink rejects link targets that are absolute, contain "..", or land
// outside root. It returns the value to pass to os.Symlink / os.Link.
func checkLink(root, name, linkname string, typeflag byte) (string, error) {
	reject := func(detail string) error {
		return &asmaerrors.ArchiveError{
			Kind:   asmaerrors.ErrUnsafeSymlink,
			Member: name + " -> " + linkname,
			Detail: detail,
		}
	}

	if linkname == "" {
		return "", reject("empty link target")
	}
	if filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return "", reject("absolute link target")
	}
	for _, part := range strings.Split(filepath.ToSlash(linkname), "/") {
		if part == ".." {
			return "", reject("parent directory in link target")
		}
	}

	memberDir := filepath.Dir(filepath.Join(root, filepath.FromSlash(name)))
	dest := filepath.Join(memberDir, filepath.FromSlash(linkname))
	if !within(root, dest) {
		return "", reject("link target outside extraction directory")
	}

	if typeflag == tar.TypeLink {
		// Hard link names are relative to the archive root.
		src := filepath.Join(root, filepath.FromSlash(linkname))
		if !within(root, src) {
			return "", reject("link target outside extraction directory")
		}
		return src, nil
	}
	return linkname, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// write performs the second pass over the archive
func (e *Extractor) write(archive io.Reader, plan []member) error {
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	i := 0
	for {
		hdr, err := nextHeader(tr)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if i >= len(plan) || plan[i].name != hdr.Name {
			return fmt.Errorf("archive changed between validation and extraction at %s", hdr.Name)
		}

		if err := writeMember(plan[i], tr); err != nil {
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		i++
	}
	return nil
}

func writeMember(m member, r io.Reader) error {
	switch m.typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(m.target, m.mode|0o700); err != nil {
			return err
		}
		return nil

	case tar.TypeReg:
		if err := prepareParent(m.target); err != nil {
			return err
		}
		f, err := os.OpenFile(m.target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, m.mode|0o600)
		if err != nil {
			return err
		}
		if _, err := io.CopyN(f, r, m.size); err != nil {
			f.Close()
			return err
		}
		return f.Close()

	case tar.TypeSymlink:
		if err := prepareParent(m.target); err != nil {
			return err
		}
		return os.Symlink(m.linkname, m.target)

	case tar.TypeLink:
		if err := prepareParent(m.target); err != nil {
			return err
		}
		return os.Link(m.linkname, m.target)
	}
	return nil
}

// prepareParent creates the parent directory and unlinks any previous entry
// at target so a later duplicate member never writes through a symlink.
func prepareParent(target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
