package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asmaerrors "github.com/samhoang/asma/internal/errors"
)

type entry struct {
	name     string
	typeflag byte
	body     string
	linkname string
	mode     int64
}

func file(name, body string) entry {
	return entry{name: name, typeflag: tar.TypeReg, body: body, mode: 0o644}
}

func dir(name string) entry {
	return entry{name: name, typeflag: tar.TypeDir, mode: 0o755}
}

func symlink(name, target string) entry {
	return entry{name: name, typeflag: tar.TypeSymlink, linkname: target, mode: 0o777}
}

func buildArchive(t *testing.T, entries ...entry) *bytes.Reader {
	t.Helper()

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Mode:     e.mode,
			Linkname: e.linkname,
			Format:   tar.FormatPAX,
		}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.body != "" {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	return bytes.NewReader(buf.Bytes())
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestExtractValidArchive(t *testing.T) {
	dest := t.TempDir()
	archive := buildArchive(t,
		dir("owner-repo-abc123/"),
		file("owner-repo-abc123/SKILL.md", "---\nname: x\n---\n"),
		dir("owner-repo-abc123/docs/"),
		file("owner-repo-abc123/docs/guide.md", "guide"),
		symlink("owner-repo-abc123/README.md", "docs/guide.md"),
	)

	ex := NewExtractor(DefaultLimits(), nil)
	require.NoError(t, ex.Extract(archive, dest))

	content, err := os.ReadFile(filepath.Join(dest, "owner-repo-abc123", "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "---\nname: x\n---\n", string(content))

	link, err := os.Readlink(filepath.Join(dest, "owner-repo-abc123", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "docs/guide.md", link)

	content, err = os.ReadFile(filepath.Join(dest, "owner-repo-abc123", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "guide", string(content))
}

func TestExtractSkipsGlobalHeader(t *testing.T) {
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: map[string]string{"comment": "abc123"},
		Format:     tar.FormatPAX,
	}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "repo/SKILL.md", Typeflag: tar.TypeReg, Size: 2, Mode: 0o644}))
	_, err := tw.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())

	dest := t.TempDir()
	require.NoError(t, NewExtractor(DefaultLimits(), nil).Extract(bytes.NewReader(buf.Bytes()), dest))
	assert.Equal(t, []string{"repo"}, listDir(t, dest))
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	tests := []struct {
		name   string
		member string
	}{
		{"parent escape", "../evil.txt"},
		{"nested escape", "repo/../../evil.txt"},
		{"absolute", "/etc/evil.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			archive := buildArchive(t,
				file("repo/ok.txt", "fine"),
				file(tt.member, "evil"),
			)

			err := NewExtractor(DefaultLimits(), nil).Extract(archive, dest)
			require.Error(t, err)
			assert.ErrorIs(t, err, asmaerrors.ErrUnsafePath)
			assert.Empty(t, listDir(t, dest), "nothing may be written when validation fails")
		})
	}
}

func TestExtractRejectsMemberReplacingRoot(t *testing.T) {
	tests := []struct {
		name   string
		member entry
	}{
		{"file named dot", file(".", "x")},
		{"file named dot slash", file("./", "x")},
		{"symlink named dot", symlink(".", "repo/SKILL.md")},
		{"hardlink named dot", entry{name: ".", typeflag: tar.TypeLink, linkname: "repo/SKILL.md", mode: 0o644}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			archive := buildArchive(t, file("repo/SKILL.md", "x"), tt.member)

			err := NewExtractor(DefaultLimits(), nil).Extract(archive, dest)
			require.Error(t, err)
			assert.ErrorIs(t, err, asmaerrors.ErrUnsafePath)

			info, err := os.Lstat(dest)
			require.NoError(t, err)
			assert.True(t, info.IsDir(), "destination must stay a directory")
			assert.Empty(t, listDir(t, dest))
		})
	}
}

func TestExtractAllowsRootDirectoryEntry(t *testing.T) {
	dest := t.TempDir()
	archive := buildArchive(t, dir("./"), file("repo/SKILL.md", "x"))

	require.NoError(t, NewExtractor(DefaultLimits(), nil).Extract(archive, dest))
	assert.FileExists(t, filepath.Join(dest, "repo", "SKILL.md"))
}

func TestExtractAllowsInternalDotDot(t *testing.T) {
	dest := t.TempDir()
	archive := buildArchive(t, file("repo/sub/../SKILL.md", "x"))

	require.NoError(t, NewExtractor(DefaultLimits(), nil).Extract(archive, dest))
	_, err := os.Stat(filepath.Join(dest, "repo", "SKILL.md"))
	assert.NoError(t, err)
}

func TestExtractRejectsUnsafeSymlinks(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"absolute target", "/etc/passwd"},
		{"relative escape", "../../../etc/passwd"},
		{"parent in middle", "docs/../../outside"},
		{"empty target", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			archive := buildArchive(t,
				file("repo/SKILL.md", "x"),
				symlink("repo/link", tt.target),
			)

			err := NewExtractor(DefaultLimits(), nil).Extract(archive, dest)
			require.Error(t, err)
			assert.ErrorIs(t, err, asmaerrors.ErrUnsafeSymlink)
			assert.Empty(t, listDir(t, dest))
		})
	}
}

func TestExtractRejectsEscapingHardlink(t *testing.T) {
	dest := t.TempDir()
	archive := buildArchive(t,
		entry{name: "repo/hard", typeflag: tar.TypeLink, linkname: "../outside", mode: 0o644},
	)

	err := NewExtractor(DefaultLimits(), nil).Extract(archive, dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, asmaerrors.ErrUnsafeSymlink)
}

func TestExtractHardlinkInsideArchive(t *testing.T) {
	dest := t.TempDir()
	archive := buildArchive(t,
		file("repo/SKILL.md", "body"),
		entry{name: "repo/copy.md", typeflag: tar.TypeLink, linkname: "repo/SKILL.md", mode: 0o644},
	)

	require.NoError(t, NewExtractor(DefaultLimits(), nil).Extract(archive, dest))
	content, err := os.ReadFile(filepath.Join(dest, "repo", "copy.md"))
	require.NoError(t, err)
	assert.Equal(t, "body", string(content))
}

func TestExtractRejectsSpecialFiles(t *testing.T) {
	tests := []struct {
		name     string
		typeflag byte
		detail   string
	}{
		{"char device", tar.TypeChar, "device"},
		{"block device", tar.TypeBlock, "device"},
		{"fifo", tar.TypeFifo, "FIFO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			archive := buildArchive(t, entry{name: "repo/dev", typeflag: tt.typeflag, mode: 0o644})

			err := NewExtractor(DefaultLimits(), nil).Extract(archive, dest)
			require.Error(t, err)
			assert.ErrorIs(t, err, asmaerrors.ErrUnsafeMember)
			assert.Contains(t, err.Error(), tt.detail)
		})
	}
}

func TestExtractRejectsLongNames(t *testing.T) {
	dest := t.TempDir()
	long := "repo/" + strings.Repeat("a", 300)

	err := NewExtractor(DefaultLimits(), nil).Extract(buildArchive(t, file(long, "x")), dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, asmaerrors.ErrUnsafeMember)
	assert.Contains(t, err.Error(), "filename too long")
}

func TestExtractStripsPrivilegeBits(t *testing.T) {
	dest := t.TempDir()
	archive := buildArchive(t, entry{name: "repo/run.sh", typeflag: tar.TypeReg, body: "#!/bin/sh\n", mode: 0o6755})

	require.NoError(t, NewExtractor(DefaultLimits(), nil).Extract(archive, dest))

	info, err := os.Stat(filepath.Join(dest, "repo", "run.sh"))
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&os.ModeSetuid)
	assert.Zero(t, info.Mode()&os.ModeSetgid)
	assert.NotZero(t, info.Mode().Perm()&0o100)
}

func TestExtractTooManyFiles(t *testing.T) {
	limits := DefaultLimits()
	entries := make([]entry, 0, limits.MaxFileCount+1)
	for i := 0; i <= limits.MaxFileCount; i++ {
		entries = append(entries, file(fmt.Sprintf("repo/f%05d", i), ""))
	}

	dest := t.TempDir()
	err := NewExtractor(limits, nil).Extract(buildArchive(t, entries...), dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, asmaerrors.ErrArchiveTooLarge)

	var archiveErr *asmaerrors.ArchiveError
	require.ErrorAs(t, err, &archiveErr)
	assert.Equal(t, asmaerrors.LimitTooManyFiles, archiveErr.Limit)
	assert.Empty(t, listDir(t, dest))
}

func TestExtractOversizedFile(t *testing.T) {
	limits := Limits{MaxFileSize: 8}
	dest := t.TempDir()

	err := NewExtractor(limits, nil).Extract(buildArchive(t, file("repo/big", "123456789")), dest)
	require.Error(t, err)

	var archiveErr *asmaerrors.ArchiveError
	require.ErrorAs(t, err, &archiveErr)
	assert.Equal(t, asmaerrors.LimitOversizedFile, archiveErr.Limit)
	assert.Equal(t, "repo/big", archiveErr.Member)
}

func TestExtractOversizedTotal(t *testing.T) {
	limits := Limits{MaxTotalSize: 10}
	dest := t.TempDir()
	archive := buildArchive(t, file("repo/a", "123456"), file("repo/b", "123456"))

	err := NewExtractor(limits, nil).Extract(archive, dest)
	require.Error(t, err)

	var archiveErr *asmaerrors.ArchiveError
	require.ErrorAs(t, err, &archiveErr)
	assert.Equal(t, asmaerrors.LimitOversizedTotal, archiveErr.Limit)
	assert.Empty(t, listDir(t, dest))
}

func TestExtractStream(t *testing.T) {
	dest := t.TempDir()
	archive := buildArchive(t, file("repo/SKILL.md", "x"))

	require.NoError(t, NewExtractor(DefaultLimits(), nil).ExtractStream(archive, dest))
	assert.FileExists(t, filepath.Join(dest, "repo", "SKILL.md"))
}

func TestExtractStreamCompressedCap(t *testing.T) {
	dest := t.TempDir()
	err := NewExtractor(Limits{MaxTotalSize: 4}, nil).ExtractStream(strings.NewReader("0123456789"), dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, asmaerrors.ErrArchiveTooLarge)
}

func TestExtractRejectsGarbage(t *testing.T) {
	err := NewExtractor(DefaultLimits(), nil).Extract(bytes.NewReader([]byte("not gzip")), t.TempDir())
	assert.Error(t, err)
}

func TestWithin(t *testing.T) {
	root := filepath.FromSlash("/a/b")
	assert.True(t, within(root, root))
	assert.True(t, within(root, filepath.FromSlash("/a/b/c")))
	assert.True(t, within(root, filepath.FromSlash("/a/b/..c")))
	assert.False(t, within(root, filepath.FromSlash("/a")))
	assert.False(t, within(root, filepath.FromSlash("/a/bc")))
}
