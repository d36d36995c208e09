// Package symlink manages the directory links used for local skill installs.
package symlink

import (
	"os"
	"path/filepath"
)

// Manager handles symlink operations
type Manager struct{}

// New creates a new symlink manager
func New() *Manager {
	return &Manager{}
}

// Info contains information about a path that may be a symlink
type Info struct {
	Path      string
	Target    string // absolute link target, empty unless IsSymlink
	Exists    bool   // the path itself exists, even as a dangling link
	IsSymlink bool
	IsDir     bool // the path, or its link target, is a directory
	IsBroken  bool
}

// Create links path to target. The stored target is absolute so the link
// survives being read from a different working directory.
func (m *Manager) Create(path, target string) error {
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.Symlink(absTarget, path)
}

// Clear removes whatever is at path without following links: a symlink is
// unlinked, a directory removed recursively, anything else removed directly.
// A missing path is not an error.
func (m *Manager) Clear(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return os.Remove(path)
	case info.IsDir():
		return os.RemoveAll(path)
	default:
		return os.Remove(path)
	}
}

// Info returns information about a path, resolving symlinks
func (m *Manager) Info(path string) (*Info, error) {
	info := &Info{Path: path}

	linfo, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}

	info.Exists = true
	info.IsSymlink = linfo.Mode()&os.ModeSymlink != 0
	info.IsDir = linfo.IsDir()

	if info.IsSymlink {
		target, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		info.Target = target

		targetInfo, err := os.Stat(path)
		switch {
		case os.IsNotExist(err):
			info.IsBroken = true
		case err == nil:
			info.IsDir = targetInfo.IsDir()
		default:
			return nil, err
		}
	}

	return info, nil
}
