// Package installer materializes validated skills into a scope directory.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/skill"
	"github.com/samhoang/asma/internal/source"
	"github.com/samhoang/asma/internal/symlink"
	"github.com/samhoang/asma/internal/validator"
)

// Result is the outcome of one install attempt. On failure only SkillName,
// InstallPath, Error and Err are meaningful.
type Result struct {
	Success     bool
	SkillName   string
	Scope       skill.Scope
	InstallPath string
	Error       string
	Err         error

	Version    string
	Commit     string
	Checksum   string // "sha256:<hex>" of the fetched SKILL.md
	Symlink    bool
	SourcePath string

	// Advisories from resolution, e.g. an unpinned GitHub version
	Warnings []string
}

// Installer installs one skill at a time. It is safe for concurrent use on
// distinct install paths.
type Installer struct {
	links  *symlink.Manager
	logger *slog.Logger
}

// New creates an installer
func New(logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Installer{links: symlink.New(), logger: logger}
}

// Install resolves, fetches and validates ref, then installs it under
// base/<alias or name>. Every failure, including a panic, is reported in the
// returned Result rather than as an error.
func (i *Installer) Install(ctx context.Context, ref *skill.Reference, res source.Resolver, base string, force bool) (result *Result) {
	installPath := filepath.Join(base, ref.InstallName())
	result = &Result{SkillName: ref.Name, Scope: ref.Scope, InstallPath: installPath}

	defer func() {
		if r := recover(); r != nil {
			result.fail(fmt.Errorf("unexpected failure: %v", r))
			i.logger.Error("install panicked", "skill", ref.Name, "panic", r)
		}
	}()

	if err := i.install(ctx, ref, res, installPath, force, result); err != nil {
		result.fail(asmaerrors.NewSkillError(ref.Name, "install", err))
		i.logger.Debug("install failed", "skill", ref.Name, "error", err)
		return result
	}

	result.Success = true
	i.logger.Debug("installed", "skill", ref.Name, "path", installPath, "symlink", result.Symlink)
	return result
}

func (i *Installer) install(ctx context.Context, ref *skill.Reference, res source.Resolver, installPath string, force bool, result *Result) error {
	if _, err := os.Lstat(installPath); err == nil && !force {
		return fmt.Errorf("%w at %s (use --force to overwrite)", asmaerrors.ErrAlreadyExists, installPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	resolved, err := res.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	result.Warnings = append(result.Warnings, resolved.Warnings...)

	sourcePath, err := res.Download(ctx, resolved)
	if err != nil {
		return err
	}

	if v := validator.Validate(sourcePath); !v.Valid {
		return v.Err()
	}

	checksum, err := skill.ManifestDigest(sourcePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(installPath), 0755); err != nil {
		return err
	}

	if res.ShouldSymlink() {
		if err := i.links.Clear(installPath); err != nil {
			return asmaerrors.NewPathError(installPath, "remove existing", err)
		}
		if err := i.links.Create(installPath, sourcePath); err != nil {
			return asmaerrors.NewPathError(installPath, "symlink", err)
		}
	} else if err := i.replaceWithCopy(sourcePath, installPath); err != nil {
		return err
	}

	result.Version = resolved.Version
	result.Commit = resolved.Commit
	result.Checksum = checksum.String()
	result.Symlink = res.ShouldSymlink()
	result.SourcePath = sourcePath
	return nil
}

// stagingPrefix names copy-staging directories. Staging lives next to the
// target so the final rename never crosses filesystems.
const stagingPrefix = ".asma-staging-"

// RemoveStaging deletes staging directories an interrupted install left in
// base. It must not run while installs into base are in flight.
func (i *Installer) RemoveStaging(base string) error {
	entries, err := os.ReadDir(base)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		path := filepath.Join(base, e.Name())
		i.logger.Debug("removing stale staging directory", "path", path)
		if err := os.RemoveAll(path); err != nil {
			return asmaerrors.NewPathError(path, "remove staging", err)
		}
	}
	return nil
}

// replaceWithCopy copies src into a staging directory next to dst and renames
// it into place, so dst never holds a half-written tree.
func (i *Installer) replaceWithCopy(src, dst string) error {
	staging := filepath.Join(filepath.Dir(dst), stagingPrefix+uuid.NewString())
	if err := copyTree(src, staging); err != nil {
		os.RemoveAll(staging)
		return asmaerrors.NewPathError(dst, "copy", err)
	}

	if err := i.links.Clear(dst); err != nil {
		os.RemoveAll(staging)
		return asmaerrors.NewPathError(dst, "remove existing", err)
	}

	if err := os.Rename(staging, dst); err != nil {
		os.RemoveAll(staging)
		return asmaerrors.NewPathError(dst, "install", err)
	}
	return nil
}

func (r *Result) fail(err error) {
	r.Success = false
	r.Err = err
	r.Error = err.Error()
}
