package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samhoang/asma/internal/config"
	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/skill"
)

// LocalResolver handles local:<path> sources. Installs link to the source
// directory so edits show up without reinstalling.
type LocalResolver struct {
	env config.Env
}

// NewLocalResolver creates a local resolver. env expands ~; nil uses the process env.
func NewLocalResolver(env config.Env) *LocalResolver {
	if env == nil {
		env = config.OSEnv{}
	}
	return &LocalResolver{env: env}
}

func (r *LocalResolver) Resolve(_ context.Context, ref *skill.Reference) (*ResolvedSource, error) {
	path, err := r.Path(ref.Source)
	if err != nil {
		return nil, &SourceError{Op: "resolve local", Source: ref.Source, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SourceError{Op: "resolve local", Source: ref.Source,
				Err: fmt.Errorf("%w: local skill not found: %s", asmaerrors.ErrNotFound, path)}
		}
		return nil, &SourceError{Op: "resolve local", Source: ref.Source, Err: err}
	}
	if !info.IsDir() {
		return nil, &SourceError{Op: "resolve local", Source: ref.Source,
			Err: fmt.Errorf("%w: local skill path must be a directory: %s", asmaerrors.ErrNotFound, path)}
	}

	sum, err := skill.ManifestDigest(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SourceError{Op: "resolve local", Source: ref.Source,
				Err: fmt.Errorf("%w: %s not found in %s", asmaerrors.ErrNotFound, skill.ManifestFile, path)}
		}
		return nil, &SourceError{Op: "resolve local", Source: ref.Source, Err: err}
	}

	hex := sum.Encoded()
	return &ResolvedSource{
		Version:   "local@" + hex[:8],
		Commit:    hex,
		LocalPath: path,
	}, nil
}

// Path converts a local: source into an absolute, symlink-free path
func (r *LocalResolver) Path(source string) (string, error) {
	raw := strings.TrimPrefix(source, skill.SchemeLocal)
	if raw == "" {
		return "", fmt.Errorf("%w: empty local path", asmaerrors.ErrInvalidReference)
	}

	abs, err := filepath.Abs(config.ExpandHome(r.env, raw))
	if err != nil {
		return "", err
	}

	// A missing path is reported by Resolve's Stat.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func (r *LocalResolver) Download(_ context.Context, resolved *ResolvedSource) (string, error) {
	if resolved.LocalPath == "" {
		return "", &SourceError{Op: "download local", Err: errors.New("resolved source has no local path")}
	}
	return resolved.LocalPath, nil
}

func (r *LocalResolver) ShouldSymlink() bool {
	return true
}
