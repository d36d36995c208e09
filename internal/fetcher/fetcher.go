// Package fetcher probes a source for its skill metadata without installing it.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samhoang/asma/internal/skill"
	"github.com/samhoang/asma/internal/source"
	"github.com/samhoang/asma/internal/validator"
)

// placeholderName stands in for the real name, which comes from SKILL.md
const placeholderName = "temp-fetch"

// Result holds fetched metadata, or Error when Success is false
type Result struct {
	Success     bool
	Name        string
	Description string
	Version     string
	Metadata    map[string]any
	Warnings    []string
	Error       string
	Err         error
}

// Fetcher resolves and downloads a source to read its front matter
type Fetcher struct {
	registry *source.Registry
	logger   *slog.Logger
}

// New creates a fetcher over the given resolvers
func New(registry *source.Registry, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{registry: registry, logger: logger}
}

// FetchMetadata reads the skill at src. version and ref pin GitHub sources
// the same way they do for installs.
func (f *Fetcher) FetchMetadata(ctx context.Context, src, version, ref string) *Result {
	meta, warnings, err := f.fetch(ctx, src, version, ref)
	if err != nil {
		f.logger.Debug("fetch failed", "source", src, "error", err)
		return &Result{Error: err.Error(), Err: err, Warnings: warnings, Metadata: map[string]any{}}
	}
	return meta
}

func (f *Fetcher) fetch(ctx context.Context, src, version, gitRef string) (*Result, []string, error) {
	ref, err := skill.New(placeholderName, src, skill.ScopeProject, skill.Options{Version: version, Ref: gitRef})
	if err != nil {
		return nil, nil, err
	}

	res, err := f.registry.For(ref)
	if err != nil {
		return nil, nil, err
	}

	resolved, err := res.Resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	dir, err := res.Download(ctx, resolved)
	if err != nil {
		return nil, resolved.Warnings, err
	}

	v := validator.Validate(dir)
	if !v.Valid {
		return nil, resolved.Warnings, fmt.Errorf("invalid skill: %w", v.Err())
	}

	return &Result{
		Success:     true,
		Name:        v.Name(),
		Description: v.Description(),
		Version:     resolved.Version,
		Metadata:    v.Metadata,
		Warnings:    resolved.Warnings,
	}, resolved.Warnings, nil
}
