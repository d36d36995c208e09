// Package source turns skill references into local directories.
// A Resolver exists per source scheme (local:, github:); the installer only
// sees the Resolver interface.
package source

import (
	"context"

	"github.com/samhoang/asma/internal/skill"
)

// Resolver resolves and fetches one kind of source
type Resolver interface {
	// Resolve determines the concrete version of ref without downloading it
	Resolve(ctx context.Context, ref *skill.Reference) (*ResolvedSource, error)

	// Download returns a local directory holding the resolved artifact
	Download(ctx context.Context, resolved *ResolvedSource) (string, error)

	// ShouldSymlink reports whether installs link to the fetched directory
	// instead of copying it
	ShouldSymlink() bool
}

// ResolvedSource describes one concrete artifact. Exactly one of LocalPath
// and DownloadURL is set.
type ResolvedSource struct {
	Version     string // display label, e.g. "v1.2.0" or "local@1a2b3c4d"
	Commit      string // git ref or manifest checksum
	LocalPath   string
	DownloadURL string

	// Subpath inside the archive root, from github:owner/repo/<subpath>
	Subpath string

	// Warnings are non-fatal advisories for the user
	Warnings []string
}
