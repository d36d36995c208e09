// Package cache keeps extracted source archives on disk, keyed by download
// URL and resolved version.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
)

// Store is a directory of cache entries. An entry directory that exists is a
// hit; entries are never revalidated.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir. The directory is created lazily.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the store root
func (s *Store) Dir() string {
	return s.dir
}

var keyReplacer = strings.NewReplacer("/", "_", `\`, "_", ":", "_")

// Key derives the entry name: first 16 hex chars of sha256(url), "_", version
func Key(url, version string) string {
	return digest.FromString(url).Encoded()[:16] + "_" + keyReplacer.Replace(version)
}

// Path returns the entry directory for key
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key)
}

// Exists reports whether key has an entry
func (s *Store) Exists(key string) bool {
	info, err := os.Stat(s.Path(key))
	return err == nil && info.IsDir()
}

// PopulateFunc fills dir with the entry's content
type PopulateFunc func(ctx context.Context, dir string) error

// GetOrPopulate returns the entry directory for key, running populate on a
// miss. populate writes into a staging directory that is renamed into place
// only on success, so a failed or interrupted populate never leaves an entry.
func (s *Store) GetOrPopulate(ctx context.Context, key string, populate PopulateFunc) (string, bool, error) {
	entry := s.Path(key)
	if s.Exists(key) {
		s.logger.Debug("cache hit", "key", key)
		return entry, true, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", false, fmt.Errorf("create cache directory: %w", err)
	}

	staging := filepath.Join(s.dir, ".tmp-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return "", false, fmt.Errorf("create cache staging directory: %w", err)
	}

	if err := populate(ctx, staging); err != nil {
		os.RemoveAll(staging)
		return "", false, err
	}

	if err := os.Rename(staging, entry); err != nil {
		os.RemoveAll(staging)
		// Another process may have populated the same key first.
		if s.Exists(key) {
			return entry, true, nil
		}
		return "", false, fmt.Errorf("commit cache entry: %w", err)
	}

	s.logger.Debug("cache populated", "key", key)
	return entry, false, nil
}
