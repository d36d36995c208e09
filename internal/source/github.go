package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samhoang/asma/internal/archive"
	"github.com/samhoang/asma/internal/cache"
	"github.com/samhoang/asma/internal/config"
	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/skill"
)

// GitHubSource is a parsed github:owner/repo[/subpath] source
type GitHubSource struct {
	Owner   string
	Repo    string
	Subpath string // slash-separated, no leading or trailing slash
}

var repoPartPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ParseGitHubSource parses github:owner/repo[/subpath]
func ParseGitHubSource(source string) (*GitHubSource, error) {
	if !strings.HasPrefix(source, skill.SchemeGitHub) {
		return nil, fmt.Errorf("%w: invalid GitHub source format: %s", asmaerrors.ErrInvalidReference, source)
	}

	parts := strings.Split(strings.TrimPrefix(source, skill.SchemeGitHub), "/")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: invalid GitHub source format: %s (expected github:owner/repo[/path])",
			asmaerrors.ErrInvalidReference, source)
	}

	owner, repo := parts[0], parts[1]
	for _, p := range []string{owner, repo} {
		if !repoPartPattern.MatchString(p) || p == "." || p == ".." {
			return nil, fmt.Errorf("%w: invalid GitHub owner or repository %q in %s",
				asmaerrors.ErrInvalidReference, p, source)
		}
	}

	var sub []string
	for _, p := range parts[2:] {
		switch p {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("%w: subpath may not contain '..': %s", asmaerrors.ErrInvalidReference, source)
		}
		if strings.Contains(p, `\`) {
			return nil, fmt.Errorf("%w: invalid subpath in %s", asmaerrors.ErrInvalidReference, source)
		}
		sub = append(sub, p)
	}

	return &GitHubSource{Owner: owner, Repo: repo, Subpath: path.Join(sub...)}, nil
}

// GitHubOptions configures NewGitHubResolver
type GitHubOptions struct {
	APIBase   string
	Token     string
	Strict    bool
	CacheDir  string
	Limits    archive.Limits
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// GitHubResolver handles github: sources by downloading repository tarballs
// into the cache. Installs copy from the cache.
type GitHubResolver struct {
	client    *Client
	strict    bool
	store     *cache.Store
	extractor *archive.Extractor
	logger    *slog.Logger
}

// NewGitHubResolver creates a GitHub resolver
func NewGitHubResolver(opts GitHubOptions) (*GitHubResolver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client, err := NewClient(ClientOptions{
		BaseURL:   opts.APIBase,
		Token:     opts.Token,
		Transport: opts.Transport,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = config.DefaultCacheDir()
	}

	return &GitHubResolver{
		client:    client,
		strict:    opts.Strict,
		store:     cache.NewStore(cacheDir, logger),
		extractor: archive.NewExtractor(opts.Limits, logger),
		logger:    logger,
	}, nil
}

// Client returns the underlying API client
func (r *GitHubResolver) Client() *Client {
	return r.client
}

// Store returns the tarball cache
func (r *GitHubResolver) Store() *cache.Store {
	return r.store
}

// Resolve picks the git ref: explicit ref, then version ("latest" asks the
// releases API), then the default branch with an advisory unless strict.
func (r *GitHubResolver) Resolve(ctx context.Context, ref *skill.Reference) (*ResolvedSource, error) {
	src, err := ParseGitHubSource(ref.Source)
	if err != nil {
		return nil, &SourceError{Op: "resolve github", Source: ref.Source, Err: err}
	}

	var (
		gitRef   string
		warnings []string
	)

	switch {
	case ref.Ref != "":
		gitRef = ref.Ref

	case ref.Version == skill.VersionLatest:
		if gitRef, err = r.client.LatestRelease(ctx, src.Owner, src.Repo); err != nil {
			return nil, err
		}

	case ref.Version != "":
		gitRef = ref.Version

	default:
		if r.strict {
			return nil, &SourceError{Op: "resolve github", Source: ref.Source,
				Err: fmt.Errorf("%w: version not specified for skill '%s'; in strict mode, you must specify 'version' or 'ref' in skillset.yaml",
					asmaerrors.ErrVersionRequired, ref.Name)}
		}

		warnings = append(warnings, fmt.Sprintf(
			"No version specified for skill '%s'. Using default branch. Consider pinning a version for reproducibility.",
			ref.Name))

		if gitRef, err = r.client.DefaultBranch(ctx, src.Owner, src.Repo); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("resolved github source", "skill", ref.Name, "ref", gitRef)

	return &ResolvedSource{
		Version:     gitRef,
		Commit:      gitRef,
		DownloadURL: r.client.TarballURL(src.Owner, src.Repo, gitRef),
		Subpath:     src.Subpath,
		Warnings:    warnings,
	}, nil
}

// Download returns the artifact root inside the cache, downloading and
// extracting the tarball on a miss.
func (r *GitHubResolver) Download(ctx context.Context, resolved *ResolvedSource) (string, error) {
	if resolved.DownloadURL == "" {
		return "", &SourceError{Op: "download github", Err: errors.New("resolved source has no download URL")}
	}

	key := cache.Key(resolved.DownloadURL, resolved.Version)
	dir, hit, err := r.store.GetOrPopulate(ctx, key, func(ctx context.Context, dir string) error {
		body, err := r.client.OpenTarball(ctx, resolved.DownloadURL)
		if err != nil {
			return err
		}
		defer body.Close()

		if err := r.extractor.ExtractStream(body, dir); err != nil {
			return &SourceError{Op: "extract", Source: resolved.DownloadURL, Err: err}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	r.logger.Debug("github artifact ready", "url", resolved.DownloadURL, "cache_hit", hit)
	return artifactRoot(dir, resolved.Subpath)
}

func (r *GitHubResolver) ShouldSymlink() bool {
	return false
}

// artifactRoot descends into the single wrapping directory GitHub puts in
// every tarball, then into subpath.
func artifactRoot(dir, subpath string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	root := dir
	if len(entries) == 1 && entries[0].IsDir() {
		root = filepath.Join(dir, entries[0].Name())
	}

	if subpath == "" {
		return root, nil
	}

	target := filepath.Join(root, filepath.FromSlash(subpath))
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: subpath %q not found in archive", asmaerrors.ErrNotFound, subpath)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: subpath %q is not a directory", asmaerrors.ErrNotFound, subpath)
	}
	return target, nil
}
