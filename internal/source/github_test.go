package source

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samhoang/asma/internal/cache"
	asmaerrors "github.com/samhoang/asma/internal/errors"
	"github.com/samhoang/asma/internal/skill"
)

const skillManifest = "---\nname: doc-helper\ndescription: helps with docs\n---\n# Doc helper\n"

// fakeGitHub serves the repo, releases and tarball endpoints for owner/repo
type fakeGitHub struct {
	*httptest.Server
	requests atomic.Int32
	headers  atomic.Pointer[http.Header]
	tarball  []byte
}

func newFakeGitHub(t *testing.T, tarball []byte) *fakeGitHub {
	t.Helper()

	f := &fakeGitHub{tarball: tarball}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/owner/repo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"full_name":"owner/repo","default_branch":"main"}`))
	})
	mux.HandleFunc("GET /repos/owner/repo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tag_name":"v2.1.0"}`))
	})
	mux.HandleFunc("GET /repos/owner/repo/tarball/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-gzip")
		w.Write(f.tarball)
	})

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		h := r.Header.Clone()
		f.headers.Store(&h)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func repoTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "owner-repo-abc1234/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(body)),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	return buf.Bytes()
}

func newTestResolver(t *testing.T, baseURL string, strict bool) *GitHubResolver {
	t.Helper()
	r, err := NewGitHubResolver(GitHubOptions{
		APIBase:  baseURL,
		Token:    "test-token",
		Strict:   strict,
		CacheDir: filepath.Join(t.TempDir(), "cache"),
	})
	require.NoError(t, err)
	return r
}

func mustRef(t *testing.T, name, src string, opts skill.Options) *skill.Reference {
	t.Helper()
	ref, err := skill.New(name, src, skill.ScopeProject, opts)
	require.NoError(t, err)
	return ref
}

func TestParseGitHubSource(t *testing.T) {
	tests := []struct {
		source  string
		want    *GitHubSource
		wantErr bool
	}{
		{"github:owner/repo", &GitHubSource{Owner: "owner", Repo: "repo"}, false},
		{"github:owner/repo/skills/doc", &GitHubSource{Owner: "owner", Repo: "repo", Subpath: "skills/doc"}, false},
		{"github:owner/repo/skills/doc/", &GitHubSource{Owner: "owner", Repo: "repo", Subpath: "skills/doc"}, false},
		{"github:my.org/my_repo-2", &GitHubSource{Owner: "my.org", Repo: "my_repo-2"}, false},
		{"github:owner", nil, true},
		{"github:/repo", nil, true},
		{"github:owner/../x", nil, true},
		{"github:owner/repo/../../etc", nil, true},
		{"github:own er/repo", nil, true},
		{"local:/x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := ParseGitHubSource(tt.source)
			if tt.wantErr {
				assert.ErrorIs(t, err, asmaerrors.ErrInvalidReference)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGitHubResolveRefPrecedence(t *testing.T) {
	tests := []struct {
		name         string
		opts         skill.Options
		wantRef      string
		wantRequests int32
	}{
		{"explicit ref", skill.Options{Ref: "feature-x"}, "feature-x", 0},
		{"literal version", skill.Options{Version: "v1.0.0"}, "v1.0.0", 0},
		{"latest release", skill.Options{Version: "latest"}, "v2.1.0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh := newFakeGitHub(t, nil)
			r := newTestResolver(t, gh.URL, true)

			resolved, err := r.Resolve(context.Background(), mustRef(t, "doc-helper", "github:owner/repo", tt.opts))
			require.NoError(t, err)

			assert.Equal(t, tt.wantRef, resolved.Version)
			assert.Equal(t, tt.wantRef, resolved.Commit)
			assert.Equal(t, gh.URL+"/repos/owner/repo/tarball/"+tt.wantRef, resolved.DownloadURL)
			assert.Empty(t, resolved.LocalPath)
			assert.Empty(t, resolved.Warnings)
			assert.Equal(t, tt.wantRequests, gh.requests.Load())
		})
	}
}

func TestGitHubResolveDefaultBranchAdvisory(t *testing.T) {
	gh := newFakeGitHub(t, nil)
	r := newTestResolver(t, gh.URL, false)

	resolved, err := r.Resolve(context.Background(), mustRef(t, "doc-helper", "github:owner/repo", skill.Options{}))
	require.NoError(t, err)

	assert.Equal(t, "main", resolved.Version)
	assert.True(t, strings.HasSuffix(resolved.DownloadURL, "tarball/main"))
	require.Len(t, resolved.Warnings, 1)
	assert.Contains(t, resolved.Warnings[0], "No version specified for skill 'doc-helper'")
	assert.Contains(t, resolved.Warnings[0], "Using default branch")
}

func TestGitHubResolveStrictMakesNoRequest(t *testing.T) {
	gh := newFakeGitHub(t, nil)
	r := newTestResolver(t, gh.URL, true)

	_, err := r.Resolve(context.Background(), mustRef(t, "doc-helper", "github:owner/repo", skill.Options{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, asmaerrors.ErrVersionRequired)
	assert.Contains(t, err.Error(), "strict mode")
	assert.Zero(t, gh.requests.Load())
}

func TestGitHubRequestHeaders(t *testing.T) {
	gh := newFakeGitHub(t, nil)
	r := newTestResolver(t, gh.URL, false)

	_, err := r.Resolve(context.Background(), mustRef(t, "doc-helper", "github:owner/repo", skill.Options{}))
	require.NoError(t, err)

	h := *gh.headers.Load()
	assert.Equal(t, "application/vnd.github.v3+json", h.Get("Accept"))
	assert.Equal(t, "asma-skill-manager", h.Get("User-Agent"))
	assert.Equal(t, "token test-token", h.Get("Authorization"))
}

func TestGitHubAnonymousRequests(t *testing.T) {
	gh := newFakeGitHub(t, nil)
	r, err := NewGitHubResolver(GitHubOptions{APIBase: gh.URL, CacheDir: t.TempDir()})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), mustRef(t, "doc-helper", "github:owner/repo", skill.Options{}))
	require.NoError(t, err)
	assert.Empty(t, gh.headers.Load().Get("Authorization"))
	assert.False(t, r.Client().Authenticated())
}

func TestGitHubRejectsHeaderInjectionToken(t *testing.T) {
	_, err := NewGitHubResolver(GitHubOptions{Token: "abc\r\nX-Evil: 1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, asmaerrors.ErrAuthenticationFailed)
	assert.NotContains(t, err.Error(), "abc")
}

func TestGitHubAPIErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		header  map[string]string
		wantErr error
	}{
		{"not found", http.StatusNotFound, `{"message":"Not Found"}`, nil, asmaerrors.ErrNotFound},
		{"bad token", http.StatusUnauthorized, `{"message":"Bad credentials"}`, nil, asmaerrors.ErrAuthenticationFailed},
		{"rate limited", http.StatusForbidden, `{"message":"API rate limit exceeded for 1.2.3.4."}`, nil, asmaerrors.ErrRateLimited},
		{"rate limit header", http.StatusForbidden, `{}`, map[string]string{"X-RateLimit-Remaining": "0"}, asmaerrors.ErrRateLimited},
		{"access denied", http.StatusForbidden, `{"message":"Resource not accessible"}`, nil, asmaerrors.ErrAccessDenied},
		{"forbidden without json", http.StatusForbidden, `nope`, nil, asmaerrors.ErrAccessDenied},
		{"server error", http.StatusBadGateway, ``, nil, asmaerrors.ErrTransport},
		{"array body", http.StatusOK, `["main"]`, nil, asmaerrors.ErrMalformedResponse},
		{"invalid json", http.StatusOK, `{`, nil, asmaerrors.ErrMalformedResponse},
		{"missing field", http.StatusOK, `{"name":"repo"}`, nil, asmaerrors.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := newTestResolver(t, srv.URL, false)
			_, err := r.Resolve(context.Background(), mustRef(t, "doc-helper", "github:owner/repo", skill.Options{}))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotContains(t, err.Error(), "test-token")
		})
	}
}

func TestGitHubTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := newTestResolver(t, url, false)
	_, err := r.Resolve(context.Background(), mustRef(t, "doc-helper", "github:owner/repo", skill.Options{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, asmaerrors.ErrTransport)
}

func TestGitHubDownload(t *testing.T) {
	gh := newFakeGitHub(t, repoTarball(t, map[string]string{
		"owner-repo-abc1234/SKILL.md":              skillManifest,
		"owner-repo-abc1234/skills/other/SKILL.md": skillManifest,
	}))
	r := newTestResolver(t, gh.URL, false)
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, mustRef(t, "doc-helper", "github:owner/repo", skill.Options{Version: "v1.0.0"}))
	require.NoError(t, err)

	dir, err := r.Download(ctx, resolved)
	require.NoError(t, err)
	assert.Equal(t, "owner-repo-abc1234", filepath.Base(dir))
	assert.FileExists(t, filepath.Join(dir, "SKILL.md"))
	assert.True(t, r.Store().Exists(cache.Key(resolved.DownloadURL, "v1.0.0")))
	assert.False(t, r.ShouldSymlink())

	before := gh.requests.Load()
	again, err := r.Download(ctx, resolved)
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.Equal(t, before, gh.requests.Load(), "cache hit must not touch the network")
}

func TestGitHubDownloadSubpath(t *testing.T) {
	gh := newFakeGitHub(t, repoTarball(t, map[string]string{
		"owner-repo-abc1234/README.md":           "root",
		"owner-repo-abc1234/skills/doc/SKILL.md": skillManifest,
	}))
	r := newTestResolver(t, gh.URL, false)
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, mustRef(t, "doc", "github:owner/repo/skills/doc", skill.Options{Ref: "main"}))
	require.NoError(t, err)
	assert.Equal(t, "skills/doc", resolved.Subpath)

	dir, err := r.Download(ctx, resolved)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "SKILL.md"))
	assert.Equal(t, "doc", filepath.Base(dir))

	resolved.Subpath = "skills/missing"
	_, err = r.Download(ctx, resolved)
	assert.ErrorIs(t, err, asmaerrors.ErrNotFound)
}

func TestGitHubDownloadRejectedArchiveLeavesNoCache(t *testing.T) {
	gh := newFakeGitHub(t, repoTarball(t, map[string]string{
		"owner-repo-abc1234/SKILL.md": skillManifest,
		"../evil.txt":                 "evil",
	}))
	r := newTestResolver(t, gh.URL, false)
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, mustRef(t, "doc-helper", "github:owner/repo", skill.Options{Ref: "main"}))
	require.NoError(t, err)

	_, err = r.Download(ctx, resolved)
	require.Error(t, err)
	assert.ErrorIs(t, err, asmaerrors.ErrUnsafePath)

	entries, err := os.ReadDir(r.Store().Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGitHubDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := newTestResolver(t, srv.URL, false)
	_, err := r.Download(context.Background(), &ResolvedSource{
		Version:     "main",
		Commit:      "main",
		DownloadURL: srv.URL + "/repos/owner/repo/tarball/main",
	})
	assert.ErrorIs(t, err, asmaerrors.ErrNotFound)
	assert.False(t, r.Store().Exists(cache.Key(srv.URL+"/repos/owner/repo/tarball/main", "main")))
}

func TestArtifactRootWithoutWrapper(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "docs"), 0o755))

	root, err := artifactRoot(dir, "")
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}
