package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	asmaerrors "github.com/samhoang/asma/internal/errors"
)

const (
	// DefaultAPIBase is the public GitHub REST endpoint
	DefaultAPIBase = "https://api.github.com"

	userAgent       = "asma-skill-manager"
	acceptHeader    = "application/vnd.github.v3+json"
	apiTimeout      = 30 * time.Second
	downloadTimeout = 60 * time.Second

	// maxErrorBody caps how much of an error response is read for its message
	maxErrorBody = 64 * 1024
)

// Client talks to the three GitHub endpoints asma needs
type Client struct {
	baseURL  string
	api      *http.Client
	download *http.Client
	token    string
	logger   *slog.Logger
}

// ClientOptions configures NewClient
type ClientOptions struct {
	BaseURL string
	Token   string

	// Transport is shared by API and download requests; nil uses the default
	Transport http.RoundTripper

	Logger *slog.Logger
}

// NewClient creates a GitHub API client. An empty token means anonymous
// requests; a token that is not a valid header value is rejected.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultAPIBase
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid GitHub API base: %w", err)
	}

	if opts.Token != "" && !httpguts.ValidHeaderFieldValue("token "+opts.Token) {
		return nil, fmt.Errorf("%w: token contains characters not allowed in an HTTP header",
			asmaerrors.ErrAuthenticationFailed)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL:  base,
		api:      &http.Client{Transport: opts.Transport, Timeout: apiTimeout},
		download: &http.Client{Transport: opts.Transport, Timeout: downloadTimeout},
		token:    opts.Token,
		logger:   logger,
	}, nil
}

// Authenticated reports whether requests carry a token
func (c *Client) Authenticated() bool {
	return c.token != ""
}

func (c *Client) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	return req, nil
}

// DefaultBranch returns the repository's default branch
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	return c.getString(ctx, "/repos/"+escapePath(owner, repo), "default_branch")
}

// LatestRelease returns the tag of the newest release
func (c *Client) LatestRelease(ctx context.Context, owner, repo string) (string, error) {
	return c.getString(ctx, "/repos/"+escapePath(owner, repo)+"/releases/latest", "tag_name")
}

// TarballURL builds the archive download URL for ref
func (c *Client) TarballURL(owner, repo, ref string) string {
	return c.baseURL + "/repos/" + escapePath(owner, repo) + "/tarball/" + escapePath(strings.Split(ref, "/")...)
}

func escapePath(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(escaped, "/")
}

func (c *Client) getString(ctx context.Context, endpoint, field string) (string, error) {
	obj, err := c.getObject(ctx, endpoint)
	if err != nil {
		return "", err
	}
	value, ok := obj[field].(string)
	if !ok || value == "" {
		return "", &SourceError{Op: "github api", Source: endpoint,
			Err: fmt.Errorf("%w: missing %q in response", asmaerrors.ErrMalformedResponse, field)}
	}
	return value, nil
}

// getObject performs a GET and requires a JSON object body
func (c *Client) getObject(ctx context.Context, endpoint string) (map[string]any, error) {
	req, err := c.newRequest(ctx, c.baseURL+endpoint)
	if err != nil {
		return nil, &SourceError{Op: "github api", Source: endpoint, Err: err}
	}

	c.logger.Debug("github api request", "endpoint", endpoint, "authenticated", c.Authenticated())

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, &SourceError{Op: "github api", Source: endpoint,
			Err: fmt.Errorf("%w: failed to connect to GitHub API: %w", asmaerrors.ErrTransport, stripURL(err))}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Op: "github api", Source: endpoint, Err: statusError(resp)}
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &SourceError{Op: "github api", Source: endpoint,
			Err: fmt.Errorf("%w: %v", asmaerrors.ErrMalformedResponse, err)}
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, &SourceError{Op: "github api", Source: endpoint,
			Err: fmt.Errorf("%w: expected JSON object from GitHub API", asmaerrors.ErrMalformedResponse)}
	}
	return obj, nil
}

// OpenTarball starts a tarball download. Redirects to codeload are followed;
// net/http drops the Authorization header when the host changes.
func (c *Client) OpenTarball(ctx context.Context, tarballURL string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, tarballURL)
	if err != nil {
		return nil, &SourceError{Op: "github download", Source: tarballURL, Err: err}
	}

	c.logger.Debug("downloading tarball", "url", tarballURL)

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, &SourceError{Op: "github download", Source: tarballURL,
			Err: fmt.Errorf("%w: failed to download from GitHub: %w", asmaerrors.ErrTransport, stripURL(err))}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &SourceError{Op: "github download", Source: tarballURL, Err: statusError(resp)}
	}
	return resp.Body, nil
}

// statusError maps a non-200 response to an error kind
func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: repository or reference not found", asmaerrors.ErrNotFound)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid token", asmaerrors.ErrAuthenticationFailed)
	case http.StatusForbidden:
		message := errorMessage(resp.Body)
		if strings.Contains(strings.ToLower(message), "rate limit") || resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return fmt.Errorf("%w: %s", asmaerrors.ErrRateLimited, message)
		}
		return fmt.Errorf("%w: %s", asmaerrors.ErrAccessDenied, message)
	default:
		return fmt.Errorf("%w: GitHub API error: %d", asmaerrors.ErrTransport, resp.StatusCode)
	}
}

func errorMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Message
}

// stripURL drops the request URL from *url.Error; the endpoint is already
// reported by SourceError.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
