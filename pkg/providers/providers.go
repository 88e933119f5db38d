// Package providers turns normalized push events into archive bytes.
// Each provider gets a fetcher that knows how to authenticate against
// it; sources without an API token fall back to a plain download of
// the event's archive URL.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	gl "github.com/xanzy/go-gitlab"

	"pkghub/pkg/providers/bitbucket"
	"pkghub/pkg/providers/github"
	"pkghub/pkg/providers/gitlab"
	"pkghub/pkg/source"
)

var (
	// ErrFetchFailed covers non-2xx responses and wrong content types.
	ErrFetchFailed = errors.New("archive fetch failed")
	// ErrArchiveTooLarge is returned when the download exceeds the
	// configured size limit.
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")
)

// Fetcher downloads the zip archive a push event points at.
type Fetcher interface {
	FetchArchive(ctx context.Context, event source.PushEvent) ([]byte, error)
}

// Options bounds every fetcher. A zero MaxArchiveBytes means no limit.
type Options struct {
	Timeout         time.Duration
	MaxArchiveBytes int64
}

func (o Options) httpClient() *http.Client {
	timeout := o.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewFetcher returns the fetcher for a provider. Token selects the
// authenticated SDK path where one exists; without a token every
// provider downloads the archive URL directly.
func NewFetcher(provider source.Provider, token string, opts Options) (Fetcher, error) {
	switch provider {
	case source.Gitea:
		return &tokenFetcher{opts: opts, header: "Authorization", value: prefixed("token ", token)}, nil
	case source.GitHub:
		if token == "" {
			return &tokenFetcher{opts: opts}, nil
		}
		return &githubFetcher{token: token, opts: opts}, nil
	case source.GitLab:
		if token == "" {
			return &tokenFetcher{opts: opts}, nil
		}
		return &gitlabFetcher{token: token, opts: opts}, nil
	case source.Bitbucket:
		return &bitbucketFetcher{token: token, opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func prefixed(prefix, token string) string {
	if token == "" {
		return ""
	}
	return prefix + token
}

// tokenFetcher downloads the archive URL directly, optionally with a
// static auth header. Gitea serves archives this way; it is also the
// unauthenticated path for the other providers.
type tokenFetcher struct {
	opts   Options
	header string
	value  string
}

func (f *tokenFetcher) FetchArchive(ctx context.Context, event source.PushEvent) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, event.ArchiveURL, nil)
	if err != nil {
		return nil, err
	}
	if f.header != "" && f.value != "" {
		req.Header.Set(f.header, f.value)
	}
	return downloadZip(f.opts.httpClient(), req, f.opts.MaxArchiveBytes)
}

// githubFetcher resolves the archive location through the GitHub API so
// the token is honored, then downloads the returned URL.
type githubFetcher struct {
	token string
	opts  Options
}

func (f *githubFetcher) FetchArchive(ctx context.Context, event source.PushEvent) ([]byte, error) {
	client, err := github.NewTokenClient(ctx, f.token, githubAPIRoot(event.Repo.APIURL))
	if err != nil {
		return nil, err
	}

	owner, name, ok := strings.Cut(event.Repo.FullName, "/")
	if !ok {
		return nil, fmt.Errorf("github repository full name must be owner/name: %q", event.Repo.FullName)
	}

	location, _, err := client.Repositories.GetArchiveLink(ctx, owner, name, gh.Zipball,
		&gh.RepositoryContentGetOptions{Ref: event.Ref.Name}, 5)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location.String(), nil)
	if err != nil {
		return nil, err
	}
	return downloadZip(f.opts.httpClient(), req, f.opts.MaxArchiveBytes)
}

// gitlabFetcher downloads through the GitLab repository archive API.
type gitlabFetcher struct {
	token string
	opts  Options
}

func (f *gitlabFetcher) FetchArchive(ctx context.Context, event source.PushEvent) ([]byte, error) {
	client, err := gitlab.NewTokenClient(f.token, instanceRoot(event.Repo.WebURL))
	if err != nil {
		return nil, err
	}

	at := event.CheckoutSHA
	if at == "" {
		at = event.Ref.Name
	}
	archive, _, err := client.Repositories.Archive(event.Repo.FullName, &gl.ArchiveOptions{
		Format: gl.Ptr("zip"),
		SHA:    gl.Ptr(at),
	}, gl.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if f.opts.MaxArchiveBytes > 0 && int64(len(archive)) > f.opts.MaxArchiveBytes {
		return nil, ErrArchiveTooLarge
	}
	return archive, nil
}

// bitbucketFetcher downloads the web archive URL. With a token it
// verifies repository access through the API first and sends the token
// as a bearer credential.
type bitbucketFetcher struct {
	token string
	opts  Options
}

func (f *bitbucketFetcher) FetchArchive(ctx context.Context, event source.PushEvent) ([]byte, error) {
	if f.token != "" {
		client, err := bitbucket.NewTokenClient(f.token)
		if err != nil {
			return nil, err
		}
		if err := bitbucket.RepositoryExists(client, event.Repo.FullName); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, event.ArchiveURL, nil)
	if err != nil {
		return nil, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	return downloadZip(f.opts.httpClient(), req, f.opts.MaxArchiveBytes)
}

// downloadZip performs the request and enforces the archive contract:
// 2xx status, application/zip content type, size under the limit.
func downloadZip(client *http.Client, req *http.Request, maxBytes int64) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}
	if !isZipContentType(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrFetchFailed, resp.Header.Get("Content-Type"))
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if maxBytes > 0 && int64(len(raw)) > maxBytes {
		return nil, ErrArchiveTooLarge
	}
	return raw, nil
}

// instanceRoot reduces a repository page URL to its scheme://host
// root. Payload URLs carry the project path, which must not leak into
// SDK base URLs.
func instanceRoot(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// githubAPIRoot picks the API base for a repository URL. github.com
// hosts use the default endpoint; any other host is an enterprise
// instance rooted at scheme://host.
func githubAPIRoot(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	switch parsed.Host {
	case "github.com", "www.github.com", "api.github.com":
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func isZipContentType(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mediaType == "application/zip"
}
