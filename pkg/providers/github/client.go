package github

import (
	"context"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Client is the official GitHub SDK client.
type Client = gh.Client

const defaultBaseURL = "https://api.github.com"

// NewTokenClient creates a GitHub SDK client from a personal access or
// installation token. A non-default API base switches to the
// enterprise client.
func NewTokenClient(ctx context.Context, token, apiBase string) (*Client, error) {
	var httpClient = oauth2.NewClient(ctx, nil)
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}

	baseURL := strings.TrimRight(apiBase, "/")
	if baseURL != "" && baseURL != defaultBaseURL {
		return gh.NewClient(httpClient).WithEnterpriseURLs(baseURL, baseURL)
	}
	return gh.NewClient(httpClient), nil
}
