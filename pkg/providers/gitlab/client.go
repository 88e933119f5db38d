package gitlab

import (
	"strings"

	gl "github.com/xanzy/go-gitlab"
)

// Client is the GitLab SDK client.
type Client = gl.Client

// NewTokenClient creates a GitLab SDK client authenticated with a
// private token. baseURL is the instance root (https://gitlab.example),
// not the API path.
func NewTokenClient(token, baseURL string) (*Client, error) {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return gl.NewClient(token)
	}
	return gl.NewClient(token, gl.WithBaseURL(base+"/api/v4"))
}
