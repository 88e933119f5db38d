package bitbucket

import (
	"errors"
	"strings"

	bb "github.com/ktrysmt/go-bitbucket"
)

// Client is the Bitbucket SDK client.
type Client = bb.Client

// NewTokenClient returns a Bitbucket SDK client using an OAuth bearer
// token.
func NewTokenClient(token string) (*Client, error) {
	if token == "" {
		return nil, errors.New("bitbucket token is required")
	}
	return bb.NewOAuthbearerToken(token)
}

// RepositoryExists checks that the token can see the repository before
// an archive download is attempted.
func RepositoryExists(client *Client, fullName string) error {
	owner, slug, ok := strings.Cut(fullName, "/")
	if !ok {
		return errors.New("bitbucket repository full name must be owner/slug")
	}
	_, err := client.Repositories.Repository.Get(&bb.RepositoryOptions{
		Owner:    owner,
		RepoSlug: slug,
	})
	return err
}
