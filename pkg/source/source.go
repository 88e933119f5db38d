package source

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Provider identifies a supported VCS provider. The set is closed:
// adding a provider means extending the constants below and the
// switch in Normalize.
type Provider string

const (
	Bitbucket Provider = "bitbucket"
	Gitea     Provider = "gitea"
	GitHub    Provider = "github"
	GitLab    Provider = "gitlab"
)

// ZeroSHA is the all-zero commit hash some providers send instead of a
// distinct delete event. A push whose after hash equals ZeroSHA is a
// ref deletion for every provider.
const ZeroSHA = "0000000000000000000000000000000000000000"

var (
	// ErrUnknownEvent marks a recognized provider sending an event type
	// the pipeline does not handle. Surfaced as 422, never as a failure.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMalformedPayload marks a payload missing required fields or
	// failing to decode.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnresolvableRef marks a ref string that is neither prefixed
	// nor accompanied by an explicit ref type.
	ErrUnresolvableRef = errors.New("unresolvable ref")
)

// ParseProvider maps a URL path segment to a Provider.
func ParseProvider(raw string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case Bitbucket:
		return Bitbucket, true
	case Gitea:
		return Gitea, true
	case GitHub:
		return GitHub, true
	case GitLab:
		return GitLab, true
	default:
		return "", false
	}
}

// Normalize parses a provider's raw webhook payload into a canonical
// Event. The raw body must be the exact bytes the signature was
// verified against; Normalize never re-serializes.
func Normalize(provider Provider, header http.Header, body []byte) (Event, error) {
	switch provider {
	case Bitbucket:
		return normalizeBitbucket(header, body)
	case Gitea:
		return normalizeGitea(header, body)
	case GitHub:
		return normalizeGitHub(header, body)
	case GitLab:
		return normalizeGitLab(header, body)
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}
