package source

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type bitbucketRepository struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Links    struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"links"`
}

type bitbucketRef struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Target struct {
		Hash string `json:"hash"`
	} `json:"target"`
}

type bitbucketPushPayload struct {
	Push struct {
		Changes []struct {
			Old *bitbucketRef `json:"old"`
			New *bitbucketRef `json:"new"`
		} `json:"changes"`
	} `json:"push"`
	Repository bitbucketRepository `json:"repository"`
}

// normalizeBitbucket handles repo:push. Bitbucket folds deletions into
// push changes: a change with no new ref (or a zero target hash)
// removes the old ref.
func normalizeBitbucket(header http.Header, body []byte) (Event, error) {
	switch header.Get("X-Event-Key") {
	case "repo:push":
		var payload bitbucketPushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, malformed("bitbucket push: %v", err)
		}
		if len(payload.Push.Changes) == 0 {
			return nil, malformed("bitbucket push: no changes")
		}
		repo := payload.Repository.identity()
		change := payload.Push.Changes[0]
		if change.New == nil || change.New.Target.Hash == ZeroSHA {
			if change.Old == nil {
				return nil, malformed("bitbucket push: change without old or new ref")
			}
			ref, err := ResolveRef(change.Old.Name, bitbucketRefKind(change.Old.Type))
			if err != nil {
				return nil, err
			}
			return DeleteEvent{Provider: Bitbucket, Ref: ref, Repo: repo}, nil
		}
		ref, err := ResolveRef(change.New.Name, bitbucketRefKind(change.New.Type))
		if err != nil {
			return nil, err
		}
		var before string
		if change.Old != nil {
			before = change.Old.Target.Hash
		}
		return PushEvent{
			Provider:   Bitbucket,
			Ref:        ref,
			Repo:       repo,
			Before:     before,
			After:      change.New.Target.Hash,
			ArchiveURL: bitbucketArchiveURL(repo, ref),
		}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

func (r bitbucketRepository) identity() Repo {
	return Repo{
		ID:       r.UUID,
		Name:     r.Name,
		FullName: r.FullName,
		WebURL:   r.Links.HTML.Href,
	}
}

func bitbucketRefKind(refType string) RefKind {
	switch refType {
	case "tag":
		return RefTag
	case "branch", "named_branch":
		return RefBranch
	default:
		return ""
	}
}

func bitbucketArchiveURL(repo Repo, ref RefDescriptor) string {
	return fmt.Sprintf("%s/get/%s.zip", strings.TrimRight(repo.WebURL, "/"), ref.Name)
}
