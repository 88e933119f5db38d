package source

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
)

type gitlabProject struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

type gitlabPushPayload struct {
	Ref         string        `json:"ref"`
	Before      string        `json:"before"`
	After       string        `json:"after"`
	CheckoutSHA string        `json:"checkout_sha"`
	Project     gitlabProject `json:"project"`
}

// normalizeGitLab handles the single Push Hook event. GitLab has no
// distinct delete event for refs: a deletion arrives as a push whose
// after hash is all zeroes, and only that sentinel triggers the delete
// path. A zero before with a non-zero after is ref creation and stays
// a push.
func normalizeGitLab(header http.Header, body []byte) (Event, error) {
	switch header.Get("X-Gitlab-Event") {
	case "Push Hook", "Tag Push Hook":
		var payload gitlabPushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, malformed("gitlab push: %v", err)
		}
		if payload.Ref == "" || payload.Project.PathWithNamespace == "" {
			return nil, malformed("gitlab push: missing ref or project")
		}
		ref, err := ResolveRef(payload.Ref, "")
		if err != nil {
			return nil, err
		}
		repo := payload.Project.identity()
		if payload.After == ZeroSHA {
			return DeleteEvent{Provider: GitLab, Ref: ref, Repo: repo}, nil
		}
		return PushEvent{
			Provider:    GitLab,
			Ref:         ref,
			Repo:        repo,
			Before:      payload.Before,
			After:       payload.After,
			CheckoutSHA: payload.CheckoutSHA,
			ArchiveURL:  gitlabArchiveURL(repo, ref, payload.CheckoutSHA),
		}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

func (p gitlabProject) identity() Repo {
	return Repo{
		ID:       strconv.FormatInt(p.ID, 10),
		Name:     p.Name,
		FullName: p.PathWithNamespace,
		WebURL:   p.WebURL,
	}
}

func gitlabArchiveURL(repo Repo, ref RefDescriptor, checkoutSHA string) string {
	at := checkoutSHA
	if at == "" {
		at = ref.Name
	}
	name := repo.Name
	if name == "" {
		name = path.Base(repo.FullName)
	}
	return fmt.Sprintf("%s/-/archive/%s/%s-%s.zip", strings.TrimRight(repo.WebURL, "/"), at, name, at)
}
