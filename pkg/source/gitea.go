package source

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// giteaRepository mirrors the repository object Gitea embeds in every
// webhook payload.
type giteaRepository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	URL      string `json:"url"`
}

type giteaPushPayload struct {
	Ref        string          `json:"ref"`
	Before     string          `json:"before"`
	After      string          `json:"after"`
	Repository giteaRepository `json:"repository"`
}

type giteaDeletePayload struct {
	Ref        string          `json:"ref"`
	RefType    string          `json:"ref_type"`
	Repository giteaRepository `json:"repository"`
}

func normalizeGitea(header http.Header, body []byte) (Event, error) {
	switch header.Get("X-Gitea-Event") {
	case "push":
		var payload giteaPushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, malformed("gitea push: %v", err)
		}
		if payload.Ref == "" || payload.Repository.FullName == "" {
			return nil, malformed("gitea push: missing ref or repository")
		}
		ref, err := ResolveRef(payload.Ref, "")
		if err != nil {
			return nil, err
		}
		repo := payload.Repository.identity()
		if payload.After == ZeroSHA {
			return DeleteEvent{Provider: Gitea, Ref: ref, Repo: repo}, nil
		}
		return PushEvent{
			Provider:   Gitea,
			Ref:        ref,
			Repo:       repo,
			Before:     payload.Before,
			After:      payload.After,
			ArchiveURL: giteaArchiveURL(repo, ref),
		}, nil
	case "delete":
		var payload giteaDeletePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, malformed("gitea delete: %v", err)
		}
		ref, err := ResolveRef(payload.Ref, giteaRefKind(payload.RefType))
		if err != nil {
			return nil, err
		}
		return DeleteEvent{Provider: Gitea, Ref: ref, Repo: payload.Repository.identity()}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

func (r giteaRepository) identity() Repo {
	return Repo{
		ID:       strconv.FormatInt(r.ID, 10),
		Name:     r.Name,
		FullName: r.FullName,
		WebURL:   r.HTMLURL,
		APIURL:   r.URL,
	}
}

func giteaRefKind(refType string) RefKind {
	switch refType {
	case "tag":
		return RefTag
	case "branch":
		return RefBranch
	default:
		return ""
	}
}

func giteaArchiveURL(repo Repo, ref RefDescriptor) string {
	return fmt.Sprintf("%s/archive/%s.zip", strings.TrimRight(repo.WebURL, "/"), ref.Name)
}
