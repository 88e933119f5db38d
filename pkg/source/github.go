package source

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type githubRepository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	URL      string `json:"url"`
}

type githubPushPayload struct {
	Ref        string           `json:"ref"`
	Before     string           `json:"before"`
	After      string           `json:"after"`
	Repository githubRepository `json:"repository"`
}

type githubDeletePayload struct {
	Ref        string           `json:"ref"`
	RefType    string           `json:"ref_type"`
	Repository githubRepository `json:"repository"`
}

func normalizeGitHub(header http.Header, body []byte) (Event, error) {
	switch header.Get("X-GitHub-Event") {
	case "push":
		var payload githubPushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, malformed("github push: %v", err)
		}
		if payload.Ref == "" || payload.Repository.FullName == "" {
			return nil, malformed("github push: missing ref or repository")
		}
		ref, err := ResolveRef(payload.Ref, "")
		if err != nil {
			return nil, err
		}
		repo := payload.Repository.identity()
		if payload.After == ZeroSHA {
			return DeleteEvent{Provider: GitHub, Ref: ref, Repo: repo}, nil
		}
		return PushEvent{
			Provider:   GitHub,
			Ref:        ref,
			Repo:       repo,
			Before:     payload.Before,
			After:      payload.After,
			ArchiveURL: githubArchiveURL(repo, ref),
		}, nil
	case "delete":
		var payload githubDeletePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, malformed("github delete: %v", err)
		}
		ref, err := ResolveRef(payload.Ref, giteaRefKind(payload.RefType))
		if err != nil {
			return nil, err
		}
		return DeleteEvent{Provider: GitHub, Ref: ref, Repo: payload.Repository.identity()}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

func (r githubRepository) identity() Repo {
	return Repo{
		ID:       strconv.FormatInt(r.ID, 10),
		Name:     r.Name,
		FullName: r.FullName,
		WebURL:   r.HTMLURL,
		APIURL:   r.URL,
	}
}

func githubArchiveURL(repo Repo, ref RefDescriptor) string {
	return fmt.Sprintf("%s/zipball/%s", strings.TrimRight(repo.APIURL, "/"), ref.Name)
}
