package internal

// Event is a registry lifecycle event emitted after the webhook
// pipeline mutates registry state.
type Event struct {
	Provider   string                 `json:"provider"`
	Name       string                 `json:"name"`
	RequestID  string                 `json:"request_id,omitempty"`
	Repository string                 `json:"repository,omitempty"`
	Package    string                 `json:"package,omitempty"`
	Version    string                 `json:"version,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	RawPayload []byte                 `json:"-"`
}

// Registry event names published through the watermill publisher.
const (
	EventVersionCreated = "version.created"
	EventVersionUpdated = "version.updated"
	EventVersionDeleted = "version.deleted"
)
