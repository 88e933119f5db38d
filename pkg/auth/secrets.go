package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"pkghub/pkg/storage"
)

// SecretProvider resolves the webhook secret for a source. Injected
// into the webhook handlers so signature verification never reaches
// into storage or process globals on its own.
type SecretProvider interface {
	WebhookSecret(ctx context.Context, src *storage.SourceRecord) ([]byte, error)
	// APIToken returns the provider API token for authenticated archive
	// downloads, or "" when the source has none.
	APIToken(ctx context.Context, src *storage.SourceRecord) (string, error)
}

// StoreSecretProvider reads secrets off the source record, with an
// optional per-source environment override of the form
// PKGHUB_SOURCE_<ID>_SECRET. The override keeps secrets out of the
// database for deployments that rotate them through the environment.
type StoreSecretProvider struct {
	EnvPrefix string
}

// NewSecretProvider constructs a StoreSecretProvider with the default
// environment prefix.
func NewSecretProvider() *StoreSecretProvider {
	return &StoreSecretProvider{EnvPrefix: "PKGHUB_SOURCE"}
}

// WebhookSecret returns the webhook secret for the source.
func (p *StoreSecretProvider) WebhookSecret(_ context.Context, src *storage.SourceRecord) ([]byte, error) {
	if src == nil {
		return nil, errors.New("source is required")
	}
	if override := os.Getenv(p.envKey(src.ID, "SECRET")); override != "" {
		return []byte(override), nil
	}
	if src.Secret == "" {
		return nil, errors.New("source has no webhook secret")
	}
	return []byte(src.Secret), nil
}

// APIToken returns the provider API token for the source, if any.
func (p *StoreSecretProvider) APIToken(_ context.Context, src *storage.SourceRecord) (string, error) {
	if src == nil {
		return "", errors.New("source is required")
	}
	if override := os.Getenv(p.envKey(src.ID, "TOKEN")); override != "" {
		return override, nil
	}
	return src.APIToken, nil
}

func (p *StoreSecretProvider) envKey(id uint, suffix string) string {
	prefix := p.EnvPrefix
	if prefix == "" {
		prefix = "PKGHUB_SOURCE"
	}
	return strings.ToUpper(fmt.Sprintf("%s_%d_%s", prefix, id, suffix))
}
