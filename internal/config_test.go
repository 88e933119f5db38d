package internal

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadConfigDefaults tests that the default values are applied correctly when loading a config.
func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write app config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.AppConfig.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.AppConfig.Server.Port)
	}
	if cfg.AppConfig.Server.MaxBodyBytes != 1<<20 {
		t.Fatalf("expected default max body bytes, got %d", cfg.AppConfig.Server.MaxBodyBytes)
	}
	if cfg.AppConfig.Storage.Driver != "sqlite" {
		t.Fatalf("expected default storage driver sqlite, got %q", cfg.AppConfig.Storage.Driver)
	}
	if cfg.AppConfig.Importer.FetchTimeoutMS != 30000 {
		t.Fatalf("expected default fetch timeout, got %d", cfg.AppConfig.Importer.FetchTimeoutMS)
	}
	if cfg.AppConfig.Importer.MaxArchiveBytes != 256<<20 {
		t.Fatalf("expected default max archive bytes, got %d", cfg.AppConfig.Importer.MaxArchiveBytes)
	}
	if cfg.AppConfig.Watermill.Driver != "gochannel" {
		t.Fatalf("expected default watermill driver, got %q", cfg.AppConfig.Watermill.Driver)
	}
	if len(cfg.AppConfig.Watermill.Drivers) != 0 {
		t.Fatalf("expected no default drivers, got %v", cfg.AppConfig.Watermill.Drivers)
	}
	if cfg.AppConfig.Watermill.GoChannel.OutputChannelBuffer != 64 {
		t.Fatalf("expected default gochannel output buffer, got %d", cfg.AppConfig.Watermill.GoChannel.OutputChannelBuffer)
	}
	if cfg.AppConfig.Watermill.HTTP.Mode != "topic_url" {
		t.Fatalf("expected default http mode topic_url, got %q", cfg.AppConfig.Watermill.HTTP.Mode)
	}
	if cfg.AppConfig.Watermill.JobQueue.Table != "registry_jobs" {
		t.Fatalf("expected default jobqueue table, got %q", cfg.AppConfig.Watermill.JobQueue.Table)
	}
}

// TestLoadConfigExpandsEnv tests that environment variables in the config are expanded.
func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("PKGHUB_TEST_DSN", "registry.db")

	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	content := "storage:\n  driver: sqlite\n  dsn: ${PKGHUB_TEST_DSN}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write app config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AppConfig.Storage.DSN != "registry.db" {
		t.Fatalf("expected expanded dsn, got %q", cfg.AppConfig.Storage.DSN)
	}
}

// TestLoadConfigInvalidRule tests that loading a config with an invalid rule returns an error.
func TestLoadConfigInvalidRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "rules:\n  - when: event == \"version.created\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for missing emit")
	}
}

// TestLoadConfigTrimsFields tests that the fields in a rule are trimmed correctly.
func TestLoadConfigTrimsFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "rules:\n  - when: \"  event == \\\"version.created\\\"  \"\n    emit: \"  registry.version.created  \"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load rules config: %v", err)
	}
	if cfg.Rules[0].When != "event == \"version.created\"" {
		t.Fatalf("expected trimmed when, got %q", cfg.Rules[0].When)
	}
	if cfg.Rules[0].Emit != "registry.version.created" {
		t.Fatalf("expected trimmed emit, got %q", cfg.Rules[0].Emit)
	}
}
