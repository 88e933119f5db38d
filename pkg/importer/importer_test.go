package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"pkghub/pkg/providers"
	"pkghub/pkg/source"
	"pkghub/pkg/storage"
	"pkghub/pkg/storage/registry"
)

func openTestStore(t *testing.T) *registry.Store {
	t.Helper()
	store, err := registry.Open(registry.Config{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "registry.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedRepository(t *testing.T, store *registry.Store, subPath string) *storage.RepositoryRecord {
	t.Helper()
	repo, err := store.CreateRepository(context.Background(), storage.RepositoryRecord{
		Name:                 "vendor/test",
		SubPath:              subPath,
		AllowPackageCreation: true,
	})
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	if _, err := store.CreateSource(context.Background(), storage.SourceRecord{
		RepositoryID: repo.ID,
		Provider:     "gitea",
		Secret:       "s3cret",
	}); err != nil {
		t.Fatalf("create source: %v", err)
	}
	return repo
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func archiveServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func readZip(t *testing.T, raw []byte) map[string]string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	out := make(map[string]string, len(reader.File))
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open zip entry: %v", err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read zip entry: %v", err)
		}
		out[file.Name] = string(content)
	}
	return out
}

func tagPush(archiveURL, tag string) source.PushEvent {
	return source.PushEvent{
		Provider:   source.Gitea,
		Ref:        source.RefDescriptor{Kind: source.RefTag, Name: tag},
		Repo:       source.Repo{FullName: "vendor/test"},
		After:      "69a22c389a4a7f0fb6eeb0b2a0e05d17cbec3c3f",
		ArchiveURL: archiveURL,
	}
}

// TestImportTagVersion tests that a tag push stores a normalized archive under the tag name.
func TestImportTagVersion(t *testing.T) {
	body := zipArchive(t, map[string]string{
		"test-0.1.3/README.md":     "readme",
		"test-0.1.3/src/widget.go": "package widget",
	})
	server := archiveServer(t, body)

	store := openTestStore(t)
	repo := seedRepository(t, store, "")
	imp := New(store, providers.Options{}, nil)

	result, err := imp.Import(context.Background(), repo, "", tagPush(server.URL, "0.1.3"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !result.Created {
		t.Fatalf("expected version to be created")
	}
	if result.Version.Name != "0.1.3" {
		t.Fatalf("expected version 0.1.3, got %q", result.Version.Name)
	}

	files := readZip(t, result.Version.Archive)
	if files["README.md"] != "readme" {
		t.Fatalf("expected wrapper directory to be stripped, got %v", files)
	}
	if files["src/widget.go"] != "package widget" {
		t.Fatalf("expected nested entry to survive, got %v", files)
	}
}

// TestImportDuplicateTagIsSuccess tests that re-importing an existing tag keeps the first archive.
func TestImportDuplicateTagIsSuccess(t *testing.T) {
	store := openTestStore(t)
	repo := seedRepository(t, store, "")
	imp := New(store, providers.Options{}, nil)

	first := archiveServer(t, zipArchive(t, map[string]string{"test/README.md": "first"}))
	if _, err := imp.Import(context.Background(), repo, "", tagPush(first.URL, "1.0.0")); err != nil {
		t.Fatalf("first import: %v", err)
	}

	second := archiveServer(t, zipArchive(t, map[string]string{"test/README.md": "second"}))
	result, err := imp.Import(context.Background(), repo, "", tagPush(second.URL, "1.0.0"))
	if err != nil {
		t.Fatalf("duplicate import should be a success: %v", err)
	}
	if result.Created {
		t.Fatalf("expected duplicate import to report nothing created")
	}

	pkg, err := store.FindPackage(context.Background(), repo.ID, "vendor/test")
	if err != nil {
		t.Fatalf("find package: %v", err)
	}
	stored, err := store.CreateVersion(context.Background(), storage.VersionRecord{
		PackageID: pkg.ID, Name: "1.0.0", RefKind: "tag",
	}, false)
	if !errors.Is(err, storage.ErrDuplicateVersion) {
		t.Fatalf("expected stored version to persist, got %v / %v", stored, err)
	}
}

// TestImportBranchReplaces tests that a branch push overwrites the stored dev version.
func TestImportBranchReplaces(t *testing.T) {
	store := openTestStore(t)
	repo := seedRepository(t, store, "")
	imp := New(store, providers.Options{}, nil)

	branchPush := func(url string) source.PushEvent {
		event := tagPush(url, "main")
		event.Ref.Kind = source.RefBranch
		return event
	}

	first := archiveServer(t, zipArchive(t, map[string]string{"test/README.md": "first"}))
	if _, err := imp.Import(context.Background(), repo, "", branchPush(first.URL)); err != nil {
		t.Fatalf("first import: %v", err)
	}

	second := archiveServer(t, zipArchive(t, map[string]string{"test/README.md": "second"}))
	result, err := imp.Import(context.Background(), repo, "", branchPush(second.URL))
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if result.Version.Name != "dev-main" {
		t.Fatalf("expected dev-main version, got %q", result.Version.Name)
	}

	files := readZip(t, result.Version.Archive)
	if files["README.md"] != "second" {
		t.Fatalf("expected branch re-import to replace content, got %v", files)
	}
}

// TestImportSubPath tests that a sub-repository only keeps entries under its prefix, re-rooted.
func TestImportSubPath(t *testing.T) {
	body := zipArchive(t, map[string]string{
		"mono-abc123/README.md":       "root readme",
		"mono-abc123/sub/composer.go": "package sub",
		"mono-abc123/sub/lib/util.go": "package lib",
		"mono-abc123/other/skip.go":   "package other",
	})
	server := archiveServer(t, body)

	store := openTestStore(t)
	repo := seedRepository(t, store, "sub")
	imp := New(store, providers.Options{}, nil)

	result, err := imp.Import(context.Background(), repo, "", tagPush(server.URL, "2.0.0"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	files := readZip(t, result.Version.Archive)
	if len(files) != 2 {
		t.Fatalf("expected 2 entries, got %v", files)
	}
	if files["composer.go"] != "package sub" || files["lib/util.go"] != "package lib" {
		t.Fatalf("expected sub entries re-rooted, got %v", files)
	}
}

// TestImportRejectsTraversal tests that an archive with an escaping entry is rejected whole.
func TestImportRejectsTraversal(t *testing.T) {
	body := zipArchive(t, map[string]string{
		"test/README.md": "ok",
		"../evil.sh":     "rm -rf /",
	})
	server := archiveServer(t, body)

	store := openTestStore(t)
	repo := seedRepository(t, store, "")
	imp := New(store, providers.Options{}, nil)

	if _, err := imp.Import(context.Background(), repo, "", tagPush(server.URL, "3.0.0")); !errors.Is(err, ErrUnsafeArchive) {
		t.Fatalf("expected ErrUnsafeArchive, got %v", err)
	}

	if _, err := store.FindPackage(context.Background(), repo.ID, "vendor/test"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no package to be created, got %v", err)
	}
}

// TestImportCorruptArchive tests that non-zip bytes are rejected as corrupt.
func TestImportCorruptArchive(t *testing.T) {
	server := archiveServer(t, []byte("this is not a zip"))

	store := openTestStore(t)
	repo := seedRepository(t, store, "")
	imp := New(store, providers.Options{}, nil)

	if _, err := imp.Import(context.Background(), repo, "", tagPush(server.URL, "3.0.1")); !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("expected ErrArchiveCorrupt, got %v", err)
	}
}

// TestImportPackageCreationDisabled tests that the repository policy gates first import.
func TestImportPackageCreationDisabled(t *testing.T) {
	server := archiveServer(t, zipArchive(t, map[string]string{"test/README.md": "hi"}))

	store := openTestStore(t)
	repo, err := store.CreateRepository(context.Background(), storage.RepositoryRecord{
		Name: "vendor/locked",
	})
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	if _, err := store.CreateSource(context.Background(), storage.SourceRecord{
		RepositoryID: repo.ID, Provider: "gitea", Secret: "s3cret",
	}); err != nil {
		t.Fatalf("create source: %v", err)
	}

	imp := New(store, providers.Options{}, nil)
	if _, err := imp.Import(context.Background(), repo, "", tagPush(server.URL, "1.0.0")); !errors.Is(err, storage.ErrPackageCreationDisabled) {
		t.Fatalf("expected ErrPackageCreationDisabled, got %v", err)
	}
}

// TestDeleteVersion tests delete behavior for present and absent versions.
func TestDeleteVersion(t *testing.T) {
	store := openTestStore(t)
	repo := seedRepository(t, store, "")
	imp := New(store, providers.Options{}, nil)

	server := archiveServer(t, zipArchive(t, map[string]string{"test/README.md": "hi"}))
	if _, err := imp.Import(context.Background(), repo, "", tagPush(server.URL, "0.1.3")); err != nil {
		t.Fatalf("import: %v", err)
	}

	deleteEvent := source.DeleteEvent{
		Provider: source.Gitea,
		Ref:      source.RefDescriptor{Kind: source.RefTag, Name: "0.1.3"},
		Repo:     source.Repo{FullName: "vendor/test"},
	}

	deleted, err := imp.Delete(context.Background(), repo, deleteEvent)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected version to be deleted")
	}

	deleted, err = imp.Delete(context.Background(), repo, deleteEvent)
	if err != nil {
		t.Fatalf("redelivered delete should be a no-op: %v", err)
	}
	if deleted {
		t.Fatalf("expected redelivered delete to remove nothing")
	}
}
