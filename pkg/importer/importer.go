// Package importer turns push and delete events into registry state:
// it downloads the pushed archive, normalizes it, and persists or
// removes the corresponding package version.
package importer

import (
	"context"
	"errors"
	"log"

	"pkghub/internal"
	"pkghub/pkg/providers"
	"pkghub/pkg/source"
	"pkghub/pkg/storage"
)

// FetcherFactory builds the archive fetcher for one event. Tests swap
// it to avoid real provider APIs.
type FetcherFactory func(provider source.Provider, token string, opts providers.Options) (providers.Fetcher, error)

type Importer struct {
	store  storage.Store
	fetch  FetcherFactory
	opts   providers.Options
	logger *log.Logger
}

func New(store storage.Store, opts providers.Options, logger *log.Logger) *Importer {
	if logger == nil {
		logger = internal.NewLogger("importer")
	}
	return &Importer{
		store:  store,
		fetch:  providers.NewFetcher,
		opts:   opts,
		logger: logger,
	}
}

// WithFetcherFactory overrides how archive fetchers are built.
func (i *Importer) WithFetcherFactory(factory FetcherFactory) *Importer {
	if factory != nil {
		i.fetch = factory
	}
	return i
}

// Result reports what an import did. Created is false when an existing
// tag version absorbed the push.
type Result struct {
	Package *storage.PackageRecord
	Version *storage.VersionRecord
	Created bool
}

// Import downloads the archive a push event points at and stores it as
// a package version. Token is the resolved provider API token, "" for
// public repositories. Tag versions are insert-or-ignore, branch
// versions replace existing content. A duplicate tag is a success with
// Created unset.
func (i *Importer) Import(ctx context.Context, repo *storage.RepositoryRecord, token string, event source.PushEvent) (*Result, error) {
	fetcher, err := i.fetch(event.Provider, token, i.opts)
	if err != nil {
		return nil, err
	}

	raw, err := fetcher.FetchArchive(ctx, event)
	if err != nil {
		internal.IncImportError(string(event.Provider))
		return nil, err
	}

	archive, err := repackArchive(raw, repo.SubPath)
	if err != nil {
		internal.IncImportError(string(event.Provider))
		return nil, err
	}

	pkg, err := i.store.FindOrCreatePackage(ctx, repo.ID, packageName(repo, event.Repo))
	if err != nil {
		return nil, err
	}

	replace := event.Ref.Kind == source.RefBranch
	version, err := i.store.CreateVersion(ctx, storage.VersionRecord{
		PackageID: pkg.ID,
		Name:      event.Ref.VersionLabel(),
		RefKind:   string(event.Ref.Kind),
		SHA:       eventSHA(event),
		Archive:   archive,
	}, replace)
	if errors.Is(err, storage.ErrDuplicateVersion) {
		i.logger.Printf("version %s of %s already imported, keeping existing", event.Ref.VersionLabel(), pkg.Name)
		existing := storage.VersionRecord{PackageID: pkg.ID, Name: event.Ref.VersionLabel()}
		return &Result{Package: pkg, Version: &existing, Created: false}, nil
	}
	if err != nil {
		return nil, err
	}

	internal.IncVersionImported(string(event.Provider))
	i.logger.Printf("imported version %s of %s (%d bytes)", version.Name, pkg.Name, len(version.Archive))
	return &Result{Package: pkg, Version: version, Created: true}, nil
}

// Delete removes the version a delete event names. A missing package
// or version is a no-op success; redeliveries stay idempotent. The
// returned flag reports whether anything was actually removed.
func (i *Importer) Delete(ctx context.Context, repo *storage.RepositoryRecord, event source.DeleteEvent) (bool, error) {
	pkg, err := i.store.FindPackage(ctx, repo.ID, packageName(repo, event.Repo))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	label := event.Ref.VersionLabel()
	deleted, err := i.store.DeleteVersion(ctx, pkg.ID, label)
	if err != nil {
		return false, err
	}
	if deleted {
		internal.IncVersionDeleted(string(event.Provider))
		i.logger.Printf("deleted version %s of %s", label, pkg.Name)
	}
	return deleted, nil
}

// packageName picks the registry package name: the repository's
// configured name when present, the provider full name otherwise.
func packageName(repo *storage.RepositoryRecord, remote source.Repo) string {
	if repo.Name != "" {
		return repo.Name
	}
	return remote.FullName
}

func eventSHA(event source.PushEvent) string {
	if event.After != "" {
		return event.After
	}
	return event.CheckoutSHA
}
