package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateVersion is returned when a version already exists for
	// the package. Callers treat it as a benign idempotent outcome.
	ErrDuplicateVersion = errors.New("version already exists")
	// ErrPackageCreationDisabled is returned when a push names a package
	// the repository is not configured to create on demand.
	ErrPackageCreationDisabled = errors.New("package creation disabled for repository")
)

// SourceRecord is a configured provider integration bound to a
// repository. The webhook pipeline only reads it.
type SourceRecord struct {
	ID           uint
	RepositoryID uint
	Provider     string
	Secret       string
	APIToken     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RepositoryRecord owns sources and packages. SubPath is set for
// sub-repositories carved out of a monorepo archive layout.
type RepositoryRecord struct {
	ID                   uint
	Name                 string
	SubPath              string
	AllowPackageCreation bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PackageRecord is identified by name within a repository.
type PackageRecord struct {
	ID           uint
	RepositoryID uint
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VersionRecord is an imported artifact. At most one live version
// exists per (package, name).
type VersionRecord struct {
	ID        uint
	PackageID uint
	Name      string
	RefKind   string
	SHA       string
	Archive   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the persistence interface the webhook pipeline
// consumes. Uniqueness of (package, version name) under concurrent
// duplicate deliveries is the store's responsibility.
type Store interface {
	FindSource(ctx context.Context, id uint) (*SourceRecord, error)
	FindRepository(ctx context.Context, id uint) (*RepositoryRecord, error)
	FindPackage(ctx context.Context, repositoryID uint, name string) (*PackageRecord, error)
	// FindOrCreatePackage creates the package on first use when the
	// repository allows it, otherwise returns
	// ErrPackageCreationDisabled for missing packages.
	FindOrCreatePackage(ctx context.Context, repositoryID uint, name string) (*PackageRecord, error)
	// CreateVersion inserts a version. A conflicting existing version
	// yields ErrDuplicateVersion unless replace is set, in which case
	// the stored content is overwritten.
	CreateVersion(ctx context.Context, record VersionRecord, replace bool) (*VersionRecord, error)
	// DeleteVersion removes a version if present. Deleting an absent
	// version is a no-op, not an error; the returned flag reports
	// whether a row was removed.
	DeleteVersion(ctx context.Context, packageID uint, name string) (bool, error)
	Close() error
}
