package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"pkghub/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Config mirrors the storage section of the application configuration.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	AutoMigrate bool
}

// Store implements storage.Store on top of GORM.
type Store struct {
	db *gorm.DB
}

type sourceRow struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	RepositoryID uint      `gorm:"column:repository_id;not null;index"`
	Provider     string    `gorm:"column:provider;size:32;not null"`
	Secret       string    `gorm:"column:secret;size:255;not null"`
	APIToken     string    `gorm:"column:api_token;size:255"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type repositoryRow struct {
	ID                   uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Name                 string    `gorm:"column:name;size:255;not null;uniqueIndex"`
	SubPath              string    `gorm:"column:sub_path;size:255"`
	AllowPackageCreation bool      `gorm:"column:allow_package_creation"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type packageRow struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	RepositoryID uint      `gorm:"column:repository_id;not null;uniqueIndex:idx_repo_package,priority:1"`
	Name         string    `gorm:"column:name;size:255;not null;uniqueIndex:idx_repo_package,priority:2"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type versionRow struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	PackageID uint      `gorm:"column:package_id;not null;uniqueIndex:idx_package_version,priority:1"`
	Name      string    `gorm:"column:name;size:255;not null;uniqueIndex:idx_package_version,priority:2"`
	RefKind   string    `gorm:"column:ref_kind;size:16;not null"`
	SHA       string    `gorm:"column:sha;size:64"`
	Archive   []byte    `gorm:"column:archive"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (sourceRow) TableName() string     { return "sources" }
func (repositoryRow) TableName() string { return "repositories" }
func (packageRow) TableName() string    { return "packages" }
func (versionRow) TableName() string    { return "versions" }

// Open creates a GORM-backed registry store.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" && cfg.Dialect == "" {
		return nil, errors.New("storage driver or dialect is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		driver = normalizeDriver(cfg.Dialect)
	}
	if driver == "" {
		return nil, errors.New("unsupported storage driver")
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	store := &Store{db: gormDB}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindSource fetches a source by ID.
func (s *Store) FindSource(ctx context.Context, id uint) (*storage.SourceRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data sourceRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record := sourceFromRow(data)
	return &record, nil
}

// FindRepository fetches a repository by ID.
func (s *Store) FindRepository(ctx context.Context, id uint) (*storage.RepositoryRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data repositoryRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record := repositoryFromRow(data)
	return &record, nil
}

// FindPackage fetches a package by repository and name.
func (s *Store) FindPackage(ctx context.Context, repositoryID uint, name string) (*storage.PackageRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data packageRow
	err := s.db.WithContext(ctx).
		Where("repository_id = ? AND name = ?", repositoryID, name).
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record := packageFromRow(data)
	return &record, nil
}

// FindOrCreatePackage fetches a package, creating it when the owning
// repository allows on-demand creation. The insert races safely with
// concurrent deliveries via the unique (repository_id, name) index.
func (s *Store) FindOrCreatePackage(ctx context.Context, repositoryID uint, name string) (*storage.PackageRecord, error) {
	if name == "" {
		return nil, errors.New("package name is required")
	}
	record, err := s.FindPackage(ctx, repositoryID, name)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	repo, err := s.FindRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	if !repo.AllowPackageCreation {
		return nil, storage.ErrPackageCreationDisabled
	}

	data := packageRow{RepositoryID: repositoryID, Name: name}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "repository_id"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(&data).Error
	if err != nil {
		return nil, err
	}
	return s.FindPackage(ctx, repositoryID, name)
}

// CreateVersion inserts a version row. Conflicts on the unique
// (package_id, name) index are resolved by the replace flag: either
// the insert is ignored and ErrDuplicateVersion is returned, or the
// stored content is overwritten.
func (s *Store) CreateVersion(ctx context.Context, record storage.VersionRecord, replace bool) (*storage.VersionRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if record.PackageID == 0 || record.Name == "" {
		return nil, errors.New("package id and version name are required")
	}

	data := versionRow{
		PackageID: record.PackageID,
		Name:      record.Name,
		RefKind:   record.RefKind,
		SHA:       record.SHA,
		Archive:   record.Archive,
	}
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "package_id"}, {Name: "name"}},
		DoNothing: true,
	}
	if replace {
		conflict.DoNothing = false
		conflict.DoUpdates = clause.AssignmentColumns([]string{"ref_kind", "sha", "archive", "updated_at"})
	}

	result := s.db.WithContext(ctx).Clauses(conflict).Create(&data)
	if result.Error != nil {
		return nil, result.Error
	}
	if !replace && result.RowsAffected == 0 {
		return nil, storage.ErrDuplicateVersion
	}

	var stored versionRow
	if err := s.db.WithContext(ctx).
		Where("package_id = ? AND name = ?", record.PackageID, record.Name).
		Take(&stored).Error; err != nil {
		return nil, err
	}
	created := versionFromRow(stored)
	return &created, nil
}

// DeleteVersion removes a version if present; absence is a no-op. The
// returned flag reports whether a row was removed.
func (s *Store) DeleteVersion(ctx context.Context, packageID uint, name string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("store is not initialized")
	}
	result := s.db.WithContext(ctx).
		Where("package_id = ? AND name = ?", packageID, name).
		Delete(&versionRow{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreateSource inserts a source integration. Used by provisioning, not
// by the webhook pipeline.
func (s *Store) CreateSource(ctx context.Context, record storage.SourceRecord) (*storage.SourceRecord, error) {
	data := sourceRow{
		RepositoryID: record.RepositoryID,
		Provider:     record.Provider,
		Secret:       record.Secret,
		APIToken:     record.APIToken,
	}
	if err := s.db.WithContext(ctx).Create(&data).Error; err != nil {
		return nil, err
	}
	created := sourceFromRow(data)
	return &created, nil
}

// CreateRepository inserts a repository. Used by provisioning, not by
// the webhook pipeline.
func (s *Store) CreateRepository(ctx context.Context, record storage.RepositoryRecord) (*storage.RepositoryRecord, error) {
	data := repositoryRow{
		Name:                 record.Name,
		SubPath:              record.SubPath,
		AllowPackageCreation: record.AllowPackageCreation,
	}
	if err := s.db.WithContext(ctx).Create(&data).Error; err != nil {
		return nil, err
	}
	created := repositoryFromRow(data)
	return &created, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(&sourceRow{}, &repositoryRow{}, &packageRow{}, &versionRow{})
}

func sourceFromRow(data sourceRow) storage.SourceRecord {
	return storage.SourceRecord{
		ID:           data.ID,
		RepositoryID: data.RepositoryID,
		Provider:     data.Provider,
		Secret:       data.Secret,
		APIToken:     data.APIToken,
		CreatedAt:    data.CreatedAt,
		UpdatedAt:    data.UpdatedAt,
	}
}

func repositoryFromRow(data repositoryRow) storage.RepositoryRecord {
	return storage.RepositoryRecord{
		ID:                   data.ID,
		Name:                 data.Name,
		SubPath:              data.SubPath,
		AllowPackageCreation: data.AllowPackageCreation,
		CreatedAt:            data.CreatedAt,
		UpdatedAt:            data.UpdatedAt,
	}
}

func packageFromRow(data packageRow) storage.PackageRecord {
	return storage.PackageRecord{
		ID:           data.ID,
		RepositoryID: data.RepositoryID,
		Name:         data.Name,
		CreatedAt:    data.CreatedAt,
		UpdatedAt:    data.UpdatedAt,
	}
}

func versionFromRow(data versionRow) storage.VersionRecord {
	return storage.VersionRecord{
		ID:        data.ID,
		PackageID: data.PackageID,
		Name:      data.Name,
		RefKind:   data.RefKind,
		SHA:       data.SHA,
		Archive:   data.Archive,
		CreatedAt: data.CreatedAt,
		UpdatedAt: data.UpdatedAt,
	}
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch driver {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}
