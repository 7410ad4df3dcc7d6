package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var MigrationsFS embed.FS

// LatestVersion is the newest schema version shipped in MigrationsFS
const LatestVersion = 2

// Manager handles database migrations
type Manager struct {
	migrator *migrate.Migrate
	db       *sql.DB
	log      *zap.Logger
}

// NewManagerWithDB creates a new migration manager using an existing database connection
func NewManagerWithDB(db *sql.DB, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(MigrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Manager{
		migrator: migrator,
		db:       db,
		log:      log,
	}, nil
}

// NewManager opens dbPath and creates a migration manager for it. The
// connection is owned by the manager and released by Close.
func NewManager(dbPath string, log *zap.Logger) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m, err := NewManagerWithDB(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// Up runs all pending migrations. Stores written by older releases already
// hold the table and sometimes the content_hash column without any version
// bookkeeping; both are adopted without touching existing rows.
func (m *Manager) Up() error {
	if err := m.FixDirtyState(); err != nil {
		return err
	}

	err := m.migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if !strings.Contains(err.Error(), "duplicate column name") {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		m.log.Warn("migration hit existing schema elements, checking schema")
		ok, checkErr := hasContentHashColumn(m.db)
		if checkErr != nil {
			return fmt.Errorf("failed to inspect schema: %w", checkErr)
		}
		if !ok {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		if err := m.migrator.Force(LatestVersion); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
		m.log.Info("existing schema adopted", zap.Int("version", LatestVersion))
		return nil
	}

	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Debug("no new migrations to run")
	} else {
		m.log.Info("migrations completed successfully")
	}
	return nil
}

// Down rolls back the last migration
func (m *Manager) Down() error {
	err := m.migrator.Steps(-1)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Info("no migrations to rollback")
	} else {
		m.log.Info("migration rollback completed successfully")
	}
	return nil
}

// Force sets the migration version without running migrations
func (m *Manager) Force(version int) error {
	if err := m.migrator.Force(version); err != nil {
		return fmt.Errorf("failed to force migration version: %w", err)
	}

	m.log.Info("migration version forced", zap.Int("version", version))
	return nil
}

// Version returns the current migration version
func (m *Manager) Version() (uint, bool, error) {
	version, dirty, err := m.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}

// MigrateToVersion migrates to a specific version
func (m *Manager) MigrateToVersion(targetVersion uint) error {
	err := m.migrator.Migrate(targetVersion)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate to version %d: %w", targetVersion, err)
	}

	m.log.Info("migrated", zap.Uint("version", targetVersion))
	return nil
}

// FixDirtyState attempts to fix a dirty migration state
func (m *Manager) FixDirtyState() error {
	version, dirty, err := m.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to check migration version: %w", err)
	}

	if !dirty {
		return nil
	}

	m.log.Warn("database is in dirty state, attempting to fix", zap.Uint("version", version))

	// Each step runs in its own transaction, so a failed step left nothing
	// behind and the previous version is the last clean one.
	previous := int(version) - 1
	if previous < 1 {
		previous = database.NilVersion
	}
	if err := m.migrator.Force(previous); err != nil {
		return fmt.Errorf("failed to fix dirty database state: %w", err)
	}
	m.log.Info("forced to previous version", zap.Int("version", previous))
	return nil
}

// Close releases the migrator. It also closes the underlying connection,
// so only call it on managers built with NewManager.
func (m *Manager) Close() error {
	sourceErr, dbErr := m.migrator.Close()
	if sourceErr != nil {
		return sourceErr
	}
	return dbErr
}

func hasContentHashColumn(db *sql.DB) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('transfer_data') WHERE name = ?", "content_hash").Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
