package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var MigrationsFS embed.FS

// Manager handles database migrations
type Manager struct {
	migrator *migrate.Migrate
}

// NewManagerWithDB creates a migration manager on an existing connection,
// using the embedded migration files.
func NewManagerWithDB(db *sql.DB) (*Manager, error) {
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

	return &Manager{migrator: migrator}, nil
}

// Up runs all pending migrations
func (m *Manager) Up() error {
	log.Println("Running database migrations...")

	version, dirty, err := m.migrator.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to check migration version: %w", err)
	}

	if dirty {
		log.Printf("Database is in dirty state at version %d. Attempting to fix...", version)
		if err := m.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty database state: %w", err)
		}
	}

	if err := m.migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := m.migrator.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	log.Printf("Database schema at version %d", newVersion)

	return nil
}
