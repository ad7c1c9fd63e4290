package testutil

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"shareqr/internal/migration"
)

// RunTestMigrations applies the embedded migrations to the SQLite database
// at dbPath. Works from any package directory since the migration files are
// embedded.
func RunTestMigrations(dbPath string) error {
	src, err := iofs.New(migration.MigrationsFS, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, fmt.Sprintf("sqlite3://%s", dbPath))
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}
