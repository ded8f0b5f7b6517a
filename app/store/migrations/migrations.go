// Package migrations applies the embedded schema for the projects table.
// Each dialect keeps its own set of sql files, the postgres set also installs
// the trigger publishing change notifications.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	log "github.com/go-pkgz/lgr"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationFiles embed.FS

// Dialect selects the migration set and the migrate database driver
type Dialect string

// supported dialects
const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Migrator handles schema migrations for one database connection
type Migrator struct {
	db      *sql.DB
	dialect Dialect
}

// New makes a migrator for the given connection and dialect
func New(db *sql.DB, dialect Dialect) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &Migrator{db: db, dialect: dialect}, nil
}

// Up runs all available migrations
func (m *Migrator) Up() error {
	inst, closeSrc, err := m.instance()
	defer closeSrc()
	if err != nil {
		return err
	}

	if err = inst.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run %s migrations: %w", m.dialect, err)
	}
	log.Printf("[DEBUG] %s migrations applied", m.dialect)
	return nil
}

// Down reverts all migrations
func (m *Migrator) Down() error {
	inst, closeSrc, err := m.instance()
	defer closeSrc()
	if err != nil {
		return err
	}

	if err = inst.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not revert %s migrations: %w", m.dialect, err)
	}
	log.Printf("[DEBUG] %s migrations reverted", m.dialect)
	return nil
}

// instance creates a migrate instance on top of the embedded files. The migrate
// instance itself is never closed because that would close the shared *sql.DB.
func (m *Migrator) instance() (instance *migrate.Migrate, closeSrc func(), err error) {
	closeSrc = func() {}

	var driver database.Driver
	switch m.dialect {
	case SQLite:
		driver, err = sqlite.WithInstance(m.db, &sqlite.Config{})
	case Postgres:
		driver, err = postgres.WithInstance(m.db, &postgres.Config{})
	}
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create %s migration driver: %w", m.dialect, err)
	}

	src, err := iofs.New(migrationFiles, "sql/"+string(m.dialect))
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create migration source: %w", err)
	}
	closeSrc = func() {
		if err := src.Close(); err != nil {
			log.Printf("[WARN] could not close migration source: %v", err)
		}
	}

	instance, err = migrate.NewWithInstance("iofs", src, string(m.dialect), driver)
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create migration instance: %w", err)
	}
	return instance, closeSrc, nil
}
