package store

import (
	"context"
	"fmt"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/umputun/jobtrack/app/store/migrations"
)

// SQLite implements Backend on a local SQLite file. Change notifications are
// published in-process after each successful mutation.
type SQLite struct {
	db  *sqlx.DB
	hub *hub
}

// NewSQLite opens (or creates) the database file and applies migrations
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := migrate(db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Printf("[DEBUG] sqlite store initialized at %s", dbPath)
	return &SQLite{db: db, hub: newHub()}, nil
}

// List returns all rows ordered by id
func (s *SQLite) List(ctx context.Context) ([]Row, error) {
	rows := []Row{}
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, data FROM projects ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	return rows, nil
}

// DeleteAll removes every row
func (s *SQLite) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM projects"); err != nil {
		return fmt.Errorf("failed to delete projects: %w", err)
	}
	s.hub.publish(newEvent(OpDelete))
	return nil
}

// Insert adds one row holding doc
func (s *SQLite) Insert(ctx context.Context, doc []byte) error {
	if _, err := s.db.ExecContext(ctx, "INSERT INTO projects (data) VALUES (?)", string(doc)); err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	s.hub.publish(newEvent(OpInsert))
	return nil
}

// Replace deletes all rows and inserts docs in one transaction
func (s *SQLite) Replace(ctx context.Context, docs [][]byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM projects"); err != nil {
		return fmt.Errorf("failed to delete projects: %w", err)
	}
	for i, doc := range docs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO projects (data) VALUES (?)", string(doc)); err != nil {
			return fmt.Errorf("failed to insert project %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.hub.publish(newEvent(OpInsert))
	return nil
}

// Subscribe returns a channel of change events, closed when ctx is done or store is closed
func (s *SQLite) Subscribe(ctx context.Context) (<-chan Event, error) {
	return s.hub.subscribe(ctx), nil
}

// Close closes the database and all subscriptions
func (s *SQLite) Close() error {
	s.hub.close()
	return s.db.Close()
}

func migrate(db *sqlx.DB, dialect migrations.Dialect) error {
	m, err := migrations.New(db.DB, dialect)
	if err != nil {
		return fmt.Errorf("could not create migrator: %w", err)
	}
	if err := m.Up(); err != nil {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}
