package store

import (
	"context"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/umputun/jobtrack/app/store/migrations"
)

// ChangesChannel is the postgres notification channel the projects trigger publishes to
const ChangesChannel = "projects_changes"

// listener ping interval, keeps idle connections from being dropped silently
const listenerPing = 90 * time.Second

// Postgres implements Backend on a postgres table. Change notifications come
// from the statement trigger installed by migrations, so writes made by other
// clients are reported as well.
type Postgres struct {
	db  *sqlx.DB
	dsn string
}

// NewPostgres connects to dsn, verifies the connection and applies migrations
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := migrate(db, migrations.Postgres); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Printf("[DEBUG] postgres store initialized")
	return &Postgres{db: db, dsn: dsn}, nil
}

// List returns all rows ordered by id
func (p *Postgres) List(ctx context.Context) ([]Row, error) {
	rows := []Row{}
	if err := p.db.SelectContext(ctx, &rows, "SELECT id, data FROM projects ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	return rows, nil
}

// DeleteAll removes every row
func (p *Postgres) DeleteAll(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM projects"); err != nil {
		return fmt.Errorf("failed to delete projects: %w", err)
	}
	return nil
}

// Insert adds one row holding doc
func (p *Postgres) Insert(ctx context.Context, doc []byte) error {
	if _, err := p.db.ExecContext(ctx, "INSERT INTO projects (data) VALUES ($1::jsonb)", string(doc)); err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// Replace deletes all rows and inserts docs in one transaction
func (p *Postgres) Replace(ctx context.Context, docs [][]byte) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM projects"); err != nil {
		return fmt.Errorf("failed to delete projects: %w", err)
	}
	for i, doc := range docs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO projects (data) VALUES ($1::jsonb)", string(doc)); err != nil {
			return fmt.Errorf("failed to insert project %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Subscribe listens on ChangesChannel. A reconnect of the listener is reported
// as OpResync because notifications sent while disconnected are lost.
func (p *Postgres) Subscribe(ctx context.Context) (<-chan Event, error) {
	l := pq.NewListener(p.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[WARN] postgres listener event %d: %v", ev, err)
		}
	})
	if err := l.Listen(ChangesChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", ChangesChannel, err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer l.Close()
		ticker := time.NewTicker(listenerPing)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-l.Notify:
				if !ok {
					return
				}
				ev := newEvent(OpResync)
				if n != nil {
					ev.Op = Op(n.Extra)
				}
				select {
				case out <- ev:
				default:
					log.Printf("[DEBUG] subscriber buffer full, dropping %s event", ev.Op)
				}
			case <-ticker.C:
				if err := l.Ping(); err != nil {
					log.Printf("[WARN] postgres listener ping failed: %v", err)
				}
			}
		}
	}()
	return out, nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}
