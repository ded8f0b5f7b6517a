// Package store provides the remote table of project documents.
// Every row holds one opaque JSON document, rows are listed in id order, and
// every backend exposes a subscription delivering an event per table change.
// Implementations: SQLite (local file, in-process notifications), Postgres
// (LISTEN/NOTIFY) and a Redis fan-out wrapper for multi-instance setups.
package store

import (
	"context"
	"time"
)

// Table is the name of the single table holding project documents
const Table = "projects"

// Row is one stored document
type Row struct {
	ID   int64  `db:"id"`
	Data []byte `db:"data"`
}

// Op is the kind of change reported by a subscription
type Op string

// change kinds
const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
	OpResync Op = "RESYNC" // reported when the event source lost track, e.g. after reconnect
)

// Event is a change notification. Consumers only care that it happened,
// the fields are informational.
type Event struct {
	Op     Op        `json:"op"`
	Table  string    `json:"table"`
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// Backend is the contract shared by all table implementations
type Backend interface {
	List(ctx context.Context) ([]Row, error)
	DeleteAll(ctx context.Context) error
	Insert(ctx context.Context, doc []byte) error
	Replace(ctx context.Context, docs [][]byte) error
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

func newEvent(op Op) Event {
	return Event{Op: op, Table: Table, At: time.Now()}
}
