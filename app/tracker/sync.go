package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	log "github.com/go-pkgz/lgr"
	"github.com/robfig/cron/v3"

	"github.com/umputun/jobtrack/app/store"
)

// Store is the remote table of project documents
type Store interface {
	List(ctx context.Context) ([]store.Row, error)
	DeleteAll(ctx context.Context) error
	Insert(ctx context.Context, doc []byte) error
	Subscribe(ctx context.Context) (<-chan store.Event, error)
}

// Replacer is implemented by stores able to overwrite the table in one transaction
type Replacer interface {
	Replace(ctx context.Context, docs [][]byte) error
}

// SyncOpts are optional Synchronizer settings
type SyncOpts struct {
	Atomic   bool             // overwrite in one transaction if the store is a Replacer
	Schedule string           // cron expression of backstop reloads, empty disables
	OnLoad   func(rev uint64) // called at the end of every Load
}

// Synchronizer reconciles State with the store. Save overwrites the whole
// table with the in-memory projects, Load rebuilds the state from the table.
// Store errors are logged and never returned, a failed load leaves no projects.
type Synchronizer struct {
	store    Store
	state    *State
	atomic   bool
	schedule string
	onLoad   func(rev uint64)
	revision atomic.Uint64
}

// NewSynchronizer makes a Synchronizer for state backed by st
func NewSynchronizer(st Store, state *State, opts SyncOpts) (*Synchronizer, error) {
	if st == nil || state == nil {
		return nil, errors.New("store and state are required")
	}
	if opts.Schedule != "" {
		if _, err := cron.ParseStandard(opts.Schedule); err != nil {
			return nil, fmt.Errorf("invalid sync schedule %q: %w", opts.Schedule, err)
		}
	}
	if opts.Atomic {
		if _, ok := st.(Replacer); !ok {
			log.Printf("[WARN] store can't replace atomically, falling back to delete and insert")
			opts.Atomic = false
		}
	}
	return &Synchronizer{store: st, state: state, atomic: opts.Atomic, schedule: opts.Schedule, onLoad: opts.OnLoad}, nil
}

// Revision is incremented by every Load
func (s *Synchronizer) Revision() uint64 {
	return s.revision.Load()
}

// Load replaces state projects with the documents from the store, ordered by row id.
// On failure or no rows the state ends up with no projects.
func (s *Synchronizer) Load(ctx context.Context) {
	defer s.loaded()

	rows, err := s.store.List(ctx)
	if err != nil {
		log.Printf("[WARN] load error, %v", err)
		s.state.Replace(nil)
		return
	}

	projects := make([]Project, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		p := decodeProject(row.Data)
		if seen[p.ID] {
			log.Printf("[WARN] duplicate project id %s in row %d, assigning new id", p.ID, row.ID)
			p.ID = NewID()
		}
		seen[p.ID] = true
		projects = append(projects, p)
	}
	s.state.Replace(projects)
	log.Printf("[DEBUG] loaded %d projects", len(projects))
}

// Save overwrites the store with all in-memory projects: delete every row, then
// insert one row per project in order. Errors are logged, not retried, and do
// not stop the remaining steps. Without the atomic option the sequence is not
// transactional and a concurrent reader may see the table empty or partial.
func (s *Synchronizer) Save(ctx context.Context) {
	projects := s.state.Projects()
	docs, ids := make([][]byte, 0, len(projects)), make([]string, 0, len(projects))
	for _, p := range projects {
		doc, err := encodeProject(p)
		if err != nil {
			log.Printf("[WARN] %v", err)
			continue
		}
		docs, ids = append(docs, doc), append(ids, p.ID)
	}

	if s.atomic {
		if err := s.store.(Replacer).Replace(ctx, docs); err != nil {
			log.Printf("[WARN] replace error, %v", err)
		}
		return
	}

	if err := s.store.DeleteAll(ctx); err != nil {
		log.Printf("[WARN] delete error, %v", err)
	}
	for i, doc := range docs {
		if err := s.store.Insert(ctx, doc); err != nil {
			log.Printf("[WARN] insert error for project %s, %v", ids[i], err)
		}
	}
	log.Printf("[DEBUG] saved %d projects", len(docs))
}

// Watch reloads state on every store change event and on the backstop schedule.
// Events arriving while a reload is pending are coalesced. Blocks until ctx is
// done or the subscription ends.
func (s *Synchronizer) Watch(ctx context.Context) error {
	events, err := s.store.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to store changes: %w", err)
	}

	var ticks chan struct{} // nil channel never fires if no schedule
	if s.schedule != "" {
		ticks = make(chan struct{}, 1)
		c := cron.New()
		if _, err := c.AddFunc(s.schedule, func() {
			select {
			case ticks <- struct{}{}:
			default:
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule reloads: %w", err)
		}
		c.Start()
		defer c.Stop()
	}

	log.Printf("[INFO] watching store changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("store change subscription closed")
			}
			log.Printf("[DEBUG] change detected, %s on %s", ev.Op, ev.Table)
			drain(events)
			s.Load(ctx)
		case <-ticks:
			log.Printf("[DEBUG] scheduled reload")
			s.Load(ctx)
		}
	}
}

func (s *Synchronizer) loaded() {
	rev := s.revision.Add(1)
	if s.onLoad != nil {
		s.onLoad(rev)
	}
}

// drain discards events already queued, one reload covers all of them
func drain(events <-chan store.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
