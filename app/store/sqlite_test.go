package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLite(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		assert.NotNil(t, s)
		require.NoError(t, s.Close())
	})

	t.Run("invalid path", func(t *testing.T) {
		s, err := NewSQLite("/invalid/path/that/does/not/exist/test.db")
		assert.Error(t, err)
		assert.Nil(t, s)
	})

	t.Run("reopen keeps data", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")
		s, err := NewSQLite(dbPath)
		require.NoError(t, err)
		require.NoError(t, s.Insert(t.Context(), []byte(`{"id":"1"}`)))
		require.NoError(t, s.Close())

		s, err = NewSQLite(dbPath)
		require.NoError(t, err)
		defer s.Close()
		rows, err := s.List(t.Context())
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})
}

func TestSQLite_TableCreated(t *testing.T) {
	s := newTestSQLite(t)

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='projects'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLite_InsertListDelete(t *testing.T) {
	s := newTestSQLite(t)
	ctx := t.Context()

	rows, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	docs := []string{`{"id":"a","name":"first"}`, `{"id":"b","name":"second"}`, `{"id":"c","name":"third"}`}
	for _, d := range docs {
		require.NoError(t, s.Insert(ctx, []byte(d)))
	}

	rows, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.JSONEq(t, docs[i], string(row.Data), "rows returned in insertion order")
		if i > 0 {
			assert.Greater(t, row.ID, rows[i-1].ID)
		}
	}

	require.NoError(t, s.DeleteAll(ctx))
	rows, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLite_Replace(t *testing.T) {
	s := newTestSQLite(t)
	ctx := t.Context()

	require.NoError(t, s.Insert(ctx, []byte(`{"id":"old"}`)))
	require.NoError(t, s.Replace(ctx, [][]byte{[]byte(`{"id":"n1"}`), []byte(`{"id":"n2"}`)}))

	rows, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.JSONEq(t, `{"id":"n1"}`, string(rows[0].Data))
	assert.JSONEq(t, `{"id":"n2"}`, string(rows[1].Data))

	require.NoError(t, s.Replace(ctx, nil))
	rows, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLite_Errors(t *testing.T) {
	s := newTestSQLite(t)
	ctx := t.Context()

	_, err := s.db.Exec("DROP TABLE projects")
	require.NoError(t, err)

	rows, err := s.List(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query projects")
	assert.Nil(t, rows)

	err = s.Insert(ctx, []byte(`{}`))
	assert.ErrorContains(t, err, "failed to insert project")

	err = s.DeleteAll(ctx)
	assert.ErrorContains(t, err, "failed to delete projects")

	err = s.Replace(ctx, [][]byte{[]byte(`{}`)})
	assert.ErrorContains(t, err, "failed to delete projects")
}

func TestSQLite_Subscribe(t *testing.T) {
	s := newTestSQLite(t)
	ctx := t.Context()

	events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, s.DeleteAll(ctx))
	require.NoError(t, s.Insert(ctx, []byte(`{}`)))

	for _, want := range []Op{OpDelete, OpInsert} {
		select {
		case ev := <-events:
			assert.Equal(t, want, ev.Op)
			assert.Equal(t, Table, ev.Table)
			assert.False(t, ev.At.IsZero())
		case <-time.After(time.Second):
			t.Fatalf("no %s event received", want)
		}
	}
}

func TestSQLite_SubscribeNoEventOnFailure(t *testing.T) {
	s := newTestSQLite(t)
	ctx := t.Context()

	events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	_, err = s.db.Exec("DROP TABLE projects")
	require.NoError(t, err)
	require.Error(t, s.Insert(ctx, []byte(`{}`)))

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSQLite_CloseEndsSubscriptions(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	events, err := s.Subscribe(t.Context())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}
