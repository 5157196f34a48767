// Package sqlstore implements template and points storage in SQLite.
package sqlstore

import (
	"context"
	_ "embed"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kappatan/kappatan/store"
)

// Store is a template store backed by an SQLite database.
type Store struct {
	db *sqlitex.Pool
}

//go:embed schema.sql
var schemaSQL string

// Open returns a store within the given database, creating the schema if
// needed. The db must remain open for the lifetime of the store.
func Open(ctx context.Context, db *sqlitex.Pool) (*Store, error) {
	conn, err := db.Take(ctx)
	defer db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection from pool: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return nil, fmt.Errorf("couldn't initialize store schema: %w", err)
	}
	return &Store{db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecommendedPrep is an [sqlitex.ConnPrepareFunc] that sets options
// recommended for a store.
func RecommendedPrep(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		st, _, err := conn.PrepareTransient(p)
		if err != nil {
			// If this function just returns an error, the pool will
			// continue to invoke it for every connection. Explode instead.
			panic(fmt.Errorf("couldn't set %s: %w", p, err))
		}
		for {
			ok, err := st.Step()
			if err != nil {
				return fmt.Errorf("couldn't run %s: %w", p, err)
			}
			if !ok {
				break
			}
		}
		if err := st.Finalize(); err != nil {
			panic(fmt.Errorf("couldn't finalize statement for %s: %w", p, err))
		}
	}
	return nil
}

// GetTemplate returns the template body for a command name.
func (s *Store) GetTemplate(ctx context.Context, channel, name string) (string, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return "", fmt.Errorf("couldn't get conn to fetch template: %w", err)
	}
	const sel = `SELECT template FROM templates WHERE channel = :channel AND name = :name`
	var body string
	found := false
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":channel": channel, ":name": name},
		ResultFunc: func(st *sqlite.Stmt) error {
			body = st.ColumnText(0)
			found = true
			return nil
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return "", fmt.Errorf("couldn't fetch template %s in %s: %w", name, channel, err)
	}
	if !found {
		return "", fmt.Errorf("no template %s in %s: %w", name, channel, store.ErrNotFound)
	}
	return body, nil
}

// UpsertTemplate creates or replaces the template for a command name.
func (s *Store) UpsertTemplate(ctx context.Context, channel, name, body string) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to save template: %w", err)
	}
	const upsert = `INSERT INTO templates (channel, name, template) VALUES (:channel, :name, :template)
		ON CONFLICT (channel, name) DO UPDATE SET template = excluded.template`
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":channel": channel, ":name": name, ":template": body},
	}
	if err := sqlitex.Execute(conn, upsert, &opts); err != nil {
		return fmt.Errorf("couldn't save template %s in %s: %w", name, channel, err)
	}
	return nil
}

// DeleteTemplate removes the template for a command name.
func (s *Store) DeleteTemplate(ctx context.Context, channel, name string) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to delete template: %w", err)
	}
	const del = `DELETE FROM templates WHERE channel = :channel AND name = :name`
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":channel": channel, ":name": name},
	}
	if err := sqlitex.Execute(conn, del, &opts); err != nil {
		return fmt.Errorf("couldn't delete template %s in %s: %w", name, channel, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("no template %s in %s: %w", name, channel, store.ErrNotFound)
	}
	return nil
}

// ListTemplates returns the names of all templates defined for a channel.
func (s *Store) ListTemplates(ctx context.Context, channel string) ([]string, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get conn to list templates: %w", err)
	}
	const sel = `SELECT name FROM templates WHERE channel = :channel ORDER BY name`
	var names []string
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":channel": channel},
		ResultFunc: func(st *sqlite.Stmt) error {
			names = append(names, st.ColumnText(0))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return nil, fmt.Errorf("couldn't list templates in %s: %w", channel, err)
	}
	return names, nil
}

// GetPoints returns the points balance for a user.
func (s *Store) GetPoints(ctx context.Context, channel string, userID int64) (int64, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get conn to fetch points: %w", err)
	}
	const sel = `SELECT points FROM points WHERE channel = :channel AND user_id = :user_id`
	var points int64
	found := false
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":channel": channel, ":user_id": userID},
		ResultFunc: func(st *sqlite.Stmt) error {
			points = st.ColumnInt64(0)
			found = true
			return nil
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return 0, fmt.Errorf("couldn't fetch points for %d in %s: %w", userID, channel, err)
	}
	if !found {
		return 0, fmt.Errorf("no points for %d in %s: %w", userID, channel, store.ErrNotFound)
	}
	return points, nil
}

// CreditPoints adds delta to a user's balance, creating the row if needed.
func (s *Store) CreditPoints(ctx context.Context, channel string, userID, delta int64) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to credit points: %w", err)
	}
	const credit = `INSERT INTO points (channel, user_id, points) VALUES (:channel, :user_id, :delta)
		ON CONFLICT (channel, user_id) DO UPDATE SET points = points + excluded.points`
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":channel": channel, ":user_id": userID, ":delta": delta},
	}
	if err := sqlitex.Execute(conn, credit, &opts); err != nil {
		return fmt.Errorf("couldn't credit %d points to %d in %s: %w", delta, userID, channel, err)
	}
	return nil
}

var _ store.Interface = (*Store)(nil)
