// Package sqlite stores the record tree in a single SQLite file, one row per
// leaf. Multi-path updates run inside one SQL transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"staffdesk/internal/platform/recordstore"
)

const schema = `CREATE TABLE IF NOT EXISTS nodes (
	path TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

type Store struct {
	db  *sql.DB
	hub *recordstore.Hub
}

func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "staffdesk.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps reads consistent with them.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create nodes table: %w", err)
	}
	return &Store{db: db, hub: recordstore.NewHub()}, nil
}

func (s *Store) Transactional() bool { return true }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Read(ctx context.Context, path string) (recordstore.Node, error) {
	if err := recordstore.Validate(path); err != nil {
		return recordstore.Node{}, err
	}
	value, err := s.read(ctx, path)
	if err != nil {
		return recordstore.Node{}, err
	}
	return recordstore.NewNode(path, value), nil
}

func (s *Store) read(ctx context.Context, path string) (any, error) {
	path = recordstore.Clean(path)
	var (
		rows *sql.Rows
		err  error
	)
	if path == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT path, value FROM nodes`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT path, value FROM nodes
			WHERE path = ? OR (path >= ? AND path < ?)
		`, path, path+"/", path+"0")
	}
	if err != nil {
		return nil, fmt.Errorf("select nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	leaves := map[string]any{}
	for rows.Next() {
		var p, raw string
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		v, err := recordstore.DecodeLeaf([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		leaves[p] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recordstore.Build(path, leaves), nil
}

func (s *Store) Subscribe(ctx context.Context, path string, fn recordstore.Listener) (recordstore.Unsubscribe, error) {
	return s.hub.Add(ctx, path, fn, s.read)
}

func (s *Store) Update(ctx context.Context, updates recordstore.Updates) (retErr error) {
	normalized, err := updates.Normalize()
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for path, value := range normalized {
		if err := replace(ctx, tx, path, value); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.hub.Notify(context.WithoutCancel(ctx), updates.Paths(), s.read)
	return nil
}

func replace(ctx context.Context, tx *sql.Tx, path string, value any) error {
	if path == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
			return fmt.Errorf("clear nodes: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM nodes WHERE path = ? OR (path >= ? AND path < ?)
		`, path, path+"/", path+"0"); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		// A leaf sitting on an ancestor would shadow the new subtree.
		for _, ancestor := range append([]string{""}, recordstore.Ancestors(path)...) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, ancestor); err != nil {
				return fmt.Errorf("delete ancestor %s: %w", ancestor, err)
			}
		}
	}
	for leafPath, leaf := range recordstore.Flatten(path, value) {
		raw, err := recordstore.EncodeLeaf(leaf)
		if err != nil {
			return fmt.Errorf("encode %s: %w", leafPath, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO nodes (path, value) VALUES (?, ?)`, leafPath, string(raw)); err != nil {
			return fmt.Errorf("insert %s: %w", leafPath, err)
		}
	}
	return nil
}

func (s *Store) Push(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := recordstore.Validate(path); err != nil {
		return "", err
	}
	return recordstore.NewPushKey()
}

func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}
