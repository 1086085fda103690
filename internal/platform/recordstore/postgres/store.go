// Package postgres stores the record tree in the record_nodes table, one row
// per leaf. Commits are broadcast with NOTIFY so listeners on every instance
// see them.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"staffdesk/internal/platform/recordstore"
)

const channel = "recordstore_changes"

type Store struct {
	pool   *pgxpool.Pool
	hub    *recordstore.Hub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open expects the record_nodes table to exist (see db.Migrate) and starts a
// LISTEN loop on a dedicated pool connection.
func Open(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	s := &Store{pool: pool, hub: recordstore.NewHub(), cancel: cancel}
	s.wg.Add(1)
	go s.listen(listenCtx)
	return s, nil
}

func (s *Store) Transactional() bool { return true }

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
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
		rows pgx.Rows
		err  error
	)
	if path == "" {
		rows, err = s.pool.Query(ctx, `SELECT path, value FROM record_nodes`)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT path, value FROM record_nodes
			WHERE path = $1 OR (path >= $2 AND path < $3)
		`, path, path+"/", path+"0")
	}
	if err != nil {
		return nil, fmt.Errorf("select nodes: %w", err)
	}
	defer rows.Close()

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

func (s *Store) Update(ctx context.Context, updates recordstore.Updates) error {
	normalized, err := updates.Normalize()
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return nil
	}
	paths := updates.Paths()
	payload, err := json.Marshal(paths)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for path, value := range normalized {
			if err := replace(ctx, tx, path, value); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, string(payload))
		return err
	})
	if err != nil {
		return err
	}

	s.hub.Notify(context.WithoutCancel(ctx), paths, s.read)
	return nil
}

func replace(ctx context.Context, tx pgx.Tx, path string, value any) error {
	batch := &pgx.Batch{}
	if path == "" {
		batch.Queue(`DELETE FROM record_nodes`)
	} else {
		batch.Queue(`DELETE FROM record_nodes WHERE path = $1 OR (path >= $2 AND path < $3)`, path, path+"/", path+"0")
		ancestors := append([]string{""}, recordstore.Ancestors(path)...)
		batch.Queue(`DELETE FROM record_nodes WHERE path = ANY($1)`, ancestors)
	}
	for leafPath, leaf := range recordstore.Flatten(path, value) {
		raw, err := recordstore.EncodeLeaf(leaf)
		if err != nil {
			return fmt.Errorf("encode %s: %w", leafPath, err)
		}
		batch.Queue(`INSERT INTO record_nodes (path, value, updated_at) VALUES ($1, $2, now())`, leafPath, string(raw))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
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

// listen relays commits made by other instances into the local hub,
// reconnecting after a short pause when the connection drops.
func (s *Store) listen(ctx context.Context) {
	defer s.wg.Done()
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("recordstore listen failed", "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return err
	}
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var paths []string
		if err := json.Unmarshal([]byte(notification.Payload), &paths); err != nil {
			slog.Warn("recordstore notification decode failed", "err", err)
			continue
		}
		s.hub.Notify(ctx, paths, s.read)
	}
}

// Close stops the listener. The pool belongs to the caller.
func (s *Store) Close() error {
	s.cancel()
	s.wg.Wait()
	s.hub.Close()
	return nil
}

var _ recordstore.Store = (*Store)(nil)
