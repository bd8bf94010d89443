// Package pgkv is a core.KeyValueStore backed by the postgres kv_store table.
//
// An empty value marks a reserved row and reads as a missing key.
package pgkv

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core"
)

const (
	getQuery    = `SELECT value FROM kv_store WHERE key = $1 AND value <> ''`
	lockQuery   = `SELECT value FROM kv_store WHERE key = $1 FOR UPDATE`
	upsertQuery = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	deleteQuery = `DELETE FROM kv_store WHERE key = $1`
	keysQuery   = `SELECT key FROM kv_store WHERE key LIKE $1 ESCAPE '\' AND value <> '' ORDER BY key`
	// insert a placeholder row so that FOR UPDATE has something to lock on first write
	reserveQuery = `INSERT INTO kv_store (key, value) VALUES ($1, '') ON CONFLICT (key) DO NOTHING`
)

type DB struct {
	db      *sqlx.DB
	timeout time.Duration
	closed  atomic.Bool
}

var _ core.KeyValueStore = (*DB)(nil) // interface compliance check

// New wraps an open database. The kv_store table must exist (see database.Migrate).
func New(db *sqlx.DB, timeout time.Duration) *DB {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DB{db: db, timeout: timeout}
}

func (s *DB) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// check wraps err with msg. A closed database or a dead connection is reported as a shutdown error.
func (s *DB) check(err error, msg string) error {
	if err == nil {
		return nil
	}
	if s.closed.Load() || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return core.NewShutdownError(msg + ": " + err.Error())
	}
	return errors.Wrap(err, msg)
}

func (s *DB) Get(key string) (string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var val string
	if err := s.db.GetContext(ctx, &val, getQuery, key); err != nil {
		if err == sql.ErrNoRows {
			return "", core.ErrKeyNotFound
		}
		return "", s.check(err, fmt.Sprintf("reading %q", key))
	}
	return val, nil
}

func (s *DB) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.db.ExecContext(ctx, upsertQuery, key, value)
	return s.check(err, fmt.Sprintf("writing %q", key))
}

func (s *DB) Delete(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.db.ExecContext(ctx, deleteQuery, key)
	return s.check(err, fmt.Sprintf("deleting %q", key))
}

func (s *DB) Keys(prefix string) ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	keys := make([]string, 0)
	if err := s.db.SelectContext(ctx, &keys, keysQuery, escapeLike(prefix)+"%"); err != nil {
		return nil, s.check(err, "listing keys")
	}
	return keys, nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *DB) Update(key string, fn core.UpdateFunc) (err error) {
	ctx, cancel := s.ctx()
	defer cancel()

	// the placeholder is committed on its own so that a concurrent first write blocks on the row lock
	if _, err = s.db.ExecContext(ctx, reserveQuery, key); err != nil {
		return s.check(err, fmt.Sprintf("reserving %q", key))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.check(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current string
	if err = tx.GetContext(ctx, &current, lockQuery, key); err != nil {
		return s.check(err, fmt.Sprintf("locking %q", key))
	}
	// an empty value is the placeholder: the key did not exist
	exists := current != ""

	newVal, err := fn(current, exists)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, upsertQuery, key, newVal); err != nil {
		return s.check(err, fmt.Sprintf("writing %q", key))
	}
	if err = tx.Commit(); err != nil {
		return s.check(err, "committing transaction")
	}
	return nil
}

func (s *DB) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
