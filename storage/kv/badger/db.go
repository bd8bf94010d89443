// Package badgerkv is a core.KeyValueStore backed by an embedded BadgerDB.
//
// It is the durable substrate of the local collection store: one Badger key per
// storage key, holding the raw string value.
package badgerkv

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core"
)

// maxConflictRetries bounds how many times Update retries a transaction that lost a write conflict.
const maxConflictRetries = 10

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. If nil, they are discarded.
	Logger core.Logger

	// GCInterval is how often to run value log garbage collection. 0 disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns sensible defaults for a persistent database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts core.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger core.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

type DB struct {
	db     *badger.DB
	logger core.Logger

	stopGC    chan struct{}
	gcDone    sync.WaitGroup
	closeOnce sync.Once
}

var _ core.KeyValueStore = (*DB)(nil) // interface compliance check

// Open opens a BadgerDB at the configured path, or in memory if InMemory is true.
// The directory is created if it doesn't exist. Caller must call Close() when done.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("creating database directory %s", cfg.Path))
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening badger database")
	}

	db := &DB{db: bdb, logger: cfg.Logger, stopGC: make(chan struct{})}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		db.gcDone.Add(1)
		go db.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return db, nil
}

func (db *DB) runGC(interval time.Duration, ratio float64) {
	defer db.gcDone.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopGC:
			return
		case <-ticker.C:
			// keep collecting until there is nothing left to rewrite
			for {
				if err := db.db.RunValueLogGC(ratio); err != nil {
					if err != badger.ErrNoRewrite && db.logger != nil {
						db.logger.Warn("badger value log GC failed", err)
					}
					break
				}
			}
		}
	}
}

func (db *DB) Get(key string) (string, error) {
	var val []byte
	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", core.ErrKeyNotFound
		}
		return "", check(err, fmt.Sprintf("reading %q", key))
	}
	return string(val), nil
}

func (db *DB) Set(key, value string) error {
	err := db.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	return check(err, fmt.Sprintf("writing %q", key))
}

func (db *DB) Delete(key string) error {
	err := db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return check(err, fmt.Sprintf("deleting %q", key))
}

func (db *DB) Keys(prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, check(err, "listing keys")
	}
	return keys, nil
}

// Update runs fn inside a read-write transaction. A transaction that loses a
// write conflict against a concurrent Update is retried with a fresh read.
func (db *DB) Update(key string, fn core.UpdateFunc) error {
	k := []byte(key)
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = db.db.Update(func(txn *badger.Txn) error {
			var current string
			exists := true
			item, err := txn.Get(k)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				exists = false
			case err != nil:
				return err
			default:
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				current = string(val)
			}

			newVal, err := fn(current, exists)
			if err != nil {
				return err
			}
			return txn.Set(k, []byte(newVal))
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return check(err, fmt.Sprintf("updating %q", key))
	}
	return err
}

// check wraps err with msg. A closed database cannot serve anymore: it is reported as a shutdown error.
func check(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return core.NewShutdownError(msg + ": " + err.Error())
	}
	return errors.Wrap(err, msg)
}

func (db *DB) Close() error {
	var err error
	db.closeOnce.Do(func() {
		close(db.stopGC)
		db.gcDone.Wait()
		err = db.db.Close()
	})
	return err
}
