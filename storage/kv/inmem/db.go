package inmemkv

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/collegium/core"
)

// ErrQuotaExceeded is returned when a write would grow the store past its quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

type (
	DB struct {
		mutex sync.RWMutex
		table map[string]string
		size  int
		quota int // bytes; <= 0 means unlimited
	}

	Option func(*DB)
)

var _ core.KeyValueStore = (*DB)(nil) // interface compliance check

// WithQuota caps the total size (keys + values) of the store, like the browser's localStorage quota.
func WithQuota(bytes int) Option {
	return func(db *DB) { db.quota = bytes }
}

func Open(opts ...Option) *DB {
	db := &DB{table: make(map[string]string)}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *DB) Get(key string) (string, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	if val, ok := db.table[key]; ok {
		return val, nil
	}
	return "", core.ErrKeyNotFound
}

func (db *DB) Set(key, value string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.set(key, value)
}

func (db *DB) set(key, value string) error {
	newSize := db.size + len(value)
	if old, ok := db.table[key]; ok {
		newSize -= len(old)
	} else {
		newSize += len(key)
	}
	if db.quota > 0 && newSize > db.quota {
		return ErrQuotaExceeded
	}
	db.table[key] = value
	db.size = newSize
	return nil
}

func (db *DB) Delete(key string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if old, ok := db.table[key]; ok {
		db.size -= len(key) + len(old)
		delete(db.table, key)
	}
	return nil
}

func (db *DB) Keys(prefix string) ([]string, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	keys := make([]string, 0, len(db.table))
	for key := range db.table {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (db *DB) Update(key string, fn core.UpdateFunc) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	current, exists := db.table[key]
	val, err := fn(current, exists)
	if err != nil {
		return err
	}
	return db.set(key, val)
}

func (db *DB) Close() error { return nil }
