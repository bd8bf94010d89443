package badgerkv

import (
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/collegium/core"
)

func openTestDB(t *testing.T) *DB {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Set("collegium_events", "[]"))
	require.NoError(t, db.Close())

	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()
	val, err := db.Get("collegium_events")
	require.NoError(t, err)
	assert.Equal(t, "[]", val)
}

func TestDB_GetSetDelete(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Get("missing")
	assert.Equal(t, core.ErrKeyNotFound, err)

	require.NoError(t, db.Set("k", "v"))
	val, err := db.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	require.NoError(t, db.Delete("k"))
	_, err = db.Get("k")
	assert.Equal(t, core.ErrKeyNotFound, err)
}

func TestDB_Keys(t *testing.T) {
	db := openTestDB(t)
	for _, k := range []string{"collegium_messages", "collegium_events", "sb-ref-auth-token"} {
		require.NoError(t, db.Set(k, "[]"))
	}
	keys, err := db.Keys("collegium_")
	require.NoError(t, err)
	assert.Equal(t, []string{"collegium_events", "collegium_messages"}, keys)
}

func TestDB_Update(t *testing.T) {
	db := openTestDB(t)

	errAbort := errors.New("abort")
	err := db.Update("k", func(cur string, exists bool) (string, error) {
		assert.False(t, exists)
		return "", errAbort
	})
	assert.Equal(t, errAbort, err)
	_, err = db.Get("k")
	assert.Equal(t, core.ErrKeyNotFound, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = db.Update("counter", func(cur string, exists bool) (string, error) {
				n := 0
				if exists {
					n, _ = strconv.Atoi(cur)
				}
				return strconv.Itoa(n + 1), nil
			})
		}()
	}
	wg.Wait()
	val, err := db.Get("counter")
	require.NoError(t, err)
	n, _ := strconv.Atoi(val)
	// conflicting transactions are retried a bounded number of times
	assert.True(t, n > 0 && n <= 20)
}

func TestDB_ClosedIsShutdown(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, db.Set("collegium_events", "[]"))
	require.NoError(t, db.Close())

	_, err = db.Get("collegium_events")
	assert.True(t, core.IsShutdown(err), "got %v", err)
	assert.True(t, core.IsShutdown(db.Set("collegium_events", "[]")))
	assert.True(t, core.IsShutdown(db.Update("collegium_events", func(string, bool) (string, error) { return "[]", nil })))
	_, err = db.Keys("collegium_")
	assert.True(t, core.IsShutdown(err))
}
