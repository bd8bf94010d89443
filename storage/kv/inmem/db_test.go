package inmemkv

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/collegium/core"
)

func TestDB_GetSetDelete(t *testing.T) {
	db := Open()

	_, err := db.Get("k")
	assert.Equal(t, core.ErrKeyNotFound, err)

	require.NoError(t, db.Set("k", "v"))
	val, err := db.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	require.NoError(t, db.Delete("k"))
	require.NoError(t, db.Delete("k")) // missing key is a no-op
	_, err = db.Get("k")
	assert.Equal(t, core.ErrKeyNotFound, err)
}

func TestDB_Keys(t *testing.T) {
	db := Open()
	for _, k := range []string{"app_b", "app_a", "other"} {
		require.NoError(t, db.Set(k, "1"))
	}
	keys, err := db.Keys("app_")
	require.NoError(t, err)
	assert.Equal(t, []string{"app_a", "app_b"}, keys)
}

func TestDB_Quota(t *testing.T) {
	db := Open(WithQuota(10))

	require.NoError(t, db.Set("k", "123456789")) // 1 + 9
	assert.Equal(t, ErrQuotaExceeded, db.Set("k2", "x"))
	require.NoError(t, db.Set("k", "1")) // shrinking is fine
	require.NoError(t, db.Set("k2", "x"))

	err := db.Update("k", func(string, bool) (string, error) { return "too long for the quota", nil })
	assert.Equal(t, ErrQuotaExceeded, err)
	val, _ := db.Get("k")
	assert.Equal(t, "1", val)
}

func TestDB_UpdateIsAtomic(t *testing.T) {
	db := Open()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
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
	assert.Equal(t, "50", val)
}
