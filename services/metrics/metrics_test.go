package metricsvc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/storage/kv/inmem"
)

func TestCollector_StoreOps(t *testing.T) {
	c := New()
	store := localstore.New(inmemkv.Open(), localstore.WithObserver(c))

	_, err := store.Add(localstore.Events, localstore.Record{"id": "e1"})
	require.NoError(t, err)
	_, err = store.Update(localstore.Events, "nope", localstore.Record{"title": "x"})
	require.Error(t, err)
	store.Collection(localstore.Events)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOps.WithLabelValues(localstore.Events, "add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOps.WithLabelValues(localstore.Events, "update", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOps.WithLabelValues(localstore.Events, "read", "ok")))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveQuery("events", "ok", 30*time.Millisecond)
	c.ObserveQuery("events", "error", time.Second)

	assert.Equal(t, 2, testutil.CollectAndCount(c.queryDuration))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `collegium_query_duration_seconds_count{outcome="ok",table="events"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
