package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/collegium/apps/shared"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/storage/kv/inmem"
)

func NewValidator() (*validator.Validate, ut.Translator) {
	return shared.NewValidator()
}

// NewStore returns a local collection store over an in-memory substrate closed with the test.
func NewStore(t *testing.T, opts ...localstore.Option) *localstore.Store {
	kv := inmemkv.Open()
	t.Cleanup(func() { _ = kv.Close() })
	return localstore.New(kv, opts...)
}

// SeqIDs returns an id generator yielding prefix1, prefix2, ...
func SeqIDs(prefix string) func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("%s%d", prefix, atomic.AddInt64(&n, 1))
	}
}

// SaveCollection replaces a collection, failing the test on error.
func SaveCollection(t *testing.T, store *localstore.Store, name string, records ...localstore.Record) {
	if err := store.SaveCollection(name, records); err != nil {
		t.Fatalf("SaveCollection(%s) failed: %v", name, err)
	}
}
