package localstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags,omitempty"`
	Stars int      `json:"stars"`
}

func TestTyped(t *testing.T) {
	store, kv := setup(t)
	notes := NewTyped[note](store, "notes")
	assert.Equal(t, "notes", notes.Name())

	_, err := notes.Add(note{ID: "n1", Title: "Calculus", Stars: 3})
	require.NoError(t, err)
	_, err = notes.Add(note{ID: "n2", Title: "Biology", Tags: []string{"bio"}})
	require.NoError(t, err)

	all := notes.All()
	assert.Equal(t, []note{{ID: "n1", Title: "Calculus", Stars: 3}, {ID: "n2", Title: "Biology", Tags: []string{"bio"}}}, all)

	got, err := notes.Get("n2")
	require.NoError(t, err)
	assert.Equal(t, "Biology", got.Title)

	updated, err := notes.Update("n1", Record{"stars": 5})
	require.NoError(t, err)
	assert.Equal(t, note{ID: "n1", Title: "Calculus", Stars: 5}, updated)

	starred := notes.Filter(func(n note) bool { return n.Stars > 0 })
	assert.Len(t, starred, 1)

	_, err = notes.Update("missing", Record{"stars": 1})
	assert.Equal(t, ErrNotFound, err)

	removed, err := notes.Delete("n2")
	require.NoError(t, err)
	assert.True(t, removed)

	// undecodable records are skipped on read and kept on mutate
	require.NoError(t, kv.Set("collegium_notes", `[{"id":"n1","title":"Calculus","stars":5},{"id":"bad","stars":"many"}]`))
	assert.Len(t, notes.All(), 1)

	err = notes.Mutate(func(ns []note) ([]note, error) {
		return append(ns, note{ID: "n3", Title: "Chemistry"}), nil
	})
	require.NoError(t, err)
	assert.Len(t, store.Collection("notes"), 3)

	err = notes.Mutate(func([]note) ([]note, error) { return nil, ErrNoChange })
	assert.NoError(t, err)
}

func TestTyped_MutateKeepsUndecodableInPlace(t *testing.T) {
	store, kv := setup(t)
	notes := NewTyped[note](store, "notes")
	require.NoError(t, kv.Set("collegium_notes",
		`[{"id":"bad1","stars":"many"},{"id":"n1","title":"Calculus"},{"id":"bad2","stars":[]},{"id":"n2","title":"Biology"}]`))

	ids := func() []string {
		var out []string
		for _, rec := range store.Collection("notes") {
			out = append(out, rec.ID())
		}
		return out
	}

	err := notes.Mutate(func(ns []note) ([]note, error) {
		ns[1].Stars = 4
		return ns, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad1", "n1", "bad2", "n2"}, ids())

	err = notes.Mutate(func(ns []note) ([]note, error) { return ns[:1], nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"bad1", "n1", "bad2"}, ids())
}
