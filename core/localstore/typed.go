package localstore

import (
	"fmt"

	"github.com/pkg/errors"
)

// Typed is a view of one collection whose records decode into T.
type Typed[T any] struct {
	store *Store
	name  string
}

func NewTyped[T any](store *Store, name string) *Typed[T] {
	return &Typed[T]{store: store, name: name}
}

func (c *Typed[T]) Name() string { return c.name }

func (c *Typed[T]) decode(rec Record) (T, error) {
	var v T
	if err := FromRecord(rec, &v); err != nil {
		return v, errors.Wrap(err, fmt.Sprintf("decoding %s record", c.name))
	}
	return v, nil
}

// All returns every record of the collection. Records that do not decode into T are skipped.
func (c *Typed[T]) All() []T {
	return c.Filter(nil)
}

// Filter returns the records for which keep returns true (all of them if keep is nil).
func (c *Typed[T]) Filter(keep func(T) bool) []T {
	records := c.store.Collection(c.name)
	out := make([]T, 0, len(records))
	for _, rec := range records {
		v, err := c.decode(rec)
		if err != nil {
			c.store.logger.Warn("skipping undecodable record", err, map[string]interface{}{"id": rec.ID()})
			continue
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (c *Typed[T]) Get(id string) (T, error) {
	rec, err := c.store.Get(c.name, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.decode(rec)
}

func (c *Typed[T]) Add(v T) (T, error) {
	rec, err := ToRecord(v)
	if err != nil {
		return v, err
	}
	if _, err = c.store.Add(c.name, rec); err != nil {
		return v, err
	}
	return v, nil
}

// Update shallow-merges fields over the record with the given id.
func (c *Typed[T]) Update(id string, fields Record) (T, error) {
	rec, err := c.store.Update(c.name, id, fields)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.decode(rec)
}

func (c *Typed[T]) Delete(id string) (bool, error) {
	return c.store.Delete(c.name, id)
}

// Mutate applies fn to every decoded record in one atomic read-modify-write.
// fn returns the records to store, or ErrNoChange to skip the write.
// Records that fail to decode are kept as is, before the record that followed them.
func (c *Typed[T]) Mutate(fn func([]T) ([]T, error)) error {
	type kept struct {
		before int // index of the next decoded record
		rec    Record
	}
	err := c.store.mutate(c.name, func(records []Record) ([]Record, error) {
		decoded := make([]T, 0, len(records))
		var undecodable []kept
		for _, rec := range records {
			v, err := c.decode(rec)
			if err != nil {
				undecodable = append(undecodable, kept{before: len(decoded), rec: rec})
				continue
			}
			decoded = append(decoded, v)
		}
		updated, err := fn(decoded)
		if err != nil {
			return nil, err
		}

		out := make([]Record, 0, len(updated)+len(undecodable))
		for i, v := range updated {
			for len(undecodable) > 0 && undecodable[0].before <= i {
				out = append(out, undecodable[0].rec)
				undecodable = undecodable[1:]
			}
			rec, err := ToRecord(v)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		for _, k := range undecodable {
			out = append(out, k.rec)
		}
		return out, nil
	})
	if err == ErrNoChange {
		return nil
	}
	return err
}
