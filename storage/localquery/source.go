// Package localquery answers query.Options from the local collection store,
// so that the remote queries of the app can be served from local collections.
//
// Filters are evaluated on the JSON of each record with gjson paths, and column
// selection rebuilds each row with sjson.
package localquery

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/core/query"
)

// ErrNotSingle is returned by Single when zero or many rows match.
var ErrNotSingle = errors.New("JSON object requested, multiple (or no) rows returned")

type Source struct {
	store *localstore.Store
}

var _ query.Source = (*Source)(nil) // interface compliance check

func New(store *localstore.Store) *Source {
	return &Source{store: store}
}

type (
	tableBuilder struct {
		src   *Source
		table string
	}

	builder struct {
		src     *Source
		table   string
		columns []column
		preds   []func(row gjson.Result) bool
		order   *query.Order
		limit   int
	}

	column struct {
		alias string
		path  string
	}
)

func (s *Source) From(table string) query.TableBuilder {
	return &tableBuilder{src: s, table: table}
}

func (t *tableBuilder) Select(columns string) query.Builder {
	return &builder{src: t.src, table: t.table, columns: parseColumns(columns)}
}

// parseColumns reads "a, b, alias:c"; "*" (or nothing) selects whole records.
func parseColumns(columns string) []column {
	var cols []column
	for _, c := range strings.Split(columns, ",") {
		c = strings.TrimSpace(c)
		switch {
		case c == query.DefaultColumns:
			return nil
		case c == "":
			continue
		}
		col := column{alias: c, path: c}
		if i := strings.Index(c, ":"); i > 0 {
			col = column{alias: c[:i], path: c[i+1:]}
		}
		cols = append(cols, col)
	}
	return cols
}

func (b *builder) where(column string, pred func(field, value gjson.Result) bool, value interface{}) query.Builder {
	val := toJSON(value)
	b.preds = append(b.preds, func(row gjson.Result) bool {
		return pred(row.Get(column), val)
	})
	return b
}

func (b *builder) Eq(column string, value interface{}) query.Builder {
	return b.where(column, equal, value)
}

func (b *builder) Neq(column string, value interface{}) query.Builder {
	return b.where(column, func(f, v gjson.Result) bool { return present(f) && !equal(f, v) }, value)
}

func (b *builder) Gt(column string, value interface{}) query.Builder {
	return b.where(column, func(f, v gjson.Result) bool { c, ok := compare(f, v); return ok && c > 0 }, value)
}

func (b *builder) Lt(column string, value interface{}) query.Builder {
	return b.where(column, func(f, v gjson.Result) bool { c, ok := compare(f, v); return ok && c < 0 }, value)
}

func (b *builder) Gte(column string, value interface{}) query.Builder {
	return b.where(column, func(f, v gjson.Result) bool { c, ok := compare(f, v); return ok && c >= 0 }, value)
}

func (b *builder) Lte(column string, value interface{}) query.Builder {
	return b.where(column, func(f, v gjson.Result) bool { c, ok := compare(f, v); return ok && c <= 0 }, value)
}

func (b *builder) In(column string, values []interface{}) query.Builder {
	return b.where(column, func(f, v gjson.Result) bool {
		for _, candidate := range v.Array() {
			if equal(f, candidate) {
				return true
			}
		}
		return false
	}, values)
}

// Contains matches arrays holding every element of value, objects holding every field of value,
// and strings holding value as a substring.
func (b *builder) Contains(column string, value interface{}) query.Builder {
	return b.where(column, contains, value)
}

func (b *builder) Order(column string, ascending bool) query.Builder {
	b.order = &query.Order{Column: column, Ascending: ascending}
	return b
}

func (b *builder) Limit(n int) query.Builder {
	b.limit = n
	return b
}

// Execute returns the matching records as a JSON array.
func (b *builder) Execute(ctx context.Context) ([]byte, error) {
	rows, err := b.rows(ctx)
	if err != nil {
		return nil, err
	}
	return []byte("[" + strings.Join(rows, ",") + "]"), nil
}

// Single returns the one matching record, or ErrNotSingle.
func (b *builder) Single(ctx context.Context) ([]byte, error) {
	rows, err := b.rows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, ErrNotSingle
	}
	return []byte(rows[0]), nil
}

func (b *builder) rows(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := b.src.store.Collection(b.table)
	rows := make([]gjson.Result, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, errors.Wrap(err, "encoding record")
		}
		row := gjson.ParseBytes(data)
		if b.matches(row) {
			rows = append(rows, row)
		}
	}

	if b.order != nil {
		col, asc := b.order.Column, b.order.Ascending
		sort.SliceStable(rows, func(i, j int) bool {
			return less(rows[i].Get(col), rows[j].Get(col), asc)
		})
	}
	if b.limit > 0 && len(rows) > b.limit {
		rows = rows[:b.limit]
	}

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		projected, err := b.project(row)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}

func (b *builder) matches(row gjson.Result) bool {
	for _, pred := range b.preds {
		if !pred(row) {
			return false
		}
	}
	return true
}

func (b *builder) project(row gjson.Result) (string, error) {
	if b.columns == nil {
		return row.Raw, nil
	}
	out := "{}"
	for _, col := range b.columns {
		field := row.Get(col.path)
		if !field.Exists() {
			continue
		}
		var err error
		if out, err = sjson.SetRaw(out, escapePath(col.alias), field.Raw); err != nil {
			return "", errors.Wrap(err, "selecting "+col.alias)
		}
	}
	return out, nil
}

// escapePath keeps a column alias as one key in an sjson path.
func escapePath(alias string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(alias)
}

func toJSON(v interface{}) gjson.Result {
	data, err := json.Marshal(v)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(data)
}

func present(f gjson.Result) bool {
	return f.Exists() && f.Type != gjson.Null
}

func equal(f, v gjson.Result) bool {
	if v.Type == gjson.Null {
		return !present(f)
	}
	c, ok := compare(f, v)
	return ok && c == 0
}

// compare orders two scalars. Numbers compare with numeric strings; ok is false for mismatched types.
func compare(a, b gjson.Result) (int, bool) {
	if !present(a) || !present(b) {
		return 0, false
	}
	switch {
	case isNumeric(a) && isNumeric(b) && (a.Type == gjson.Number || b.Type == gjson.Number):
		x, y := a.Float(), b.Float()
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case a.Type == gjson.String && b.Type == gjson.String:
		return strings.Compare(a.Str, b.Str), true
	case isBool(a) && isBool(b):
		x, y := a.Bool(), b.Bool()
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case a.IsArray() || a.IsObject() || b.IsArray() || b.IsObject():
		if a.Raw == b.Raw {
			return 0, true
		}
	}
	return 0, false
}

func isNumeric(r gjson.Result) bool {
	if r.Type == gjson.Number {
		return true
	}
	if r.Type != gjson.String || r.Str == "" {
		return false
	}
	return gjson.Parse(r.Str).Type == gjson.Number
}

func isBool(r gjson.Result) bool {
	return r.Type == gjson.True || r.Type == gjson.False
}

func contains(f, v gjson.Result) bool {
	switch {
	case !present(f):
		return false
	case f.IsArray():
		have := f.Array()
		want := v.Array()
		if !v.IsArray() {
			want = []gjson.Result{v}
		}
		for _, w := range want {
			found := false
			for _, h := range have {
				if equal(h, w) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case f.IsObject() && v.IsObject():
		ok := true
		v.ForEach(func(key, val gjson.Result) bool {
			sub := f.Get(escapePath(key.String()))
			if val.IsObject() || val.IsArray() {
				ok = contains(sub, val)
			} else {
				ok = equal(sub, val)
			}
			return ok
		})
		return ok
	case f.Type == gjson.String && v.Type == gjson.String:
		return strings.Contains(f.Str, v.Str)
	}
	return equal(f, v)
}

// less orders missing values last when ascending and first when descending, as postgres does.
func less(a, b gjson.Result, ascending bool) bool {
	pa, pb := present(a), present(b)
	if !pa || !pb {
		if pa == pb {
			return false
		}
		return pa == ascending
	}
	c, ok := compare(a, b)
	if !ok {
		c = strings.Compare(a.String(), b.String())
	}
	if ascending {
		return c < 0
	}
	return c > 0
}
