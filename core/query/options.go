// Package query translates declarative query options into builder calls against a tabular data source
// and tracks the lifecycle of the resulting fetches.
package query

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/collegium/core"
)

// DefaultColumns selects every column.
const DefaultColumns = "*"

// Operator is a filter comparison.
type Operator string

// Operators
const (
	Eq       Operator = "eq"
	Neq      Operator = "neq"
	Gt       Operator = "gt"
	Lt       Operator = "lt"
	Gte      Operator = "gte"
	Lte      Operator = "lte"
	In       Operator = "in"
	Contains Operator = "contains"
)

var AllOperators = []Operator{Eq, Neq, Gt, Lt, Gte, Lte, In, Contains}

// Known reports whether op is one of AllOperators.
func (op Operator) Known() bool {
	for _, known := range AllOperators {
		if op == known {
			return true
		}
	}
	return false
}

type (
	Filter struct {
		Column   string      `json:"column" validate:"required"`
		Operator Operator    `json:"operator"`
		Value    interface{} `json:"value"`
	}

	Order struct {
		Column    string `json:"column" validate:"required"`
		Ascending bool   `json:"ascending"`
	}

	// Options describes one query. The zero Limit means no limit; a nil Enabled means enabled.
	Options struct {
		Table   string   `json:"table" validate:"required"`
		Columns string   `json:"columns,omitempty"`
		Filters []Filter `json:"filters,omitempty" validate:"omitempty,dive"`
		OrderBy *Order   `json:"orderBy,omitempty"`
		Limit   int      `json:"limit,omitempty" validate:"gte=0"`
		Single  bool     `json:"single,omitempty"`
		Enabled *bool    `json:"enabled,omitempty"`
	}
)

func (o Options) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

func (o Options) columns() string {
	if o.Columns == "" {
		return DefaultColumns
	}
	return o.Columns
}

// Validate cleans and validates the options.
func (o *Options) Validate(validate *validator.Validate) error {
	o.Table = core.CleanString(o.Table)
	o.Columns = core.CleanString(o.Columns)
	if o.Columns == "" {
		o.Columns = DefaultColumns
	}
	return validate.Struct(o)
}

// Equal compares every field shallowly, except Filters which are compared by their JSON encoding.
func (o Options) Equal(other Options) bool {
	if o.Table != other.Table || o.columns() != other.columns() ||
		o.Limit != other.Limit || o.Single != other.Single || o.IsEnabled() != other.IsEnabled() {
		return false
	}
	if (o.OrderBy == nil) != (other.OrderBy == nil) {
		return false
	}
	if o.OrderBy != nil && *o.OrderBy != *other.OrderBy {
		return false
	}
	f1, err1 := json.Marshal(o.Filters)
	f2, err2 := json.Marshal(other.Filters)
	return err1 == nil && err2 == nil && string(f1) == string(f2)
}

type (
	// Source is a tabular data source.
	Source interface {
		From(table string) TableBuilder
	}

	TableBuilder interface {
		Select(columns string) Builder
	}

	// Builder accumulates filters, ordering and limit, then runs the query.
	// Execute returns a JSON array of rows; Single returns one JSON object and fails unless exactly one row matches.
	Builder interface {
		Eq(column string, value interface{}) Builder
		Neq(column string, value interface{}) Builder
		Gt(column string, value interface{}) Builder
		Lt(column string, value interface{}) Builder
		Gte(column string, value interface{}) Builder
		Lte(column string, value interface{}) Builder
		In(column string, values []interface{}) Builder
		Contains(column string, value interface{}) Builder
		Order(column string, ascending bool) Builder
		Limit(n int) Builder

		Execute(ctx context.Context) ([]byte, error)
		Single(ctx context.Context) ([]byte, error)
	}
)

// Build applies the options to src: table, columns, each filter in order, ordering, then limit.
// Filters with an unknown operator are skipped.
func Build(src Source, opts Options) Builder {
	b := src.From(opts.Table).Select(opts.columns())
	for _, f := range opts.Filters {
		switch f.Operator {
		case Eq:
			b = b.Eq(f.Column, f.Value)
		case Neq:
			b = b.Neq(f.Column, f.Value)
		case Gt:
			b = b.Gt(f.Column, f.Value)
		case Lt:
			b = b.Lt(f.Column, f.Value)
		case Gte:
			b = b.Gte(f.Column, f.Value)
		case Lte:
			b = b.Lte(f.Column, f.Value)
		case In:
			b = b.In(f.Column, ToSlice(f.Value))
		case Contains:
			b = b.Contains(f.Column, f.Value)
		}
	}
	if opts.OrderBy != nil {
		b = b.Order(opts.OrderBy.Column, opts.OrderBy.Ascending)
	}
	if opts.Limit > 0 {
		b = b.Limit(opts.Limit)
	}
	return b
}

// ToSlice returns the elements of v if it is a slice or an array, or v itself as a one-element slice.
func ToSlice(v interface{}) []interface{} {
	if v == nil {
		return nil
	}
	if vals, ok := v.([]interface{}); ok {
		return vals
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{v}
	}
	vals := make([]interface{}, rv.Len())
	for i := range vals {
		vals[i] = rv.Index(i).Interface()
	}
	return vals
}
