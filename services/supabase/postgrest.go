package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sendgrid/rest"

	"github.com/trezcool/collegium/core/query"
)

var _ query.Source = (*Client)(nil) // interface compliance check

var reservedInValue = regexp.MustCompile(`[,()]`)

type (
	tableBuilder struct {
		c     *Client
		table string
	}

	builder struct {
		c      *Client
		table  string
		params url.Values
	}
)

// From starts a PostgREST query on table.
func (c *Client) From(table string) query.TableBuilder {
	return &tableBuilder{c: c, table: table}
}

func (t *tableBuilder) Select(columns string) query.Builder {
	params := make(url.Values)
	params.Set("select", cleanColumns(columns))
	return &builder{c: t.c, table: t.table, params: params}
}

func (b *builder) filter(column, op, value string) query.Builder {
	b.params.Add(column, op+"."+value)
	return b
}

func (b *builder) Eq(column string, value interface{}) query.Builder {
	return b.filter(column, "eq", formatValue(value))
}

func (b *builder) Neq(column string, value interface{}) query.Builder {
	return b.filter(column, "neq", formatValue(value))
}

func (b *builder) Gt(column string, value interface{}) query.Builder {
	return b.filter(column, "gt", formatValue(value))
}

func (b *builder) Lt(column string, value interface{}) query.Builder {
	return b.filter(column, "lt", formatValue(value))
}

func (b *builder) Gte(column string, value interface{}) query.Builder {
	return b.filter(column, "gte", formatValue(value))
}

func (b *builder) Lte(column string, value interface{}) query.Builder {
	return b.filter(column, "lte", formatValue(value))
}

// In matches any of values: col=in.(a,b). Values holding , ( or ) are double-quoted.
func (b *builder) In(column string, values []interface{}) query.Builder {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		s := formatValue(v)
		if _, ok := v.(string); ok && reservedInValue.MatchString(s) {
			s = `"` + s + `"`
		}
		parts = append(parts, s)
	}
	return b.filter(column, "in", "("+strings.Join(parts, ",")+")")
}

// Contains matches arrays, ranges or jsonb containing value:
// a string is sent as is, a slice as an array literal {a,b} and anything else as JSON.
func (b *builder) Contains(column string, value interface{}) query.Builder {
	if s, ok := value.(string); ok {
		return b.filter(column, "cs", s)
	}
	if isList(value) {
		vals := query.ToSlice(value)
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			parts = append(parts, formatValue(v))
		}
		return b.filter(column, "cs", "{"+strings.Join(parts, ",")+"}")
	}
	return b.filter(column, "cs", formatValue(value))
}

func (b *builder) Order(column string, ascending bool) query.Builder {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	b.params.Set("order", column+"."+dir)
	return b
}

func (b *builder) Limit(n int) query.Builder {
	b.params.Set("limit", strconv.Itoa(n))
	return b
}

// Execute returns the matching rows as a JSON array.
func (b *builder) Execute(ctx context.Context) ([]byte, error) {
	return b.c.send(ctx, rest.Get, restPath+b.table, b.params, b.c.headers(mimeJSON, bearerFrom(ctx)), nil)
}

// Single returns the one matching row as a JSON object.
// Zero or many matching rows fail with an *APIError of code CodeNotSingle.
func (b *builder) Single(ctx context.Context) ([]byte, error) {
	return b.c.send(ctx, rest.Get, restPath+b.table, b.params, b.c.headers(mimeObject, bearerFrom(ctx)), nil)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func isList(v interface{}) bool {
	if v == nil {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

// cleanColumns strips the whitespace outside of double-quoted identifiers.
func cleanColumns(columns string) string {
	if columns == "" {
		return query.DefaultColumns
	}
	var sb strings.Builder
	quoted := false
	for _, r := range columns {
		switch {
		case r == '"':
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
