package pgkv

import (
	"database/sql/driver"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/collegium/core"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "collegium_", want: `collegium\_`},
		{in: "100%", want: `100\%`},
		{in: `a\b`, want: `a\\b`},
		{in: "plain", want: "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLike(tt.in))
		})
	}
}

func TestDB_check(t *testing.T) {
	db := New(nil, 0)
	tests := []struct {
		name         string
		err          error
		wantShutdown bool
	}{
		{name: "nil"},
		{name: "query error", err: errors.New("syntax error")},
		{name: "bad connection", err: driver.ErrBadConn, wantShutdown: true},
		{name: "wrapped bad connection", err: errors.Wrap(driver.ErrBadConn, "pq"), wantShutdown: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.check(tt.err, "reading")
			assert.Equal(t, tt.err != nil, err != nil)
			assert.Equal(t, tt.wantShutdown, core.IsShutdown(err))
		})
	}
}

func TestDB_ClosedIsShutdown(t *testing.T) {
	// sqlx.Open does not connect
	sdb, err := sqlx.Open("postgres", "host=localhost dbname=collegium sslmode=disable")
	require.NoError(t, err)
	db := New(sdb, 0)
	require.NoError(t, db.Close())

	_, err = db.Get("collegium_events")
	assert.True(t, core.IsShutdown(err), "got %v", err)
	assert.True(t, core.IsShutdown(db.Set("collegium_events", "[]")))
}
