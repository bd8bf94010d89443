package echoapi

import (
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/collegium/core/localstore"
)

func Test_sentinelStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOk   bool
	}{
		{name: "Sentinel", err: localstore.ErrConflict, wantCode: http.StatusConflict, wantOk: true},
		{name: "Validation errors", err: validator.ValidationErrors{}},
		{name: "Other", err: errors.New("boom")},
		{name: "Nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := sentinelStatus(tt.err)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
