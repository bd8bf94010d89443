package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/core/query"
)

var (
	orderingParam = "ordering"
	limitParam    = "limit"
)

// Listing holds the ordering (`?ordering=-date`) and limit (`?limit=10`) of a listing.
type Listing struct {
	Order *query.Order
	Limit int
}

func (l *Listing) Bind(ctx echo.Context) error {
	if field := strings.TrimSpace(ctx.QueryParam(orderingParam)); field != "" {
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		l.Order = &query.Order{Column: field, Ascending: !descending}
	}
	if val := ctx.QueryParam(limitParam); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			return core.NewValidationError(nil, core.FieldError{Field: limitParam, Error: "must be a positive integer"})
		}
		l.Limit = limit
	}
	return nil
}

// bindJSON decodes the JSON body of the request into v.
// ctx.Bind copies path params into maps, so free-form records are decoded with it instead.
func bindJSON(ctx echo.Context, v interface{}) error {
	if !strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return echo.ErrUnsupportedMediaType
	}
	if err := json.NewDecoder(ctx.Request().Body).Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err)).SetInternal(err)
	}
	return nil
}
