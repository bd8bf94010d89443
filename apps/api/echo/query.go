package echoapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/core/query"
	"github.com/trezcool/collegium/services/supabase"
)

// Query sources
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

type queryApi struct {
	remote   query.Source
	local    query.Source
	validate *validator.Validate
	options  []query.Option
}

func registerQueryAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	remote, local query.Source,
	validate *validator.Validate,
	logger core.Logger,
	obs query.Observer,
) {
	api := queryApi{remote: remote, local: local, validate: validate}
	if logger != nil {
		api.options = append(api.options, query.WithLogger(logger))
	}
	if obs != nil {
		api.options = append(api.options, query.WithObserver(obs))
	}
	g.POST("/query", api.run, jwt)
}

// Handlers

// run runs query options once against the remote backend (default) or the local collections (`?source=local`).
// Remote queries run as the caller: its access token is forwarded, so row level security applies.
// Local collections have no row level security and are reserved to service role tokens.
// Disabled options run nothing.
func (api *queryApi) run(ctx echo.Context) error {
	var opts query.Options
	if err := bindJSON(ctx, &opts); err != nil {
		return err
	}
	if err := opts.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	var src query.Source
	switch ctx.QueryParam("source") {
	case "", SourceRemote:
		if api.remote == nil {
			return errNoRemote
		}
		src = api.remote
		reqCtx = supabase.WithBearer(reqCtx, contextBearer(ctx))
	case SourceLocal:
		if !claims.IsAdmin() {
			return errHttpForbidden
		}
		if api.local == nil {
			return errNoLocal
		}
		src = api.local
	default:
		return core.NewValidationError(nil, core.FieldError{Field: "source", Error: "must be one of remote, local"})
	}
	if !opts.IsEnabled() {
		return ctx.NoContent(http.StatusNoContent)
	}

	q := query.New[json.RawMessage](src, opts, api.options...)
	defer q.Close()
	data, err := q.Refetch(reqCtx)
	if err != nil {
		return errors.Wrap(err, "running query")
	}
	return ctx.JSONBlob(http.StatusOK, *data)
}
