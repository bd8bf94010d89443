package echoapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/core/query"
)

const headerRevision = "X-Collection-Revision"

type collectionApi struct {
	store *localstore.Store
	local query.Source
}

func registerCollectionAPI(g *echo.Group, jwt echo.MiddlewareFunc, store *localstore.Store, local query.Source, validate *validator.Validate) {
	api := collectionApi{store: store, local: local}

	// raw records bypass the ownership checks of the feature routes
	cg := g.Group("/collections", jwt, adminMiddleware())
	cg.GET("", api.list)

	ng := cg.Group("/:name", collectionMiddleware(validate))
	ng.GET("", api.retrieve)
	ng.PUT("", api.replace)
	ng.DELETE("", api.clear)
	ng.POST("/records", api.addRecord)
	ng.GET("/records/:id", api.retrieveRecord)
	ng.PATCH("/records/:id", api.updateRecord)
	ng.DELETE("/records/:id", api.destroyRecord)
}

func formatRevision(rev localstore.Revision) string {
	return strconv.FormatUint(uint64(rev), 16)
}

// Handlers

func (api *collectionApi) list(ctx echo.Context) error {
	names, err := api.store.Collections()
	if err != nil {
		return errors.Wrap(err, "listing collections")
	}
	return ctx.JSON(http.StatusOK, names)
}

// retrieve returns the records of a collection, optionally ordered and limited.
func (api *collectionApi) retrieve(ctx echo.Context) error {
	name := ctx.Param("name")
	listing := new(Listing)
	if err := listing.Bind(ctx); err != nil {
		return err
	}

	rev, err := api.store.Revision(name)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("reading %s", name))
	}
	data, err := query.Build(api.local, query.Options{Table: name, OrderBy: listing.Order, Limit: listing.Limit}).
		Execute(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("listing %s", name))
	}
	ctx.Response().Header().Set(headerRevision, formatRevision(rev))
	return ctx.JSONBlob(http.StatusOK, data)
}

// replace overwrites a collection. With an X-Collection-Revision header, the write only happens
// if the collection is still at that revision.
func (api *collectionApi) replace(ctx echo.Context) error {
	name := ctx.Param("name")
	var records []localstore.Record
	if err := bindJSON(ctx, &records); err != nil {
		return err
	}
	for _, rec := range records {
		if rec.ID() == "" {
			return localstore.ErrInvalidRecord
		}
	}

	if val := strings.TrimSpace(ctx.Request().Header.Get(headerRevision)); val != "" {
		rev, err := strconv.ParseUint(val, 16, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid revision")
		}
		if err = api.store.SaveCollectionIf(name, records, localstore.Revision(rev)); err != nil {
			return errors.Wrap(err, fmt.Sprintf("saving %s", name))
		}
	} else if err := api.store.SaveCollection(name, records); err != nil {
		return errors.Wrap(err, fmt.Sprintf("saving %s", name))
	}

	rev, err := api.store.Revision(name)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("reading %s", name))
	}
	ctx.Response().Header().Set(headerRevision, formatRevision(rev))
	return ctx.NoContent(http.StatusNoContent)
}

func (api *collectionApi) clear(ctx echo.Context) error {
	if err := api.store.Clear(ctx.Param("name")); err != nil {
		return errors.Wrap(err, "clearing collection")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// addRecord appends a record to a collection, giving it a new id if it has none.
func (api *collectionApi) addRecord(ctx echo.Context) error {
	var rec localstore.Record
	if err := bindJSON(ctx, &rec); err != nil {
		return err
	}
	if rec == nil {
		rec = make(localstore.Record)
	}
	if _, ok := rec[localstore.IDField]; !ok {
		rec[localstore.IDField] = api.store.NewID()
	}
	rec, err := api.store.Add(ctx.Param("name"), rec)
	if err != nil {
		return errors.Wrap(err, "adding record")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *collectionApi) retrieveRecord(ctx echo.Context) error {
	rec, err := api.store.Get(ctx.Param("name"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *collectionApi) updateRecord(ctx echo.Context) error {
	var partial localstore.Record
	if err := bindJSON(ctx, &partial); err != nil {
		return err
	}
	rec, err := api.store.Update(ctx.Param("name"), ctx.Param("id"), partial)
	if err != nil {
		return errors.Wrap(err, "updating record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *collectionApi) destroyRecord(ctx echo.Context) error {
	removed, err := api.store.Delete(ctx.Param("name"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting record")
	}
	if !removed {
		return errHttpNotFound
	}
	return ctx.NoContent(http.StatusNoContent)
}
