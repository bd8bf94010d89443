package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core/resource"
)

const defaultPopular = 5

type resourceApi struct {
	svc *resource.Service
}

func registerResourceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *resource.Service) {
	api := resourceApi{svc: svc}

	rg := g.Group("/resources", jwt)
	rg.GET("", api.query)
	rg.POST("", api.create)
	rg.GET("/popular", api.popular)
	rg.GET("/categories", api.categories)

	dg := rg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy)
	dg.POST("/downloads", api.download)
	dg.PUT("/rating", api.rate)
}

// Handlers

func (api *resourceApi) query(ctx echo.Context) error {
	filter := new(resource.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	return ctx.JSON(http.StatusOK, api.svc.Query(*filter))
}

// create shares a resource uploaded by the signed in user.
func (api *resourceApi) create(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data resource.NewResource
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResource")
	}
	data.UploadedBy = usrID

	res, err := api.svc.Add(data)
	if err != nil {
		return errors.Wrap(err, "adding resource")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *resourceApi) popular(ctx echo.Context) error {
	listing := &Listing{Limit: defaultPopular}
	if err := listing.Bind(ctx); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.svc.Popular(listing.Limit))
}

func (api *resourceApi) categories(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, resource.Categories)
}

func (api *resourceApi) retrieve(ctx echo.Context) error {
	res, err := api.svc.Get(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting resource")
	}
	return ctx.JSON(http.StatusOK, res)
}

// destroy deletes a resource; only its uploader may.
func (api *resourceApi) destroy(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Get(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting resource")
	}
	if res.UploadedBy != usrID {
		return errHttpForbidden
	}
	if err = api.svc.Delete(res.ID); err != nil {
		return errors.Wrap(err, "deleting resource")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *resourceApi) download(ctx echo.Context) error {
	res, err := api.svc.RecordDownload(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "recording download")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resourceApi) rate(ctx echo.Context) error {
	var data resource.Rating
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Rating")
	}
	res, err := api.svc.Rate(ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rating resource")
	}
	return ctx.JSON(http.StatusOK, res)
}
