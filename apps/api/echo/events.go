package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core/event"
)

type eventApi struct {
	svc *event.Service
}

func registerEventAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *event.Service) {
	api := eventApi{svc: svc}

	eg := g.Group("/events", jwt)
	eg.GET("", api.query)
	eg.POST("", api.create)
	eg.GET("/categories", api.categories)

	dg := eg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy)
	dg.GET("/participants", api.participants)
	dg.POST("/participants", api.join)
	dg.DELETE("/participants", api.leave)
}

// Handlers

func (api *eventApi) query(ctx echo.Context) error {
	filter := new(event.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	return ctx.JSON(http.StatusOK, api.svc.Query(*filter))
}

// create creates an event organized by the signed in user.
func (api *eventApi) create(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data event.NewEvent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	data.Organizer = usrID

	evt, err := api.svc.Create(data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, evt)
}

func (api *eventApi) categories(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, event.Categories)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	evt, err := api.svc.Get(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting event")
	}
	return ctx.JSON(http.StatusOK, evt)
}

// destroy deletes an event; only its organizer may.
func (api *eventApi) destroy(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	evt, err := api.svc.Get(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting event")
	}
	if evt.Organizer != usrID {
		return errHttpForbidden
	}
	if err = api.svc.Delete(evt.ID); err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *eventApi) participants(ctx echo.Context) error {
	parts, err := api.svc.Participants(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing participants")
	}
	return ctx.JSON(http.StatusOK, parts)
}

func (api *eventApi) join(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	part, err := api.svc.Join(ctx.Param("id"), usrID)
	if err != nil {
		return errors.Wrap(err, "joining event")
	}
	return ctx.JSON(http.StatusCreated, part)
}

func (api *eventApi) leave(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Leave(ctx.Param("id"), usrID); err != nil {
		return errors.Wrap(err, "leaving event")
	}
	return ctx.NoContent(http.StatusNoContent)
}
