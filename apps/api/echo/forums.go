package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core/forum"
)

type forumApi struct {
	svc *forum.Service
}

func registerForumAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *forum.Service) {
	api := forumApi{svc: svc}

	fg := g.Group("/forums", jwt)
	fg.GET("", api.query)
	fg.POST("", api.create)
	fg.GET("/categories", api.categories)

	tg := fg.Group("/:id")
	tg.GET("", api.retrieve)
	tg.DELETE("", api.destroy)
	tg.GET("/comments", api.comments)
	tg.POST("/comments", api.comment)
	tg.POST("/comments/:commentId/likes", api.like)
}

// Handlers

func (api *forumApi) query(ctx echo.Context) error {
	filter := new(forum.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	return ctx.JSON(http.StatusOK, api.svc.Query(*filter))
}

// create starts a topic on behalf of the signed in user.
func (api *forumApi) create(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data forum.NewTopic
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTopic")
	}
	data.CreatedBy = usrID

	topic, err := api.svc.CreateTopic(data)
	if err != nil {
		return errors.Wrap(err, "creating topic")
	}
	return ctx.JSON(http.StatusCreated, topic)
}

func (api *forumApi) categories(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, forum.Categories)
}

// retrieve returns a topic and counts the view.
func (api *forumApi) retrieve(ctx echo.Context) error {
	topic, err := api.svc.View(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "viewing topic")
	}
	return ctx.JSON(http.StatusOK, topic)
}

// destroy deletes a topic and its comments; only its author may.
func (api *forumApi) destroy(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	topic, err := api.svc.Get(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting topic")
	}
	if topic.CreatedBy != usrID {
		return errHttpForbidden
	}
	if err = api.svc.DeleteTopic(topic.ID); err != nil {
		return errors.Wrap(err, "deleting topic")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *forumApi) comments(ctx echo.Context) error {
	cmts, err := api.svc.Comments(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing comments")
	}
	return ctx.JSON(http.StatusOK, cmts)
}

func (api *forumApi) comment(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data forum.NewComment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	data.TopicID = ctx.Param("id")
	data.CreatedBy = usrID

	cmt, err := api.svc.AddComment(data)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, cmt)
}

func (api *forumApi) like(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	cmt, err := api.svc.LikeComment(ctx.Param("id"), ctx.Param("commentId"), usrID)
	if err != nil {
		return errors.Wrap(err, "liking comment")
	}
	return ctx.JSON(http.StatusOK, cmt)
}
