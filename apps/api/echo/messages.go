package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core/message"
)

type messageApi struct {
	svc *message.Service
}

func registerMessageAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *message.Service) {
	api := messageApi{svc: svc}

	g.GET("/conversations", api.conversations, jwt)

	mg := g.Group("/messages", jwt)
	mg.POST("", api.send)
	mg.GET("/unread", api.unread)
	mg.GET("/:userId", api.thread)
}

// Handlers

// send sends a message from the signed in user.
func (api *messageApi) send(ctx echo.Context) error {
	sender, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data message.NewMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	data.SenderID = sender

	msg, err := api.svc.Send(data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

// thread returns the messages between the signed in user and another user, marking theirs as read.
func (api *messageApi) thread(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	msgs, err := api.svc.Thread(usrID, ctx.Param("userId"))
	if err != nil {
		return errors.Wrap(err, "reading thread")
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messageApi) unread(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, UnreadResponse{Count: api.svc.Unread(usrID)})
}

func (api *messageApi) conversations(ctx echo.Context) error {
	usrID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.svc.Conversations(usrID))
}

type UnreadResponse struct {
	Count int `json:"count"`
}
