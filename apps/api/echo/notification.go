package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
)

type notificationApi struct {
	svc    notification.Service
	usrSvc user.Service
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc notification.Service, usrSvc user.Service) {
	api := notificationApi{svc: svc, usrSvc: usrSvc}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.query)
	ng.PATCH("/:id/read", api.markRead)
	ng.POST("/create", api.broadcast, roleMiddleware(user.RoleTeacher, "only teachers can send notifications"))
}

func (api *notificationApi) query(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	views, err := api.svc.QueryForRecipient(ctx.Request().Context(), caller)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if views == nil {
		views = []notification.View{}
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkRead(ctx.Request().Context(), caller, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	return ctx.JSON(http.StatusOK, NotificationResponse{Message: "Notification marked as read", Notification: n})
}

func (api *notificationApi) broadcast(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	var data notification.NewNotification
	if err := bind(ctx, &data); err != nil {
		return err
	}

	ns, err := api.svc.Broadcast(ctx.Request().Context(), caller, data)
	if err != nil {
		return errors.Wrap(err, "broadcasting notification")
	}
	return ctx.JSON(http.StatusCreated, NotificationListResponse{Message: "Notifications created successfully", Notifications: ns})
}
