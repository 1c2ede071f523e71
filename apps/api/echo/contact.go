package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core/contact"
)

func registerContactAPI(g *echo.Group, svc contact.Service) {
	g.POST("/contact", func(ctx echo.Context) error {
		var form contact.Form
		if err := bind(ctx, &form); err != nil {
			return err
		}
		if err := svc.Submit(ctx.Request().Context(), form); err != nil {
			return errors.Wrap(err, "submitting contact form")
		}
		return ctx.JSON(http.StatusOK, StatusResponse{Success: true, Message: "Email sent"})
	})
}
