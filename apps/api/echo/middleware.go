package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/codeedu/lms/core"
)

// roleMiddleware refuses tokens of any other role with deniedMsg.
func roleMiddleware(role, deniedMsg string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.Role != role {
				return core.NewForbiddenError(deniedMsg)
			}
			return next(ctx)
		}
	}
}
