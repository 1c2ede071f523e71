package echoapi

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core/assignment"
	"github.com/codeedu/lms/core/group"
	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
)

// bind decodes the request into i, keeping echo's 400 for malformed bodies.
func bind(ctx echo.Context, i interface{}) error {
	if err := ctx.Bind(i); err != nil {
		return errors.Wrap(err, fmt.Sprintf("binding to %T", i))
	}
	return nil
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Message string     `json:"message,omitempty"`
		Token   string     `json:"token"`
		User    *user.User `json:"user,omitempty"`
	}

	RegisterResponse struct {
		Message string    `json:"message"`
		User    user.User `json:"user"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	CourseQuery struct {
		Course string `query:"course"`
	}

	GroupResponse struct {
		Success bool        `json:"success"`
		Message string      `json:"message"`
		Group   group.Group `json:"group"`
	}

	GroupListResponse struct {
		Success bool          `json:"success"`
		Groups  []group.Group `json:"groups"`
		Count   int           `json:"count"`
	}

	AssignmentResponse struct {
		Message    string                `json:"message"`
		Assignment assignment.Assignment `json:"assignment"`
	}

	NotificationResponse struct {
		Message      string                    `json:"message"`
		Notification notification.Notification `json:"notification"`
	}

	NotificationListResponse struct {
		Message       string                      `json:"message"`
		Notifications []notification.Notification `json:"notifications"`
	}

	StatusResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
)
