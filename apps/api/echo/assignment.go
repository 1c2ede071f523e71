package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core/assignment"
	"github.com/codeedu/lms/core/user"
)

type assignmentApi struct {
	svc    assignment.Service
	usrSvc user.Service
}

func registerAssignmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc assignment.Service, usrSvc user.Service) {
	api := assignmentApi{svc: svc, usrSvc: usrSvc}

	ag := g.Group("/assignments", jwt)
	ag.GET("/student", api.queryForStudent)
	ag.GET("/teacher", api.queryForTeacher)
	ag.POST("/create", api.create)
	ag.PATCH("/:id/submit", api.submit)
	// students get 403 before the body is validated or the assignment looked up
	ag.PATCH("/:id/grade", api.grade, roleMiddleware(user.RoleTeacher, "only teachers can evaluate"))
	ag.PATCH("/:id", api.update, roleMiddleware(user.RoleTeacher, "only teachers can edit assignments"))
	ag.DELETE("/:id", api.destroy, roleMiddleware(user.RoleTeacher, "only teachers can delete assignments"))
}

func (api *assignmentApi) queryForStudent(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	views, err := api.svc.QueryForStudent(ctx.Request().Context(), caller)
	if err != nil {
		return errors.Wrap(err, "querying student assignments")
	}
	if views == nil {
		views = []assignment.StudentView{}
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *assignmentApi) queryForTeacher(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	asgs, err := api.svc.QueryForTeacher(ctx.Request().Context(), caller)
	if err != nil {
		return errors.Wrap(err, "querying teacher assignments")
	}
	if asgs == nil {
		asgs = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, asgs)
}

func (api *assignmentApi) create(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	var data assignment.NewAssignment
	if err := bind(ctx, &data); err != nil {
		return err
	}

	asg, err := api.svc.Create(ctx.Request().Context(), caller, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, AssignmentResponse{Message: "Task created successfully", Assignment: asg})
}

func (api *assignmentApi) submit(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	var data assignment.Submission
	if err := bind(ctx, &data); err != nil {
		return err
	}

	asg, err := api.svc.Submit(ctx.Request().Context(), caller, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusOK, AssignmentResponse{Message: "Task sent successfully.", Assignment: asg})
}

func (api *assignmentApi) grade(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	var data assignment.Evaluation
	if err := bind(ctx, &data); err != nil {
		return err
	}

	asg, err := api.svc.Grade(ctx.Request().Context(), caller, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading assignment")
	}
	return ctx.JSON(http.StatusOK, AssignmentResponse{Message: "Assignment graded", Assignment: asg})
}

func (api *assignmentApi) update(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	var data assignment.UpdateAssignment
	if err := bind(ctx, &data); err != nil {
		return err
	}

	asg, err := api.svc.Update(ctx.Request().Context(), caller, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.JSON(http.StatusOK, AssignmentResponse{Message: "Task successfully updated", Assignment: asg})
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	caller, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), caller, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Task successfully deleted."})
}
