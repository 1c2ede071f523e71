package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core/group"
	"github.com/codeedu/lms/core/user"
)

type groupApi struct {
	svc group.Service
}

func registerGroupAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc group.Service) {
	api := groupApi{svc: svc}
	teacherOnly := roleMiddleware(user.RoleTeacher, "only teachers can manage groups")

	gg := g.Group("/groups")

	// public: the registration form lists the groups of a course
	gg.GET("", api.query)
	gg.GET("/by-course", api.queryByCourse)

	gg.POST("/create", api.create, jwt, teacherOnly)
	gg.PUT("/:id", api.update, jwt, teacherOnly)
	gg.DELETE("/:id", api.destroy, jwt, teacherOnly)
}

func groupList(grps []group.Group) GroupListResponse {
	if grps == nil {
		grps = []group.Group{}
	}
	return GroupListResponse{Success: true, Groups: grps, Count: len(grps)}
}

func (api *groupApi) create(ctx echo.Context) error {
	var data group.NewGroup
	if err := bind(ctx, &data); err != nil {
		return err
	}
	grp, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, GroupResponse{Success: true, Message: "Group created successfully", Group: grp})
}

func (api *groupApi) query(ctx echo.Context) error {
	grps, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, groupList(grps))
}

func (api *groupApi) queryByCourse(ctx echo.Context) error {
	var q CourseQuery
	if err := bind(ctx, &q); err != nil {
		return err
	}
	grps, err := api.svc.QueryByCourse(ctx.Request().Context(), q.Course)
	if err != nil {
		return errors.Wrap(err, "querying groups by course")
	}
	return ctx.JSON(http.StatusOK, groupList(grps))
}

func (api *groupApi) update(ctx echo.Context) error {
	var data group.NewGroup
	if err := bind(ctx, &data); err != nil {
		return err
	}
	grp, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating group")
	}
	return ctx.JSON(http.StatusOK, GroupResponse{Success: true, Message: "Group updated successfully.", Group: grp})
}

func (api *groupApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return ctx.JSON(http.StatusOK, StatusResponse{Success: true, Message: "Group successfully deleted."})
}
