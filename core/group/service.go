package group

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound       = core.NewNotFoundError("group not found")
	ErrExists         = core.NewConflictError("this group already exists")
	ErrCourseRequired = core.NewValidationError(nil, core.FieldError{Field: "course", Error: "course is required"})
)

type (
	Repository interface {
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		GetGroup(ctx context.Context, id string) (Group, error)
		// QueryGroups returns the matching groups sorted by course then groupNo.
		QueryGroups(ctx context.Context, filter Filter) ([]Group, error)
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
		DeleteGroup(ctx context.Context, id string) error
	}

	Service interface {
		Create(ctx context.Context, ng NewGroup) (Group, error)
		Query(ctx context.Context) ([]Group, error)
		QueryByCourse(ctx context.Context, course string) ([]Group, error)
		Update(ctx context.Context, id string, ng NewGroup) (Group, error)
		Delete(ctx context.Context, id string) error
		// Exists reports whether (course, groupNo) names a registered group.
		Exists(ctx context.Context, course, groupNo string) (bool, error)
	}

	service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate) Service {
	return &service{repo: repo, validate: validate}
}

func (svc *service) clean(ng *NewGroup) error {
	ng.Clean()
	return svc.validate.Struct(ng)
}

func (svc *service) checkUniqueness(ctx context.Context, ng NewGroup, excludeID string) error {
	dups, err := svc.repo.QueryGroups(ctx, Filter{Course: ng.Course, GroupNo: ng.GroupNo, ExcludeID: excludeID})
	if err != nil {
		return errors.Wrap(err, "checking group uniqueness")
	}
	if len(dups) > 0 {
		return ErrExists
	}
	return nil
}

func (svc *service) Create(ctx context.Context, ng NewGroup) (Group, error) {
	if err := svc.clean(&ng); err != nil {
		return Group{}, err
	}
	if err := svc.checkUniqueness(ctx, ng, ""); err != nil {
		return Group{}, err
	}

	now := NowFunc().UTC()
	grp, err := svc.repo.CreateGroup(ctx, Group{
		Course:    ng.Course,
		GroupNo:   ng.GroupNo,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return grp, errors.Wrap(err, "creating group")
}

func (svc *service) Query(ctx context.Context) ([]Group, error) {
	return svc.repo.QueryGroups(ctx, Filter{})
}

func (svc *service) QueryByCourse(ctx context.Context, course string) ([]Group, error) {
	if course = core.CleanString(course); course == "" {
		return nil, ErrCourseRequired
	}
	return svc.repo.QueryGroups(ctx, Filter{Course: course})
}

func (svc *service) Update(ctx context.Context, id string, ng NewGroup) (Group, error) {
	if err := svc.clean(&ng); err != nil {
		return Group{}, err
	}
	if err := svc.checkUniqueness(ctx, ng, id); err != nil {
		return Group{}, err
	}

	grp, err := svc.repo.GetGroup(ctx, id)
	if err != nil {
		return Group{}, err
	}
	grp.Course = ng.Course
	grp.GroupNo = ng.GroupNo
	grp.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateGroup(ctx, grp)
}

// Delete removes the group without checking for assignments that still reference it.
func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteGroup(ctx, id)
}

func (svc *service) Exists(ctx context.Context, course, groupNo string) (bool, error) {
	if course == "" || groupNo == "" {
		return false, nil
	}
	grps, err := svc.repo.QueryGroups(ctx, Filter{Course: course, GroupNo: groupNo})
	if err != nil {
		return false, errors.Wrap(err, "querying groups")
	}
	return len(grps) > 0, nil
}
