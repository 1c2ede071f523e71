package assignment

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/access"
	"github.com/codeedu/lms/core/group"
	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound         = core.NewNotFoundError("task not found")
	ErrNoSuchGroup      = core.NewValidationError(errors.New("there is no group for this course"))
	ErrGradeRequired    = core.NewValidationError(errors.New("score and feedback required"))
	ErrGradeOutOfRange  = core.NewValidationError(errors.New("score should be between 0-100"))
	errDeadlineInvalid  = "deadline must be a date (YYYY-MM-DD) or an RFC 3339 timestamp"
	errCourseInvalid    = "choose a valid course"
	errTitleBlank       = "title cannot be blank"
	errGroupNoMaxLength = "groupNo must be a maximum of 10 characters in length"
)

const (
	MinGrade = 0
	MaxGrade = 100
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// GetAssignment returns ErrNotFound when id does not resolve.
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		// QueryAssignments returns the matching assignments ordered by createdAt then id.
		QueryAssignments(ctx context.Context, filter Filter) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string) error
	}

	Service interface {
		// QueryForStudent lists the assignments of the caller's course and group.
		QueryForStudent(ctx context.Context, caller user.User) ([]StudentView, error)
		// QueryForTeacher lists the assignments of the caller's course.
		QueryForTeacher(ctx context.Context, caller user.User) ([]Assignment, error)
		Create(ctx context.Context, caller user.User, na NewAssignment) (Assignment, error)
		Submit(ctx context.Context, caller user.User, id string, sub Submission) (Assignment, error)
		Grade(ctx context.Context, caller user.User, id string, ev Evaluation) (Assignment, error)
		Update(ctx context.Context, caller user.User, id string, ua UpdateAssignment) (Assignment, error)
		Delete(ctx context.Context, caller user.User, id string) error
	}

	service struct {
		repo     Repository
		usrSvc   user.Service
		grpSvc   group.Service
		outbox   notification.Enqueuer
		tx       core.Transactor
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	usrSvc user.Service,
	grpSvc group.Service,
	outbox notification.Enqueuer,
	tx core.Transactor,
	validate *validator.Validate,
) Service {
	return &service{
		repo:     repo,
		usrSvc:   usrSvc,
		grpSvc:   grpSvc,
		outbox:   outbox,
		tx:       tx,
		validate: validate,
	}
}

func target(a Assignment) access.Target {
	return access.Target{Course: a.Course, GroupNo: a.GroupNo, OwnerID: a.TeacherID}
}

func payload(a Assignment) notification.Payload {
	return notification.Payload{
		Course:          a.Course,
		GroupNo:         a.GroupNo,
		AssignmentID:    a.ID,
		AssignmentTitle: a.Title,
		Deadline:        a.Deadline,
	}
}

func (svc *service) checkGroup(ctx context.Context, course, groupNo string) error {
	exists, err := svc.grpSvc.Exists(ctx, course, groupNo)
	if err != nil {
		return errors.Wrap(err, "checking group")
	}
	if !exists {
		return ErrNoSuchGroup
	}
	return nil
}

func (svc *service) QueryForStudent(ctx context.Context, caller user.User) ([]StudentView, error) {
	if err := access.Authorize(caller, access.ListOwn, access.Target{}); err != nil {
		return nil, err
	}
	views := make([]StudentView, 0)
	if caller.GroupNo == "" {
		return views, nil
	}

	asgmts, err := svc.repo.QueryAssignments(ctx, Filter{Course: caller.Course, GroupNo: caller.GroupNo})
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}

	teachers := make(map[string]*user.Summary)
	ids := make([]string, 0)
	for _, a := range asgmts {
		if _, ok := teachers[a.TeacherID]; !ok {
			teachers[a.TeacherID] = nil
			ids = append(ids, a.TeacherID)
		}
	}
	if len(ids) > 0 {
		users, err := svc.usrSvc.Query(ctx, user.Filter{IDs: ids})
		if err != nil {
			return nil, errors.Wrap(err, "querying teachers")
		}
		for _, usr := range users {
			summary := usr.Summary()
			teachers[usr.ID] = &summary
		}
	}

	for _, a := range asgmts {
		views = append(views, StudentView{Assignment: a, Teacher: teachers[a.TeacherID]})
	}
	return views, nil
}

func (svc *service) QueryForTeacher(ctx context.Context, caller user.User) ([]Assignment, error) {
	if err := access.Authorize(caller, access.ListCourse, access.Target{Course: caller.Course}); err != nil {
		return nil, err
	}
	asgmts, err := svc.repo.QueryAssignments(ctx, Filter{Course: caller.Course})
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	if asgmts == nil {
		asgmts = []Assignment{}
	}
	return asgmts, nil
}

func (svc *service) Create(ctx context.Context, caller user.User, na NewAssignment) (Assignment, error) {
	if err := access.Authorize(caller, access.Create, access.Target{Course: na.Course, GroupNo: na.GroupNo}); err != nil {
		return Assignment{}, err
	}
	na.Clean()
	if err := svc.validate.Struct(na); err != nil {
		return Assignment{}, err
	}
	deadline, err := core.ParseTime(na.Deadline)
	if err != nil {
		return Assignment{}, core.NewValidationError(nil, core.FieldError{Field: "deadline", Error: errDeadlineInvalid})
	}
	if err = svc.checkGroup(ctx, na.Course, na.GroupNo); err != nil {
		return Assignment{}, err
	}

	now := NowFunc().UTC()
	a := Assignment{
		Title:       na.Title,
		Description: na.Description,
		Deadline:    deadline,
		Course:      na.Course,
		GroupNo:     na.GroupNo,
		TeacherID:   caller.ID,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := svc.repo.CreateAssignment(ctx, a)
		if err != nil {
			return errors.Wrap(err, "creating assignment")
		}
		students, err := svc.usrSvc.Query(ctx, user.StudentsOf(created.Course, created.GroupNo))
		if err != nil {
			return errors.Wrap(err, "querying students")
		}
		intents := make([]notification.Intent, 0, len(students))
		for _, student := range students {
			intents = append(intents, notification.NewIntent(notification.EventAssignmentCreated, student, caller, payload(created)))
		}
		if err = svc.outbox.Enqueue(ctx, intents...); err != nil {
			return err
		}
		a = created
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}
	svc.outbox.Wake()
	return a, nil
}

func (svc *service) Submit(ctx context.Context, caller user.User, id string, sub Submission) (Assignment, error) {
	sub.Clean()
	if err := svc.validate.Struct(sub); err != nil {
		return Assignment{}, err
	}

	var a Assignment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = svc.repo.GetAssignment(ctx, id); err != nil {
			return err
		}
		if err = access.Authorize(caller, access.Submit, target(a)); err != nil {
			return err
		}
		if err = a.submit(caller, sub.GithubLink, NowFunc().UTC()); err != nil {
			return err
		}
		if a, err = svc.repo.UpdateAssignment(ctx, a); err != nil {
			return errors.Wrap(err, "updating assignment")
		}

		// a missing teacher does not fail the submission
		teacher, err := svc.usrSvc.GetByID(ctx, a.TeacherID)
		if err != nil {
			if core.IsNotFound(err) {
				return nil
			}
			return errors.Wrap(err, "getting teacher")
		}
		p := payload(a)
		p.GithubLink = a.GithubLink
		return svc.outbox.Enqueue(ctx, notification.NewIntent(notification.EventAssignmentSubmitted, teacher, caller, p))
	})
	if err != nil {
		return Assignment{}, err
	}
	svc.outbox.Wake()
	return a, nil
}

// parseGrade reads a JSON number or numeric string. ok is false when no grade was given.
func parseGrade(raw json.RawMessage) (grade int, ok bool, err error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err = json.Unmarshal(raw, &str); err != nil {
			return 0, true, ErrGradeOutOfRange
		}
		if s = strings.TrimSpace(str); s == "" {
			return 0, false, nil
		}
	}
	if grade, err = strconv.Atoi(s); err != nil || grade < MinGrade || grade > MaxGrade {
		return 0, true, ErrGradeOutOfRange
	}
	return grade, true, nil
}

func (svc *service) Grade(ctx context.Context, caller user.User, id string, ev Evaluation) (Assignment, error) {
	if err := access.AuthorizeRole(caller, access.Grade); err != nil {
		return Assignment{}, err
	}
	grade, ok, err := parseGrade(ev.Grade)
	feedback := core.CleanString(ev.Feedback)
	if !ok || feedback == "" {
		return Assignment{}, ErrGradeRequired
	}
	if err != nil {
		return Assignment{}, err
	}

	var a Assignment
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = svc.repo.GetAssignment(ctx, id); err != nil {
			return err
		}
		if err = access.Authorize(caller, access.Grade, target(a)); err != nil {
			return err
		}
		if err = a.grade(grade, feedback, NowFunc().UTC()); err != nil {
			return err
		}
		if a, err = svc.repo.UpdateAssignment(ctx, a); err != nil {
			return errors.Wrap(err, "updating assignment")
		}

		// the submitter must still be a student of the assignment's group
		students, err := svc.usrSvc.Query(ctx, user.StudentsOf(a.Course, a.GroupNo))
		if err != nil {
			return errors.Wrap(err, "querying students")
		}
		for _, student := range students {
			if student.ID == a.StudentID {
				p := payload(a)
				p.Grade = grade
				p.Feedback = feedback
				return svc.outbox.Enqueue(ctx, notification.NewIntent(notification.EventAssignmentGraded, student, caller, p))
			}
		}
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}
	svc.outbox.Wake()
	return a, nil
}

// merge applies the non-blank fields of ua to a.
func (svc *service) merge(a *Assignment, ua UpdateAssignment) error {
	fldErrs := make([]core.FieldError, 0)
	present := func(s *string) (string, bool) {
		if s == nil {
			return "", false
		}
		v := core.CleanString(*s)
		return v, v != ""
	}

	if v, ok := present(ua.Title); ok {
		a.Title = v
	} else if ua.Title != nil && *ua.Title != "" {
		fldErrs = append(fldErrs, core.FieldError{Field: "title", Error: errTitleBlank})
	}
	if v, ok := present(ua.Description); ok {
		a.Description = v
	}
	if v, ok := present(ua.Deadline); ok {
		deadline, err := core.ParseTime(v)
		if err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: "deadline", Error: errDeadlineInvalid})
		} else {
			a.Deadline = deadline
		}
	}
	if v, ok := present(ua.Course); ok {
		if !core.IsValidCourse(v) {
			fldErrs = append(fldErrs, core.FieldError{Field: "course", Error: errCourseInvalid})
		}
		a.Course = v
	}
	if v, ok := present(ua.GroupNo); ok {
		if len([]rune(v)) > 10 {
			fldErrs = append(fldErrs, core.FieldError{Field: "groupNo", Error: errGroupNoMaxLength})
		}
		a.GroupNo = v
	}

	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}
	return nil
}

func (svc *service) Update(ctx context.Context, caller user.User, id string, ua UpdateAssignment) (Assignment, error) {
	if err := access.AuthorizeRole(caller, access.Update); err != nil {
		return Assignment{}, err
	}
	var a Assignment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = svc.repo.GetAssignment(ctx, id); err != nil {
			return err
		}
		if err = access.Authorize(caller, access.Update, target(a)); err != nil {
			return err
		}
		if err = svc.merge(&a, ua); err != nil {
			return err
		}
		if err = svc.checkGroup(ctx, a.Course, a.GroupNo); err != nil {
			return err
		}
		a.UpdatedAt = NowFunc().UTC()
		a, err = svc.repo.UpdateAssignment(ctx, a)
		return errors.Wrap(err, "updating assignment")
	})
	if err != nil {
		return Assignment{}, err
	}
	return a, nil
}

// Delete removes the assignment; notifications referencing it are kept.
func (svc *service) Delete(ctx context.Context, caller user.User, id string) error {
	if err := access.AuthorizeRole(caller, access.Delete); err != nil {
		return err
	}
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := svc.repo.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		if err = access.Authorize(caller, access.Delete, target(a)); err != nil {
			return err
		}
		return errors.Wrap(svc.repo.DeleteAssignment(ctx, id), "deleting assignment")
	})
}
