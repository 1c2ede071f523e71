package assignment

import (
	"time"

	"github.com/pkg/errors"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/user"
)

type Status string

// Lifecycle: created -> submitted -> graded.
// A submitted assignment may be resubmitted until graded; a graded one may be graded again.
const (
	StatusCreated   Status = "created"
	StatusSubmitted Status = "submitted"
	StatusGraded    Status = "graded"
)

var (
	ErrDeadlinePassed = core.NewValidationError(errors.New("the deadline for the assignment has passed"))
	ErrAlreadyGraded  = core.NewConflictError("the assignment has already been graded")
	ErrNotSubmitted   = core.NewValidationError(errors.New("the assignment has not been submitted yet"))
)

// State returns the lifecycle state, inferring it from the submission fields for records without a status.
func (a Assignment) State() Status {
	if a.Status != "" {
		return a.Status
	}
	switch {
	case a.Grade != nil:
		return StatusGraded
	case a.SubmittedAt != nil:
		return StatusSubmitted
	default:
		return StatusCreated
	}
}

func (a Assignment) DeadlinePassed(now time.Time) bool {
	return !now.Before(a.Deadline)
}

func (a *Assignment) submit(student user.User, link string, now time.Time) error {
	if a.DeadlinePassed(now) {
		return ErrDeadlinePassed
	}
	switch a.State() {
	case StatusCreated, StatusSubmitted:
	default:
		return ErrAlreadyGraded
	}
	a.StudentID = student.ID
	a.GithubLink = link
	a.SubmittedAt = &now
	a.Status = StatusSubmitted
	a.UpdatedAt = now
	return nil
}

func (a *Assignment) grade(grade int, feedback string, now time.Time) error {
	switch a.State() {
	case StatusSubmitted, StatusGraded:
	default:
		return ErrNotSubmitted
	}
	a.Grade = &grade
	a.Feedback = feedback
	a.GradedAt = &now
	a.Status = StatusGraded
	a.UpdatedAt = now
	return nil
}
