package assignment

import (
	"encoding/json"
	"time"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/user"
)

type Assignment struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Deadline    time.Time  `json:"deadline"` // UTC
	Course      string     `json:"course"`
	GroupNo     string     `json:"groupNo"`
	TeacherID   string     `json:"teacher"`
	StudentID   string     `json:"student,omitempty"`
	GithubLink  string     `json:"githubLink,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"` // UTC
	Grade       *int       `json:"grade,omitempty"`
	Feedback    string     `json:"feedback,omitempty"`
	GradedAt    *time.Time `json:"gradedAt,omitempty"` // UTC
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"` // UTC
	UpdatedAt   time.Time  `json:"updatedAt"` // UTC
}

// StudentView is an Assignment listed to a student, with its teacher resolved.
type StudentView struct {
	Assignment
	Teacher *user.Summary `json:"teacher"`
}

// NewAssignment contains information needed to create a new Assignment.
type NewAssignment struct {
	Title       string `json:"title" validate:"required,notblank"`
	Description string `json:"description"`
	Deadline    string `json:"deadline" validate:"required"`
	Course      string `json:"course" validate:"required,course"`
	GroupNo     string `json:"groupNo" validate:"required,notblank,max=10"`
}

func (na *NewAssignment) Clean() {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.Deadline = core.CleanString(na.Deadline)
	na.Course = core.CleanString(na.Course)
	na.GroupNo = core.CleanString(na.GroupNo)
}

// UpdateAssignment is a partial update; nil or blank fields keep their value.
type UpdateAssignment struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Deadline    *string `json:"deadline"`
	Course      *string `json:"course"`
	GroupNo     *string `json:"groupNo"`
}

// Submission is a student's hand-in of an Assignment.
type Submission struct {
	GithubLink string `json:"githubLink" validate:"required,githublink"`
}

func (s *Submission) Clean() {
	s.GithubLink = core.CleanString(s.GithubLink)
}

// Evaluation is a teacher's grading of a submitted Assignment.
// Grade accepts a JSON number or a numeric string.
type Evaluation struct {
	Grade    json.RawMessage `json:"grade"`
	Feedback string          `json:"feedback"`
}

// Filter selects assignments; empty fields match everything.
type Filter struct {
	Course    string
	GroupNo   string
	TeacherID string
}

func (f Filter) Match(a Assignment) bool {
	if f.Course != "" && a.Course != f.Course {
		return false
	}
	if f.GroupNo != "" && a.GroupNo != f.GroupNo {
		return false
	}
	if f.TeacherID != "" && a.TeacherID != f.TeacherID {
		return false
	}
	return true
}
