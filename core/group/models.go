package group

import (
	"time"

	"github.com/codeedu/lms/core"
)

// Group is a cohort of students of a course.
type Group struct {
	ID        string    `json:"id"`
	Course    string    `json:"course"`
	GroupNo   string    `json:"groupNo"`
	CreatedAt time.Time `json:"createdAt"` // UTC
	UpdatedAt time.Time `json:"updatedAt"` // UTC
}

type NewGroup struct {
	Course  string `json:"course" validate:"required,course"`
	GroupNo string `json:"groupNo" validate:"required,notblank,max=10"`
}

func (ng *NewGroup) Clean() {
	ng.Course = core.CleanString(ng.Course)
	ng.GroupNo = core.CleanString(ng.GroupNo)
}

// Filter selects groups; empty fields match everything.
type Filter struct {
	Course  string
	GroupNo string
	// ExcludeID drops one group from the results (uniqueness checks on update).
	ExcludeID string
}

func (f Filter) Match(grp Group) bool {
	if f.Course != "" && grp.Course != f.Course {
		return false
	}
	if f.GroupNo != "" && grp.GroupNo != f.GroupNo {
		return false
	}
	if f.ExcludeID != "" && grp.ID == f.ExcludeID {
		return false
	}
	return true
}
