// Package access holds the single authorization policy applied to course resources.
package access

import (
	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/user"
)

type Action int

const (
	ListOwn Action = iota
	ListCourse
	Create
	Submit
	Grade
	Update
	Delete
	Notify
)

var actionNames = map[Action]string{
	ListOwn:    "list own",
	ListCourse: "list course",
	Create:     "create",
	Submit:     "submit",
	Grade:      "grade",
	Update:     "update",
	Delete:     "delete",
	Notify:     "notify",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Target is the course resource an action applies to.
type Target struct {
	Course  string
	GroupNo string
	OwnerID string
}

type rule struct {
	role        string // empty: any role
	matchCourse bool
	matchGroup  bool
	roleMsg     string // denial when the role does not match
	targetMsg   string // denial when the course/group does not match
}

var rules = map[Action]rule{
	ListOwn: {},
	ListCourse: {
		role:    user.RoleTeacher,
		roleMsg: "only teachers can perform this operation",
	},
	Create: {
		role:    user.RoleTeacher,
		roleMsg: "only teachers can create assignments",
	},
	Submit: {
		role:        user.RoleStudent,
		matchCourse: true,
		matchGroup:  true,
		roleMsg:     "you do not have permission to submit this assignment",
		targetMsg:   "you do not have permission to submit this assignment",
	},
	Grade: {
		role:        user.RoleTeacher,
		matchCourse: true,
		roleMsg:     "only teachers can evaluate",
		targetMsg:   "you do not have permission to grade this assignment",
	},
	Update: {
		role:        user.RoleTeacher,
		matchCourse: true,
		roleMsg:     "only teachers can edit assignments",
		targetMsg:   "you do not have permission to edit this assignment",
	},
	Delete: {
		role:        user.RoleTeacher,
		matchCourse: true,
		roleMsg:     "only teachers can delete assignments",
		targetMsg:   "you do not have permission to delete this assignment",
	},
	Notify: {
		role:    user.RoleTeacher,
		roleMsg: "only teachers can send notifications",
	},
}

// Authorize returns a *core.ForbiddenError when caller may not perform action on target.
// Teachers are matched on course only: any teacher of a course may grade, edit or delete its assignments.
func Authorize(caller user.User, action Action, target Target) error {
	if err := AuthorizeRole(caller, action); err != nil {
		return err
	}
	r := rules[action]
	if r.matchCourse && caller.Course != target.Course {
		return core.NewForbiddenError(r.targetMsg)
	}
	if r.matchGroup && caller.GroupNo != target.GroupNo {
		return core.NewForbiddenError(r.targetMsg)
	}
	return nil
}

// AuthorizeRole checks only the role part of action, for callers that have not loaded the target yet.
func AuthorizeRole(caller user.User, action Action) error {
	r, ok := rules[action]
	if !ok {
		return core.NewForbiddenError("permission denied")
	}
	if r.role != "" && caller.Role != r.role {
		return core.NewForbiddenError(r.roleMsg)
	}
	return nil
}
