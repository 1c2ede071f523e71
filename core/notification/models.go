package notification

import (
	"time"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/user"
)

// Notification is the in-app record of an event, one per recipient.
type Notification struct {
	ID              string    `json:"id"`
	RecipientID     string    `json:"recipient"`
	RecipientRole   string    `json:"recipientRole"`
	Course          string    `json:"course"`
	Message         string    `json:"message"`
	GroupNo         string    `json:"groupNo,omitempty"`
	SenderID        string    `json:"sender,omitempty"`
	SenderRole      string    `json:"senderRole,omitempty"`
	AssignmentID    string    `json:"assignmentId,omitempty"`
	AssignmentTitle string    `json:"assignmentTitle,omitempty"`
	IsRead          bool      `json:"isRead"`
	CreatedAt       time.Time `json:"createdAt"` // UTC
}

// View is a Notification with its sender resolved.
type View struct {
	Notification
	Sender *user.Summary `json:"sender"`
}

// Filter selects notifications; empty fields match everything.
type Filter struct {
	RecipientID   string
	RecipientRole string
	Course        string
	GroupNo       *string
	AssignmentID  string
}

func (f Filter) Match(n Notification) bool {
	if f.RecipientID != "" && n.RecipientID != f.RecipientID {
		return false
	}
	if f.RecipientRole != "" && n.RecipientRole != f.RecipientRole {
		return false
	}
	if f.Course != "" && n.Course != f.Course {
		return false
	}
	if f.GroupNo != nil && n.GroupNo != *f.GroupNo {
		return false
	}
	if f.AssignmentID != "" && n.AssignmentID != f.AssignmentID {
		return false
	}
	return true
}

// NewNotification is a message a teacher sends by hand to students or to the teachers of a course.
type NewNotification struct {
	Message         string `json:"message" validate:"required,notblank"`
	Course          string `json:"course" validate:"required"`
	GroupNo         string `json:"groupNo"`
	AssignmentTitle string `json:"assignmentTitle"`
	RecipientRole   string `json:"recipientRole" validate:"required,userrole"`
	StudentID       string `json:"studentId"`
}

func (nn *NewNotification) Clean() {
	nn.Message = core.CleanString(nn.Message)
	nn.Course = core.CleanString(nn.Course)
	nn.GroupNo = core.CleanString(nn.GroupNo)
	nn.AssignmentTitle = core.CleanString(nn.AssignmentTitle)
	nn.RecipientRole = core.CleanString(nn.RecipientRole, true /* lower */)
	nn.StudentID = core.CleanString(nn.StudentID)
}
