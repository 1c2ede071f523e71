package notification

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/user"
)

type Event string

// Events
const (
	EventAssignmentCreated   Event = "assignment_created"
	EventAssignmentSubmitted Event = "assignment_submitted"
	EventAssignmentGraded    Event = "assignment_graded"
)

type Status string

// Intent statuses
const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// DeadlineLayout formats deadlines in messages.
const DeadlineLayout = "2006-01-02 15:04"

// Party is a snapshot of a user taken when an Intent is enqueued.
type Party struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

func NewParty(usr user.User) Party {
	return Party{ID: usr.ID, Name: usr.Name, Surname: usr.Surname, Email: usr.Email, Role: usr.Role}
}

func (p Party) FullName() string {
	return user.User{Name: p.Name, Surname: p.Surname}.FullName()
}

// Payload is the event data an Intent needs to render its messages.
type Payload struct {
	Course          string    `json:"course"`
	GroupNo         string    `json:"groupNo"`
	AssignmentID    string    `json:"assignmentId"`
	AssignmentTitle string    `json:"assignmentTitle"`
	Deadline        time.Time `json:"deadline"`
	GithubLink      string    `json:"githubLink,omitempty"`
	Grade           int       `json:"grade,omitempty"`
	Feedback        string    `json:"feedback,omitempty"`
}

// Intent is an outbox entry: the notification owed to one recipient for one event.
// It is written in the same transaction as the assignment change that triggers it.
type Intent struct {
	ID        string  `json:"id"`
	Event     Event   `json:"event"`
	Recipient Party   `json:"recipient"`
	Sender    Party   `json:"sender"`
	Payload   Payload `json:"payload"`

	// Recorded is set once the Notification record exists; it is never created twice.
	Recorded       bool      `json:"recorded"`
	NotificationID string    `json:"notificationId,omitempty"`
	Status         Status    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError,omitempty"`
	NextAttemptAt  time.Time `json:"nextAttemptAt"` // UTC
	CreatedAt      time.Time `json:"createdAt"`     // UTC
	UpdatedAt      time.Time `json:"updatedAt"`     // UTC
}

// NewIntent returns a pending Intent due immediately.
func NewIntent(event Event, recipient, sender user.User, payload Payload) Intent {
	now := NowFunc().UTC()
	return Intent{
		Event:         event,
		Recipient:     NewParty(recipient),
		Sender:        NewParty(sender),
		Payload:       payload,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Message is the in-app text of the notification.
func (it Intent) Message() string {
	p := it.Payload
	switch it.Event {
	case EventAssignmentCreated:
		return fmt.Sprintf("New Task: %s. Deadline: %s", p.AssignmentTitle, p.Deadline.UTC().Format(DeadlineLayout))
	case EventAssignmentSubmitted:
		return fmt.Sprintf("%s \"%s\" handed over the assignment. Link: %s", it.Sender.Name, p.AssignmentTitle, p.GithubLink)
	case EventAssignmentGraded:
		return fmt.Sprintf("Task \"%s\" rated by %s. Score: %d", p.AssignmentTitle, it.Sender.FullName(), p.Grade)
	}
	return ""
}

// Notification returns the record to persist for the recipient.
func (it Intent) Notification() Notification {
	return Notification{
		RecipientID:     it.Recipient.ID,
		RecipientRole:   it.Recipient.Role,
		Course:          it.Payload.Course,
		Message:         it.Message(),
		GroupNo:         it.Payload.GroupNo,
		SenderID:        it.Sender.ID,
		SenderRole:      it.Sender.Role,
		AssignmentID:    it.Payload.AssignmentID,
		AssignmentTitle: it.Payload.AssignmentTitle,
		CreatedAt:       NowFunc().UTC(),
	}
}

var subjects = map[Event]string{
	EventAssignmentCreated:   "New Task",
	EventAssignmentSubmitted: "Task Submitted",
	EventAssignmentGraded:    "Assignment Graded",
}

// Email returns the transactional email for the recipient.
func (it Intent) Email() *core.EmailMessage {
	p := it.Payload
	data := map[string]interface{}{
		"RecipientName": it.Recipient.Name,
		"Title":         p.AssignmentTitle,
	}
	switch it.Event {
	case EventAssignmentCreated:
		data["Deadline"] = p.Deadline.UTC().Format(DeadlineLayout)
	case EventAssignmentSubmitted:
		data["SenderName"] = it.Sender.Name
		data["GithubLink"] = p.GithubLink
	case EventAssignmentGraded:
		data["SenderName"] = it.Sender.FullName()
		data["Grade"] = p.Grade
		data["Feedback"] = p.Feedback
	}
	return &core.EmailMessage{
		To:           []mail.Address{{Name: it.Recipient.FullName(), Address: it.Recipient.Email}},
		Subject:      subjects[it.Event],
		TemplateName: string(it.Event),
		TemplateData: data,
	}
}

// IntentFilter selects outbox entries; empty fields match everything.
type IntentFilter struct {
	Status       Status
	Event        Event
	AssignmentID string
}

func (f IntentFilter) Match(it Intent) bool {
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.Event != "" && it.Event != f.Event {
		return false
	}
	if f.AssignmentID != "" && it.Payload.AssignmentID != f.AssignmentID {
		return false
	}
	return true
}

// Due reports whether the dispatcher should process it at now.
func (it Intent) Due(now time.Time) bool {
	return it.Status == StatusPending && !it.NextAttemptAt.After(now)
}
