package notification

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/access"
	"github.com/codeedu/lms/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("notification not found or not authorized")
	ErrNoRecipients       = core.NewNotFoundError("no recipients found")
	ErrIntentNotFound     = core.NewNotFoundError("outbox intent not found")
	errGroupOrStudentReqd = core.NewValidationError(nil, core.FieldError{Field: "groupNo", Error: "group number or student ID required"})
)

type (
	Service interface {
		// QueryForRecipient returns the caller's notifications, newest first.
		QueryForRecipient(ctx context.Context, caller user.User) ([]View, error)
		// MarkRead flags one of the caller's notifications as read.
		MarkRead(ctx context.Context, caller user.User, id string) (Notification, error)
		// Broadcast records nn for every matching recipient.
		Broadcast(ctx context.Context, caller user.User, nn NewNotification) ([]Notification, error)
	}

	service struct {
		repo     Repository
		usrSvc   user.Service
		tx       core.Transactor
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, tx core.Transactor, validate *validator.Validate) Service {
	return &service{repo: repo, usrSvc: usrSvc, tx: tx, validate: validate}
}

func (svc *service) QueryForRecipient(ctx context.Context, caller user.User) ([]View, error) {
	filter := Filter{
		RecipientID:   caller.ID,
		RecipientRole: caller.Role,
		Course:        caller.Course,
	}
	if caller.IsStudent() {
		filter.GroupNo = &caller.GroupNo
	}
	notifs, err := svc.repo.QueryNotifications(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}

	senders := make(map[string]*user.Summary)
	ids := make([]string, 0)
	for _, n := range notifs {
		if _, ok := senders[n.SenderID]; !ok && n.SenderID != "" {
			senders[n.SenderID] = nil
			ids = append(ids, n.SenderID)
		}
	}
	if len(ids) > 0 {
		users, err := svc.usrSvc.Query(ctx, user.Filter{IDs: ids})
		if err != nil {
			return nil, errors.Wrap(err, "querying senders")
		}
		for _, usr := range users {
			summary := usr.Summary()
			senders[usr.ID] = &summary
		}
	}

	views := make([]View, 0, len(notifs))
	for _, n := range notifs {
		views = append(views, View{Notification: n, Sender: senders[n.SenderID]})
	}
	return views, nil
}

func (svc *service) MarkRead(ctx context.Context, caller user.User, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, errors.Wrap(err, "getting notification")
	}
	if n.RecipientID != caller.ID {
		return Notification{}, ErrNotFound
	}
	if n.IsRead {
		return n, nil
	}
	n.IsRead = true
	n, err = svc.repo.UpdateNotification(ctx, n)
	return n, errors.Wrap(err, "updating notification")
}

func (svc *service) recipients(ctx context.Context, nn NewNotification) ([]user.User, error) {
	var filter user.Filter
	switch nn.RecipientRole {
	case user.RoleStudent:
		switch {
		case nn.StudentID != "":
			filter = user.Filter{Role: user.RoleStudent, Course: nn.Course, IDs: []string{nn.StudentID}}
		case nn.GroupNo != "":
			filter = user.StudentsOf(nn.Course, nn.GroupNo)
		default:
			return nil, errGroupOrStudentReqd
		}
	case user.RoleTeacher:
		filter = user.Filter{Role: user.RoleTeacher, Course: nn.Course}
	}
	return svc.usrSvc.Query(ctx, filter)
}

func (svc *service) Broadcast(ctx context.Context, caller user.User, nn NewNotification) ([]Notification, error) {
	if err := access.Authorize(caller, access.Notify, access.Target{Course: nn.Course}); err != nil {
		return nil, err
	}
	nn.Clean()
	if err := svc.validate.Struct(nn); err != nil {
		return nil, err
	}

	recipients, err := svc.recipients(ctx, nn)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	created := make([]Notification, 0, len(recipients))
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		created = created[:0] // the transaction may be retried
		for _, rcpt := range recipients {
			var groupNo string
			if rcpt.IsStudent() {
				groupNo = rcpt.GroupNo
			}
			n, err := svc.repo.CreateNotification(ctx, Notification{
				RecipientID:     rcpt.ID,
				RecipientRole:   nn.RecipientRole,
				Course:          nn.Course,
				Message:         nn.Message,
				GroupNo:         groupNo,
				SenderID:        caller.ID,
				SenderRole:      caller.Role,
				AssignmentTitle: nn.AssignmentTitle,
				CreatedAt:       NowFunc().UTC(),
			})
			if err != nil {
				return errors.Wrap(err, "creating notification")
			}
			created = append(created, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
