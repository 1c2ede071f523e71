package pgrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/notification"
)

const notificationColumns = `id, recipient_id, recipient_role, course, message, group_no, sender_id, sender_role,
	assignment_id, assignment_title, is_read, created_at`

type notificationRow struct {
	ID              string      `db:"id"`
	RecipientID     string      `db:"recipient_id"`
	RecipientRole   string      `db:"recipient_role"`
	Course          string      `db:"course"`
	Message         string      `db:"message"`
	GroupNo         null.String `db:"group_no"`
	SenderID        null.String `db:"sender_id"`
	SenderRole      null.String `db:"sender_role"`
	AssignmentID    null.String `db:"assignment_id"`
	AssignmentTitle null.String `db:"assignment_title"`
	IsRead          bool        `db:"is_read"`
	CreatedAt       time.Time   `db:"created_at"`
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

type notificationRepository struct {
	store *Store
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(store *Store) *notificationRepository {
	return &notificationRepository{store: store}
}

func (repo *notificationRepository) toRow(n notification.Notification) notificationRow {
	return notificationRow{
		ID:              n.ID,
		RecipientID:     n.RecipientID,
		RecipientRole:   n.RecipientRole,
		Course:          n.Course,
		Message:         n.Message,
		GroupNo:         nullString(n.GroupNo),
		SenderID:        nullString(n.SenderID),
		SenderRole:      nullString(n.SenderRole),
		AssignmentID:    nullString(n.AssignmentID),
		AssignmentTitle: nullString(n.AssignmentTitle),
		IsRead:          n.IsRead,
		CreatedAt:       n.CreatedAt.UTC(),
	}
}

func (repo *notificationRepository) fromRow(row notificationRow) notification.Notification {
	return notification.Notification{
		ID:              row.ID,
		RecipientID:     row.RecipientID,
		RecipientRole:   row.RecipientRole,
		Course:          row.Course,
		Message:         row.Message,
		GroupNo:         row.GroupNo.String,
		SenderID:        row.SenderID.String,
		SenderRole:      row.SenderRole.String,
		AssignmentID:    row.AssignmentID.String,
		AssignmentTitle: row.AssignmentTitle.String,
		IsRead:          row.IsRead,
		CreatedAt:       row.CreatedAt.UTC(),
	}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = newID()
	q := `INSERT INTO notifications (` + notificationColumns + `) VALUES (
		:id, :recipient_id, :recipient_role, :course, :message, :group_no, :sender_id, :sender_role,
		:assignment_id, :assignment_title, :is_read, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.store.getExec(ctx), q, repo.toRow(n)); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	var row notificationRow
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.store.getExec(ctx), &row, q, id); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "selecting notification")
	}
	return repo.fromRow(row), nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, filter notification.Filter) ([]notification.Notification, error) {
	var w where
	if filter.RecipientID != "" {
		w.add("recipient_id = $%d", filter.RecipientID)
	}
	if filter.RecipientRole != "" {
		w.add("recipient_role = $%d", filter.RecipientRole)
	}
	if filter.Course != "" {
		w.add("course = $%d", filter.Course)
	}
	if filter.GroupNo != nil {
		w.add("COALESCE(group_no, '') = $%d", *filter.GroupNo)
	}
	if filter.AssignmentID != "" {
		w.add("assignment_id = $%d", filter.AssignmentID)
	}

	var rows []notificationRow
	q := `SELECT ` + notificationColumns + ` FROM notifications` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "created_at"}, core.DBOrdering{Field: "id"})
	if err := sqlx.SelectContext(ctx, repo.store.getExec(ctx), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		ns = append(ns, repo.fromRow(row))
	}
	return ns, nil
}

func (repo *notificationRepository) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	q := `UPDATE notifications SET message = $2, is_read = $3 WHERE id = $1`
	err := execAffecting(ctx, repo.store.getExec(ctx), notification.ErrNotFound, q, n.ID, n.Message, n.IsRead)
	if err != nil {
		if err == notification.ErrNotFound {
			return notification.Notification{}, err
		}
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	return n, nil
}

// Outbox

const intentColumns = `id, event, recipient, sender, payload, recorded, notification_id, status,
	attempts, last_error, next_attempt_at, created_at, updated_at`

type intentRow struct {
	ID             string      `db:"id"`
	Event          string      `db:"event"`
	Recipient      jsonb       `db:"recipient"`
	Sender         jsonb       `db:"sender"`
	Payload        jsonb       `db:"payload"`
	Recorded       bool        `db:"recorded"`
	NotificationID null.String `db:"notification_id"`
	Status         string      `db:"status"`
	Attempts       int         `db:"attempts"`
	LastError      null.String `db:"last_error"`
	NextAttemptAt  time.Time   `db:"next_attempt_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

type outboxRepository struct {
	store *Store
}

var _ notification.OutboxRepository = (*outboxRepository)(nil)

func NewOutboxRepository(store *Store) *outboxRepository {
	return &outboxRepository{store: store}
}

func (repo *outboxRepository) toRow(it notification.Intent) (intentRow, error) {
	row := intentRow{
		ID:             it.ID,
		Event:          string(it.Event),
		Recorded:       it.Recorded,
		NotificationID: nullString(it.NotificationID),
		Status:         string(it.Status),
		Attempts:       it.Attempts,
		LastError:      nullString(it.LastError),
		NextAttemptAt:  it.NextAttemptAt.UTC(),
		CreatedAt:      it.CreatedAt.UTC(),
		UpdatedAt:      it.UpdatedAt.UTC(),
	}
	var err error
	if row.Recipient, err = json.Marshal(it.Recipient); err != nil {
		return row, errors.Wrap(err, "encoding recipient")
	}
	if row.Sender, err = json.Marshal(it.Sender); err != nil {
		return row, errors.Wrap(err, "encoding sender")
	}
	if row.Payload, err = json.Marshal(it.Payload); err != nil {
		return row, errors.Wrap(err, "encoding payload")
	}
	return row, nil
}

func (repo *outboxRepository) fromRow(row intentRow) (notification.Intent, error) {
	it := notification.Intent{
		ID:             row.ID,
		Event:          notification.Event(row.Event),
		Recorded:       row.Recorded,
		NotificationID: row.NotificationID.String,
		Status:         notification.Status(row.Status),
		Attempts:       row.Attempts,
		LastError:      row.LastError.String,
		NextAttemptAt:  row.NextAttemptAt.UTC(),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(row.Recipient, &it.Recipient); err != nil {
		return it, errors.Wrapf(err, "decoding intent %s recipient", row.ID)
	}
	if err := json.Unmarshal(row.Sender, &it.Sender); err != nil {
		return it, errors.Wrapf(err, "decoding intent %s sender", row.ID)
	}
	if err := json.Unmarshal(row.Payload, &it.Payload); err != nil {
		return it, errors.Wrapf(err, "decoding intent %s payload", row.ID)
	}
	return it, nil
}

func (repo *outboxRepository) EnqueueIntents(ctx context.Context, intents ...notification.Intent) ([]notification.Intent, error) {
	if len(intents) == 0 {
		return intents, nil
	}
	q := `INSERT INTO notification_outbox (` + intentColumns + `) VALUES (
		:id, :event, :recipient, :sender, :payload, :recorded, :notification_id, :status,
		:attempts, :last_error, :next_attempt_at, :created_at, :updated_at)`

	saved := make([]notification.Intent, 0, len(intents))
	err := repo.store.WithinTx(ctx, func(ctx context.Context) error {
		saved = saved[:0]
		for _, it := range intents {
			it.ID = newID()
			row, err := repo.toRow(it)
			if err != nil {
				return err
			}
			if _, err = sqlx.NamedExecContext(ctx, repo.store.getExec(ctx), q, row); err != nil {
				return errors.Wrap(err, "inserting intent")
			}
			saved = append(saved, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (repo *outboxRepository) GetIntent(ctx context.Context, id string) (notification.Intent, error) {
	var row intentRow
	q := `SELECT ` + intentColumns + ` FROM notification_outbox WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.store.getExec(ctx), &row, q, id); err != nil {
		return notification.Intent{}, trapNoRowsErr(err, notification.ErrIntentNotFound, "selecting intent")
	}
	return repo.fromRow(row)
}

func (repo *outboxRepository) QueryDueIntents(ctx context.Context, now time.Time, limit int) ([]notification.Intent, error) {
	var w where
	w.add("status = $%d", string(notification.StatusPending))
	w.add("next_attempt_at <= $%d", now.UTC())

	q := `SELECT ` + intentColumns + ` FROM notification_outbox` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "created_at", Ascending: true}, core.DBOrdering{Field: "id", Ascending: true})
	if limit > 0 {
		w.args = append(w.args, limit)
		q += " LIMIT $3"
	}
	return repo.query(ctx, q, w.args)
}

func (repo *outboxRepository) QueryIntents(ctx context.Context, filter notification.IntentFilter) ([]notification.Intent, error) {
	var w where
	if filter.Status != "" {
		w.add("status = $%d", string(filter.Status))
	}
	if filter.Event != "" {
		w.add("event = $%d", string(filter.Event))
	}
	if filter.AssignmentID != "" {
		w.add("payload ->> 'assignmentId' = $%d", filter.AssignmentID)
	}
	q := `SELECT ` + intentColumns + ` FROM notification_outbox` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "created_at", Ascending: true}, core.DBOrdering{Field: "id", Ascending: true})
	return repo.query(ctx, q, w.args)
}

func (repo *outboxRepository) query(ctx context.Context, q string, args []interface{}) ([]notification.Intent, error) {
	var rows []intentRow
	if err := sqlx.SelectContext(ctx, repo.store.getExec(ctx), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting intents")
	}
	intents := make([]notification.Intent, 0, len(rows))
	for _, row := range rows {
		it, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		intents = append(intents, it)
	}
	return intents, nil
}

func (repo *outboxRepository) UpdateIntent(ctx context.Context, it notification.Intent) (notification.Intent, error) {
	row, err := repo.toRow(it)
	if err != nil {
		return notification.Intent{}, err
	}
	q := `UPDATE notification_outbox SET recorded = :recorded, notification_id = :notification_id,
		status = :status, attempts = :attempts, last_error = :last_error,
		next_attempt_at = :next_attempt_at, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.store.getExec(ctx), q, row)
	if err != nil {
		return notification.Intent{}, errors.Wrap(err, "updating intent")
	}
	if n, err := res.RowsAffected(); err != nil {
		return notification.Intent{}, errors.Wrap(err, "updating intent")
	} else if n == 0 {
		return notification.Intent{}, notification.ErrIntentNotFound
	}
	return it, nil
}
