package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/assignment"
)

const assignmentColumns = `id, title, description, deadline, course, group_no, teacher_id, status,
	student_id, github_link, submitted_at, grade, feedback, graded_at, created_at, updated_at`

type assignmentRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Deadline    time.Time   `db:"deadline"`
	Course      string      `db:"course"`
	GroupNo     string      `db:"group_no"`
	TeacherID   string      `db:"teacher_id"`
	Status      string      `db:"status"`
	StudentID   null.String `db:"student_id"`
	GithubLink  null.String `db:"github_link"`
	SubmittedAt null.Time   `db:"submitted_at"`
	Grade       null.Int    `db:"grade"`
	Feedback    null.String `db:"feedback"`
	GradedAt    null.Time   `db:"graded_at"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type assignmentRepository struct {
	store *Store
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(store *Store) *assignmentRepository {
	return &assignmentRepository{store: store}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (repo *assignmentRepository) toRow(a assignment.Assignment) assignmentRow {
	return assignmentRow{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Deadline:    a.Deadline.UTC(),
		Course:      a.Course,
		GroupNo:     a.GroupNo,
		TeacherID:   a.TeacherID,
		Status:      string(a.State()),
		StudentID:   null.NewString(a.StudentID, a.StudentID != ""),
		GithubLink:  null.NewString(a.GithubLink, a.GithubLink != ""),
		SubmittedAt: null.TimeFromPtr(utcPtr(a.SubmittedAt)),
		Grade:       null.IntFromPtr(a.Grade),
		Feedback:    null.NewString(a.Feedback, a.Feedback != ""),
		GradedAt:    null.TimeFromPtr(utcPtr(a.GradedAt)),
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func (repo *assignmentRepository) fromRow(row assignmentRow) assignment.Assignment {
	return assignment.Assignment{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Deadline:    row.Deadline.UTC(),
		Course:      row.Course,
		GroupNo:     row.GroupNo,
		TeacherID:   row.TeacherID,
		Status:      assignment.Status(row.Status),
		StudentID:   row.StudentID.String,
		GithubLink:  row.GithubLink.String,
		SubmittedAt: utcPtr(row.SubmittedAt.Ptr()),
		Grade:       row.Grade.Ptr(),
		Feedback:    row.Feedback.String,
		GradedAt:    utcPtr(row.GradedAt.Ptr()),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	a.ID = newID()
	q := `INSERT INTO assignments (` + assignmentColumns + `) VALUES (
		:id, :title, :description, :deadline, :course, :group_no, :teacher_id, :status,
		:student_id, :github_link, :submitted_at, :grade, :feedback, :graded_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.store.getExec(ctx), q, repo.toRow(a)); err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id string) (assignment.Assignment, error) {
	var row assignmentRow
	q := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.store.getExec(ctx), &row, q, id); err != nil {
		return assignment.Assignment{}, trapNoRowsErr(err, assignment.ErrNotFound, "selecting assignment")
	}
	return repo.fromRow(row), nil
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, filter assignment.Filter) ([]assignment.Assignment, error) {
	var w where
	if filter.Course != "" {
		w.add("course = $%d", filter.Course)
	}
	if filter.GroupNo != "" {
		w.add("group_no = $%d", filter.GroupNo)
	}
	if filter.TeacherID != "" {
		w.add("teacher_id = $%d", filter.TeacherID)
	}

	var rows []assignmentRow
	q := `SELECT ` + assignmentColumns + ` FROM assignments` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "created_at", Ascending: true}, core.DBOrdering{Field: "id", Ascending: true})
	if err := sqlx.SelectContext(ctx, repo.store.getExec(ctx), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting assignments")
	}
	as := make([]assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		as = append(as, repo.fromRow(row))
	}
	return as, nil
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	q := `UPDATE assignments SET title = :title, description = :description, deadline = :deadline,
		course = :course, group_no = :group_no, teacher_id = :teacher_id, status = :status,
		student_id = :student_id, github_link = :github_link, submitted_at = :submitted_at,
		grade = :grade, feedback = :feedback, graded_at = :graded_at, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.store.getExec(ctx), q, repo.toRow(a))
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, err := res.RowsAffected(); err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	} else if n == 0 {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return a, nil
}

func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	err := execAffecting(ctx, repo.store.getExec(ctx), assignment.ErrNotFound, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil && err != assignment.ErrNotFound {
		return errors.Wrap(err, "deleting assignment")
	}
	return err
}
