package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/group"
)

const groupColumns = "id, course, group_no, created_at, updated_at"

type groupRow struct {
	ID        string    `db:"id"`
	Course    string    `db:"course"`
	GroupNo   string    `db:"group_no"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row groupRow) group() group.Group {
	return group.Group{
		ID:        row.ID,
		Course:    row.Course,
		GroupNo:   row.GroupNo,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type groupRepository struct {
	store *Store
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(store *Store) *groupRepository {
	return &groupRepository{store: store}
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	grp.ID = newID()
	q := `INSERT INTO study_groups (` + groupColumns + `) VALUES ($1, $2, $3, $4, $5)`
	_, err := repo.store.getExec(ctx).ExecContext(ctx, q, grp.ID, grp.Course, grp.GroupNo, grp.CreatedAt.UTC(), grp.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return group.Group{}, group.ErrExists
		}
		return group.Group{}, errors.Wrap(err, "inserting group")
	}
	return grp, nil
}

func (repo *groupRepository) GetGroup(ctx context.Context, id string) (group.Group, error) {
	var row groupRow
	q := `SELECT ` + groupColumns + ` FROM study_groups WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.store.getExec(ctx), &row, q, id); err != nil {
		return group.Group{}, trapNoRowsErr(err, group.ErrNotFound, "selecting group")
	}
	return row.group(), nil
}

func (repo *groupRepository) QueryGroups(ctx context.Context, filter group.Filter) ([]group.Group, error) {
	var w where
	if filter.Course != "" {
		w.add("course = $%d", filter.Course)
	}
	if filter.GroupNo != "" {
		w.add("group_no = $%d", filter.GroupNo)
	}
	if filter.ExcludeID != "" {
		w.add("id <> $%d", filter.ExcludeID)
	}

	var rows []groupRow
	q := `SELECT ` + groupColumns + ` FROM study_groups` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "course", Ascending: true}, core.DBOrdering{Field: "group_no", Ascending: true})
	if err := sqlx.SelectContext(ctx, repo.store.getExec(ctx), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting groups")
	}
	groups := make([]group.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, row.group())
	}
	return groups, nil
}

func (repo *groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	q := `UPDATE study_groups SET course = $2, group_no = $3, updated_at = $4 WHERE id = $1`
	err := execAffecting(ctx, repo.store.getExec(ctx), group.ErrNotFound, q, grp.ID, grp.Course, grp.GroupNo, grp.UpdatedAt.UTC())
	switch {
	case err == nil:
		return grp, nil
	case isUniqueViolation(err):
		return group.Group{}, group.ErrExists
	case err == group.ErrNotFound:
		return group.Group{}, err
	}
	return group.Group{}, errors.Wrap(err, "updating group")
}

func (repo *groupRepository) DeleteGroup(ctx context.Context, id string) error {
	err := execAffecting(ctx, repo.store.getExec(ctx), group.ErrNotFound, `DELETE FROM study_groups WHERE id = $1`, id)
	if err != nil && err != group.ErrNotFound {
		return errors.Wrap(err, "deleting group")
	}
	return err
}
