package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/user"
)

const userColumns = "id, name, surname, email, password_hash, course, group_no, role, created_at, updated_at, last_login"

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Surname      string      `db:"surname"`
	Email        string      `db:"email"`
	PasswordHash []byte      `db:"password_hash"`
	Course       string      `db:"course"`
	GroupNo      null.String `db:"group_no"`
	Role         string      `db:"role"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type userRepository struct {
	store *Store
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(store *Store) *userRepository {
	return &userRepository{store: store}
}

func (repo *userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Surname:      usr.Surname,
		Email:        usr.Email,
		PasswordHash: usr.PasswordHash,
		Course:       usr.Course,
		GroupNo:      null.NewString(usr.GroupNo, usr.GroupNo != ""),
		Role:         usr.Role,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo *userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Surname:      row.Surname,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Course:       row.Course,
		GroupNo:      row.GroupNo.String,
		Role:         row.Role,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :name, :surname, :email, :password_hash, :course, :group_no, :role, :created_at, :updated_at, :last_login)`
	if _, err := sqlx.NamedExecContext(ctx, repo.store.getExec(ctx), q, repo.toRow(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var w where
	if filter.ID != "" {
		w.add("id = $%d", filter.ID)
	}
	if filter.Email != "" {
		w.add("email = $%d", filter.Email)
	}
	if len(w.args) == 0 {
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := `SELECT ` + userColumns + ` FROM users` + w.String()
	if err := sqlx.GetContext(ctx, repo.store.getExec(ctx), &row, q, w.args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "selecting user")
	}
	return repo.fromRow(row), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.Filter) ([]user.User, error) {
	var w where
	if filter.Role != "" {
		w.add("role = $%d", filter.Role)
	}
	if filter.Course != "" {
		w.add("course = $%d", filter.Course)
	}
	if filter.GroupNo != nil {
		w.add("COALESCE(group_no, '') = $%d", *filter.GroupNo)
	}
	if len(filter.IDs) > 0 {
		w.add("id = ANY($%d)", pq.Array(filter.IDs))
	}

	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM users` + w.String() +
		core.OrderBy(core.DBOrdering{Field: "surname", Ascending: true}, core.DBOrdering{Field: "name", Ascending: true})
	if err := sqlx.SelectContext(ctx, repo.store.getExec(ctx), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET name = $2, surname = $3, email = $4, password_hash = $5, course = $6,
		group_no = $7, role = $8, updated_at = $9, last_login = $10 WHERE id = $1`
	row := repo.toRow(usr)
	err := execAffecting(ctx, repo.store.getExec(ctx), user.ErrNotFound, q,
		row.ID, row.Name, row.Surname, row.Email, row.PasswordHash, row.Course,
		row.GroupNo, row.Role, row.UpdatedAt, row.LastLogin)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		if err == user.ErrNotFound {
			return user.User{}, err
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

func (repo *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`
	if err := sqlx.GetContext(ctx, repo.store.getExec(ctx), &exists, q, email); err != nil {
		return false, errors.Wrap(err, "checking email")
	}
	return exists, nil
}
