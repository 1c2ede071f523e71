package boltrepos

import (
	"context"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/codeedu/lms/core/assignment"
)

type assignmentRepository struct {
	store *Store
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(store *Store) *assignmentRepository {
	return &assignmentRepository{store: store}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		a.ID = newID()
		return put(tx, assignmentsBucket, a.ID, a)
	})
	if err != nil {
		return assignment.Assignment{}, err
	}
	return a, nil
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id string) (a assignment.Assignment, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		var found bool
		if a, found, err = get[assignment.Assignment](tx, assignmentsBucket, id); err != nil {
			return err
		}
		if !found {
			return assignment.ErrNotFound
		}
		return nil
	})
	return a, err
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, filter assignment.Filter) (as []assignment.Assignment, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		as, err = scan[assignment.Assignment](tx, assignmentsBucket, filter.Match)
		return err
	})
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].CreatedAt.Before(as[j].CreatedAt)
		}
		return as[i].ID < as[j].ID
	})
	return as, err
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		if !exists(tx, assignmentsBucket, a.ID) {
			return assignment.ErrNotFound
		}
		return put(tx, assignmentsBucket, a.ID, a)
	})
	if err != nil {
		return assignment.Assignment{}, err
	}
	return a, nil
}

func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	return repo.store.update(ctx, func(tx *bbolt.Tx) error {
		if !exists(tx, assignmentsBucket, id) {
			return assignment.ErrNotFound
		}
		return del(tx, assignmentsBucket, id)
	})
}
