package boltrepos

import (
	"context"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/codeedu/lms/core/group"
)

type groupRepository struct {
	store *Store
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(store *Store) *groupRepository {
	return &groupRepository{store: store}
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		dups, err := scan[group.Group](tx, groupsBucket, group.Filter{Course: grp.Course, GroupNo: grp.GroupNo}.Match)
		if err != nil {
			return err
		}
		if len(dups) > 0 {
			return group.ErrExists
		}
		grp.ID = newID()
		return put(tx, groupsBucket, grp.ID, grp)
	})
	if err != nil {
		return group.Group{}, err
	}
	return grp, nil
}

func (repo *groupRepository) GetGroup(ctx context.Context, id string) (grp group.Group, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		var found bool
		if grp, found, err = get[group.Group](tx, groupsBucket, id); err != nil {
			return err
		}
		if !found {
			return group.ErrNotFound
		}
		return nil
	})
	return grp, err
}

func (repo *groupRepository) QueryGroups(ctx context.Context, filter group.Filter) (groups []group.Group, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		groups, err = scan[group.Group](tx, groupsBucket, filter.Match)
		return err
	})
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Course != groups[j].Course {
			return groups[i].Course < groups[j].Course
		}
		return groups[i].GroupNo < groups[j].GroupNo
	})
	return groups, err
}

func (repo *groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		if !exists(tx, groupsBucket, grp.ID) {
			return group.ErrNotFound
		}
		dups, err := scan[group.Group](tx, groupsBucket, group.Filter{
			Course:    grp.Course,
			GroupNo:   grp.GroupNo,
			ExcludeID: grp.ID,
		}.Match)
		if err != nil {
			return err
		}
		if len(dups) > 0 {
			return group.ErrExists
		}
		return put(tx, groupsBucket, grp.ID, grp)
	})
	if err != nil {
		return group.Group{}, err
	}
	return grp, nil
}

func (repo *groupRepository) DeleteGroup(ctx context.Context, id string) error {
	return repo.store.update(ctx, func(tx *bbolt.Tx) error {
		if !exists(tx, groupsBucket, id) {
			return group.ErrNotFound
		}
		return del(tx, groupsBucket, id)
	})
}
