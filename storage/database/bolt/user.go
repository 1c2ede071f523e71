package boltrepos

import (
	"context"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/codeedu/lms/core/user"
)

type userRepository struct {
	store *Store
}

// userDoc keeps the password hash, which user.User leaves out of its JSON.
type userDoc struct {
	user.User
	PasswordHash []byte `json:"passwordHash"`
}

func newUserDoc(usr user.User) userDoc {
	return userDoc{User: usr, PasswordHash: usr.PasswordHash}
}

func (doc userDoc) toUser() user.User {
	usr := doc.User
	usr.PasswordHash = doc.PasswordHash
	return usr
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(store *Store) *userRepository {
	return &userRepository{store: store}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		if exists(tx, userEmailsBucket, usr.Email) {
			return user.ErrEmailExists
		}
		usr.ID = newID()
		if err := put(tx, usersBucket, usr.ID, newUserDoc(usr)); err != nil {
			return err
		}
		return tx.Bucket(userEmailsBucket).Put([]byte(usr.Email), []byte(usr.ID))
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (usr user.User, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		id := filter.ID
		if id == "" && filter.Email != "" {
			id = string(tx.Bucket(userEmailsBucket).Get([]byte(filter.Email)))
		}
		doc, found, err := get[userDoc](tx, usersBucket, id)
		if err != nil {
			return err
		}
		usr = doc.toUser()
		if !found || (filter.Email != "" && usr.Email != filter.Email) {
			return user.ErrNotFound
		}
		return nil
	})
	return usr, err
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.Filter) (users []user.User, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		docs, err := scan[userDoc](tx, usersBucket, func(doc userDoc) bool {
			return filter.Match(doc.toUser())
		})
		if err != nil {
			return err
		}
		users = make([]user.User, 0, len(docs))
		for _, doc := range docs {
			users = append(users, doc.toUser())
		}
		return nil
	})
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Surname != users[j].Surname {
			return users[i].Surname < users[j].Surname
		}
		return users[i].Name < users[j].Name
	})
	return users, err
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		old, found, err := get[userDoc](tx, usersBucket, usr.ID)
		if err != nil {
			return err
		}
		if !found {
			return user.ErrNotFound
		}
		if old.Email != usr.Email {
			if exists(tx, userEmailsBucket, usr.Email) {
				return user.ErrEmailExists
			}
			if err = del(tx, userEmailsBucket, old.Email); err != nil {
				return err
			}
			if err = tx.Bucket(userEmailsBucket).Put([]byte(usr.Email), []byte(usr.ID)); err != nil {
				return err
			}
		}
		return put(tx, usersBucket, usr.ID, newUserDoc(usr))
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) EmailExists(ctx context.Context, email string) (found bool, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		found = exists(tx, userEmailsBucket, email)
		return nil
	})
	return found, err
}
