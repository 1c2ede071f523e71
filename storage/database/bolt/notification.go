package boltrepos

import (
	"context"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/codeedu/lms/core/notification"
)

type notificationRepository struct {
	store *Store
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(store *Store) *notificationRepository {
	return &notificationRepository{store: store}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		n.ID = newID()
		return put(tx, notificationsBucket, n.ID, n)
	})
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string) (n notification.Notification, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		var found bool
		if n, found, err = get[notification.Notification](tx, notificationsBucket, id); err != nil {
			return err
		}
		if !found {
			return notification.ErrNotFound
		}
		return nil
	})
	return n, err
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, filter notification.Filter) (ns []notification.Notification, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		ns, err = scan[notification.Notification](tx, notificationsBucket, filter.Match)
		return err
	})
	sort.SliceStable(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.After(ns[j].CreatedAt)
		}
		return ns[i].ID > ns[j].ID
	})
	return ns, err
}

func (repo *notificationRepository) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		if !exists(tx, notificationsBucket, n.ID) {
			return notification.ErrNotFound
		}
		return put(tx, notificationsBucket, n.ID, n)
	})
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

type outboxRepository struct {
	store *Store
}

var _ notification.OutboxRepository = (*outboxRepository)(nil)

func NewOutboxRepository(store *Store) *outboxRepository {
	return &outboxRepository{store: store}
}

func (repo *outboxRepository) EnqueueIntents(ctx context.Context, intents ...notification.Intent) ([]notification.Intent, error) {
	if len(intents) == 0 {
		return intents, nil
	}
	saved := make([]notification.Intent, len(intents))
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		for i, it := range intents {
			it.ID = newID()
			if err := put(tx, outboxBucket, it.ID, it); err != nil {
				return err
			}
			saved[i] = it
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (repo *outboxRepository) GetIntent(ctx context.Context, id string) (it notification.Intent, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		var found bool
		if it, found, err = get[notification.Intent](tx, outboxBucket, id); err != nil {
			return err
		}
		if !found {
			return notification.ErrIntentNotFound
		}
		return nil
	})
	return it, err
}

func (repo *outboxRepository) QueryDueIntents(ctx context.Context, now time.Time, limit int) ([]notification.Intent, error) {
	intents, err := repo.query(ctx, func(it notification.Intent) bool { return it.Due(now) })
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(intents) > limit {
		intents = intents[:limit]
	}
	return intents, nil
}

func (repo *outboxRepository) QueryIntents(ctx context.Context, filter notification.IntentFilter) ([]notification.Intent, error) {
	return repo.query(ctx, filter.Match)
}

func (repo *outboxRepository) query(ctx context.Context, match func(notification.Intent) bool) (intents []notification.Intent, err error) {
	err = repo.store.view(ctx, func(tx *bbolt.Tx) error {
		intents, err = scan[notification.Intent](tx, outboxBucket, match)
		return err
	})
	sort.SliceStable(intents, func(i, j int) bool {
		if !intents[i].CreatedAt.Equal(intents[j].CreatedAt) {
			return intents[i].CreatedAt.Before(intents[j].CreatedAt)
		}
		return intents[i].ID < intents[j].ID
	})
	return intents, err
}

func (repo *outboxRepository) UpdateIntent(ctx context.Context, it notification.Intent) (notification.Intent, error) {
	err := repo.store.update(ctx, func(tx *bbolt.Tx) error {
		if !exists(tx, outboxBucket, it.ID) {
			return notification.ErrIntentNotFound
		}
		return put(tx, outboxBucket, it.ID, it)
	})
	if err != nil {
		return notification.Intent{}, err
	}
	return it, nil
}
