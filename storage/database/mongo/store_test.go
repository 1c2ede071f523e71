package mongorepos

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/group"
	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
)

// openStore connects to TEST_MONGO_URI; the tests are skipped without it.
// Set TEST_MONGO_DISABLE_TX for standalone servers.
func openStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	conf := core.NewTestConfig()
	conf.Database.URI = uri
	conf.Database.Name = "codeedu_test"
	conf.Database.DisableTx = os.Getenv("TEST_MONGO_DISABLE_TX") != ""

	ctx := context.Background()
	store, err := Open(ctx, conf)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.DropDatabase(ctx)
		_ = store.Close(ctx)
	})
	require.NoError(t, store.DropDatabase(ctx))
	require.NoError(t, store.ensureIndexes(ctx))
	return store
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openStore(t))

	groupNo := "FE-1"
	usr, err := repo.CreateUser(ctx, user.User{Name: "Bob", Email: "bob@code.edu.az", Role: user.RoleStudent, Course: "Front-end", GroupNo: groupNo})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, user.User{Email: "bob@code.edu.az"})
	assert.Equal(t, user.ErrEmailExists, err)

	got, err := repo.GetUser(ctx, user.GetFilter{Email: "bob@code.edu.az"})
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)
	assert.Equal(t, groupNo, got.GroupNo)

	students, err := repo.QueryUsers(ctx, user.StudentsOf("Front-end", groupNo))
	require.NoError(t, err)
	assert.Len(t, students, 1)

	_, err = repo.GetUser(ctx, user.GetFilter{ID: "nope"})
	assert.Equal(t, user.ErrNotFound, err)
}

func TestGroupRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepository(openStore(t))

	_, err := repo.CreateGroup(ctx, group.Group{Course: "Back-end", GroupNo: "BE-1"})
	require.NoError(t, err)
	_, err = repo.CreateGroup(ctx, group.Group{Course: "Back-end", GroupNo: "BE-1"})
	assert.Equal(t, group.ErrExists, err)
	assert.Equal(t, group.ErrNotFound, repo.DeleteGroup(ctx, "nope"))
}

func TestStore_WithinTx(t *testing.T) {
	store := openStore(t)
	if store.disableTx {
		t.Skip("transactions disabled")
	}
	ctx := context.Background()
	repo := NewGroupRepository(store)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := repo.CreateGroup(ctx, group.Group{Course: "Back-end", GroupNo: "BE-1"}); err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, boom, err)

	groups, err := repo.QueryGroups(ctx, group.Filter{})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(openStore(t))
	now := time.Now().UTC()

	intents, err := repo.EnqueueIntents(ctx,
		notification.Intent{Status: notification.StatusPending, NextAttemptAt: now.Add(-time.Second), CreatedAt: now.Add(-time.Second)},
		notification.Intent{Status: notification.StatusPending, NextAttemptAt: now.Add(time.Hour), CreatedAt: now},
		notification.Intent{Status: notification.StatusFailed, NextAttemptAt: now.Add(-time.Second), CreatedAt: now},
	)
	require.NoError(t, err)

	due, err := repo.QueryDueIntents(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, intents[0].ID, due[0].ID)

	_, err = repo.GetIntent(ctx, "nope")
	assert.Equal(t, notification.ErrIntentNotFound, err)
}
