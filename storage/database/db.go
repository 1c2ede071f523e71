package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/codeedu/lms/core"
	"github.com/codeedu/lms/core/assignment"
	"github.com/codeedu/lms/core/group"
	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
	appfs "github.com/codeedu/lms/fs"
	boltrepos "github.com/codeedu/lms/storage/database/bolt"
	mongorepos "github.com/codeedu/lms/storage/database/mongo"
	pgrepos "github.com/codeedu/lms/storage/database/postgres"
)

// Repositories are the stores of one database engine, sharing its transactions.
type Repositories struct {
	Users         user.Repository
	Groups        group.Repository
	Assignments   assignment.Repository
	Notifications notification.Repository
	Outbox        notification.OutboxRepository
	Tx            core.Transactor

	close func() error
}

func (r *Repositories) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// NewRepositories opens the configured engine. Postgres databases are migrated up first.
func NewRepositories(ctx context.Context, conf *core.Config) (*Repositories, error) {
	switch conf.Database.Engine {
	case core.EngineBolt:
		store, err := boltrepos.Open(conf.Database.Path)
		if err != nil {
			return nil, err
		}
		return NewBoltRepositories(store), nil

	case core.EngineMongo:
		store, err := mongorepos.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Users:         mongorepos.NewUserRepository(store),
			Groups:        mongorepos.NewGroupRepository(store),
			Assignments:   mongorepos.NewAssignmentRepository(store),
			Notifications: mongorepos.NewNotificationRepository(store),
			Outbox:        mongorepos.NewOutboxRepository(store),
			Tx:            store,
			close:         func() error { return store.Close(context.Background()) },
		}, nil

	case core.EnginePostgres:
		db, err := Open(conf)
		if err != nil {
			return nil, errors.Wrap(err, "opening database")
		}
		if err = ping(db.DB); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "pinging database")
		}
		if err = Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewPostgresRepositories(db), nil
	}
	return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

func NewBoltRepositories(store *boltrepos.Store) *Repositories {
	return &Repositories{
		Users:         boltrepos.NewUserRepository(store),
		Groups:        boltrepos.NewGroupRepository(store),
		Assignments:   boltrepos.NewAssignmentRepository(store),
		Notifications: boltrepos.NewNotificationRepository(store),
		Outbox:        boltrepos.NewOutboxRepository(store),
		Tx:            store,
		close:         store.Close,
	}
}

func NewPostgresRepositories(db *sqlx.DB) *Repositories {
	store := pgrepos.NewStore(db)
	return &Repositories{
		Users:         pgrepos.NewUserRepository(store),
		Groups:        pgrepos.NewGroupRepository(store),
		Assignments:   pgrepos.NewAssignmentRepository(store),
		Notifications: pgrepos.NewNotificationRepository(store),
		Outbox:        pgrepos.NewOutboxRepository(store),
		Tx:            store,
		close:         db.Close,
	}
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   core.EnginePostgres,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sqlx.Open(core.EnginePostgres, u.String())
}

// Open returns a handle on the application's postgres database.
func Open(conf *core.Config) (*sqlx.DB, error) {
	return open(conf.Database.Name, false, conf)
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query, name string) (bool, error) {
	var found bool
	if err := db.Get(&found, query, name); err != nil {
		return false, err
	}
	return found, nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		// identifiers and passwords cannot be bound as parameters
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user (as admin) then the app database (as the app user).
func CreateIfNotExist(conf *core.Config) error {
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return err
	}

	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

func Migrate(db *sql.DB) error {
	if err := goose.RunFS("up", db, appfs.FS, "migrations"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
