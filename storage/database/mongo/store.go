// Package mongorepos stores the domain entities in MongoDB, one collection per entity.
package mongorepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/codeedu/lms/core"
)

// Collections
const (
	usersColl         = "users"
	groupsColl        = "groups"
	assignmentsColl   = "assignments"
	notificationsColl = "notifications"
	outboxColl        = "outbox"
)

const duplicateKeyCode = 11000

type txKey struct{}

// Store is a MongoDB database.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	disableTx bool
}

var _ core.Transactor = (*Store)(nil)

// Open connects to the configured server, waits for it to answer and ensures the indexes exist.
func Open(ctx context.Context, conf *core.Config) (*Store, error) {
	timeout := conf.Database.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.Database.MongoURI()))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}

	store := &Store{
		client:    client,
		db:        client.Database(conf.Database.Name),
		disableTx: conf.Database.DisableTx,
	}
	if err = store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersColl: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "course", Value: 1}, {Key: "groupno", Value: 1}}},
		},
		groupsColl: {
			{Keys: bson.D{{Key: "course", Value: 1}, {Key: "groupno", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		assignmentsColl: {
			{Keys: bson.D{{Key: "course", Value: 1}, {Key: "groupno", Value: 1}, {Key: "createdat", Value: 1}}},
		},
		notificationsColl: {
			{Keys: bson.D{{Key: "recipientid", Value: 1}, {Key: "createdat", Value: -1}}},
		},
		outboxColl: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextattemptat", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "creating %s indexes", coll)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DropDatabase removes every collection; tests only.
func (s *Store) DropDatabase(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// WithinTx runs fn in a multi-document transaction.
// With DisableTx (standalone servers) fn runs directly and writes are not atomic.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.disableTx || ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// may be retried on transient errors
		return nil, fn(context.WithValue(sc, txKey{}, true))
	})
	return err
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func newID() string {
	return uuid.New().String()
}

func isDuplicateKey(err error) bool {
	switch e := errors.Cause(err).(type) {
	case mongo.WriteException:
		for _, we := range e.WriteErrors {
			if we.Code == duplicateKeyCode {
				return true
			}
		}
	case mongo.CommandError:
		return e.Code == duplicateKeyCode
	}
	return false
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", coll.Name())
	}
	results := make([]T, 0)
	if err = cur.All(ctx, &results); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", coll.Name())
	}
	return results, nil
}

// findOne decodes the first match; notFound is returned for no documents.
func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, notFound error) (out T, err error) {
	err = coll.FindOne(ctx, filter).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return out, notFound
	}
	if err != nil {
		return out, errors.Wrapf(err, "querying %s", coll.Name())
	}
	return out, nil
}

func replace(ctx context.Context, coll *mongo.Collection, id string, doc interface{}, notFound error) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return errors.Wrapf(err, "replacing in %s", coll.Name())
	}
	if res.MatchedCount == 0 {
		return notFound
	}
	return nil
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id string, notFound error) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "deleting from %s", coll.Name())
	}
	if res.DeletedCount == 0 {
		return notFound
	}
	return nil
}
