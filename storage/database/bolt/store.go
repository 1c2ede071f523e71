// Package boltrepos stores the domain entities as JSON documents in an embedded bbolt file.
package boltrepos

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/codeedu/lms/core"
)

var (
	usersBucket         = []byte("users")
	userEmailsBucket    = []byte("user_emails") // email -> user id
	groupsBucket        = []byte("groups")
	assignmentsBucket   = []byte("assignments")
	notificationsBucket = []byte("notifications")
	outboxBucket        = []byte("outbox")

	buckets = [][]byte{
		usersBucket,
		userEmailsBucket,
		groupsBucket,
		assignmentsBucket,
		notificationsBucket,
		outboxBucket,
	}

	errReadOnlyTx = errors.New("write inside a read-only transaction")
)

type txKey struct{}

// Store is a bbolt database holding one bucket per entity.
type Store struct {
	db *bbolt.DB
}

var _ core.Transactor = (*Store)(nil)

// Open opens (or creates) the database file at path and makes sure every bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "creating database directory")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening bolt database")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating buckets")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a read-write transaction. A fn called with a ctx already carrying one joins it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*bbolt.Tx); ok {
		return fn(ctx)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (s *Store) update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if tx, ok := ctx.Value(txKey{}).(*bbolt.Tx); ok {
		if !tx.Writable() {
			return errReadOnlyTx
		}
		return fn(tx)
	}
	return s.db.Update(fn)
}

func (s *Store) view(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if tx, ok := ctx.Value(txKey{}).(*bbolt.Tx); ok {
		return fn(tx)
	}
	return s.db.View(fn)
}

func newID() string {
	return uuid.New().String()
}

func put(tx *bbolt.Tx, bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding %s/%s", bucket, key)
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// get decodes the document stored under key. found is false when the key is missing.
func get[T any](tx *bbolt.Tx, bucket []byte, key string) (out T, found bool, err error) {
	if key == "" {
		return out, false, nil
	}
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return out, false, nil
	}
	if err = json.Unmarshal(data, &out); err != nil {
		return out, false, errors.Wrapf(err, "decoding %s/%s", bucket, key)
	}
	return out, true, nil
}

func exists(tx *bbolt.Tx, bucket []byte, key string) bool {
	return key != "" && tx.Bucket(bucket).Get([]byte(key)) != nil
}

func del(tx *bbolt.Tx, bucket []byte, key string) error {
	return tx.Bucket(bucket).Delete([]byte(key))
}

// scan decodes every document of bucket and keeps those match accepts.
func scan[T any](tx *bbolt.Tx, bucket []byte, match func(T) bool) ([]T, error) {
	results := make([]T, 0)
	err := tx.Bucket(bucket).ForEach(func(k, v []byte) error {
		var out T
		if err := json.Unmarshal(v, &out); err != nil {
			return errors.Wrapf(err, "decoding %s/%s", bucket, k)
		}
		if match == nil || match(out) {
			results = append(results, out)
		}
		return nil
	})
	return results, err
}
