package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codeedu/lms/core/assignment"
	"github.com/codeedu/lms/core/group"
	"github.com/codeedu/lms/core/notification"
	"github.com/codeedu/lms/core/user"
)

// Documents keep the entity id as _id; the embedded fields use the driver's lowercase keys.
type (
	userDoc struct {
		ID        string `bson:"_id"`
		user.User `bson:",inline"`
	}

	groupDoc struct {
		ID          string `bson:"_id"`
		group.Group `bson:",inline"`
	}

	assignmentDoc struct {
		ID                    string `bson:"_id"`
		assignment.Assignment `bson:",inline"`
	}

	notificationDoc struct {
		ID                        string `bson:"_id"`
		notification.Notification `bson:",inline"`
	}

	intentDoc struct {
		ID                  string `bson:"_id"`
		notification.Intent `bson:",inline"`
	}
)

// Users

type userRepository struct {
	store *Store
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(store *Store) *userRepository {
	return &userRepository{store: store}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	if _, err := repo.store.coll(usersColl).InsertOne(ctx, userDoc{ID: usr.ID, User: usr}); err != nil {
		if isDuplicateKey(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := bson.M{}
	if filter.ID != "" {
		q["_id"] = filter.ID
	}
	if filter.Email != "" {
		q["email"] = filter.Email
	}
	if len(q) == 0 {
		return user.User{}, user.ErrNotFound
	}
	doc, err := findOne[userDoc](ctx, repo.store.coll(usersColl), q, user.ErrNotFound)
	return doc.User, err
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.Filter) ([]user.User, error) {
	q := bson.M{}
	if filter.Role != "" {
		q["role"] = filter.Role
	}
	if filter.Course != "" {
		q["course"] = filter.Course
	}
	if filter.GroupNo != nil {
		q["groupno"] = *filter.GroupNo
	}
	if len(filter.IDs) > 0 {
		q["_id"] = bson.M{"$in": filter.IDs}
	}
	opts := options.Find().SetSort(bson.D{{Key: "surname", Value: 1}, {Key: "name", Value: 1}})
	docs, err := findAll[userDoc](ctx, repo.store.coll(usersColl), q, opts)
	if err != nil {
		return nil, err
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.User)
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if err := replace(ctx, repo.store.coll(usersColl), usr.ID, userDoc{ID: usr.ID, User: usr}, user.ErrNotFound); err != nil {
		if isDuplicateKey(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	n, err := repo.store.coll(usersColl).CountDocuments(ctx, bson.M{"email": email}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, "counting users")
	}
	return n > 0, nil
}

// Groups

type groupRepository struct {
	store *Store
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(store *Store) *groupRepository {
	return &groupRepository{store: store}
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	grp.ID = newID()
	if _, err := repo.store.coll(groupsColl).InsertOne(ctx, groupDoc{ID: grp.ID, Group: grp}); err != nil {
		if isDuplicateKey(err) {
			return group.Group{}, group.ErrExists
		}
		return group.Group{}, errors.Wrap(err, "inserting group")
	}
	return grp, nil
}

func (repo *groupRepository) GetGroup(ctx context.Context, id string) (group.Group, error) {
	doc, err := findOne[groupDoc](ctx, repo.store.coll(groupsColl), bson.M{"_id": id}, group.ErrNotFound)
	return doc.Group, err
}

func (repo *groupRepository) QueryGroups(ctx context.Context, filter group.Filter) ([]group.Group, error) {
	q := bson.M{}
	if filter.Course != "" {
		q["course"] = filter.Course
	}
	if filter.GroupNo != "" {
		q["groupno"] = filter.GroupNo
	}
	if filter.ExcludeID != "" {
		q["_id"] = bson.M{"$ne": filter.ExcludeID}
	}
	opts := options.Find().SetSort(bson.D{{Key: "course", Value: 1}, {Key: "groupno", Value: 1}})
	docs, err := findAll[groupDoc](ctx, repo.store.coll(groupsColl), q, opts)
	if err != nil {
		return nil, err
	}
	groups := make([]group.Group, 0, len(docs))
	for _, doc := range docs {
		groups = append(groups, doc.Group)
	}
	return groups, nil
}

func (repo *groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	if err := replace(ctx, repo.store.coll(groupsColl), grp.ID, groupDoc{ID: grp.ID, Group: grp}, group.ErrNotFound); err != nil {
		if isDuplicateKey(err) {
			return group.Group{}, group.ErrExists
		}
		return group.Group{}, err
	}
	return grp, nil
}

func (repo *groupRepository) DeleteGroup(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.store.coll(groupsColl), id, group.ErrNotFound)
}

// Assignments

type assignmentRepository struct {
	store *Store
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(store *Store) *assignmentRepository {
	return &assignmentRepository{store: store}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	a.ID = newID()
	if _, err := repo.store.coll(assignmentsColl).InsertOne(ctx, assignmentDoc{ID: a.ID, Assignment: a}); err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id string) (assignment.Assignment, error) {
	doc, err := findOne[assignmentDoc](ctx, repo.store.coll(assignmentsColl), bson.M{"_id": id}, assignment.ErrNotFound)
	return doc.Assignment, err
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, filter assignment.Filter) ([]assignment.Assignment, error) {
	q := bson.M{}
	if filter.Course != "" {
		q["course"] = filter.Course
	}
	if filter.GroupNo != "" {
		q["groupno"] = filter.GroupNo
	}
	if filter.TeacherID != "" {
		q["teacherid"] = filter.TeacherID
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: 1}, {Key: "_id", Value: 1}})
	docs, err := findAll[assignmentDoc](ctx, repo.store.coll(assignmentsColl), q, opts)
	if err != nil {
		return nil, err
	}
	as := make([]assignment.Assignment, 0, len(docs))
	for _, doc := range docs {
		as = append(as, doc.Assignment)
	}
	return as, nil
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	if err := replace(ctx, repo.store.coll(assignmentsColl), a.ID, assignmentDoc{ID: a.ID, Assignment: a}, assignment.ErrNotFound); err != nil {
		return assignment.Assignment{}, err
	}
	return a, nil
}

func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	return deleteByID(ctx, repo.store.coll(assignmentsColl), id, assignment.ErrNotFound)
}

// Notifications

type notificationRepository struct {
	store *Store
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(store *Store) *notificationRepository {
	return &notificationRepository{store: store}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = newID()
	if _, err := repo.store.coll(notificationsColl).InsertOne(ctx, notificationDoc{ID: n.ID, Notification: n}); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	doc, err := findOne[notificationDoc](ctx, repo.store.coll(notificationsColl), bson.M{"_id": id}, notification.ErrNotFound)
	return doc.Notification, err
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, filter notification.Filter) ([]notification.Notification, error) {
	q := bson.M{}
	if filter.RecipientID != "" {
		q["recipientid"] = filter.RecipientID
	}
	if filter.RecipientRole != "" {
		q["recipientrole"] = filter.RecipientRole
	}
	if filter.Course != "" {
		q["course"] = filter.Course
	}
	if filter.GroupNo != nil {
		q["groupno"] = *filter.GroupNo
	}
	if filter.AssignmentID != "" {
		q["assignmentid"] = filter.AssignmentID
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: -1}, {Key: "_id", Value: -1}})
	docs, err := findAll[notificationDoc](ctx, repo.store.coll(notificationsColl), q, opts)
	if err != nil {
		return nil, err
	}
	ns := make([]notification.Notification, 0, len(docs))
	for _, doc := range docs {
		ns = append(ns, doc.Notification)
	}
	return ns, nil
}

func (repo *notificationRepository) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if err := replace(ctx, repo.store.coll(notificationsColl), n.ID, notificationDoc{ID: n.ID, Notification: n}, notification.ErrNotFound); err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

// Outbox

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
	docs := make([]interface{}, len(intents))
	for i, it := range intents {
		it.ID = newID()
		saved[i] = it
		docs[i] = intentDoc{ID: it.ID, Intent: it}
	}
	if _, err := repo.store.coll(outboxColl).InsertMany(ctx, docs); err != nil {
		return nil, errors.Wrap(err, "inserting intents")
	}
	return saved, nil
}

func (repo *outboxRepository) GetIntent(ctx context.Context, id string) (notification.Intent, error) {
	doc, err := findOne[intentDoc](ctx, repo.store.coll(outboxColl), bson.M{"_id": id}, notification.ErrIntentNotFound)
	return doc.Intent, err
}

func (repo *outboxRepository) QueryDueIntents(ctx context.Context, now time.Time, limit int) ([]notification.Intent, error) {
	q := bson.M{
		"status":        notification.StatusPending,
		"nextattemptat": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return repo.query(ctx, q, opts)
}

func (repo *outboxRepository) QueryIntents(ctx context.Context, filter notification.IntentFilter) ([]notification.Intent, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.Event != "" {
		q["event"] = filter.Event
	}
	if filter.AssignmentID != "" {
		q["payload.assignmentid"] = filter.AssignmentID
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: 1}, {Key: "_id", Value: 1}})
	return repo.query(ctx, q, opts)
}

func (repo *outboxRepository) query(ctx context.Context, q bson.M, opts *options.FindOptions) ([]notification.Intent, error) {
	docs, err := findAll[intentDoc](ctx, repo.store.coll(outboxColl), q, opts)
	if err != nil {
		return nil, err
	}
	intents := make([]notification.Intent, 0, len(docs))
	for _, doc := range docs {
		intents = append(intents, doc.Intent)
	}
	return intents, nil
}

func (repo *outboxRepository) UpdateIntent(ctx context.Context, it notification.Intent) (notification.Intent, error) {
	if err := replace(ctx, repo.store.coll(outboxColl), it.ID, intentDoc{ID: it.ID, Intent: it}, notification.ErrIntentNotFound); err != nil {
		return notification.Intent{}, err
	}
	return it, nil
}
