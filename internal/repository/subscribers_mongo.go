package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/octobees/lead-capture/internal/entity"
)

type subscriberDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Email          string             `bson:"email"`
	Name           string             `bson:"name,omitempty"`
	Confirmed      bool               `bson:"confirmed"`
	Unsubscribed   bool               `bson:"unsubscribed"`
	Token          string             `bson:"token"`
	SubscribedAt   time.Time          `bson:"subscribed_at"`
	ConfirmedAt    *time.Time         `bson:"confirmed_at,omitempty"`
	UnsubscribedAt *time.Time         `bson:"unsubscribed_at,omitempty"`
}

func newSubscriberDocument(sub entity.Subscriber) subscriberDocument {
	return subscriberDocument{
		Email:          sub.Email,
		Name:           sub.Name,
		Confirmed:      sub.Confirmed,
		Unsubscribed:   sub.Unsubscribed,
		Token:          sub.Token,
		SubscribedAt:   sub.SubscribedAt,
		ConfirmedAt:    sub.ConfirmedAt,
		UnsubscribedAt: sub.UnsubscribedAt,
	}
}

func (d subscriberDocument) toEntity() entity.Subscriber {
	return entity.Subscriber{
		ID:             d.ID.Hex(),
		Email:          d.Email,
		Name:           d.Name,
		Confirmed:      d.Confirmed,
		Unsubscribed:   d.Unsubscribed,
		Token:          d.Token,
		SubscribedAt:   d.SubscribedAt,
		ConfirmedAt:    d.ConfirmedAt,
		UnsubscribedAt: d.UnsubscribedAt,
	}
}

// MongoSubscriberRepository stores subscribers in MongoDB. Uniqueness of email relies on
// the index created by EnsureSubscriberIndexes.
type MongoSubscriberRepository struct {
	coll    mongoCollection
	timeout time.Duration
	logger  logrus.FieldLogger
}

func NewMongoSubscriberRepository(coll *mongo.Collection, timeout time.Duration, logger logrus.FieldLogger) *MongoSubscriberRepository {
	return newMongoSubscriberRepository(coll, timeout, logger)
}

func newMongoSubscriberRepository(coll mongoCollection, timeout time.Duration, logger logrus.FieldLogger) *MongoSubscriberRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MongoSubscriberRepository{
		coll:    coll,
		timeout: timeout,
		logger:  logger.WithFields(logrus.Fields{"backend": BackendMongo, "entity": "subscriber"}),
	}
}

var _ SubscriberRepository = (*MongoSubscriberRepository)(nil)

// EnsureSubscriberIndexes creates the unique email index.
func EnsureSubscriberIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create subscriber email index: %w", err)
	}
	return nil
}

func (r *MongoSubscriberRepository) Backend() string { return BackendMongo }

func (r *MongoSubscriberRepository) Insert(ctx context.Context, sub *entity.Subscriber) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc := newSubscriberDocument(*sub)
	doc.Email = normalizeEmailKey(doc.Email)
	doc.ID = primitive.NewObjectID()
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrSubscriberExists
		}
		return "", r.fail("insert", err)
	}
	sub.ID = doc.ID.Hex()
	return sub.ID, nil
}

func (r *MongoSubscriberRepository) FindByEmail(ctx context.Context, email string) (*entity.Subscriber, error) {
	return r.findOne(ctx, "find_by_email", bson.M{"email": normalizeEmailKey(email)})
}

func (r *MongoSubscriberRepository) FindByToken(ctx context.Context, token string) (*entity.Subscriber, error) {
	if token == "" {
		return nil, ErrSubscriberNotFound
	}
	return r.findOne(ctx, "find_by_token", bson.M{"token": token})
}

func (r *MongoSubscriberRepository) Update(ctx context.Context, sub entity.Subscriber) error {
	oid, err := primitive.ObjectIDFromHex(sub.ID)
	if err != nil {
		return ErrSubscriberNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc := newSubscriberDocument(sub)
	doc.Email = normalizeEmailKey(doc.Email)
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, mongoSubscriberUpdate(doc))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSubscriberExists
		}
		return r.fail("update", err)
	}
	if res.MatchedCount == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

func (r *MongoSubscriberRepository) Count(ctx context.Context, filter SubscriberFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, mongoSubscriberFilter(filter))
	if err != nil {
		return 0, r.fail("count", err)
	}
	return n, nil
}

func (r *MongoSubscriberRepository) findOne(ctx context.Context, op string, filter bson.M) (*entity.Subscriber, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc subscriberDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSubscriberNotFound
		}
		return nil, r.fail(op, err)
	}
	sub := doc.toEntity()
	return &sub, nil
}

func (r *MongoSubscriberRepository) fail(op string, err error) error {
	r.logger.WithError(err).WithField("op", op).Error("mongodb subscriber operation failed")
	return fmt.Errorf("%w: %s subscriber: %v", ErrBackendFailure, op, err)
}

// mongoSubscriberUpdate sets every field and unsets cleared timestamps, so the stored
// document matches doc exactly.
func mongoSubscriberUpdate(doc subscriberDocument) bson.M {
	update := bson.M{"$set": doc}
	unset := bson.M{}
	if doc.ConfirmedAt == nil {
		unset["confirmed_at"] = ""
	}
	if doc.UnsubscribedAt == nil {
		unset["unsubscribed_at"] = ""
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func mongoSubscriberFilter(filter SubscriberFilter) bson.M {
	query := bson.M{}
	if filter.Confirmed != nil {
		query["confirmed"] = *filter.Confirmed
	}
	if filter.Unsubscribed != nil {
		query["unsubscribed"] = *filter.Unsubscribed
	}
	return query
}
