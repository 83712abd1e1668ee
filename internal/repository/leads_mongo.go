package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/octobees/lead-capture/internal/entity"
)

// BackendMongo identifies the MongoDB-backed store.
const BackendMongo = "mongodb"

// mongoCollection is the subset of *mongo.Collection the repositories rely on.
type mongoCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

var _ mongoCollection = (*mongo.Collection)(nil)

type leadDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Phone     string             `bson:"phone"`
	Company   string             `bson:"company,omitempty"`
	Network   string             `bson:"network,omitempty"`
	Message   string             `bson:"message,omitempty"`
	Status    string             `bson:"status"`
	Timestamp time.Time          `bson:"timestamp"`
	UpdatedAt *time.Time         `bson:"updated_at,omitempty"`
}

func newLeadDocument(lead *entity.Lead) leadDocument {
	return leadDocument{
		Name:      lead.Name,
		Email:     lead.Email,
		Phone:     lead.Phone,
		Company:   lead.Company,
		Network:   lead.Network,
		Message:   lead.Message,
		Status:    lead.Status,
		Timestamp: lead.Timestamp,
		UpdatedAt: lead.UpdatedAt,
	}
}

func (d leadDocument) toEntity() entity.Lead {
	lead := entity.Lead{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.Phone,
		Company:   d.Company,
		Network:   d.Network,
		Message:   d.Message,
		Status:    d.Status,
		Timestamp: d.Timestamp,
	}
	if d.UpdatedAt != nil {
		updated := *d.UpdatedAt
		lead.UpdatedAt = &updated
	}
	return lead
}

// MongoLeadRepository implements LeadRepository on a MongoDB collection.
// Driver errors are logged and returned wrapped in ErrBackendFailure.
type MongoLeadRepository struct {
	coll    mongoCollection
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewMongoLeadRepository wires a repository on coll with a per-operation timeout.
func NewMongoLeadRepository(coll *mongo.Collection, timeout time.Duration, logger logrus.FieldLogger) *MongoLeadRepository {
	return newMongoLeadRepository(coll, timeout, logger)
}

func newMongoLeadRepository(coll mongoCollection, timeout time.Duration, logger logrus.FieldLogger) *MongoLeadRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MongoLeadRepository{coll: coll, timeout: timeout, logger: logger.WithField("backend", BackendMongo)}
}

var _ LeadRepository = (*MongoLeadRepository)(nil)

// Backend implements LeadRepository.
func (r *MongoLeadRepository) Backend() string { return BackendMongo }

// Insert implements LeadRepository.
func (r *MongoLeadRepository) Insert(ctx context.Context, lead *entity.Lead) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	doc := newLeadDocument(lead)
	doc.ID = primitive.NewObjectID()
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return "", r.fail("insert", err)
	}
	lead.ID = doc.ID.Hex()
	return lead.ID, nil
}

// Count implements LeadRepository.
func (r *MongoLeadRepository) Count(ctx context.Context, filter LeadFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, mongoLeadFilter(filter))
	if err != nil {
		return 0, r.fail("count", err)
	}
	return n, nil
}

// Find implements LeadRepository.
func (r *MongoLeadRepository) Find(ctx context.Context, filter LeadFilter, opts FindOptions) ([]entity.Lead, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	findOpts := options.Find().SetSort(mongoLeadSort(opts.Sort))
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := r.coll.Find(ctx, mongoLeadFilter(filter), findOpts)
	if err != nil {
		return nil, r.fail("find", err)
	}
	defer cursor.Close(ctx)

	var docs []leadDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, r.fail("find", err)
	}

	leads := make([]entity.Lead, 0, len(docs))
	for _, doc := range docs {
		leads = append(leads, doc.toEntity())
	}
	return leads, nil
}

// FindByID implements LeadRepository.
func (r *MongoLeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrLeadNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc leadDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrLeadNotFound
		}
		return nil, r.fail("find_by_id", err)
	}
	lead := doc.toEntity()
	return &lead, nil
}

// Update implements LeadRepository with a $set of the changed fields.
func (r *MongoLeadRepository) Update(ctx context.Context, id string, changes LeadChanges) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrLeadNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": mongoLeadSet(changes)})
	if err != nil {
		return r.fail("update", err)
	}
	if res.MatchedCount == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// Delete implements LeadRepository.
func (r *MongoLeadRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrLeadNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return r.fail("delete", err)
	}
	if res.DeletedCount == 0 {
		return ErrLeadNotFound
	}
	return nil
}

type leadSummaryDocument struct {
	ByStatus []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	} `bson:"by_status"`
	Recent []struct {
		Timestamp time.Time `bson:"timestamp"`
	} `bson:"recent"`
}

// Summarize implements LeadRepository with one $facet aggregation.
func (r *MongoLeadRepository) Summarize(ctx context.Context, since time.Time) (LeadSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cursor, err := r.coll.Aggregate(ctx, mongoLeadSummaryPipeline(since))
	if err != nil {
		return LeadSummary{}, r.fail("summarize", err)
	}
	defer cursor.Close(ctx)

	var docs []leadSummaryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return LeadSummary{}, r.fail("summarize", err)
	}

	summary := LeadSummary{ByStatus: make(map[string]int64)}
	if len(docs) == 0 {
		return summary, nil
	}
	for _, group := range docs[0].ByStatus {
		summary.ByStatus[group.Status] += group.Count
		summary.Total += group.Count
	}
	summary.Recent = make([]time.Time, 0, len(docs[0].Recent))
	for _, rec := range docs[0].Recent {
		summary.Recent = append(summary.Recent, rec.Timestamp)
	}
	return summary, nil
}

func mongoLeadSummaryPipeline(since time.Time) bson.A {
	return bson.A{
		bson.M{"$facet": bson.M{
			"by_status": bson.A{
				bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
			},
			"recent": bson.A{
				bson.M{"$match": bson.M{"timestamp": bson.M{"$gte": since}}},
				bson.M{"$project": bson.M{"_id": 0, "timestamp": 1}},
			},
		}},
	}
}

func (r *MongoLeadRepository) fail(op string, err error) error {
	r.logger.WithError(err).WithField("op", op).Error("mongodb lead operation failed")
	return fmt.Errorf("%w: %s lead: %v", ErrBackendFailure, op, err)
}

// mongoLeadFilter translates filter into a native query equivalent to matchLead.
func mongoLeadFilter(filter LeadFilter) bson.M {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Since != nil || filter.Until != nil {
		ts := bson.M{}
		if filter.Since != nil {
			ts["$gte"] = *filter.Since
		}
		if filter.Until != nil {
			ts["$lt"] = *filter.Until
		}
		query["timestamp"] = ts
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := regexp.QuoteMeta(q)
		or := make(bson.A, 0, len(SearchFields))
		for _, field := range SearchFields {
			or = append(or, bson.M{field: bson.M{"$regex": pattern, "$options": "i"}})
		}
		query["$or"] = or
	}
	return query
}

func mongoLeadSort(s LeadSort) bson.D {
	dir := 1
	if s.Desc {
		dir = -1
	}
	return bson.D{
		{Key: NormalizeSortField(s.Field), Value: dir},
		{Key: "_id", Value: 1},
	}
}

func mongoLeadSet(changes LeadChanges) bson.M {
	set := bson.M{"updated_at": changes.UpdatedAt}
	fields := map[string]*string{
		"name":    changes.Name,
		"email":   changes.Email,
		"phone":   changes.Phone,
		"company": changes.Company,
		"network": changes.Network,
		"message": changes.Message,
		"status":  changes.Status,
	}
	for key, value := range fields {
		if value != nil {
			set[key] = *value
		}
	}
	return set
}
