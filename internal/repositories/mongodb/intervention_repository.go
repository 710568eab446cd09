package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check to ensure InterventionRepository implements the interface
var _ repositories.InterventionRepository = (*InterventionRepository)(nil)

// InterventionRepository handles MongoDB operations for intervention records
type InterventionRepository struct {
	collection *mongo.Collection
}

// NewInterventionRepository creates a new InterventionRepository
func NewInterventionRepository(db *mongo.Database) *InterventionRepository {
	return &InterventionRepository{
		collection: db.Collection("interventions"),
	}
}

// Create inserts a new intervention record
func (r *InterventionRepository) Create(ctx context.Context, intervention *models.Intervention) error {
	intervention.ID = primitive.NewObjectID()
	if intervention.CreatedDate.IsZero() {
		intervention.CreatedDate = time.Now()
	}
	intervention.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, intervention)
	return err
}

// HasUnexpiredPending reports whether a pending intervention exists for the
// (user, segment) pair that has not yet passed its expiry
func (r *InterventionRepository) HasUnexpiredPending(ctx context.Context, userID, segmentID string, asOf time.Time) (bool, error) {
	filter := bson.M{
		"userId":    userID,
		"segmentId": segmentID,
		"outcome":   models.OutcomePending,
		"expiresAt": bson.M{"$gt": asOf},
	}
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountTouches counts all interventions ever dispatched for a (user, segment) pair
func (r *InterventionRepository) CountTouches(ctx context.Context, userID, segmentID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"userId": userID, "segmentId": segmentID})
}

// FindLastTouch returns the most recent intervention for a (user, segment) pair
func (r *InterventionRepository) FindLastTouch(ctx context.Context, userID, segmentID string) (*models.Intervention, error) {
	filter := bson.M{"userId": userID, "segmentId": segmentID}
	opts := options.FindOne().SetSort(bson.M{"createdDate": -1})

	var intervention models.Intervention
	err := r.collection.FindOne(ctx, filter, opts).Decode(&intervention)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intervention, nil
}

// Resolve records the user's response to a dispatched intervention
func (r *InterventionRepository) Resolve(ctx context.Context, userID, interventionID string, outcome models.InterventionOutcome, at time.Time) error {
	filter := bson.M{
		"userId":         userID,
		"interventionId": interventionID,
		"outcome":        models.OutcomePending,
	}
	update := bson.M{"$set": bson.M{
		"outcome":      outcome,
		"resolvedDate": at,
		"updatedAt":    time.Now(),
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// ExpirePending marks pending interventions past their expiry as expired
func (r *InterventionRepository) ExpirePending(ctx context.Context, asOf time.Time) (int64, error) {
	filter := bson.M{
		"outcome":   models.OutcomePending,
		"expiresAt": bson.M{"$lte": asOf},
	}
	update := bson.M{"$set": bson.M{
		"outcome":   models.OutcomeExpired,
		"updatedAt": time.Now(),
	}}
	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}
