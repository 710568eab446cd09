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

// Compile-time check to ensure NudgeRepository implements the interface
var _ repositories.NudgeRepository = (*NudgeRepository)(nil)

// NudgeRepository handles MongoDB operations for the per-user nudge log
type NudgeRepository struct {
	collection *mongo.Collection
}

// NewNudgeRepository creates a new NudgeRepository
func NewNudgeRepository(db *mongo.Database) *NudgeRepository {
	return &NudgeRepository{
		collection: db.Collection("nudges"),
	}
}

// InsertIfNotShownSince records a shown nudge unless one with the same
// (userId, nudgeId) already exists at or after since. A single upsert keeps
// the check-and-insert atomic, so two concurrent evaluations for the same
// user cannot both record the same nudge inside the cooldown window.
func (r *NudgeRepository) InsertIfNotShownSince(ctx context.Context, nudge *models.Nudge, since time.Time) (bool, error) {
	now := time.Now()
	filter := bson.M{
		"userId":    nudge.UserID,
		"nudgeId":   nudge.NudgeID,
		"shownDate": bson.M{"$gte": since},
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":       primitive.NewObjectID(),
			"userId":    nudge.UserID,
			"nudgeId":   nudge.NudgeID,
			"message":   nudge.Message,
			"surface":   nudge.Surface,
			"status":    models.NudgeStatusShown,
			"deferred":  nudge.Deferred,
			"shownDate": nudge.ShownDate,
			"createdAt": now,
			"updatedAt": now,
		},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return result.UpsertedCount == 1, nil
}

// FindRecentByUser returns nudge records shown at or after since, newest first
func (r *NudgeRepository) FindRecentByUser(ctx context.Context, userID string, since time.Time) ([]*models.Nudge, error) {
	filter := bson.M{
		"userId":    userID,
		"shownDate": bson.M{"$gte": since},
	}
	opts := options.Find().SetSort(bson.M{"shownDate": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var nudges []*models.Nudge
	if err = cursor.All(ctx, &nudges); err != nil {
		return nil, err
	}
	if nudges == nil {
		nudges = []*models.Nudge{}
	}
	return nudges, nil
}

// UpdateStatus records a dismissal or act on the most recently shown record
// for the given rule
func (r *NudgeRepository) UpdateStatus(ctx context.Context, userID, nudgeID string, status models.NudgeStatus, at time.Time) error {
	filter := bson.M{"userId": userID, "nudgeId": nudgeID}
	update := bson.M{"$set": bson.M{
		"status":        status,
		"respondedDate": at,
		"updatedAt":     time.Now(),
	}}
	opts := options.FindOneAndUpdate().SetSort(bson.M{"shownDate": -1})

	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repositories.ErrNotFound
	}
	return err
}

// CountDismissals counts all-time dismissals of one rule for one user
func (r *NudgeRepository) CountDismissals(ctx context.Context, userID, nudgeID string) (int64, error) {
	filter := bson.M{
		"userId":  userID,
		"nudgeId": nudgeID,
		"status":  models.NudgeStatusDismissed,
	}
	return r.collection.CountDocuments(ctx, filter)
}

// DeleteOlderThan prunes nudge records shown before the cutoff
func (r *NudgeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"shownDate": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
