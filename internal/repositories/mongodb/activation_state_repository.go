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

// Compile-time check to ensure ActivationStateRepository implements the interface
var _ repositories.ActivationStateRepository = (*ActivationStateRepository)(nil)

// ActivationStateRepository handles MongoDB operations for ActivationState
type ActivationStateRepository struct {
	collection *mongo.Collection
}

// NewActivationStateRepository creates a new ActivationStateRepository
func NewActivationStateRepository(db *mongo.Database) *ActivationStateRepository {
	return &ActivationStateRepository{
		collection: db.Collection("activation_states"),
	}
}

// Create inserts the initial activation state for a user
func (r *ActivationStateRepository) Create(ctx context.Context, state *models.ActivationState) error {
	state.ID = primitive.NewObjectID()
	state.Version = 1
	state.CreatedAt = time.Now()
	state.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, state)
	return err
}

// FindByUserID finds the activation state for a user
func (r *ActivationStateRepository) FindByUserID(ctx context.Context, userID string) (*models.ActivationState, error) {
	var state models.ActivationState
	err := r.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// UpdateVersioned writes the state guarded by its version. The filter matches
// the version the caller read; zero matches means a concurrent writer won.
func (r *ActivationStateRepository) UpdateVersioned(ctx context.Context, state *models.ActivationState) error {
	readVersion := state.Version
	state.Version = readVersion + 1
	state.UpdatedAt = time.Now()

	filter := bson.M{"_id": state.ID, "version": readVersion}
	result, err := r.collection.ReplaceOne(ctx, filter, state)
	if err != nil {
		state.Version = readVersion
		return err
	}
	if result.MatchedCount == 0 {
		state.Version = readVersion
		return repositories.ErrVersionConflict
	}
	return nil
}

// FindBatch pages through activation states by ascending _id
func (r *ActivationStateRepository) FindBatch(ctx context.Context, afterID primitive.ObjectID, limit int64) ([]*models.ActivationState, error) {
	filter := bson.M{}
	if !afterID.IsZero() {
		filter["_id"] = bson.M{"$gt": afterID}
	}
	opts := options.Find().SetSort(bson.M{"_id": 1}).SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var states []*models.ActivationState
	if err = cursor.All(ctx, &states); err != nil {
		return nil, err
	}
	if states == nil {
		states = []*models.ActivationState{}
	}
	return states, nil
}

// Count returns the total number of activation states
func (r *ActivationStateRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}
