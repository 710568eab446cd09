package mongodb

import (
	"context"
	"errors"

	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Compile-time check to ensure SignalRepository implements the interface
var _ repositories.SignalRepository = (*SignalRepository)(nil)

// SignalRepository provides read-only access to the onboarding signal and
// profile collections. The engine never writes these; they are owned by the
// platform's signup and scoring pipelines.
type SignalRepository struct {
	signals  *mongo.Collection
	profiles *mongo.Collection
}

// NewSignalRepository creates a new SignalRepository
func NewSignalRepository(db *mongo.Database) *SignalRepository {
	return &SignalRepository{
		signals:  db.Collection("user_signals"),
		profiles: db.Collection("user_profiles"),
	}
}

// GetSignals retrieves the onboarding snapshot for a user
func (r *SignalRepository) GetSignals(ctx context.Context, userID string) (*models.UserSignals, error) {
	var signals models.UserSignals
	err := r.signals.FindOne(ctx, bson.M{"userId": userID}).Decode(&signals)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &signals, nil
}

// GetProfile retrieves the subscription/scoring profile for a user
func (r *SignalRepository) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.profiles.FindOne(ctx, bson.M{"userId": userID}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
