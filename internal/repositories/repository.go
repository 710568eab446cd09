package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/dealvista/engagement-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("document not found")

// ErrVersionConflict is returned when a versioned write loses the race
// against a concurrent update; callers re-read and retry.
var ErrVersionConflict = errors.New("stale version on write")

// SignalRepository is the read-only signal store adapter: onboarding
// snapshots and the profile scores the segmentation classifier consumes.
type SignalRepository interface {
	GetSignals(ctx context.Context, userID string) (*models.UserSignals, error)
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// ActivationStateRepository owns the one-document-per-user activation state.
type ActivationStateRepository interface {
	Create(ctx context.Context, state *models.ActivationState) error
	FindByUserID(ctx context.Context, userID string) (*models.ActivationState, error)
	// UpdateVersioned writes the state only if the stored version still
	// matches state.Version, bumping it by one. ErrVersionConflict otherwise.
	UpdateVersioned(ctx context.Context, state *models.ActivationState) error
	// FindBatch pages through states by ascending _id for population sweeps.
	FindBatch(ctx context.Context, afterID primitive.ObjectID, limit int64) ([]*models.ActivationState, error)
	Count(ctx context.Context) (int64, error)
}

// NudgeRepository is the per-user append-only nudge log.
type NudgeRepository interface {
	// InsertIfNotShownSince atomically records a shown nudge unless one with
	// the same (userId, nudgeId) exists at or after since. Returns false when
	// the insert was suppressed by an existing record.
	InsertIfNotShownSince(ctx context.Context, nudge *models.Nudge, since time.Time) (bool, error)
	FindRecentByUser(ctx context.Context, userID string, since time.Time) ([]*models.Nudge, error)
	UpdateStatus(ctx context.Context, userID, nudgeID string, status models.NudgeStatus, at time.Time) error
	CountDismissals(ctx context.Context, userID, nudgeID string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// InterventionRepository is the per-(user, segment) intervention log.
type InterventionRepository interface {
	Create(ctx context.Context, intervention *models.Intervention) error
	HasUnexpiredPending(ctx context.Context, userID, segmentID string, asOf time.Time) (bool, error)
	CountTouches(ctx context.Context, userID, segmentID string) (int64, error)
	FindLastTouch(ctx context.Context, userID, segmentID string) (*models.Intervention, error)
	Resolve(ctx context.Context, userID, interventionID string, outcome models.InterventionOutcome, at time.Time) error
	ExpirePending(ctx context.Context, asOf time.Time) (int64, error)
}
