package services

import (
	"context"
	"errors"
	"time"

	"github.com/dealvista/engagement-backend/internal/models"
)

// ErrRetriesExhausted is returned when optimistic writes keep losing against
// concurrent updates for the same user. Transient: callers may retry.
var ErrRetriesExhausted = errors.New("concurrent update conflict, retries exhausted")

// ClassifierService defines the interface for activation path classification
type ClassifierService interface {
	// ClassifyPath scores the user's onboarding signals and writes the
	// initial activation state. Idempotent unless retake is set.
	ClassifyPath(ctx context.Context, userID string, retake bool) (*models.ActivationState, error)
}

// MilestoneService defines the interface for milestone/state tracking
type MilestoneService interface {
	// RecordEvent ingests one domain event and returns the updated state
	RecordEvent(ctx context.Context, userID, eventType string, payload map[string]any) (*models.ActivationState, error)

	// GetState retrieves the current activation state for a user
	GetState(ctx context.Context, userID string) (*models.ActivationState, error)
}

// NudgeService defines the interface for the nudge scheduler
type NudgeService interface {
	// GetActiveNudges evaluates the nudge rules and returns the nudges to
	// surface right now, already recorded in the nudge log
	GetActiveNudges(ctx context.Context, userID, currentFeature string) ([]models.Nudge, error)

	// DismissNudge records that the user dismissed a shown nudge
	DismissNudge(ctx context.Context, userID, nudgeID string) error

	// ActOnNudge records that the user acted on a shown nudge
	ActOnNudge(ctx context.Context, userID, nudgeID string) error

	// PruneNudges deletes nudge records older than the cooldown horizon plus
	// the retention window
	PruneNudges(ctx context.Context) (int64, error)
}

// SegmentationService defines the interface for the segmentation classifier
type SegmentationService interface {
	// Classify returns every segment the input matches, highest priority
	// first. Pure: no side effects, order-independent.
	Classify(input models.SegmentInput) []models.SegmentMatch

	// ClassifyUser assembles the segment input for one user and classifies
	// it. Used by the dry-run admin endpoint.
	ClassifyUser(ctx context.Context, userID string, asOf time.Time) ([]models.SegmentMatch, error)
}

// InterventionService defines the interface for the intervention dispatcher
type InterventionService interface {
	// RunSweep re-evaluates the population and dispatches playbook
	// interventions under the suppression rules. Safe to re-run.
	RunSweep(ctx context.Context, asOf time.Time) (*models.SweepReport, error)

	// ResolveIntervention records the user's response to a dispatched touch
	ResolveIntervention(ctx context.Context, userID, interventionID string, outcome models.InterventionOutcome) error
}
