package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealvista/engagement-backend/internal/config"
	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/rules"
	"github.com/dealvista/engagement-backend/pkg/logger"
)

// Compile-time check to ensure MilestoneServiceImpl implements MilestoneService
var _ MilestoneService = (*MilestoneServiceImpl)(nil)

// eventClearsPending maps completion events to the deferred setup flag they
// resolve, so a completed step stops prompting.
var eventClearsPending = map[string]string{
	"goal_set":              "portfolio_goals",
	"sourcing_criteria_set": "sourcing_setup",
	"community_joined":      "community_intro",
}

// MilestoneServiceImpl ingests domain events and advances per-user
// activation state under optimistic concurrency.
type MilestoneServiceImpl struct {
	stateRepo repositories.ActivationStateRepository
	ruleSet   *rules.RuleSet
	cfg       config.EngineConfig
	log       *logger.Logger
}

// NewMilestoneService creates a new MilestoneServiceImpl
func NewMilestoneService(
	stateRepo repositories.ActivationStateRepository,
	ruleSet *rules.RuleSet,
	cfg config.EngineConfig,
	log *logger.Logger,
) *MilestoneServiceImpl {
	return &MilestoneServiceImpl{
		stateRepo: stateRepo,
		ruleSet:   ruleSet,
		cfg:       cfg,
		log:       log,
	}
}

// GetState retrieves the current activation state for a user
func (s *MilestoneServiceImpl) GetState(ctx context.Context, userID string) (*models.ActivationState, error) {
	return s.stateRepo.FindByUserID(ctx, userID)
}

// RecordEvent applies one domain event with read-modify-write retries.
// Two browser tabs firing events concurrently race on the version field;
// the loser re-reads and re-applies, so no update is lost.
func (s *MilestoneServiceImpl) RecordEvent(ctx context.Context, userID, eventType string, payload map[string]any) (*models.ActivationState, error) {
	attempts := s.cfg.WriteRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		state, err := s.stateRepo.FindByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, err
			}
			// Store hiccups get retried: events are at-least-once and must
			// not be dropped silently.
			lastErr = err
			s.log.Warn("state read failed, retrying", "userId", userID, "attempt", attempt, "error", err)
			sleepBackoff(ctx, attempt)
			continue
		}

		s.applyEvent(state, eventType, payload, time.Now())

		err = s.stateRepo.UpdateVersioned(ctx, state)
		if err == nil {
			return state, nil
		}
		lastErr = err
		if errors.Is(err, repositories.ErrVersionConflict) {
			continue
		}
		s.log.Warn("state write failed, retrying", "userId", userID, "attempt", attempt, "error", err)
		sleepBackoff(ctx, attempt)
	}
	if errors.Is(lastErr, repositories.ErrVersionConflict) {
		return nil, ErrRetriesExhausted
	}
	return nil, fmt.Errorf("failed to record event %q: %w", eventType, lastErr)
}

// applyEvent folds one event into the state. Milestone flags are set-once
// and the status transition takes the maximum of current and computed, so
// re-applying a delivered-twice event cannot double-count or regress.
func (s *MilestoneServiceImpl) applyEvent(state *models.ActivationState, eventType string, payload map[string]any, now time.Time) {
	s.updateActivity(state, eventType, payload, now)

	if flag, ok := eventClearsPending[eventType]; ok {
		if state.DeferredSetup.Pending[flag] {
			delete(state.DeferredSetup.Pending, flag)
		}
	}

	// Every reachable milestone is recorded regardless of path; only the
	// path's core families drive the status transitions.
	if milestone, ok := s.ruleSet.MilestoneForEvent(eventType); ok {
		if state.SetMilestone(milestone, now) {
			s.log.Info("milestone achieved", "userId", state.UserID, "milestone", milestone)
		}
	}

	if state.Terminal() {
		return
	}

	computed := s.computeStatus(state)
	next := models.MaxStatus(state.ActivationStatus, computed)
	if next != state.ActivationStatus {
		s.log.Info("activation status advanced",
			"userId", state.UserID, "from", state.ActivationStatus, "to", next)
		state.ActivationStatus = next
	}
	if state.Terminal() {
		state.Archived = true
	}
}

func (s *MilestoneServiceImpl) computeStatus(state *models.ActivationState) models.ActivationStatus {
	window := s.cfg.ActivationWindowDays
	if window <= 0 {
		window = 14
	}
	if state.Activity.DaysSinceSignup >= window {
		return models.StatusFullyActivated
	}

	achieved := 0
	for _, name := range s.ruleSet.CoreMilestonesFor(state.ActivationPath) {
		if state.HasMilestone(name) {
			achieved++
		}
	}
	switch {
	case achieved >= 3:
		return models.StatusFullyActivated
	case achieved == 2:
		return models.StatusMilestone2Achieved
	case achieved == 1:
		return models.StatusMilestone1Achieved
	default:
		return models.StatusInProgress
	}
}

func (s *MilestoneServiceImpl) updateActivity(state *models.ActivationState, eventType string, payload map[string]any, now time.Time) {
	a := &state.Activity
	a.DaysSinceSignup = daysBetween(state.SignupDate, now)

	switch eventType {
	case "inactivity_detected":
		if days, ok := payloadInt(payload, "days"); ok {
			a.InactivityDays = days
		} else if !a.LastActivityDate.IsZero() {
			a.InactivityDays = daysBetween(a.LastActivityDate, now)
		}
		return // not user activity; leave LastActivityDate alone
	case "session_started":
		a.SessionCount++
		if duration, ok := payloadFloat(payload, "durationMinutes"); ok && a.SessionCount > 0 {
			a.AvgSessionDuration += (duration - a.AvgSessionDuration) / float64(a.SessionCount)
		}
	case "deal_viewed":
		a.DealsViewed++
	case "deal_saved":
		a.DealsSaved++
	}

	if feature, ok := payload["feature"].(string); ok && feature != "" {
		addFeature(a, feature)
	}
	a.LastActivityDate = now
	a.InactivityDays = 0
}

func addFeature(a *models.ActivitySignals, feature string) {
	for _, f := range a.FeaturesExplored {
		if f == feature {
			return
		}
	}
	a.FeaturesExplored = append(a.FeaturesExplored, feature)
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

func payloadInt(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func payloadFloat(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func sleepBackoff(ctx context.Context, attempt int) {
	delay := time.Duration(attempt+1) * 50 * time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
