package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/rules"
	"github.com/dealvista/engagement-backend/pkg/logger"
)

// Compile-time check to ensure SegmentationServiceImpl implements SegmentationService
var _ SegmentationService = (*SegmentationServiceImpl)(nil)

// SegmentationServiceImpl classifies users against the declarative segment
// registry. Classification is pure: same input, same matches, regardless of
// registry order.
type SegmentationServiceImpl struct {
	stateRepo  repositories.ActivationStateRepository
	signalRepo repositories.SignalRepository
	ruleSet    *rules.RuleSet
	log        *logger.Logger
}

// NewSegmentationService creates a new SegmentationServiceImpl
func NewSegmentationService(
	stateRepo repositories.ActivationStateRepository,
	signalRepo repositories.SignalRepository,
	ruleSet *rules.RuleSet,
	log *logger.Logger,
) *SegmentationServiceImpl {
	return &SegmentationServiceImpl{
		stateRepo:  stateRepo,
		signalRepo: signalRepo,
		ruleSet:    ruleSet,
		log:        log,
	}
}

// Classify returns every segment whose predicate matches the input, ordered
// by descending priority. Between equal priorities the segment defined later
// in the registry wins the earlier position.
func (s *SegmentationServiceImpl) Classify(input models.SegmentInput) []models.SegmentMatch {
	type ranked struct {
		match models.SegmentMatch
		pos   int
	}
	var matched []ranked
	for i, def := range s.ruleSet.Segments {
		if !rules.EvalSegment(def.When, input) {
			continue
		}
		matched = append(matched, ranked{
			match: models.SegmentMatch{SegmentID: def.ID, Name: def.Name, Priority: def.Priority},
			pos:   i,
		})
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].match.Priority != matched[j].match.Priority {
			return matched[i].match.Priority > matched[j].match.Priority
		}
		return matched[i].pos > matched[j].pos
	})

	out := make([]models.SegmentMatch, len(matched))
	for i, r := range matched {
		out[i] = r.match
	}
	return out
}

// ClassifyUser assembles the segmentation input from the activation and
// profile stores and classifies it. A missing profile degrades to zero
// scores rather than failing the classification.
func (s *SegmentationServiceImpl) ClassifyUser(ctx context.Context, userID string, asOf time.Time) ([]models.SegmentMatch, error) {
	state, err := s.stateRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activation state: %w", err)
	}
	input := s.BuildInput(ctx, state, asOf)
	return s.Classify(input), nil
}

// BuildInput composes the classification snapshot for one user.
func (s *SegmentationServiceImpl) BuildInput(ctx context.Context, state *models.ActivationState, asOf time.Time) models.SegmentInput {
	input := models.SegmentInput{
		UserID:           state.UserID,
		ActivationStatus: state.ActivationStatus,
		ActivationPath:   state.ActivationPath,
		DaysSinceSignup:  daysBetween(state.SignupDate, asOf),
		InactivityDays:   state.Activity.InactivityDays,
		SessionCount:     state.Activity.SessionCount,
		MilestoneCount:   len(state.Milestones),
	}

	profile, err := s.signalRepo.GetProfile(ctx, state.UserID)
	if err != nil {
		s.log.Warn("profile unavailable, classifying on activation signals only", "userId", state.UserID, "error", err)
		return input
	}
	input.Subscription = profile.Subscription
	input.ChurnRiskScore = profile.ChurnRiskScore
	input.PowerUserScore = profile.PowerUserScore
	input.CapabilityUnlocks = profile.CapabilityUnlocks
	return input
}
