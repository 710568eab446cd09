package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/rules"
	"github.com/dealvista/engagement-backend/pkg/logger"
)

// Compile-time check to ensure ClassifierServiceImpl implements ClassifierService
var _ ClassifierService = (*ClassifierServiceImpl)(nil)

// fallbackRationale is used when no onboarding dimension scores above zero.
const fallbackRationale = "insufficient signal, defaulting to community path"

// ClassifierServiceImpl assigns an activation path from onboarding signals
type ClassifierServiceImpl struct {
	signalRepo repositories.SignalRepository
	stateRepo  repositories.ActivationStateRepository
	ruleSet    *rules.RuleSet
	log        *logger.Logger
}

// NewClassifierService creates a new ClassifierServiceImpl
func NewClassifierService(
	signalRepo repositories.SignalRepository,
	stateRepo repositories.ActivationStateRepository,
	ruleSet *rules.RuleSet,
	log *logger.Logger,
) *ClassifierServiceImpl {
	return &ClassifierServiceImpl{
		signalRepo: signalRepo,
		stateRepo:  stateRepo,
		ruleSet:    ruleSet,
		log:        log,
	}
}

// ClassifyPath scores the user against the three activation paths and writes
// the initial activation state. Classification must never fail the signup
// flow: missing or unreadable signals zero-default every dimension and fall
// back to the community path.
func (s *ClassifierServiceImpl) ClassifyPath(ctx context.Context, userID string, retake bool) (*models.ActivationState, error) {
	existing, err := s.stateRepo.FindByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing activation state: %w", err)
	}
	if existing != nil && !retake {
		return existing, nil
	}

	signals, err := s.signalRepo.GetSignals(ctx, userID)
	if err != nil {
		// Failed lookup is treated as no data, not an engine failure.
		if !errors.Is(err, repositories.ErrNotFound) {
			s.log.Warn("signal lookup failed, classifying with empty signals", "userId", userID, "error", err)
		}
		signals = nil
	}

	path, rationale, scores := ScorePaths(signals, s.ruleSet)
	s.log.Info("classified activation path",
		"userId", userID,
		"path", path,
		"dealScore", scores[models.PathDealFirst],
		"portfolioScore", scores[models.PathPortfolioFirst],
		"communityScore", scores[models.PathCommunityFirst],
	)

	signup := time.Now()
	if signals != nil && !signals.SignupDate.IsZero() {
		signup = signals.SignupDate
	}

	if existing != nil {
		existing.ActivationPath = path
		existing.PathRationale = rationale
		existing.PathScores = scores
		if err := s.stateRepo.UpdateVersioned(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update activation state after retake: %w", err)
		}
		return existing, nil
	}

	state := models.NewActivationState(userID, path, rationale, signup)
	state.PathScores = scores
	seedDeferredSetup(state, signals)
	if err := s.stateRepo.Create(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to create activation state: %w", err)
	}
	return state, nil
}

// seedDeferredSetup marks skipped onboarding steps as pending deferred setup.
func seedDeferredSetup(state *models.ActivationState, signals *models.UserSignals) {
	if signals == nil {
		return
	}
	if signals.SkippedPortfolioGoals {
		state.DeferredSetup.Pending["portfolio_goals"] = true
	}
	if signals.SkippedSourcingSetup {
		state.DeferredSetup.Pending["sourcing_setup"] = true
	}
	if signals.SkippedCommunityIntro {
		state.DeferredSetup.Pending["community_intro"] = true
	}
}

// ScorePaths computes the weighted dimension scores and picks the winning
// path. Pure and deterministic: identical signals always yield the identical
// result. The strictly highest score wins; ties break in the fixed order
// deal_first, portfolio_first, community_first.
func ScorePaths(signals *models.UserSignals, ruleSet *rules.RuleSet) (models.ActivationPath, string, map[models.ActivationPath]float64) {
	scores := map[models.ActivationPath]float64{
		models.PathDealFirst:      0,
		models.PathPortfolioFirst: 0,
		models.PathCommunityFirst: 0,
	}
	contributions := map[models.ActivationPath][]rules.ScoringTerm{}

	for _, table := range ruleSet.PathScoring {
		for _, term := range table.Terms {
			if rules.EvalSignal(term.When, signals) {
				scores[table.Path] += term.Weight
				contributions[table.Path] = append(contributions[table.Path], term)
			}
		}
	}

	tieOrder := []models.ActivationPath{
		models.PathDealFirst,
		models.PathPortfolioFirst,
		models.PathCommunityFirst,
	}
	winner := tieOrder[0]
	for _, p := range tieOrder {
		if scores[p] > scores[winner] {
			winner = p
		}
	}
	if scores[winner] == 0 {
		return models.PathCommunityFirst, fallbackRationale, scores
	}
	return winner, buildRationale(winner, contributions[winner]), scores
}

// buildRationale names the top contributing signals of the winning dimension.
func buildRationale(path models.ActivationPath, terms []rules.ScoringTerm) string {
	sorted := make([]rules.ScoringTerm, len(terms))
	copy(sorted, terms)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })

	top := make([]string, 0, 3)
	for _, t := range sorted {
		top = append(top, t.Signal)
		if len(top) == 3 {
			break
		}
	}
	return fmt.Sprintf("classified as %s based on %s", path, strings.Join(top, ", "))
}
