package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/dealvista/engagement-backend/internal/config"
	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/rules"
	"github.com/dealvista/engagement-backend/pkg/logger"
	"github.com/dealvista/engagement-backend/pkg/notifier"
)

// Compile-time check to ensure InterventionServiceImpl implements InterventionService
var _ InterventionService = (*InterventionServiceImpl)(nil)

// ErrInvalidOutcome is returned when a resolution carries an outcome the
// user cannot report.
var ErrInvalidOutcome = errors.New("outcome must be acted or dismissed")

// InterventionServiceImpl runs the daily population sweep: expire stale
// touches, classify every user, and dispatch playbook interventions subject
// to suppression limits.
type InterventionServiceImpl struct {
	stateRepo        repositories.ActivationStateRepository
	interventionRepo repositories.InterventionRepository
	segmentation     *SegmentationServiceImpl
	ruleSet          *rules.RuleSet
	cfg              config.EngineConfig
	sink             notifier.Notifier
	log              *logger.Logger
}

// NewInterventionService creates a new InterventionServiceImpl
func NewInterventionService(
	stateRepo repositories.ActivationStateRepository,
	interventionRepo repositories.InterventionRepository,
	segmentation *SegmentationServiceImpl,
	ruleSet *rules.RuleSet,
	cfg config.EngineConfig,
	sink notifier.Notifier,
	log *logger.Logger,
) *InterventionServiceImpl {
	return &InterventionServiceImpl{
		stateRepo:        stateRepo,
		interventionRepo: interventionRepo,
		segmentation:     segmentation,
		ruleSet:          ruleSet,
		cfg:              cfg,
		sink:             sink,
		log:              log,
	}
}

type sweepCounters struct {
	evaluated  atomic.Int64
	matched    atomic.Int64
	created    atomic.Int64
	suppressed atomic.Int64
	errors     atomic.Int64
}

// RunSweep evaluates the whole population as of the given instant. Safe to
// re-run: suppression checks make a second pass over an unchanged population
// a no-op.
func (s *InterventionServiceImpl) RunSweep(ctx context.Context, asOf time.Time) (*models.SweepReport, error) {
	started := time.Now()

	expired, err := s.interventionRepo.ExpirePending(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to expire pending interventions: %w", err)
	}

	batchSize := s.cfg.SweepBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	workers := s.cfg.SweepWorkers
	if workers <= 0 {
		workers = 8
	}

	var counters sweepCounters
	afterID := primitive.NilObjectID
	for {
		batch, err := s.stateRepo.FindBatch(ctx, afterID, batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to page activation states: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, state := range batch {
			state := state
			g.Go(func() error {
				s.evaluateUser(gctx, state, asOf, &counters)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if int64(len(batch)) < batchSize {
			break
		}
	}

	report := &models.SweepReport{
		AsOf:                    asOf,
		UsersEvaluated:          int(counters.evaluated.Load()),
		UsersMatched:            int(counters.matched.Load()),
		InterventionsCreated:    int(counters.created.Load()),
		InterventionsSuppressed: int(counters.suppressed.Load()),
		InterventionsExpired:    int(expired),
		Errors:                  int(counters.errors.Load()),
		StartedAt:               started,
		FinishedAt:              time.Now(),
	}
	s.log.Info("sweep finished",
		"evaluated", report.UsersEvaluated,
		"matched", report.UsersMatched,
		"created", report.InterventionsCreated,
		"suppressed", report.InterventionsSuppressed,
		"expired", report.InterventionsExpired,
		"errors", report.Errors,
	)
	return report, nil
}

// evaluateUser classifies one user and dispatches at most one intervention:
// the highest-priority matched segment that has a playbook bound.
func (s *InterventionServiceImpl) evaluateUser(ctx context.Context, state *models.ActivationState, asOf time.Time, counters *sweepCounters) {
	counters.evaluated.Add(1)

	input := s.segmentation.BuildInput(ctx, state, asOf)
	matches := s.segmentation.Classify(input)
	if len(matches) == 0 {
		return
	}
	counters.matched.Add(1)

	for _, match := range matches {
		playbook, ok := s.ruleSet.PlaybookFor(match.SegmentID)
		if !ok {
			continue // fall through to the next matched segment
		}
		suppressed, err := s.suppress(ctx, state.UserID, match.SegmentID, playbook, asOf)
		if err != nil {
			counters.errors.Add(1)
			s.log.Error("suppression check failed", "userId", state.UserID, "segmentId", match.SegmentID, "error", err)
			return
		}
		if suppressed {
			counters.suppressed.Add(1)
			return
		}
		if err := s.dispatch(ctx, state.UserID, match.SegmentID, playbook, asOf); err != nil {
			counters.errors.Add(1)
			s.log.Error("failed to dispatch intervention", "userId", state.UserID, "segmentId", match.SegmentID, "error", err)
			return
		}
		counters.created.Add(1)
		return
	}
}

// suppress applies the playbook's frequency limits for one (user, segment)
// pair: never while a pending touch is live, never beyond max_touches, and
// never inside min_spacing of the previous touch.
func (s *InterventionServiceImpl) suppress(ctx context.Context, userID, segmentID string, playbook *rules.Playbook, asOf time.Time) (bool, error) {
	pending, err := s.interventionRepo.HasUnexpiredPending(ctx, userID, segmentID, asOf)
	if err != nil {
		return false, err
	}
	if pending {
		return true, nil
	}

	touches, err := s.interventionRepo.CountTouches(ctx, userID, segmentID)
	if err != nil {
		return false, err
	}
	if touches >= int64(playbook.MaxTouches) {
		return true, nil
	}

	last, err := s.interventionRepo.FindLastTouch(ctx, userID, segmentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if asOf.Sub(last.CreatedDate) < playbook.MinSpacing.Duration {
		return true, nil
	}
	return false, nil
}

// dispatch records the touch first, then hands it to the delivery sink.
// Record-then-deliver: a sink failure never rolls back the touch, so the
// frequency limits always see it.
func (s *InterventionServiceImpl) dispatch(ctx context.Context, userID, segmentID string, playbook *rules.Playbook, asOf time.Time) error {
	intervention := &models.Intervention{
		InterventionID:   uuid.NewString(),
		UserID:           userID,
		SegmentID:        segmentID,
		InterventionType: playbook.InterventionType,
		MessageVariant:   playbook.MessageVariant,
		Surface:          playbook.Surface,
		Offer:            playbook.Offer,
		Outcome:          models.OutcomePending,
		ExpiresAt:        asOf.Add(playbook.TTL.Duration),
		CreatedDate:      asOf,
	}
	if err := s.interventionRepo.Create(ctx, intervention); err != nil {
		return err
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := s.sink.Send(sendCtx, notifier.Delivery{
			UserID:  userID,
			Surface: playbook.Surface,
			Message: playbook.MessageVariant,
			Ref:     intervention.InterventionID,
		}); err != nil {
			s.log.Warn("intervention delivery failed", "userId", userID, "interventionId", intervention.InterventionID, "error", err)
		}
	}()
	return nil
}

// ResolveIntervention records the user's response to a pending touch.
func (s *InterventionServiceImpl) ResolveIntervention(ctx context.Context, userID, interventionID string, outcome models.InterventionOutcome) error {
	if outcome != models.OutcomeActed && outcome != models.OutcomeDismissed {
		return ErrInvalidOutcome
	}
	return s.interventionRepo.Resolve(ctx, userID, interventionID, outcome, time.Now())
}
