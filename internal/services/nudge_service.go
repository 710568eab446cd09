package services

import (
	"context"
	"sort"
	"time"

	"github.com/dealvista/engagement-backend/internal/config"
	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/rules"
	"github.com/dealvista/engagement-backend/pkg/logger"
	"github.com/dealvista/engagement-backend/pkg/notifier"
)

// Compile-time check to ensure NudgeServiceImpl implements NudgeService
var _ NudgeService = (*NudgeServiceImpl)(nil)

// deferredSchedule is the day offset from signup at which the n-th showing
// of a deferred prompt becomes eligible.
var deferredSchedule = []int{3, 7, 14}

// NudgeServiceImpl evaluates the nudge rule table against a user's current
// state and decides what to surface right now.
type NudgeServiceImpl struct {
	stateRepo repositories.ActivationStateRepository
	nudgeRepo repositories.NudgeRepository
	ruleSet   *rules.RuleSet
	cfg       config.EngineConfig
	sink      notifier.Notifier
	log       *logger.Logger
}

// NewNudgeService creates a new NudgeServiceImpl
func NewNudgeService(
	stateRepo repositories.ActivationStateRepository,
	nudgeRepo repositories.NudgeRepository,
	ruleSet *rules.RuleSet,
	cfg config.EngineConfig,
	sink notifier.Notifier,
	log *logger.Logger,
) *NudgeServiceImpl {
	return &NudgeServiceImpl{
		stateRepo: stateRepo,
		nudgeRepo: nudgeRepo,
		ruleSet:   ruleSet,
		cfg:       cfg,
		sink:      sink,
		log:       log,
	}
}

// nudgeHistory is the per-user cooldown lookup state for one evaluation.
type nudgeHistory struct {
	lastShown     map[string]time.Time
	lastDismissed map[string]time.Time
	lastDeferred  time.Time
}

// GetActiveNudges runs one evaluation pass. A store failure degrades to an
// empty list: the worst acceptable outcome is no nudge this session, never a
// failed page load.
func (s *NudgeServiceImpl) GetActiveNudges(ctx context.Context, userID, currentFeature string) ([]models.Nudge, error) {
	now := time.Now()

	state, err := s.stateRepo.FindByUserID(ctx, userID)
	if err != nil {
		s.log.Warn("nudge evaluation skipped, state unavailable", "userId", userID, "error", err)
		return []models.Nudge{}, nil
	}
	// Stored activity counters lag the last recorded event; the signup
	// clock must not.
	state.Activity.DaysSinceSignup = daysBetween(state.SignupDate, now)
	// The window ceiling archives a user on their next recorded event, but a
	// user can cross it between events, so the request path checks the clock
	// itself. Only deferred setup prompts outlive the window: their day-14
	// retry lands exactly as it closes.
	windowClosed := state.Terminal() || state.Activity.DaysSinceSignup >= s.cfg.ActivationWindowDays

	lookback := now.AddDate(0, 0, -s.retentionDays())
	recent, err := s.nudgeRepo.FindRecentByUser(ctx, userID, lookback)
	if err != nil {
		s.log.Warn("nudge evaluation skipped, history unavailable", "userId", userID, "error", err)
		return []models.Nudge{}, nil
	}
	history := buildHistory(recent)

	evalCtx := rules.NudgeContext{State: state, CurrentFeature: currentFeature}
	candidates := s.collectCandidates(ctx, state, evalCtx, history, now, windowClosed)
	sortCandidates(candidates)

	return s.emit(ctx, state, candidates, history, now), nil
}

func (s *NudgeServiceImpl) collectCandidates(ctx context.Context, state *models.ActivationState, evalCtx rules.NudgeContext, history nudgeHistory, now time.Time, windowClosed bool) []rules.NudgeRule {
	var candidates []rules.NudgeRule
	for _, rule := range s.ruleSet.Nudges {
		if !rule.IsDeferred() && windowClosed {
			continue
		}
		if rule.Path != "" && rule.Path != string(state.ActivationPath) {
			continue
		}
		if rule.IsDeferred() && !s.deferredEligible(rule, state, evalCtx.CurrentFeature, history, now) {
			continue
		}
		if !rules.EvalNudge(rule.When, evalCtx) {
			continue
		}
		if last, ok := history.lastShown[rule.ID]; ok && now.Sub(last) < rule.Cooldown.Duration {
			continue
		}
		// Dismissing a nudge imposes its own, normally longer, cooldown.
		if last, ok := history.lastDismissed[rule.ID]; ok && now.Sub(last) < s.cfg.DismissalCooldown {
			continue
		}
		if rule.MaxDismissals > 0 && s.permanentlySuppressed(ctx, state.UserID, rule) {
			continue
		}
		candidates = append(candidates, rule)
	}
	return candidates
}

// deferredEligible applies the stricter deferred-prompt schedule: first
// eligible at signup+3d, retried at day 7 and day 14, never more than one
// deferred prompt per 48h across all pending flags.
func (s *NudgeServiceImpl) deferredEligible(rule rules.NudgeRule, state *models.ActivationState, currentFeature string, history nudgeHistory, now time.Time) bool {
	if !state.DeferredSetup.Pending[rule.PendingFlag] {
		return false
	}
	if rule.Feature != "" && rule.Feature != currentFeature {
		return false
	}
	shows := len(state.DeferredSetup.PromptShown[rule.PendingFlag])
	if shows >= len(deferredSchedule) {
		return false
	}
	eligibleFrom := state.SignupDate.AddDate(0, 0, deferredSchedule[shows])
	if now.Before(eligibleFrom) {
		return false
	}
	if !history.lastDeferred.IsZero() && now.Sub(history.lastDeferred) < s.cfg.DeferredGlobalCooldown {
		return false
	}
	return true
}

func (s *NudgeServiceImpl) permanentlySuppressed(ctx context.Context, userID string, rule rules.NudgeRule) bool {
	count, err := s.nudgeRepo.CountDismissals(ctx, userID, rule.ID)
	if err != nil {
		s.log.Warn("dismissal count unavailable, suppressing rule", "userId", userID, "nudgeId", rule.ID, "error", err)
		return true
	}
	return count >= int64(rule.MaxDismissals)
}

// emit records up to the session cap of candidates, stopping evaluation as
// soon as the cap is reached. Records are written before the response is
// returned, so a concurrent evaluation for the same user cannot re-select
// an already-emitted nudge.
func (s *NudgeServiceImpl) emit(ctx context.Context, state *models.ActivationState, candidates []rules.NudgeRule, history nudgeHistory, now time.Time) []models.Nudge {
	limit := s.cfg.SessionNudgeCap
	if limit <= 0 {
		limit = 2
	}

	emitted := make([]models.Nudge, 0, limit)
	deferredShown := false
	for _, rule := range candidates {
		if len(emitted) >= limit {
			break
		}
		if rule.IsDeferred() && deferredShown {
			continue // one deferred prompt per window, even inside a single pass
		}

		nudge := models.Nudge{
			UserID:    state.UserID,
			NudgeID:   rule.ID,
			Message:   rule.Message,
			Surface:   rule.Surface,
			Status:    models.NudgeStatusShown,
			Deferred:  rule.IsDeferred(),
			ShownDate: now,
		}
		inserted, err := s.nudgeRepo.InsertIfNotShownSince(ctx, &nudge, now.Add(-rule.Cooldown.Duration))
		if err != nil {
			s.log.Error("failed to record nudge", "userId", state.UserID, "nudgeId", rule.ID, "error", err)
			continue
		}
		if !inserted {
			// Lost the race against a concurrent evaluation.
			continue
		}

		if rule.IsDeferred() {
			deferredShown = true
			s.recordDeferredShow(ctx, state, rule.PendingFlag, now)
		}
		s.deliver(nudge)
		emitted = append(emitted, nudge)
	}
	return emitted
}

// recordDeferredShow appends to the prompt-shown history on the activation
// document. Best effort: a lost version race here only delays the next
// retry, the nudge log remains the cooldown source of truth.
func (s *NudgeServiceImpl) recordDeferredShow(ctx context.Context, state *models.ActivationState, flag string, now time.Time) {
	if state.DeferredSetup.PromptShown == nil {
		state.DeferredSetup.PromptShown = map[string][]time.Time{}
	}
	state.DeferredSetup.PromptShown[flag] = append(state.DeferredSetup.PromptShown[flag], now)
	if err := s.stateRepo.UpdateVersioned(ctx, state); err != nil {
		s.log.Warn("failed to record deferred prompt history", "userId", state.UserID, "flag", flag, "error", err)
	}
}

// deliver hands email/push nudges to the notification sink. Emit-then-
// deliver: the record is already written and a sink failure is only logged.
func (s *NudgeServiceImpl) deliver(nudge models.Nudge) {
	if nudge.Surface != models.SurfaceEmail && nudge.Surface != models.SurfacePush {
		return // in-page surfaces render from the response
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := s.sink.Send(ctx, notifier.Delivery{
			UserID:  nudge.UserID,
			Surface: nudge.Surface,
			Message: nudge.Message,
			Ref:     nudge.NudgeID,
		}); err != nil {
			s.log.Warn("nudge delivery failed", "userId", nudge.UserID, "nudgeId", nudge.NudgeID, "error", err)
		}
	}()
}

// DismissNudge records a dismissal; the dismissal cooldown and the per-rule
// dismissal counter both key off this record.
func (s *NudgeServiceImpl) DismissNudge(ctx context.Context, userID, nudgeID string) error {
	return s.nudgeRepo.UpdateStatus(ctx, userID, nudgeID, models.NudgeStatusDismissed, time.Now())
}

// ActOnNudge records that the user followed a nudge.
func (s *NudgeServiceImpl) ActOnNudge(ctx context.Context, userID, nudgeID string) error {
	return s.nudgeRepo.UpdateStatus(ctx, userID, nudgeID, models.NudgeStatusActed, time.Now())
}

// PruneNudges drops records past the cooldown horizon plus retention margin.
func (s *NudgeServiceImpl) PruneNudges(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays())
	return s.nudgeRepo.DeleteOlderThan(ctx, cutoff)
}

// retentionDays covers the longest cooldown in the rule table plus the
// configured retention margin, so pruning never removes a record a cooldown
// check still needs.
func (s *NudgeServiceImpl) retentionDays() int {
	longest := s.cfg.DismissalCooldown
	if s.cfg.DeferredGlobalCooldown > longest {
		longest = s.cfg.DeferredGlobalCooldown
	}
	for _, rule := range s.ruleSet.Nudges {
		if rule.Cooldown.Duration > longest {
			longest = rule.Cooldown.Duration
		}
	}
	days := int(longest.Hours()/24) + 1
	retention := s.cfg.NudgeRetentionDays
	if retention <= 0 {
		retention = 30
	}
	return days + retention
}

func buildHistory(recent []*models.Nudge) nudgeHistory {
	h := nudgeHistory{
		lastShown:     map[string]time.Time{},
		lastDismissed: map[string]time.Time{},
	}
	for _, n := range recent {
		if n.ShownDate.After(h.lastShown[n.NudgeID]) {
			h.lastShown[n.NudgeID] = n.ShownDate
		}
		if n.Status == models.NudgeStatusDismissed && n.RespondedDate.After(h.lastDismissed[n.NudgeID]) {
			h.lastDismissed[n.NudgeID] = n.RespondedDate
		}
		if n.Deferred && n.ShownDate.After(h.lastDeferred) {
			h.lastDeferred = n.ShownDate
		}
	}
	return h
}

func sortCandidates(candidates []rules.NudgeRule) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority.Rank() != candidates[j].Priority.Rank() {
			return candidates[i].Priority.Rank() > candidates[j].Priority.Rank()
		}
		if candidates[i].Order != candidates[j].Order {
			return candidates[i].Order < candidates[j].Order
		}
		return candidates[i].ID < candidates[j].ID
	})
}
