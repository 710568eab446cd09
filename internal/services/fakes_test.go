package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dealvista/engagement-backend/internal/config"
	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/rules"
	"github.com/dealvista/engagement-backend/pkg/notifier"
)

const testRulesYAML = `
path_scoring:
  - path: deal_first
    terms:
      - signal: strong sourcing criteria
        weight: 3.0
        when: { field: sourcing_criteria, op: eq, value: strong }
      - signal: aggressive risk tolerance
        weight: 2.0
        when: { field: risk_tolerance, op: eq, value: aggressive }
      - signal: prior investing experience
        weight: 2.0
        when: { field: experience_years, op: gte, value: 5 }
      - signal: deferred portfolio setup
        weight: 1.0
        when: { field: skipped_portfolio_goals, op: eq, value: true }
  - path: portfolio_first
    terms:
      - signal: portfolio goals set
        weight: 3.0
        when: { field: portfolio_goals_set, op: eq, value: true }
      - signal: conservative risk tolerance
        weight: 2.0
        when: { field: risk_tolerance, op: eq, value: conservative }
  - path: community_first
    terms:
      - signal: peer learning interest
        weight: 3.0
        when: { field: peer_learning_interest, op: eq, value: true }
      - signal: new to investing
        weight: 1.0
        when: { field: experience_years, op: lte, value: 1 }

milestone_map:
  - { event: deal_viewed, milestone: first_deal_viewed }
  - { event: deal_saved, milestone: first_deal_saved }
  - { event: sourcing_criteria_set, milestone: sourcing_criteria_set }
  - { event: goal_set, milestone: portfolio_goals_set }
  - { event: portfolio_created, milestone: first_portfolio_created }
  - { event: holding_added, milestone: first_holding_added }
  - { event: community_joined, milestone: community_joined }
  - { event: post_created, milestone: first_post_created }
  - { event: reply_received, milestone: first_reply_received }

core_milestones:
  - path: deal_first
    milestones: [first_deal_viewed, first_deal_saved, sourcing_criteria_set]
  - path: portfolio_first
    milestones: [portfolio_goals_set, first_portfolio_created, first_holding_added]
  - path: community_first
    milestones: [community_joined, first_post_created, first_reply_received]

nudges:
  - id: save_first_deal
    message: "Save a deal to start tracking it."
    surface: banner
    priority: high
    cooldown: 12h
    order: 10
    when:
      - { field: deals_viewed, op: gte, value: 3 }
      - { field: deals_saved, op: eq, value: 0 }
  - id: set_sourcing_criteria
    message: "Tune your sourcing criteria."
    surface: modal
    priority: medium
    cooldown: 72h
    order: 20
    path: deal_first
    max_dismissals: 2
    when:
      - { field: milestone.sourcing_criteria_set, op: eq, value: false }
  - id: inactivity_checkin
    message: "New deals landed while you were away."
    surface: email
    priority: medium
    cooldown: 24h
    order: 30
    when:
      - { field: inactivity_days, op: gte, value: 2 }
  - id: explore_features
    message: "Take a look around."
    surface: banner
    priority: low
    cooldown: 96h
    order: 40
    when:
      - { field: session_count, op: gte, value: 3 }
  - id: deferred_portfolio_goals
    message: "Finish setting your portfolio goals."
    surface: modal
    priority: medium
    cooldown: 48h
    order: 50
    pending_flag: portfolio_goals
    feature: portfolio
    when: []

segments:
  - id: stalled_onboarding
    name: Stalled Onboarding
    priority: 90
    when:
      - { field: activation_status, op: in, value: [not_started, in_progress] }
      - { field: days_since_signup, op: gte, value: 7 }
      - { field: milestone_count, op: lte, value: 1 }
  - id: churn_risk
    name: Churn Risk
    priority: 80
    when:
      - { field: churn_risk_score, op: gte, value: 70 }
      - { field: inactivity_days, op: gte, value: 5 }
  - id: emerging_power_user
    name: Emerging Power User
    priority: 60
    when:
      - { field: power_user_score, op: between, value: [40, 69] }
      - { field: subscription, op: eq, value: free }
      - { field: capability_unlocks, op: gte, value: 1 }
  - id: passive_browser
    name: Passive Browser
    priority: 20
    when:
      - { field: subscription, op: eq, value: free }
      - { field: session_count, op: gte, value: 4 }
      - { field: milestone_count, op: lte, value: 1 }

playbooks:
  - segment: stalled_onboarding
    intervention_type: onboarding_rescue
    message_variant: guided_restart
    surface: email
    max_touches: 3
    min_spacing: 120h
    ttl: 168h
  - segment: churn_risk
    intervention_type: retention_outreach
    message_variant: winback_digest
    surface: email
    max_touches: 2
    min_spacing: 168h
    ttl: 168h
  - segment: emerging_power_user
    intervention_type: upgrade_prompt
    message_variant: power_features_tour
    surface: push
    max_touches: 3
    min_spacing: 168h
    ttl: 168h
`

func testRuleSet(t *testing.T) *rules.RuleSet {
	t.Helper()
	rs, err := rules.Parse([]byte(testRulesYAML))
	require.NoError(t, err)
	return rs
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		SessionNudgeCap:        2,
		DismissalCooldown:      48 * time.Hour,
		DeferredGlobalCooldown: 48 * time.Hour,
		ActivationWindowDays:   14,
		WriteRetryAttempts:     3,
		NudgeRetentionDays:     30,
		SweepBatchSize:         500,
		SweepWorkers:           4,
	}
}

// fakeSignalRepo serves canned signal and profile documents.
type fakeSignalRepo struct {
	signals  map[string]*models.UserSignals
	profiles map[string]*models.UserProfile
	err      error
}

func (f *fakeSignalRepo) GetSignals(_ context.Context, userID string) (*models.UserSignals, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.signals[userID]; ok {
		return s, nil
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeSignalRepo) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return nil, repositories.ErrNotFound
}

// fakeStateRepo is an in-memory ActivationStateRepository with the same
// versioned-write semantics as the mongo implementation.
type fakeStateRepo struct {
	mu     sync.Mutex
	states map[string]*models.ActivationState

	// forceConflicts makes the next N versioned writes fail, simulating a
	// concurrent writer.
	forceConflicts int
	updateCalls    int
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: map[string]*models.ActivationState{}}
}

func copyState(s *models.ActivationState) *models.ActivationState {
	clone := *s
	clone.Milestones = map[string]bool{}
	for k, v := range s.Milestones {
		clone.Milestones[k] = v
	}
	clone.MilestoneDates = map[string]time.Time{}
	for k, v := range s.MilestoneDates {
		clone.MilestoneDates[k] = v
	}
	clone.DeferredSetup = models.DeferredSetup{
		Pending:     map[string]bool{},
		PromptShown: map[string][]time.Time{},
	}
	for k, v := range s.DeferredSetup.Pending {
		clone.DeferredSetup.Pending[k] = v
	}
	for k, v := range s.DeferredSetup.PromptShown {
		clone.DeferredSetup.PromptShown[k] = append([]time.Time(nil), v...)
	}
	clone.Activity.FeaturesExplored = append([]string(nil), s.Activity.FeaturesExplored...)
	return &clone
}

func (f *fakeStateRepo) Create(_ context.Context, state *models.ActivationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state.ID = primitive.NewObjectID()
	state.Version = 1
	f.states[state.UserID] = copyState(state)
	return nil
}

func (f *fakeStateRepo) FindByUserID(_ context.Context, userID string) (*models.ActivationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[userID]; ok {
		return copyState(s), nil
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeStateRepo) UpdateVersioned(_ context.Context, state *models.ActivationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.forceConflicts > 0 {
		f.forceConflicts--
		return repositories.ErrVersionConflict
	}
	stored, ok := f.states[state.UserID]
	if !ok || stored.Version != state.Version {
		return repositories.ErrVersionConflict
	}
	state.Version++
	f.states[state.UserID] = copyState(state)
	return nil
}

func (f *fakeStateRepo) FindBatch(_ context.Context, afterID primitive.ObjectID, limit int64) ([]*models.ActivationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*models.ActivationState
	for _, s := range f.states {
		if afterID.IsZero() || s.ID.Hex() > afterID.Hex() {
			all = append(all, copyState(s))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.Hex() < all[j].ID.Hex() })
	if int64(len(all)) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStateRepo) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.states)), nil
}

// fakeNudgeRepo is an in-memory append-only nudge log.
type fakeNudgeRepo struct {
	mu      sync.Mutex
	records []*models.Nudge
}

func (f *fakeNudgeRepo) InsertIfNotShownSince(_ context.Context, nudge *models.Nudge, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UserID == nudge.UserID && r.NudgeID == nudge.NudgeID && !r.ShownDate.Before(since) {
			return false, nil
		}
	}
	clone := *nudge
	clone.ID = primitive.NewObjectID()
	f.records = append(f.records, &clone)
	return true, nil
}

func (f *fakeNudgeRepo) FindRecentByUser(_ context.Context, userID string, since time.Time) ([]*models.Nudge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Nudge
	for _, r := range f.records {
		if r.UserID == userID && !r.ShownDate.Before(since) {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeNudgeRepo) UpdateStatus(_ context.Context, userID, nudgeID string, status models.NudgeStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Nudge
	for _, r := range f.records {
		if r.UserID == userID && r.NudgeID == nudgeID {
			if latest == nil || r.ShownDate.After(latest.ShownDate) {
				latest = r
			}
		}
	}
	if latest == nil {
		return repositories.ErrNotFound
	}
	latest.Status = status
	latest.RespondedDate = at
	return nil
}

func (f *fakeNudgeRepo) CountDismissals(_ context.Context, userID, nudgeID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.records {
		if r.UserID == userID && r.NudgeID == nudgeID && r.Status == models.NudgeStatusDismissed {
			n++
		}
	}
	return n, nil
}

func (f *fakeNudgeRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*models.Nudge
	var deleted int64
	for _, r := range f.records {
		if r.ShownDate.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.records = kept
	return deleted, nil
}

// fakeInterventionRepo is an in-memory intervention log.
type fakeInterventionRepo struct {
	mu      sync.Mutex
	records []*models.Intervention
}

func (f *fakeInterventionRepo) Create(_ context.Context, intervention *models.Intervention) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *intervention
	clone.ID = primitive.NewObjectID()
	f.records = append(f.records, &clone)
	return nil
}

func (f *fakeInterventionRepo) HasUnexpiredPending(_ context.Context, userID, segmentID string, asOf time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UserID == userID && r.SegmentID == segmentID && r.Outcome == models.OutcomePending && r.ExpiresAt.After(asOf) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInterventionRepo) CountTouches(_ context.Context, userID, segmentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.records {
		if r.UserID == userID && r.SegmentID == segmentID {
			n++
		}
	}
	return n, nil
}

func (f *fakeInterventionRepo) FindLastTouch(_ context.Context, userID, segmentID string) (*models.Intervention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Intervention
	for _, r := range f.records {
		if r.UserID == userID && r.SegmentID == segmentID {
			if latest == nil || r.CreatedDate.After(latest.CreatedDate) {
				latest = r
			}
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeInterventionRepo) Resolve(_ context.Context, userID, interventionID string, outcome models.InterventionOutcome, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UserID == userID && r.InterventionID == interventionID && r.Outcome == models.OutcomePending {
			r.Outcome = outcome
			r.ResolvedDate = at
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (f *fakeInterventionRepo) ExpirePending(_ context.Context, asOf time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.records {
		if r.Outcome == models.OutcomePending && !r.ExpiresAt.After(asOf) {
			r.Outcome = models.OutcomeExpired
			n++
		}
	}
	return n, nil
}

// capturingNotifier records deliveries for assertions.
type capturingNotifier struct {
	mu         sync.Mutex
	deliveries []notifier.Delivery
	err        error
}

func (c *capturingNotifier) Send(_ context.Context, delivery notifier.Delivery) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.deliveries = append(c.deliveries, delivery)
	return "msg-1", nil
}

func (c *capturingNotifier) sent() []notifier.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notifier.Delivery(nil), c.deliveries...)
}

var _ repositories.SignalRepository = (*fakeSignalRepo)(nil)
var _ repositories.ActivationStateRepository = (*fakeStateRepo)(nil)
var _ repositories.NudgeRepository = (*fakeNudgeRepo)(nil)
var _ repositories.InterventionRepository = (*fakeInterventionRepo)(nil)
var _ notifier.Notifier = (*capturingNotifier)(nil)
