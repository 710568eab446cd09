package rules

import (
	"fmt"
	"strings"

	"github.com/dealvista/engagement-backend/internal/models"
)

// NudgeContext is the snapshot a nudge rule's conditions are evaluated
// against on the request path.
type NudgeContext struct {
	State          *models.ActivationState
	CurrentFeature string
}

// nudgeFields resolves condition field names for the nudge context. The
// "milestone." and "pending." prefixes address individual flags by name.
var nudgeFields = map[string]func(NudgeContext) any{
	"activation_status":       func(c NudgeContext) any { return string(c.State.ActivationStatus) },
	"activation_path":         func(c NudgeContext) any { return string(c.State.ActivationPath) },
	"days_since_signup":       func(c NudgeContext) any { return c.State.Activity.DaysSinceSignup },
	"inactivity_days":         func(c NudgeContext) any { return c.State.Activity.InactivityDays },
	"session_count":           func(c NudgeContext) any { return c.State.Activity.SessionCount },
	"avg_session_duration":    func(c NudgeContext) any { return c.State.Activity.AvgSessionDuration },
	"deals_viewed":            func(c NudgeContext) any { return c.State.Activity.DealsViewed },
	"deals_saved":             func(c NudgeContext) any { return c.State.Activity.DealsSaved },
	"features_explored_count": func(c NudgeContext) any { return len(c.State.Activity.FeaturesExplored) },
	"milestone_count":         func(c NudgeContext) any { return len(c.State.Milestones) },
	"current_feature":         func(c NudgeContext) any { return c.CurrentFeature },
}

func nudgeField(name string) (func(NudgeContext) any, bool) {
	if f, ok := nudgeFields[name]; ok {
		return f, true
	}
	if flag, ok := strings.CutPrefix(name, "milestone."); ok {
		return func(c NudgeContext) any { return c.State.HasMilestone(flag) }, true
	}
	if flag, ok := strings.CutPrefix(name, "pending."); ok {
		return func(c NudgeContext) any { return c.State.DeferredSetup.Pending[flag] }, true
	}
	return nil, false
}

// segmentFields resolves condition field names for the segmentation input.
var segmentFields = map[string]func(models.SegmentInput) any{
	"activation_status":  func(in models.SegmentInput) any { return string(in.ActivationStatus) },
	"activation_path":    func(in models.SegmentInput) any { return string(in.ActivationPath) },
	"days_since_signup":  func(in models.SegmentInput) any { return in.DaysSinceSignup },
	"inactivity_days":    func(in models.SegmentInput) any { return in.InactivityDays },
	"session_count":      func(in models.SegmentInput) any { return in.SessionCount },
	"milestone_count":    func(in models.SegmentInput) any { return in.MilestoneCount },
	"subscription":       func(in models.SegmentInput) any { return in.Subscription },
	"churn_risk_score":   func(in models.SegmentInput) any { return in.ChurnRiskScore },
	"power_user_score":   func(in models.SegmentInput) any { return in.PowerUserScore },
	"capability_unlocks": func(in models.SegmentInput) any { return in.CapabilityUnlocks },
}

// signalFields resolves condition field names for path-scoring terms over
// the onboarding snapshot.
var signalFields = map[string]func(*models.UserSignals) any{
	"sourcing_criteria":       func(s *models.UserSignals) any { return s.SourcingCriteria },
	"risk_tolerance":          func(s *models.UserSignals) any { return s.RiskTolerance },
	"experience_years":        func(s *models.UserSignals) any { return s.ExperienceYears },
	"portfolio_goals_set":     func(s *models.UserSignals) any { return s.PortfolioGoalsSet },
	"peer_learning_interest":  func(s *models.UserSignals) any { return s.PeerLearningInterest },
	"community_intro":         func(s *models.UserSignals) any { return s.CommunityIntro },
	"skipped_portfolio_goals": func(s *models.UserSignals) any { return s.SkippedPortfolioGoals },
	"skipped_sourcing_setup":  func(s *models.UserSignals) any { return s.SkippedSourcingSetup },
	"skipped_community_intro": func(s *models.UserSignals) any { return s.SkippedCommunityIntro },
}

// EvalNudge reports whether every condition of a nudge rule holds. Field and
// operator validity is guaranteed by Load, so evaluation cannot fail.
func EvalNudge(conds []Condition, ctx NudgeContext) bool {
	for _, c := range conds {
		f, _ := nudgeField(c.Field)
		if !apply(c.Op, f(ctx), c.Value) {
			return false
		}
	}
	return true
}

// EvalSegment reports whether a segment definition matches the input.
func EvalSegment(conds []Condition, in models.SegmentInput) bool {
	for _, c := range conds {
		f := segmentFields[c.Field]
		if !apply(c.Op, f(in), c.Value) {
			return false
		}
	}
	return true
}

// EvalSignal reports whether a scoring term's condition holds. A nil signals
// snapshot matches nothing, which zero-defaults every dimension.
func EvalSignal(cond Condition, signals *models.UserSignals) bool {
	if signals == nil {
		return false
	}
	f := signalFields[cond.Field]
	return apply(cond.Op, f(signals), cond.Value)
}

func apply(op string, actual, expected any) bool {
	switch op {
	case "eq":
		return equal(actual, expected)
	case "ne":
		return !equal(actual, expected)
	case "gt", "gte", "lt", "lte":
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false
		}
		switch op {
		case "gt":
			return a > b
		case "gte":
			return a >= b
		case "lt":
			return a < b
		default:
			return a <= b
		}
	case "between":
		bounds, ok := expected.([]any)
		if !ok || len(bounds) != 2 {
			return false
		}
		a, aok := toFloat(actual)
		lo, lok := toFloat(bounds[0])
		hi, hok := toFloat(bounds[1])
		return aok && lok && hok && a >= lo && a <= hi
	case "in":
		return contains(expected, actual)
	case "not_in":
		return !contains(expected, actual)
	case "exists":
		want := true
		if b, ok := expected.(bool); ok {
			want = b
		}
		return truthy(actual) == want
	default:
		return false
	}
}

func equal(actual, expected any) bool {
	if af, aok := toFloat(actual); aok {
		if bf, bok := toFloat(expected); bok {
			return af == bf
		}
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func contains(list, item any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, v := range items {
		if equal(item, v) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return v != nil
	}
}
