package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dealvista/engagement-backend/internal/models"
)

func TestApplyOperators(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		actual   any
		expected any
		want     bool
	}{
		{"eq strings", "eq", "free", "free", true},
		{"eq mismatched strings", "eq", "free", "paid", false},
		{"eq numeric types", "eq", 3, 3.0, true},
		{"eq bools", "eq", false, false, true},
		{"ne", "ne", "free", "paid", true},
		{"gt", "gt", 5, 3, true},
		{"gt equal", "gt", 3, 3, false},
		{"gte equal", "gte", 3, 3, true},
		{"lt", "lt", 2.5, 3, true},
		{"lte above", "lte", 4, 3, false},
		{"between inside", "between", 55.0, []any{40, 69}, true},
		{"between lower bound", "between", 40.0, []any{40, 69}, true},
		{"between upper bound", "between", 69.0, []any{40, 69}, true},
		{"between outside", "between", 70.0, []any{40, 69}, false},
		{"between malformed", "between", 50.0, []any{40}, false},
		{"in", "in", "trial", []any{"trial", "paid"}, true},
		{"in miss", "in", "free", []any{"trial", "paid"}, false},
		{"not_in", "not_in", "free", []any{"trial", "paid"}, true},
		{"exists true on value", "exists", "strong", true, true},
		{"exists true on empty", "exists", "", true, false},
		{"exists false on empty", "exists", "", false, true},
		{"gt non-numeric", "gt", "high", 3, false},
		{"unknown op", "near", 3, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apply(tt.op, tt.actual, tt.expected))
		})
	}
}

func TestEvalNudge_PrefixedFields(t *testing.T) {
	state := models.NewActivationState("u1", models.PathDealFirst, "test", time.Now())
	state.SetMilestone("first_deal_viewed", time.Now())
	state.DeferredSetup.Pending["portfolio_goals"] = true
	state.Activity.DealsViewed = 4
	ctx := NudgeContext{State: state, CurrentFeature: "deals"}

	tests := []struct {
		name  string
		conds []Condition
		want  bool
	}{
		{
			name:  "milestone flag set",
			conds: []Condition{{Field: "milestone.first_deal_viewed", Op: "eq", Value: true}},
			want:  true,
		},
		{
			name:  "milestone flag unset",
			conds: []Condition{{Field: "milestone.first_deal_saved", Op: "eq", Value: false}},
			want:  true,
		},
		{
			name:  "pending flag",
			conds: []Condition{{Field: "pending.portfolio_goals", Op: "eq", Value: true}},
			want:  true,
		},
		{
			name:  "current feature",
			conds: []Condition{{Field: "current_feature", Op: "eq", Value: "deals"}},
			want:  true,
		},
		{
			name: "all conditions must hold",
			conds: []Condition{
				{Field: "deals_viewed", Op: "gte", Value: 3},
				{Field: "deals_saved", Op: "gte", Value: 1},
			},
			want: false,
		},
		{
			name:  "empty condition list always matches",
			conds: nil,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvalNudge(tt.conds, ctx))
		})
	}
}

func TestEvalSignal_NilSignals(t *testing.T) {
	cond := Condition{Field: "sourcing_criteria", Op: "eq", Value: "strong"}
	assert.False(t, EvalSignal(cond, nil))

	signals := &models.UserSignals{SourcingCriteria: "strong"}
	assert.True(t, EvalSignal(cond, signals))
}

func TestEvalSegment(t *testing.T) {
	input := models.SegmentInput{
		ActivationStatus: models.StatusInProgress,
		Subscription:     "free",
		PowerUserScore:   55,
		SessionCount:     5,
	}

	assert.True(t, EvalSegment([]Condition{
		{Field: "activation_status", Op: "in", Value: []any{"not_started", "in_progress"}},
		{Field: "power_user_score", Op: "between", Value: []any{40, 69}},
	}, input))

	assert.False(t, EvalSegment([]Condition{
		{Field: "subscription", Op: "ne", Value: "free"},
	}, input))
}
