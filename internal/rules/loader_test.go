package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealvista/engagement-backend/internal/models"
)

const minimalRulesYAML = `
path_scoring:
  - path: deal_first
    terms:
      - signal: strong sourcing criteria
        weight: 3.0
        when: { field: sourcing_criteria, op: eq, value: strong }
  - path: portfolio_first
    terms:
      - signal: portfolio goals set
        weight: 3.0
        when: { field: portfolio_goals_set, op: eq, value: true }
  - path: community_first
    terms:
      - signal: peer learning interest
        weight: 3.0
        when: { field: peer_learning_interest, op: eq, value: true }

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
    message: "Save a deal."
    surface: banner
    priority: high
    cooldown: 12h
    order: 10
    when:
      - { field: deals_viewed, op: gte, value: 3 }

segments:
  - id: churn_risk
    name: Churn Risk
    priority: 80
    when:
      - { field: churn_risk_score, op: gte, value: 70 }

playbooks:
  - segment: churn_risk
    intervention_type: retention_outreach
    message_variant: winback_digest
    surface: email
    max_touches: 2
    min_spacing: 168h
    ttl: 168h
`

func TestParse_ValidDocument(t *testing.T) {
	rs, err := Parse([]byte(minimalRulesYAML))
	require.NoError(t, err)

	milestone, ok := rs.MilestoneForEvent("deal_viewed")
	require.True(t, ok)
	assert.Equal(t, "first_deal_viewed", milestone)

	_, ok = rs.MilestoneForEvent("session_started")
	assert.False(t, ok)

	core := rs.CoreMilestonesFor(models.PathDealFirst)
	assert.Len(t, core, 3)

	playbook, ok := rs.PlaybookFor("churn_risk")
	require.True(t, ok)
	assert.Equal(t, "retention_outreach", playbook.InterventionType)

	_, ok = rs.PlaybookFor("unknown")
	assert.False(t, ok)

	assert.Equal(t, 12.0, rs.Nudges[0].Cooldown.Hours())
}

func TestParse_RejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "unknown signal field",
			mutate:  func(doc string) string { return strings.Replace(doc, "sourcing_criteria,", "unknown_field,", 1) },
			wantErr: "unknown signal field",
		},
		{
			name:    "unknown operator",
			mutate:  func(doc string) string { return strings.Replace(doc, "op: gte, value: 3", "op: near, value: 3", 1) },
			wantErr: "unknown operator",
		},
		{
			name:    "missing scoring table",
			mutate:  func(doc string) string { return strings.Replace(doc, "path: community_first\n    terms", "path: deal_first\n    terms", 1) },
			wantErr: "path_scoring",
		},
		{
			name:    "bad duration",
			mutate:  func(doc string) string { return strings.Replace(doc, "cooldown: 12h", "cooldown: tomorrow", 1) },
			wantErr: "invalid duration",
		},
		{
			name:    "unknown nudge surface",
			mutate:  func(doc string) string { return strings.Replace(doc, "surface: banner", "surface: billboard", 1) },
			wantErr: "unknown surface",
		},
		{
			name:    "unknown nudge field",
			mutate:  func(doc string) string { return strings.Replace(doc, "field: deals_viewed", "field: deals_bought", 1) },
			wantErr: "unknown field",
		},
		{
			name:    "zero cooldown",
			mutate:  func(doc string) string { return strings.Replace(doc, "cooldown: 12h", "cooldown: 0s", 1) },
			wantErr: "cooldown must be positive",
		},
		{
			name:    "core milestone not reachable",
			mutate:  func(doc string) string { return strings.Replace(doc, "milestones: [first_deal_viewed,", "milestones: [never_emitted,", 1) },
			wantErr: "not reachable",
		},
		{
			name:    "playbook for unknown segment",
			mutate:  func(doc string) string { return strings.Replace(doc, "segment: churn_risk\n    intervention_type", "segment: ghosts\n    intervention_type", 1) },
			wantErr: "unknown segment",
		},
		{
			name:    "segment without conditions",
			mutate:  func(doc string) string { return strings.Replace(doc, "    when:\n      - { field: churn_risk_score, op: gte, value: 70 }", "    when: []", 1) },
			wantErr: "at least one condition",
		},
		{
			name:    "not yaml",
			mutate:  func(string) string { return "{{nope" },
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(minimalRulesYAML)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_DuplicateNudgeID(t *testing.T) {
	doc := strings.Replace(minimalRulesYAML,
		"segments:",
		`  - id: save_first_deal
    message: "Duplicate."
    surface: banner
    priority: low
    cooldown: 1h
    order: 99
    when: []

segments:`, 1)
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestParse_DeferredPromptRequiresFeature(t *testing.T) {
	doc := strings.Replace(minimalRulesYAML,
		"segments:",
		`  - id: deferred_goals
    message: "Finish your goals."
    surface: modal
    priority: medium
    cooldown: 48h
    order: 50
    pending_flag: portfolio_goals
    when: []

segments:`, 1)
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a feature")
}

func TestLoad_ShippedRulesFile(t *testing.T) {
	rs, err := Load("../../config/rules.yaml")
	require.NoError(t, err)
	assert.NotEmpty(t, rs.Nudges)
	assert.NotEmpty(t, rs.Segments)
	assert.NotEmpty(t, rs.Playbooks)

	// The check-in nudge fires after two inactive days and then backs off
	// for a day.
	var checkin *NudgeRule
	for i := range rs.Nudges {
		if rs.Nudges[i].ID == "inactivity_checkin" {
			checkin = &rs.Nudges[i]
		}
	}
	require.NotNil(t, checkin)
	require.Len(t, checkin.When, 1)
	assert.Equal(t, "inactivity_days", checkin.When[0].Field)
	assert.Equal(t, "gte", checkin.When[0].Op)
	assert.EqualValues(t, 2, checkin.When[0].Value)
	assert.Equal(t, 24*time.Hour, checkin.Cooldown.Duration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("nope/rules.yaml")
	require.Error(t, err)
}
