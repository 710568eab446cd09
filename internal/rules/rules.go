package rules

import (
	"fmt"
	"time"

	"github.com/dealvista/engagement-backend/internal/models"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so rule tables can say "12h" or "30m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Priority orders nudge candidates before the session cap is applied.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityHigh:   3,
	PriorityMedium: 2,
	PriorityLow:    1,
}

// Rank returns the numeric weight of a priority; unknown priorities rank lowest.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// Condition is one declarative predicate clause. All clauses of a rule must
// hold for the rule to trigger.
type Condition struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
}

// ScoringTerm contributes a weighted amount to one path dimension when its
// condition holds against the user's onboarding signals.
type ScoringTerm struct {
	Signal string    `yaml:"signal"` // label used in the rationale
	Weight float64   `yaml:"weight"`
	When   Condition `yaml:"when"`
}

// PathScoring is the weighted scoring table for one activation path.
type PathScoring struct {
	Path  models.ActivationPath `yaml:"path"`
	Terms []ScoringTerm         `yaml:"terms"`
}

// MilestoneMapping maps one domain event to the milestone flag it sets.
type MilestoneMapping struct {
	Event     string `yaml:"event"`
	Milestone string `yaml:"milestone"`
}

// CoreMilestones lists the three milestone families that advance
// activation_status for users on one path.
type CoreMilestones struct {
	Path       models.ActivationPath `yaml:"path"`
	Milestones []string              `yaml:"milestones"`
}

// NudgeRule declares one trigger in the nudge table. Deferred-prompt rules
// additionally set PendingFlag and Feature and ride the stricter deferred
// schedule.
type NudgeRule struct {
	ID            string              `yaml:"id"`
	Message       string              `yaml:"message"`
	Surface       models.NudgeSurface `yaml:"surface"`
	Priority      Priority            `yaml:"priority"`
	Cooldown      Duration            `yaml:"cooldown"`
	Order         int                 `yaml:"order"`
	Path          string              `yaml:"path,omitempty"` // restrict to one activation path
	MaxDismissals int                 `yaml:"max_dismissals,omitempty"`
	When          []Condition         `yaml:"when"`
	PendingFlag   string              `yaml:"pending_flag,omitempty"`
	Feature       string              `yaml:"feature,omitempty"`
}

// IsDeferred reports whether this rule is a deferred setup prompt.
func (r NudgeRule) IsDeferred() bool {
	return r.PendingFlag != ""
}

// SegmentDef is one named predicate in the segment registry.
type SegmentDef struct {
	ID       string      `yaml:"id"`
	Name     string      `yaml:"name"`
	Priority int         `yaml:"priority"`
	When     []Condition `yaml:"when"`
}

// Playbook is the intervention recipe for one segment, including its
// suppression limits.
type Playbook struct {
	Segment          string              `yaml:"segment"`
	InterventionType string              `yaml:"intervention_type"`
	MessageVariant   string              `yaml:"message_variant"`
	Surface          models.NudgeSurface `yaml:"surface"`
	Offer            string              `yaml:"offer,omitempty"`
	MaxTouches       int                 `yaml:"max_touches"`
	MinSpacing       Duration            `yaml:"min_spacing"`
	TTL              Duration            `yaml:"ttl"`
}

// RuleSet is the full declarative configuration of the engine. Loaded once at
// startup; a malformed table is a deploy-time defect and aborts the process.
type RuleSet struct {
	PathScoring    []PathScoring      `yaml:"path_scoring"`
	MilestoneMap   []MilestoneMapping `yaml:"milestone_map"`
	CoreMilestones []CoreMilestones   `yaml:"core_milestones"`
	Nudges         []NudgeRule        `yaml:"nudges"`
	Segments       []SegmentDef       `yaml:"segments"`
	Playbooks      []Playbook         `yaml:"playbooks"`

	milestoneByEvent map[string]string
	coreByPath       map[models.ActivationPath][]string
	playbookBySeg    map[string]*Playbook
}

// MilestoneForEvent returns the milestone flag an event sets, if any.
func (rs *RuleSet) MilestoneForEvent(event string) (string, bool) {
	m, ok := rs.milestoneByEvent[event]
	return m, ok
}

// CoreMilestonesFor returns the core milestone families for a path.
func (rs *RuleSet) CoreMilestonesFor(path models.ActivationPath) []string {
	return rs.coreByPath[path]
}

// PlaybookFor returns the playbook bound to a segment, if one exists.
func (rs *RuleSet) PlaybookFor(segmentID string) (*Playbook, bool) {
	p, ok := rs.playbookBySeg[segmentID]
	return p, ok
}

func (rs *RuleSet) index() {
	rs.milestoneByEvent = make(map[string]string, len(rs.MilestoneMap))
	for _, m := range rs.MilestoneMap {
		rs.milestoneByEvent[m.Event] = m.Milestone
	}
	rs.coreByPath = make(map[models.ActivationPath][]string, len(rs.CoreMilestones))
	for _, c := range rs.CoreMilestones {
		rs.coreByPath[c.Path] = c.Milestones
	}
	rs.playbookBySeg = make(map[string]*Playbook, len(rs.Playbooks))
	for i := range rs.Playbooks {
		rs.playbookBySeg[rs.Playbooks[i].Segment] = &rs.Playbooks[i]
	}
}
