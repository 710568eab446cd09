package rules

import (
	"fmt"
	"os"
	"strings"

	"github.com/dealvista/engagement-backend/internal/models"
	"gopkg.in/yaml.v3"
)

var validOps = map[string]bool{
	"eq": true, "ne": true, "gt": true, "gte": true, "lt": true, "lte": true,
	"between": true, "in": true, "not_in": true, "exists": true,
}

var validPaths = map[models.ActivationPath]bool{
	models.PathDealFirst:      true,
	models.PathPortfolioFirst: true,
	models.PathCommunityFirst: true,
}

var validSurfaces = map[models.NudgeSurface]bool{
	models.SurfaceBanner: true,
	models.SurfaceModal:  true,
	models.SurfaceToast:  true,
	models.SurfaceEmail:  true,
	models.SurfacePush:   true,
}

// Load reads and validates the rule tables from a yaml file. Any structural
// defect is returned as an error so the process fails at startup rather than
// per request.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a rules document.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := rs.validate(); err != nil {
		return nil, err
	}
	rs.index()
	return &rs, nil
}

func (rs *RuleSet) validate() error {
	if err := rs.validateScoring(); err != nil {
		return err
	}
	if err := rs.validateMilestones(); err != nil {
		return err
	}
	if err := rs.validateNudges(); err != nil {
		return err
	}
	if err := rs.validateSegments(); err != nil {
		return err
	}
	return rs.validatePlaybooks()
}

func (rs *RuleSet) validateScoring() error {
	seen := map[models.ActivationPath]bool{}
	for _, ps := range rs.PathScoring {
		if !validPaths[ps.Path] {
			return fmt.Errorf("path_scoring: unknown path %q", ps.Path)
		}
		if seen[ps.Path] {
			return fmt.Errorf("path_scoring: duplicate path %q", ps.Path)
		}
		seen[ps.Path] = true
		for _, term := range ps.Terms {
			if term.Weight < 0 {
				return fmt.Errorf("path_scoring %s: negative weight for signal %q", ps.Path, term.Signal)
			}
			if _, ok := signalFields[term.When.Field]; !ok {
				return fmt.Errorf("path_scoring %s: unknown signal field %q", ps.Path, term.When.Field)
			}
			if !validOps[term.When.Op] {
				return fmt.Errorf("path_scoring %s: unknown operator %q", ps.Path, term.When.Op)
			}
		}
	}
	for p := range validPaths {
		if !seen[p] {
			return fmt.Errorf("path_scoring: missing table for path %q", p)
		}
	}
	return nil
}

func (rs *RuleSet) validateMilestones() error {
	milestones := map[string]bool{}
	events := map[string]bool{}
	for _, m := range rs.MilestoneMap {
		if m.Event == "" || m.Milestone == "" {
			return fmt.Errorf("milestone_map: event and milestone are required")
		}
		if events[m.Event] {
			return fmt.Errorf("milestone_map: duplicate event %q", m.Event)
		}
		events[m.Event] = true
		milestones[m.Milestone] = true
	}
	for _, c := range rs.CoreMilestones {
		if !validPaths[c.Path] {
			return fmt.Errorf("core_milestones: unknown path %q", c.Path)
		}
		if len(c.Milestones) != 3 {
			return fmt.Errorf("core_milestones %s: expected 3 milestone families, got %d", c.Path, len(c.Milestones))
		}
		for _, name := range c.Milestones {
			if !milestones[name] {
				return fmt.Errorf("core_milestones %s: milestone %q not reachable from any event", c.Path, name)
			}
		}
	}
	covered := map[models.ActivationPath]bool{}
	for _, c := range rs.CoreMilestones {
		covered[c.Path] = true
	}
	for p := range validPaths {
		if !covered[p] {
			return fmt.Errorf("core_milestones: missing entry for path %q", p)
		}
	}
	return nil
}

func (rs *RuleSet) validateNudges() error {
	ids := map[string]bool{}
	for _, n := range rs.Nudges {
		if n.ID == "" {
			return fmt.Errorf("nudges: rule with empty id")
		}
		if ids[n.ID] {
			return fmt.Errorf("nudges: duplicate id %q", n.ID)
		}
		ids[n.ID] = true
		if !validSurfaces[n.Surface] {
			return fmt.Errorf("nudge %s: unknown surface %q", n.ID, n.Surface)
		}
		if n.Priority.Rank() == 0 {
			return fmt.Errorf("nudge %s: unknown priority %q", n.ID, n.Priority)
		}
		if n.Cooldown.Duration <= 0 {
			return fmt.Errorf("nudge %s: cooldown must be positive", n.ID)
		}
		if n.Path != "" && !validPaths[models.ActivationPath(n.Path)] {
			return fmt.Errorf("nudge %s: unknown path restriction %q", n.ID, n.Path)
		}
		if n.IsDeferred() && n.Feature == "" {
			return fmt.Errorf("nudge %s: deferred prompt requires a feature", n.ID)
		}
		for _, c := range n.When {
			if _, ok := nudgeField(c.Field); !ok {
				return fmt.Errorf("nudge %s: unknown field %q", n.ID, c.Field)
			}
			if !validOps[c.Op] {
				return fmt.Errorf("nudge %s: unknown operator %q", n.ID, c.Op)
			}
		}
	}
	return nil
}

func (rs *RuleSet) validateSegments() error {
	ids := map[string]bool{}
	for _, s := range rs.Segments {
		if s.ID == "" || strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("segments: id and name are required")
		}
		if ids[s.ID] {
			return fmt.Errorf("segments: duplicate id %q", s.ID)
		}
		ids[s.ID] = true
		if len(s.When) == 0 {
			return fmt.Errorf("segment %s: at least one condition is required", s.ID)
		}
		for _, c := range s.When {
			if _, ok := segmentFields[c.Field]; !ok {
				return fmt.Errorf("segment %s: unknown field %q", s.ID, c.Field)
			}
			if !validOps[c.Op] {
				return fmt.Errorf("segment %s: unknown operator %q", s.ID, c.Op)
			}
		}
	}
	return nil
}

func (rs *RuleSet) validatePlaybooks() error {
	segments := map[string]bool{}
	for _, s := range rs.Segments {
		segments[s.ID] = true
	}
	seen := map[string]bool{}
	for _, p := range rs.Playbooks {
		if !segments[p.Segment] {
			return fmt.Errorf("playbooks: unknown segment %q", p.Segment)
		}
		if seen[p.Segment] {
			return fmt.Errorf("playbooks: duplicate playbook for segment %q", p.Segment)
		}
		seen[p.Segment] = true
		if !validSurfaces[p.Surface] {
			return fmt.Errorf("playbook %s: unknown surface %q", p.Segment, p.Surface)
		}
		if p.MaxTouches <= 0 {
			return fmt.Errorf("playbook %s: max_touches must be positive", p.Segment)
		}
		if p.MinSpacing.Duration <= 0 {
			return fmt.Errorf("playbook %s: min_spacing must be positive", p.Segment)
		}
		if p.TTL.Duration <= 0 {
			return fmt.Errorf("playbook %s: ttl must be positive", p.Segment)
		}
	}
	return nil
}
