package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActivationPath is the behavioral track assigned at signup.
type ActivationPath string

const (
	PathDealFirst      ActivationPath = "deal_first"
	PathPortfolioFirst ActivationPath = "portfolio_first"
	PathCommunityFirst ActivationPath = "community_first"
)

// ActivationStatus is the lifecycle stage of a user's activation. Transitions
// are monotonic; FullyActivated is terminal.
type ActivationStatus string

const (
	StatusNotStarted         ActivationStatus = "not_started"
	StatusInProgress         ActivationStatus = "in_progress"
	StatusMilestone1Achieved ActivationStatus = "milestone_1_achieved"
	StatusMilestone2Achieved ActivationStatus = "milestone_2_achieved"
	StatusFullyActivated     ActivationStatus = "fully_activated"
)

var statusRank = map[ActivationStatus]int{
	StatusNotStarted:         0,
	StatusInProgress:         1,
	StatusMilestone1Achieved: 2,
	StatusMilestone2Achieved: 3,
	StatusFullyActivated:     4,
}

// Rank returns the ordering position of a status; unknown statuses rank lowest.
func (s ActivationStatus) Rank() int {
	return statusRank[s]
}

// MaxStatus returns the later of two statuses in lifecycle order.
func MaxStatus(a, b ActivationStatus) ActivationStatus {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ActivitySignals are derived engagement counters kept on the activation
// record. FeaturesExplored only ever grows.
type ActivitySignals struct {
	DaysSinceSignup    int       `bson:"daysSinceSignup" json:"daysSinceSignup"`
	LastActivityDate   time.Time `bson:"lastActivityDate,omitempty" json:"lastActivityDate,omitempty"`
	InactivityDays     int       `bson:"inactivityDays" json:"inactivityDays"`
	SessionCount       int       `bson:"sessionCount" json:"sessionCount"`
	AvgSessionDuration float64   `bson:"avgSessionDuration" json:"avgSessionDuration"`
	FeaturesExplored   []string  `bson:"featuresExplored,omitempty" json:"featuresExplored,omitempty"`
	DealsViewed        int       `bson:"dealsViewed" json:"dealsViewed"`
	DealsSaved         int       `bson:"dealsSaved" json:"dealsSaved"`
}

// DeferredSetup tracks onboarding steps the user skipped and the history of
// prompts shown for each.
type DeferredSetup struct {
	Pending     map[string]bool        `bson:"pending,omitempty" json:"pending,omitempty"`
	PromptShown map[string][]time.Time `bson:"promptShown,omitempty" json:"promptShown,omitempty"`
}

// ActivationState is the per-user activation document. Milestone flags are
// set-once and ActivationStatus never regresses. Version backs the
// optimistic-concurrency write path.
type ActivationState struct {
	ID               primitive.ObjectID         `bson:"_id,omitempty" json:"id,omitempty"`
	UserID           string                     `bson:"userId" json:"userId"`
	ActivationPath   ActivationPath             `bson:"activationPath" json:"activationPath"`
	PathRationale    string                     `bson:"pathRationale" json:"pathRationale"`
	PathScores       map[ActivationPath]float64 `bson:"pathScores,omitempty" json:"pathScores,omitempty"`
	ActivationStatus ActivationStatus           `bson:"activationStatus" json:"activationStatus"`
	Milestones       map[string]bool            `bson:"milestones,omitempty" json:"milestones,omitempty"`
	MilestoneDates   map[string]time.Time       `bson:"milestoneDates,omitempty" json:"milestoneDates,omitempty"`
	Activity         ActivitySignals            `bson:"activity" json:"activity"`
	DeferredSetup    DeferredSetup              `bson:"deferredSetup" json:"deferredSetup"`
	SignupDate       time.Time                  `bson:"signupDate" json:"signupDate"`
	Archived         bool                       `bson:"archived" json:"archived"`
	Version          int64                      `bson:"version" json:"version"`
	CreatedAt        time.Time                  `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time                  `bson:"updatedAt" json:"updatedAt"`
}

// NewActivationState creates the initial state written at signup.
func NewActivationState(userID string, path ActivationPath, rationale string, signup time.Time) *ActivationState {
	return &ActivationState{
		UserID:           userID,
		ActivationPath:   path,
		PathRationale:    rationale,
		ActivationStatus: StatusNotStarted,
		Milestones:       map[string]bool{},
		MilestoneDates:   map[string]time.Time{},
		DeferredSetup: DeferredSetup{
			Pending:     map[string]bool{},
			PromptShown: map[string][]time.Time{},
		},
		SignupDate: signup,
	}
}

// HasMilestone reports whether the named milestone flag has been set.
func (s *ActivationState) HasMilestone(name string) bool {
	return s.Milestones[name]
}

// SetMilestone sets a milestone flag exactly once and records its date.
// Returns true if the flag was newly set.
func (s *ActivationState) SetMilestone(name string, at time.Time) bool {
	if s.Milestones == nil {
		s.Milestones = map[string]bool{}
	}
	if s.Milestones[name] {
		return false
	}
	s.Milestones[name] = true
	if s.MilestoneDates == nil {
		s.MilestoneDates = map[string]time.Time{}
	}
	s.MilestoneDates[name] = at
	return true
}

// Terminal reports whether no further lifecycle transitions can occur.
func (s *ActivationState) Terminal() bool {
	return s.ActivationStatus == StatusFullyActivated
}
