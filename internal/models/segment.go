package models

// SegmentMatch is one matched segment from a classification pass. Membership
// is computed on demand, never stored as source of truth.
type SegmentMatch struct {
	SegmentID string `json:"segmentId"`
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
}

// SegmentInput is the composite snapshot a user is classified against.
// Assembled per evaluation from the activation state and profile stores.
type SegmentInput struct {
	UserID            string
	ActivationStatus  ActivationStatus
	ActivationPath    ActivationPath
	DaysSinceSignup   int
	InactivityDays    int
	SessionCount      int
	MilestoneCount    int
	Subscription      string
	ChurnRiskScore    float64
	PowerUserScore    float64
	CapabilityUnlocks int
}
