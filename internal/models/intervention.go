package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InterventionOutcome is the resolution state of a dispatched touch.
type InterventionOutcome string

const (
	OutcomePending   InterventionOutcome = "pending"
	OutcomeActed     InterventionOutcome = "acted"
	OutcomeDismissed InterventionOutcome = "dismissed"
	OutcomeExpired   InterventionOutcome = "expired"
)

// Intervention records one campaign touch for a (user, segment) pair.
// Retained for attribution and for the dispatcher's suppression lookups.
type Intervention struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	InterventionID   string              `bson:"interventionId" json:"interventionId"`
	UserID           string              `bson:"userId" json:"userId"`
	SegmentID        string              `bson:"segmentId" json:"segmentId"`
	InterventionType string              `bson:"interventionType" json:"interventionType"`
	MessageVariant   string              `bson:"messageVariant" json:"messageVariant"`
	Surface          NudgeSurface        `bson:"surface" json:"surface"`
	Offer            string              `bson:"offer,omitempty" json:"offer,omitempty"`
	Outcome          InterventionOutcome `bson:"outcome" json:"outcome"`
	ExpiresAt        time.Time           `bson:"expiresAt" json:"expiresAt"`
	CreatedDate      time.Time           `bson:"createdDate" json:"createdDate"`
	ResolvedDate     time.Time           `bson:"resolvedDate,omitempty" json:"resolvedDate,omitempty"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// SweepReport summarizes one segmentation/intervention batch pass.
type SweepReport struct {
	AsOf                    time.Time `json:"asOf"`
	UsersEvaluated          int       `json:"usersEvaluated"`
	UsersMatched            int       `json:"usersMatched"`
	InterventionsCreated    int       `json:"interventionsCreated"`
	InterventionsSuppressed int       `json:"interventionsSuppressed"`
	InterventionsExpired    int       `json:"interventionsExpired"`
	Errors                  int       `json:"errors"`
	StartedAt               time.Time `json:"startedAt"`
	FinishedAt              time.Time `json:"finishedAt"`
}
