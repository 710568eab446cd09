package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserSignals is the read-mostly onboarding snapshot for one user.
// It is produced at signup and may be refreshed when the user completes a
// deferred setup step; the engine never writes it.
type UserSignals struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID                string             `bson:"userId" json:"userId"`
	SourcingCriteria      string             `bson:"sourcingCriteria,omitempty" json:"sourcingCriteria,omitempty"` // none, basic, strong
	RiskTolerance         string             `bson:"riskTolerance,omitempty" json:"riskTolerance,omitempty"`       // conservative, moderate, aggressive
	ExperienceYears       int                `bson:"experienceYears" json:"experienceYears"`
	PortfolioGoalsSet     bool               `bson:"portfolioGoalsSet" json:"portfolioGoalsSet"`
	PeerLearningInterest  bool               `bson:"peerLearningInterest" json:"peerLearningInterest"`
	CommunityIntro        bool               `bson:"communityIntro" json:"communityIntro"`
	SkippedPortfolioGoals bool               `bson:"skippedPortfolioGoals" json:"skippedPortfolioGoals"`
	SkippedSourcingSetup  bool               `bson:"skippedSourcingSetup" json:"skippedSourcingSetup"`
	SkippedCommunityIntro bool               `bson:"skippedCommunityIntro" json:"skippedCommunityIntro"`
	SignupDate            time.Time          `bson:"signupDate" json:"signupDate"`
	RefreshedAt           time.Time          `bson:"refreshedAt,omitempty" json:"refreshedAt,omitempty"`
}

// UserProfile carries the subscription and scoring inputs the segmentation
// classifier reads alongside ActivationState. Maintained by external jobs;
// read-only to the engine.
type UserProfile struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID            string             `bson:"userId" json:"userId"`
	Subscription      string             `bson:"subscription" json:"subscription"` // free, trial, paid
	ChurnRiskScore    float64            `bson:"churnRiskScore" json:"churnRiskScore"`
	PowerUserScore    float64            `bson:"powerUserScore" json:"powerUserScore"`
	CapabilityUnlocks int                `bson:"capabilityUnlocks" json:"capabilityUnlocks"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}
