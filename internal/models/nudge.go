package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NudgeStatus is the user-feedback state of a shown nudge.
type NudgeStatus string

const (
	NudgeStatusShown     NudgeStatus = "shown"
	NudgeStatusDismissed NudgeStatus = "dismissed"
	NudgeStatusActed     NudgeStatus = "acted"
)

// NudgeSurface is where a nudge is rendered.
type NudgeSurface string

const (
	SurfaceBanner NudgeSurface = "banner"
	SurfaceModal  NudgeSurface = "modal"
	SurfaceToast  NudgeSurface = "toast"
	SurfaceEmail  NudgeSurface = "email"
	SurfacePush   NudgeSurface = "push"
)

// Nudge is one entry in the per-user append-only nudge log. NudgeID is the
// stable rule identifier; cooldown lookups key on (userId, nudgeId).
type Nudge struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID        string             `bson:"userId" json:"userId"`
	NudgeID       string             `bson:"nudgeId" json:"nudgeId"`
	Message       string             `bson:"message" json:"message"`
	Surface       NudgeSurface       `bson:"surface" json:"surface"`
	Status        NudgeStatus        `bson:"status" json:"status"`
	Deferred      bool               `bson:"deferred" json:"deferred"`
	ShownDate     time.Time          `bson:"shownDate" json:"shownDate"`
	RespondedDate time.Time          `bson:"respondedDate,omitempty" json:"respondedDate,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}
