package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/services"
)

// NudgeHandler handles nudge and intervention HTTP requests
type NudgeHandler struct {
	nudgeService        services.NudgeService
	interventionService services.InterventionService
}

// NewNudgeHandler creates a new NudgeHandler
func NewNudgeHandler(nudgeService services.NudgeService, interventionService services.InterventionService) *NudgeHandler {
	return &NudgeHandler{
		nudgeService:        nudgeService,
		interventionService: interventionService,
	}
}

// GetActiveNudges handles GET /users/:userId/nudges?feature=
func (h *NudgeHandler) GetActiveNudges(c *gin.Context) {
	userID := c.Param("userId")
	feature := c.Query("feature")

	nudges, err := h.nudgeService.GetActiveNudges(c.Request.Context(), userID, feature)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate nudges: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nudges": nudges})
}

// DismissNudge handles POST /users/:userId/nudges/:nudgeId/dismiss
func (h *NudgeHandler) DismissNudge(c *gin.Context) {
	userID := c.Param("userId")
	nudgeID := c.Param("nudgeId")

	if err := h.nudgeService.DismissNudge(c.Request.Context(), userID, nudgeID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No shown nudge to dismiss: " + nudgeID})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dismiss nudge: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Nudge dismissed"})
}

// ActOnNudge handles POST /users/:userId/nudges/:nudgeId/act
func (h *NudgeHandler) ActOnNudge(c *gin.Context) {
	userID := c.Param("userId")
	nudgeID := c.Param("nudgeId")

	if err := h.nudgeService.ActOnNudge(c.Request.Context(), userID, nudgeID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No shown nudge to act on: " + nudgeID})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record action: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Action recorded"})
}

// ResolveIntervention handles POST /users/:userId/interventions/:interventionId/resolve
type ResolveInterventionRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (h *NudgeHandler) ResolveIntervention(c *gin.Context) {
	userID := c.Param("userId")
	interventionID := c.Param("interventionId")

	var request ResolveInterventionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.interventionService.ResolveIntervention(c.Request.Context(), userID, interventionID, models.InterventionOutcome(request.Outcome))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidOutcome):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "No pending intervention: " + interventionID})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve intervention: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Intervention resolved"})
}
