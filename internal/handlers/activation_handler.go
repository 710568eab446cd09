package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/services"
)

// ActivationHandler handles activation-related HTTP requests
type ActivationHandler struct {
	classifierService services.ClassifierService
	milestoneService  services.MilestoneService
}

// NewActivationHandler creates a new ActivationHandler
func NewActivationHandler(classifierService services.ClassifierService, milestoneService services.MilestoneService) *ActivationHandler {
	return &ActivationHandler{
		classifierService: classifierService,
		milestoneService:  milestoneService,
	}
}

// ClassifyPath handles POST /users/:userId/classify-path
type ClassifyPathRequest struct {
	Retake bool `json:"retake"`
}

func (h *ActivationHandler) ClassifyPath(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId"})
		return
	}

	var request ClassifyPathRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	state, err := h.classifierService.ClassifyPath(c.Request.Context(), userID, request.Retake)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to classify path: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"path":      state.ActivationPath,
		"rationale": state.PathRationale,
		"scores":    state.PathScores,
	})
}

// RecordEvent handles POST /users/:userId/events
type RecordEventRequest struct {
	EventType string         `json:"eventType" binding:"required"`
	Payload   map[string]any `json:"payload"`
}

func (h *ActivationHandler) RecordEvent(c *gin.Context) {
	userID := c.Param("userId")

	var request RecordEventRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.milestoneService.RecordEvent(c.Request.Context(), userID, request.EventType, request.Payload)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "No activation state for user: " + userID})
		case errors.Is(err, services.ErrRetriesExhausted):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Write contention, please retry", "transient": true})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record event: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetActivation handles GET /users/:userId/activation
func (h *ActivationHandler) GetActivation(c *gin.Context) {
	userID := c.Param("userId")

	state, err := h.milestoneService.GetState(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No activation state for user: " + userID})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get activation state: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, state)
}
