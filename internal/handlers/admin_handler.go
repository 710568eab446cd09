package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealvista/engagement-backend/internal/repositories"
	"github.com/dealvista/engagement-backend/internal/services"
)

// AdminHandler handles operational endpoints behind admin auth
type AdminHandler struct {
	interventionService services.InterventionService
	segmentationService services.SegmentationService
	nudgeService        services.NudgeService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(
	interventionService services.InterventionService,
	segmentationService services.SegmentationService,
	nudgeService services.NudgeService,
) *AdminHandler {
	return &AdminHandler{
		interventionService: interventionService,
		segmentationService: segmentationService,
		nudgeService:        nudgeService,
	}
}

// RunSweep handles POST /admin/sweep?asOf=RFC3339
func (h *AdminHandler) RunSweep(c *gin.Context) {
	asOf := time.Now()
	if raw := c.Query("asOf"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid asOf, expected RFC 3339 timestamp"})
			return
		}
		asOf = parsed
	}

	report, err := h.interventionService.RunSweep(c.Request.Context(), asOf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sweep failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// PruneNudges handles POST /admin/nudges/prune
func (h *AdminHandler) PruneNudges(c *gin.Context) {
	deleted, err := h.nudgeService.PruneNudges(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prune nudges: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// GetUserSegments handles GET /admin/segments/:userId
func (h *AdminHandler) GetUserSegments(c *gin.Context) {
	userID := c.Param("userId")

	matches, err := h.segmentationService.ClassifyUser(c.Request.Context(), userID, time.Now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No activation state for user: " + userID})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to classify user: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "segments": matches})
}
