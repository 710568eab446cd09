package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/dealvista/engagement-backend/internal/config"
	"github.com/dealvista/engagement-backend/internal/handlers"
	"github.com/dealvista/engagement-backend/internal/middleware"
	"github.com/dealvista/engagement-backend/pkg/logger"
)

// HandlerDependencies carries the wired handlers into router setup
type HandlerDependencies struct {
	ActivationHandler *handlers.ActivationHandler
	NudgeHandler      *handlers.NudgeHandler
	AdminHandler      *handlers.AdminHandler
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, log *logger.Logger, deps HandlerDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(log))

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})

		users := public.Group("/users/:userId")
		{
			users.POST("/classify-path", deps.ActivationHandler.ClassifyPath)
			users.POST("/events", deps.ActivationHandler.RecordEvent)
			users.GET("/activation", deps.ActivationHandler.GetActivation)

			users.GET("/nudges", deps.NudgeHandler.GetActiveNudges)
			users.POST("/nudges/:nudgeId/dismiss", deps.NudgeHandler.DismissNudge)
			users.POST("/nudges/:nudgeId/act", deps.NudgeHandler.ActOnNudge)

			users.POST("/interventions/:interventionId/resolve", deps.NudgeHandler.ResolveIntervention)
		}
	}

	// Admin routes
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.JWTAuthMiddleware(cfg))
	{
		admin.POST("/sweep", deps.AdminHandler.RunSweep)
		admin.POST("/nudges/prune", deps.AdminHandler.PruneNudges)
		admin.GET("/segments/:userId", deps.AdminHandler.GetUserSegments)
	}

	return router
}
