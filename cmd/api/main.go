package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/dealvista/engagement-backend/api/routes"
	"github.com/dealvista/engagement-backend/internal/config"
	"github.com/dealvista/engagement-backend/internal/handlers"
	"github.com/dealvista/engagement-backend/internal/models"
	"github.com/dealvista/engagement-backend/internal/repositories"
	mongorepo "github.com/dealvista/engagement-backend/internal/repositories/mongodb"
	"github.com/dealvista/engagement-backend/internal/rules"
	"github.com/dealvista/engagement-backend/internal/services"
	"github.com/dealvista/engagement-backend/pkg/logger"
	"github.com/dealvista/engagement-backend/pkg/mongodb"
	"github.com/dealvista/engagement-backend/pkg/notifier"
)

func main() {
	// .env is optional; real deployments inject environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// A malformed rule table is a deploy defect; refuse to start on one.
	ruleSet, err := rules.Load(cfg.Engine.RulesPath)
	if err != nil {
		zlog.Fatal("failed to load rule tables", "path", cfg.Engine.RulesPath, "error", err)
	}

	mongoClient, err := mongodb.NewClient(cfg.MongoDB.URI)
	if err != nil {
		zlog.Fatal("failed to connect to MongoDB", "error", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			zlog.Error("error disconnecting from MongoDB", "error", err)
		}
	}()

	db := mongoClient.Database(cfg.MongoDB.Database)

	var signalRepo repositories.SignalRepository = mongorepo.NewSignalRepository(db)
	var stateRepo repositories.ActivationStateRepository = mongorepo.NewActivationStateRepository(db)
	var nudgeRepo repositories.NudgeRepository = mongorepo.NewNudgeRepository(db)
	var interventionRepo repositories.InterventionRepository = mongorepo.NewInterventionRepository(db)

	var sink notifier.Notifier
	if cfg.Notifier.Mock {
		sink = notifier.NewMockNotifier("ENGAGEMENT")
	} else {
		// In-app surfaces are rendered by the nudge endpoint itself; only
		// out-of-band channels go through the relay.
		relay := notifier.NewWebhookNotifier(cfg.Notifier.BaseURL, cfg.Notifier.APIKey)
		sink = notifier.NewSurfaceRouter(map[models.NudgeSurface]notifier.Notifier{
			models.SurfaceEmail: relay,
			models.SurfacePush:  relay,
		}, notifier.NewMockNotifier("ENGAGEMENT"))
	}

	classifierService := services.NewClassifierService(signalRepo, stateRepo, ruleSet, zlog)
	milestoneService := services.NewMilestoneService(stateRepo, ruleSet, cfg.Engine, zlog)
	nudgeService := services.NewNudgeService(stateRepo, nudgeRepo, ruleSet, cfg.Engine, sink, zlog)
	segmentationService := services.NewSegmentationService(stateRepo, signalRepo, ruleSet, zlog)
	interventionService := services.NewInterventionService(stateRepo, interventionRepo, segmentationService, ruleSet, cfg.Engine, sink, zlog)

	handlerDeps := routes.HandlerDependencies{
		ActivationHandler: handlers.NewActivationHandler(classifierService, milestoneService),
		NudgeHandler:      handlers.NewNudgeHandler(nudgeService, interventionService),
		AdminHandler:      handlers.NewAdminHandler(interventionService, segmentationService, nudgeService),
	}

	router := routes.SetupRouter(cfg, zlog, handlerDeps)

	// In-process daily sweep. Disabled by clearing the schedule; operators
	// can still trigger sweeps through the admin endpoint.
	var scheduler *cron.Cron
	if cfg.Engine.SweepSchedule != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Engine.SweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if _, err := interventionService.RunSweep(ctx, time.Now()); err != nil {
				zlog.Error("scheduled sweep failed", "error", err)
			}
		})
		if err != nil {
			zlog.Fatal("invalid sweep schedule", "schedule", cfg.Engine.SweepSchedule, "error", err)
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	zlog.Info("server starting", "port", cfg.Server.Port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Fatal("server forced to shutdown", "error", err)
	}

	zlog.Info("server exiting")
}
