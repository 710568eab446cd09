package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/dealvista/engagement-backend/internal/config"
	"github.com/dealvista/engagement-backend/internal/models"
	mongorepo "github.com/dealvista/engagement-backend/internal/repositories/mongodb"
	"github.com/dealvista/engagement-backend/internal/rules"
	"github.com/dealvista/engagement-backend/internal/services"
	"github.com/dealvista/engagement-backend/pkg/logger"
	"github.com/dealvista/engagement-backend/pkg/mongodb"
	"github.com/dealvista/engagement-backend/pkg/notifier"
)

// Standalone sweep runner for external schedulers (Kubernetes CronJob,
// systemd timer). Same wiring as the API's in-process job.
func main() {
	asOfFlag := flag.String("as-of", "", "evaluation instant, RFC 3339 (default now)")
	timeoutFlag := flag.Duration("timeout", 30*time.Minute, "overall sweep timeout")
	flag.Parse()

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

	ruleSet, err := rules.Load(cfg.Engine.RulesPath)
	if err != nil {
		zlog.Fatal("failed to load rule tables", "path", cfg.Engine.RulesPath, "error", err)
	}

	asOf := time.Now()
	if *asOfFlag != "" {
		asOf, err = time.Parse(time.RFC3339, *asOfFlag)
		if err != nil {
			zlog.Fatal("invalid -as-of value", "value", *asOfFlag, "error", err)
		}
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
	stateRepo := mongorepo.NewActivationStateRepository(db)
	signalRepo := mongorepo.NewSignalRepository(db)
	interventionRepo := mongorepo.NewInterventionRepository(db)

	var sink notifier.Notifier
	if cfg.Notifier.Mock {
		sink = notifier.NewMockNotifier("SWEEP")
	} else {
		relay := notifier.NewWebhookNotifier(cfg.Notifier.BaseURL, cfg.Notifier.APIKey)
		sink = notifier.NewSurfaceRouter(map[models.NudgeSurface]notifier.Notifier{
			models.SurfaceEmail: relay,
			models.SurfacePush:  relay,
		}, notifier.NewMockNotifier("SWEEP"))
	}

	segmentationService := services.NewSegmentationService(stateRepo, signalRepo, ruleSet, zlog)
	interventionService := services.NewInterventionService(stateRepo, interventionRepo, segmentationService, ruleSet, cfg.Engine, sink, zlog)

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	report, err := interventionService.RunSweep(ctx, asOf)
	if err != nil {
		zlog.Fatal("sweep failed", "error", err)
	}
	zlog.Info("sweep complete",
		"asOf", report.AsOf,
		"evaluated", report.UsersEvaluated,
		"created", report.InterventionsCreated,
		"suppressed", report.InterventionsSuppressed,
		"expired", report.InterventionsExpired,
		"errors", report.Errors,
	)
}
