package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"macropulse/internal/config"
	"macropulse/internal/digest"
	"macropulse/internal/email"
	"macropulse/internal/logging"
	"macropulse/internal/metrics"
	"macropulse/internal/store"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL == "" || cfg.TokenTerminalAPIKey == "" || cfg.SenderAPIKey == "" {
		log.Fatalf("DATABASE_URL, TOKEN_TERMINAL_API_KEY and SENDER_API_KEY are required")
	}

	logger := logging.NewLoggerWithService("metricsreport")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	db, err := store.Connect(ctx, store.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		log.Fatalf("connect store: %v", err)
	}
	defer db.Close()

	client := metrics.NewClient(cfg.TokenTerminalAPIKey, logger)
	points, err := client.ProjectMetrics(ctx, cfg.TokenTerminalID, time.Now().AddDate(0, 0, -15))
	if err != nil {
		log.Fatalf("fetch metrics: %v", err)
	}

	snap, err := db.InsertSnapshot(ctx, metrics.BuildSnapshot(points, time.Now()))
	if err != nil {
		log.Fatalf("store snapshot: %v", err)
	}
	logger.WithFields(logging.Fields{"snapshot": snap.ID, "covered": snap.Covered}).Info("snapshot ready")

	sender := email.NewSender(cfg.SenderAPIKey, cfg.FromEmail, cfg.ToEmail, logger)
	pipeline, err := digest.NewPipeline(nil, db, nil, sender, logger, digest.Options{Topic: cfg.Topic})
	if err != nil {
		log.Fatalf("init pipeline: %v", err)
	}

	stats, err := pipeline.MetricsReport(ctx)
	if err != nil {
		logger.WithFields(logging.Fields{"error": err.Error()}).Error("metrics report failed")
		db.Close()
		os.Exit(1)
	}
	if stats.NothingToDo {
		logger.Info("no uncovered snapshot to report")
	}
}
