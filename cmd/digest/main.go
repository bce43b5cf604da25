package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"macropulse/internal/config"
	"macropulse/internal/digest"
	"macropulse/internal/email"
	"macropulse/internal/llm"
	"macropulse/internal/logging"
	"macropulse/internal/ratelimit"
	"macropulse/internal/store"
	"macropulse/internal/twitter"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL == "" || cfg.TwitterBearerToken == "" || cfg.OpenAIAPIKey == "" || cfg.SenderAPIKey == "" {
		log.Fatalf("DATABASE_URL, TWITTER_BEARER_TOKEN, OPENAI_API_KEY and SENDER_API_KEY are required")
	}

	logger := logging.NewLoggerWithService("digest")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	db, err := store.Connect(ctx, store.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		log.Fatalf("connect store: %v", err)
	}
	defer db.Close()

	governor := ratelimit.NewGovernor(cfg.RateMaxRequests, cfg.RateWindow, cfg.RateMinDelay, logger)
	fetcher := twitter.NewClient(cfg.TwitterBearerToken, governor, logger,
		twitter.WithRetry(cfg.FetchMaxRetries, cfg.FetchBaseDelay, cfg.FetchMaxDelay))

	summarizer := &digest.Summarizer{
		Client:      llm.NewClient(cfg.OpenAIAPIKey),
		Model:       cfg.OpenAIModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Logger:      logger,
	}
	sender := email.NewSender(cfg.SenderAPIKey, cfg.FromEmail, cfg.ToEmail, logger)

	pipeline, err := digest.NewPipeline(fetcher, db, summarizer, sender, logger, digest.Options{
		Handles:           cfg.Handles,
		Topic:             cfg.Topic,
		Window:            cfg.DigestWindow,
		MinEngagement:     cfg.MinEngagement,
		InterAccountDelay: cfg.InterAccountDelay,
	})
	if err != nil {
		log.Fatalf("init pipeline: %v", err)
	}

	stats, err := pipeline.Run(ctx)
	if stats != nil {
		logger.WithFields(logging.Fields{
			"ingested":   stats.ItemsIngested,
			"duplicates": stats.DuplicatesSkipped,
			"failed":     stats.AccountsFailed,
			"reported":   stats.ItemsReported,
			"delivered":  stats.Delivered,
		}).Info("run finished")
	}
	if err != nil {
		logger.WithFields(logging.Fields{"error": err.Error()}).Error("run failed")
		// summarizer and delivery failures heal on the next scheduled run
		if errors.Is(err, digest.ErrSummaryGeneration) || errors.Is(err, digest.ErrDeliveryFailed) {
			db.Close()
			os.Exit(0)
		}
		db.Close()
		os.Exit(1)
	}
}
