package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"macropulse/internal/config"
	"macropulse/internal/digest"
	"macropulse/internal/email"
	"macropulse/internal/llm"
	"macropulse/internal/logging"
	"macropulse/internal/ratelimit"
	"macropulse/internal/store"
	transporthttp "macropulse/internal/transport/http"
	"macropulse/internal/twitter"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}

	logger := logging.NewLoggerWithService("server")

	db, err := store.Connect(context.Background(), store.DefaultConfig(cfg.DatabaseURL), logger)
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

	server := transporthttp.NewServer(pipeline, db, logger, cfg.RunTimeout)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      withLogging(server.Routes(), logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logging.Fields{"addr": cfg.ListenAddr}).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithFields(logging.Fields{"signal": sig.String()}).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithFields(logging.Fields{"error": err.Error()}).Warn("graceful shutdown failed")
	}
}

func withLogging(next http.Handler, logger logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.WithFields(logging.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("request handled")
	})
}
