package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// defaultHandles is the roster of tracked accounts used when PULSE_HANDLES is unset.
var defaultHandles = []string{
	"qthomp",
	"RaoulGMI",
	"fejau_inc",
	"DariusDale42",
	"CavanXy",
	"Citrini7",
	"FedGuy12",
	"fundstrat",
	"dgt10011",
	"Bluntz_Capital",
	"AriDavidPaul",
	"cburniske",
}

// Config captures runtime configuration for the macropulse pipeline.
type Config struct {
	ListenAddr  string
	DatabaseURL string

	Handles       []string
	Topic         string
	DigestWindow  time.Duration
	MinEngagement int

	TwitterBearerToken string
	RateMaxRequests    int
	RateWindow         time.Duration
	RateMinDelay       time.Duration
	InterAccountDelay  time.Duration
	FetchMaxRetries    int
	FetchBaseDelay     time.Duration
	FetchMaxDelay      time.Duration

	OpenAIAPIKey   string
	OpenAIModel    string
	LLMTemperature float64
	LLMMaxTokens   int

	SenderAPIKey string
	FromEmail    string
	ToEmail      string

	TokenTerminalAPIKey string
	TokenTerminalID     string

	RunTimeout time.Duration
}

// FromEnv creates a configuration instance sourced from environment variables.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:          getEnv("PULSE_LISTEN_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		Handles:             defaultHandles,
		Topic:               getEnv("PULSE_TOPIC", "macro"),
		DigestWindow:        24 * time.Hour,
		MinEngagement:       0,
		TwitterBearerToken:  getEnv("TWITTER_BEARER_TOKEN", ""),
		RateMaxRequests:     3,
		RateWindow:          900 * time.Second,
		RateMinDelay:        5 * time.Second,
		InterAccountDelay:   15 * time.Second,
		FetchMaxRetries:     5,
		FetchBaseDelay:      60 * time.Second,
		FetchMaxDelay:       3600 * time.Second,
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("PULSE_OPENAI_MODEL", "gpt-4o"),
		LLMTemperature:      0.7,
		LLMMaxTokens:        2000,
		SenderAPIKey:        getEnv("SENDER_API_KEY", ""),
		FromEmail:           getEnv("FROM_EMAIL", ""),
		ToEmail:             getEnv("TO_EMAIL", ""),
		TokenTerminalAPIKey: getEnv("TOKEN_TERMINAL_API_KEY", ""),
		TokenTerminalID:     getEnv("PULSE_TOKEN_TERMINAL_PROJECT", "instadapp"),
		RunTimeout:          2 * time.Hour,
	}

	if handles := os.Getenv("PULSE_HANDLES"); handles != "" {
		cfg.Handles = splitHandles(handles)
	}

	if window := os.Getenv("PULSE_WINDOW_H"); window != "" {
		var hours int
		if _, err := fmt.Sscanf(window, "%d", &hours); err != nil {
			return Config{}, fmt.Errorf("parse PULSE_WINDOW_H: %w", err)
		}
		cfg.DigestWindow = time.Duration(hours) * time.Hour
	}

	if minEng := os.Getenv("PULSE_MIN_ENGAGEMENT"); minEng != "" {
		if _, err := fmt.Sscanf(minEng, "%d", &cfg.MinEngagement); err != nil {
			return Config{}, fmt.Errorf("parse PULSE_MIN_ENGAGEMENT: %w", err)
		}
	}

	if maxReq := os.Getenv("PULSE_RATE_MAX_REQUESTS"); maxReq != "" {
		if _, err := fmt.Sscanf(maxReq, "%d", &cfg.RateMaxRequests); err != nil {
			return Config{}, fmt.Errorf("parse PULSE_RATE_MAX_REQUESTS: %w", err)
		}
	}

	if window := os.Getenv("PULSE_RATE_WINDOW_S"); window != "" {
		var seconds int
		if _, err := fmt.Sscanf(window, "%d", &seconds); err != nil {
			return Config{}, fmt.Errorf("parse PULSE_RATE_WINDOW_S: %w", err)
		}
		cfg.RateWindow = time.Duration(seconds) * time.Second
	}

	if delay := os.Getenv("PULSE_INTER_ACCOUNT_DELAY_S"); delay != "" {
		var seconds int
		if _, err := fmt.Sscanf(delay, "%d", &seconds); err != nil {
			return Config{}, fmt.Errorf("parse PULSE_INTER_ACCOUNT_DELAY_S: %w", err)
		}
		cfg.InterAccountDelay = time.Duration(seconds) * time.Second
	}

	if retries := os.Getenv("PULSE_FETCH_MAX_RETRIES"); retries != "" {
		if _, err := fmt.Sscanf(retries, "%d", &cfg.FetchMaxRetries); err != nil {
			return Config{}, fmt.Errorf("parse PULSE_FETCH_MAX_RETRIES: %w", err)
		}
	}

	if temp := os.Getenv("PULSE_LLM_TEMPERATURE"); temp != "" {
		if _, err := fmt.Sscanf(temp, "%f", &cfg.LLMTemperature); err != nil {
			return Config{}, fmt.Errorf("parse PULSE_LLM_TEMPERATURE: %w", err)
		}
	}

	if tokens := os.Getenv("PULSE_LLM_MAX_TOKENS"); tokens != "" {
		if _, err := fmt.Sscanf(tokens, "%d", &cfg.LLMMaxTokens); err != nil {
			return Config{}, fmt.Errorf("parse PULSE_LLM_MAX_TOKENS: %w", err)
		}
	}

	if timeout := os.Getenv("PULSE_RUN_TIMEOUT_M"); timeout != "" {
		var minutes int
		if _, err := fmt.Sscanf(timeout, "%d", &minutes); err != nil {
			return Config{}, fmt.Errorf("parse PULSE_RUN_TIMEOUT_M: %w", err)
		}
		cfg.RunTimeout = time.Duration(minutes) * time.Minute
	}

	return cfg, nil
}

func splitHandles(raw string) []string {
	parts := strings.Split(raw, ",")
	var handles []string
	for _, p := range parts {
		p = strings.TrimPrefix(strings.TrimSpace(p), "@")
		if p == "" {
			continue
		}
		handles = append(handles, p)
	}
	return handles
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
