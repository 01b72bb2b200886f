// Package config provides configuration management functionality.
// Runtime options come from environment variables (optionally via a .env
// file); the watchlist and per-symbol metadata come from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DBPath        string
	WatchlistPath string
	LogLevel      string

	// Pipeline behaviour
	Days       int // trailing fetch window in calendar days
	MaxWorkers int // worker-pool ceiling

	// Fetch client
	MaxRetries   int
	BackoffBase  time.Duration
	MinInterval  time.Duration
	MinIntervals map[string]time.Duration // per-source overrides
	HTTPTimeout  time.Duration
	UserAgent    string

	// Source credentials. Presence toggles optional sources on.
	FinMindToken string

	// Summarization / notification
	GeminiAPIKey     string
	GeminiModel      string
	OpenRouterAPIKey string
	OpenRouterModel  string
	AIMaxRetries     int
	LineToken        string
	LineUserID       string
}

// Load reads configuration from the environment, loading a .env file first
// if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:        getEnv("PIPELINE_DB_PATH", "data/market_data.db"),
		WatchlistPath: getEnv("WATCHLIST_PATH", "config/watchlist.yaml"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		Days:       getEnvInt("PIPELINE_DAYS", 200),
		MaxWorkers: getEnvInt("PIPELINE_MAX_WORKERS", 4),

		MaxRetries:  getEnvInt("REQUEST_MAX_RETRIES", 3),
		BackoffBase: getEnvDuration("REQUEST_BACKOFF", 1500*time.Millisecond),
		MinInterval: getEnvDuration("REQUEST_MIN_INTERVAL", 500*time.Millisecond),
		HTTPTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		UserAgent:   getEnv("HTTP_USER_AGENT", "stockCheck/1.0 (personal research)"),

		FinMindToken: os.Getenv("FINMIND_API_KEY"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:  getEnv("OPENROUTER_MODEL", "google/gemma-2-9b-it:free"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 2),
		LineToken:        os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		LineUserID:       os.Getenv("LINE_USER_ID"),
	}

	intervals, err := parseIntervals(os.Getenv("REQUEST_MIN_INTERVALS"))
	if err != nil {
		return nil, err
	}
	cfg.MinIntervals = intervals

	if cfg.Days < 180 || cfg.Days > 220 {
		// The window must seed the longest rolling indicator with margin
		// for non-trading days.
		return nil, fmt.Errorf("PIPELINE_DAYS must be between 180 and 220, got %d", cfg.Days)
	}
	if cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("PIPELINE_MAX_WORKERS must be at least 1, got %d", cfg.MaxWorkers)
	}
	return cfg, nil
}

// parseIntervals parses "source:duration" pairs, e.g.
// "finmind:2s,sec_edgar:1s".
func parseIntervals(raw string) (map[string]time.Duration, error) {
	if raw == "" {
		return nil, nil
	}
	intervals := make(map[string]time.Duration)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid REQUEST_MIN_INTERVALS entry %q", pair)
		}
		d, err := time.ParseDuration(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid interval for source %q: %w", parts[0], err)
		}
		intervals[parts[0]] = d
	}
	return intervals, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
