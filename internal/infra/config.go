package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	AllowedOrigins []string

	StoragePath    string
	StorageBaseURL string

	TranscribeBaseURL string
	TranscribeAPIKey  string
	PromptBaseURL     string
	PromptAPIKey      string
	PromptModel       string
	PredictionBaseURL string
	PredictionAPIKey  string
	ImageModel        string

	PollInterval    time.Duration
	PollMaxWait     time.Duration
	PromptBatchSize int
	ImageBatchSize  int

	StaleJobThreshold time.Duration
	JanitorInterval   time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		TranscribeBaseURL: getEnv("TRANSCRIBE_BASE_URL", "http://localhost:8090"),
		TranscribeAPIKey:  os.Getenv("TRANSCRIBE_API_KEY"),
		PromptBaseURL:     getEnv("PROMPT_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		PromptAPIKey:      os.Getenv("PROMPT_API_KEY"),
		PromptModel:       getEnv("PROMPT_MODEL", "gemini-1.5-flash"),
		PredictionBaseURL: getEnv("PREDICTION_BASE_URL", "https://api.replicate.com/v1"),
		PredictionAPIKey:  os.Getenv("PREDICTION_API_KEY"),
		ImageModel:        getEnv("IMAGE_MODEL", "seedream-4.5"),

		PollInterval:    time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 3)),
		PollMaxWait:     time.Minute * time.Duration(getEnvInt("POLL_MAX_WAIT_MINUTES", 10)),
		PromptBatchSize: getEnvInt("PROMPT_BATCH_SIZE", 50),
		ImageBatchSize:  getEnvInt("IMAGE_BATCH_SIZE", 100),

		StaleJobThreshold: time.Minute * time.Duration(getEnvInt("STALE_JOB_THRESHOLD_MINUTES", 5)),
		JanitorInterval:   time.Minute * time.Duration(getEnvInt("JANITOR_INTERVAL_MINUTES", 1)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
