// Package config builds runtime configuration from the environment so main
// stays lean. A .env file is loaded best-effort for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RedisConfig captures connection tuning for the shared cache tier.
// An empty URL disables Redis entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Config captures everything the memory service needs at startup.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig

	// SubjectSalt hardens phone-derived subject ids. Empty is allowed but
	// leaves hashes rainbow-table friendly; main logs a warning.
	SubjectSalt string

	// OTPSecret keys the verification code hashes.
	OTPSecret string

	// GlobalAPIKey authenticates workspaces without a per-workspace key row.
	GlobalAPIKey     string
	DefaultWorkspace string

	CacheTTL        time.Duration
	FillerThreshold time.Duration

	KafkaSeeds    []string
	ActivityTopic string

	OpenAIAPIKey string
	IntelModel   string

	Debug bool
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Addr:             envOr("RECALL_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SubjectSalt:      os.Getenv("SUBJECT_SALT"),
		OTPSecret:        envOr("OTP_SECRET", "dev-otp-secret-change-in-production"),
		GlobalAPIKey:     os.Getenv("RECALL_API_KEY"),
		DefaultWorkspace: envOr("DEFAULT_WORKSPACE", "default"),
		CacheTTL:         envDuration("CACHE_TTL", 30*time.Second),
		FillerThreshold:  envDuration("FILLER_THRESHOLD", 200*time.Millisecond),
		KafkaSeeds:       splitList(os.Getenv("KAFKA_SEEDS")),
		ActivityTopic:    envOr("ACTIVITY_TOPIC", "recall.activity"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		IntelModel:       envOr("INTEL_MODEL", "gpt-4o-mini"),
		Debug:            os.Getenv("DEBUG") == "true",
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
