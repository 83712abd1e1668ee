package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	minMongoTimeout = 5 * time.Second
	maxMongoTimeout = 15 * time.Second
)

// RateLimitConfig indicates how many requests are allowed within a given interval.
type RateLimitConfig struct {
	Requests int
	Interval time.Duration
}

// MongoConfig holds the MongoDB toggle, connection target and probe policy.
type MongoConfig struct {
	Enabled               bool
	URI                   string
	Database              string
	LeadsCollection       string
	SubscribersCollection string
	Timeout               time.Duration
	ProbeAttempts         int
	ProbeBackoff          time.Duration
}

// BackupConfig describes the local file storage used when MongoDB is not in use.
type BackupConfig struct {
	Enabled         bool
	LeadsPath       string
	SubscribersPath string
}

// Config aggregates application-wide configuration values.
type Config struct {
	Port                 string
	Mongo                MongoConfig
	Backup               BackupConfig
	RequireCompanyFields bool
	PhoneRegion          string
	AdminUsername        string
	AdminPasswordHash    string
	SessionSecret        string
	SessionTTL           time.Duration
	RateLimitSubmit      RateLimitConfig
	LogLevel             string
	LogFormat            string
}

// Load reads configuration from environment variables and applies sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Mongo: MongoConfig{
			Enabled:               parseBool(os.Getenv("USE_MONGODB"), false),
			URI:                   strings.TrimSpace(os.Getenv("MONGODB_URI")),
			Database:              getEnv("MONGODB_DBNAME", "leads_db"),
			LeadsCollection:       getEnv("MONGODB_COLLECTION", "leads"),
			SubscribersCollection: getEnv("MONGODB_SUBSCRIBERS_COLLECTION", "subscribers"),
			Timeout:               clampDuration(parseDuration(getEnv("MONGODB_TIMEOUT", "10s"), 10*time.Second), minMongoTimeout, maxMongoTimeout),
			ProbeAttempts:         parseInt(getEnv("MONGODB_PROBE_ATTEMPTS", "3"), 3),
			ProbeBackoff:          parseDuration(getEnv("MONGODB_PROBE_BACKOFF", "1s"), time.Second),
		},
		Backup: BackupConfig{
			Enabled:         parseBool(os.Getenv("ENABLE_JSON_BACKUP"), true),
			LeadsPath:       getEnv("JSON_BACKUP_PATH", "leads_backup.json"),
			SubscribersPath: getEnv("SUBSCRIBERS_BACKUP_PATH", "subscribers_backup.json"),
		},
		RequireCompanyFields: parseBool(os.Getenv("REQUIRE_COMPANY_FIELDS"), false),
		PhoneRegion:          strings.ToUpper(getEnv("PHONE_REGION", "US")),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash:    os.Getenv("ADMIN_PASSWORD_HASH"),
		SessionSecret:        getEnv("SESSION_SECRET", "dev-secret"),
		SessionTTL:           parseDuration(getEnv("SESSION_TTL", "12h"), 12*time.Hour),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if cfg.Mongo.ProbeAttempts <= 0 {
		cfg.Mongo.ProbeAttempts = 1
	}

	rl, err := parseRateLimit(getEnv("RATE_LIMIT_SUBMIT", "10/min"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SUBMIT value: %w", err)
	}
	cfg.RateLimitSubmit = rl

	return cfg, nil
}

func parseRateLimit(value string) (RateLimitConfig, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return RateLimitConfig{}, fmt.Errorf("expected format <requests>/<interval>, got %q", value)
	}

	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || requests <= 0 {
		return RateLimitConfig{}, fmt.Errorf("invalid request count: %v", parts[0])
	}

	unit := strings.ToLower(strings.TrimSpace(parts[1]))
	var interval time.Duration
	switch unit {
	case "s", "sec", "second", "seconds":
		interval = time.Second
	case "m", "min", "minute", "minutes":
		interval = time.Minute
	case "h", "hr", "hour", "hours":
		interval = time.Hour
	default:
		return RateLimitConfig{}, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	return RateLimitConfig{Requests: requests, Interval: interval}, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

// parseBool accepts the spellings the deployment scripts use ("true", "1", "yes", "on").
func parseBool(input string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(input string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return fallback
	}
	return v
}

func parseDuration(input string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(input)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
