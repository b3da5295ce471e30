package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default token lifetimes, used when the corresponding env vars are unset.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Config contains runtime configuration values.
type Config struct {
	Environment     string
	HTTPPort        string
	DatabaseURL     string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Argon2id cost parameters for the credential verifier.
	HashMemoryKiB   int
	HashIterations  int
	HashParallelism int
	HashSaltLength  int
	HashKeyLength   int

	// AutoActivate marks freshly signed-up users active immediately
	// instead of waiting for email verification.
	AutoActivate bool

	AdminEmail    string
	AdminPassword string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AuditStream   string
	AuditBuffer   int

	ServiceName       string
	TelemetryEndpoint string
	TelemetryInsecure bool

	// ExpiryWarnings collects suspect token TTL values that fell back to a
	// default during parsing; main logs them once at startup.
	ExpiryWarnings []string
}

// Load reads configuration from environment variables with sane defaults.
// Missing DATABASE_URL or JWT_SECRET fails loudly: both are fatal
// misconfigurations, not per-request errors.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:     getEnv("APP_ENV", "development"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTSecret:       strings.TrimSpace(os.Getenv("JWT_SECRET")),
		HashMemoryKiB:   getInt("HASH_MEMORY_KIB", 64*1024),
		HashIterations:  getInt("HASH_ITERATIONS", 3),
		HashParallelism: getInt("HASH_PARALLELISM", 2),
		HashSaltLength:  getInt("HASH_SALT_LENGTH", 16),
		HashKeyLength:   getInt("HASH_KEY_LENGTH", 32),
		AutoActivate:    getBool("AUTO_ACTIVATE_ACCOUNT", true),
		AdminEmail:      strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getInt("REDIS_DB", 0),
		AuditStream:     getEnv("AUDIT_STREAM", "auth:audit"),
		AuditBuffer:     getInt("AUDIT_BUFFER", 256),

		ServiceName:       getEnv("SERVICE_NAME", "atrium-auth"),
		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	var warn []string
	cfg.AccessTokenTTL, warn = parseExpiryEnv("ACCESS_TOKEN_TTL", DefaultAccessTokenTTL, warn)
	cfg.RefreshTokenTTL, warn = parseExpiryEnv("REFRESH_TOKEN_TTL", DefaultRefreshTokenTTL, warn)
	cfg.ExpiryWarnings = warn

	return cfg, nil
}

// ParseExpiry parses a "<integer><unit>" lifetime where unit is one of
// s, m, h or d. Any unrecognized unit or malformed value falls back to the
// refresh-token default of 7 days; ok reports whether the input parsed
// cleanly so callers can warn about the fallback.
//
// The lenient fallback mirrors long-standing deploy configs that relied on
// it. It is suspect behavior: a typo like "15x" silently becomes a week.
func ParseExpiry(value string) (d time.Duration, ok bool) {
	value = strings.TrimSpace(value)
	if len(value) < 2 {
		return DefaultRefreshTokenTTL, false
	}
	unit := value[len(value)-1]
	n, err := strconv.Atoi(value[:len(value)-1])
	if err != nil || n <= 0 {
		return DefaultRefreshTokenTTL, false
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return DefaultRefreshTokenTTL, false
	}
}

func parseExpiryEnv(key string, def time.Duration, warn []string) (time.Duration, []string) {
	raw, present := os.LookupEnv(key)
	if !present || strings.TrimSpace(raw) == "" {
		return def, warn
	}
	d, ok := ParseExpiry(raw)
	if !ok {
		warn = append(warn, fmt.Sprintf("%s=%q is not a valid <integer><unit> lifetime, using %s", key, raw, d))
	}
	return d, warn
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}
