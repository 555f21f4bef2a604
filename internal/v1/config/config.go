// Package config validates process environment configuration for the relay.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration.
type Config struct {
	// Required variables
	Port string

	// Optional variables with defaults
	GoEnv              string
	LogLevel           string
	DevMode            bool
	AllowedOrigins     string
	GameConfigPath     string
	RoomCleanupGrace   time.Duration
	JanitorInterval    time.Duration
	BroadcastBufferLen int

	// Redis-backed cross-pod bus / rate-limit store
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Rate limits (ulule/limiter formatted rates, e.g. "100-M")
	RateLimitWsIP    string
	RateLimitAdminIP string
}

// ValidateEnv validates all required environment variables and returns a Config.
// Returns an error describing every problem found if any required variable is
// missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.DevMode = os.Getenv("DEV_MODE") == "true"
	cfg.AllowedOrigins = getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	cfg.GameConfigPath = getEnvOrDefault("GAME_CONFIG_PATH", "GameConfig.json")

	cfg.RoomCleanupGrace = getEnvDurationOrDefault("ROOM_CLEANUP_GRACE", 5*time.Second, &errs)
	cfg.JanitorInterval = getEnvDurationOrDefault("JANITOR_INTERVAL", 20*time.Minute, &errs)

	cfg.BroadcastBufferLen = 256
	if raw := os.Getenv("BROADCAST_BUFFER_LEN"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("BROADCAST_BUFFER_LEN must be a positive integer (got '%s')", raw))
		} else {
			cfg.BroadcastBufferLen = n
		}
	}

	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitAdminIP = getEnvOrDefault("RATE_LIMIT_ADMIN_IP", "20-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func getEnvDurationOrDefault(key string, def time.Duration, errs *[]string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be a valid duration (got '%s')", key, raw))
		return def
	}
	return d
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	return parts[0] != ""
}

func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"dev_mode", cfg.DevMode,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", redactSecret(cfg.RedisAddr),
		"game_config_path", cfg.GameConfigPath,
		"room_cleanup_grace", cfg.RoomCleanupGrace,
		"janitor_interval", cfg.JanitorInterval,
		"broadcast_buffer_len", cfg.BroadcastBufferLen,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret, showing only the first 8 characters.
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
