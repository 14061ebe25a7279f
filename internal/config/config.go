// Package config centralizes loading of the admission service configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
)

const (
	defaultRateLimitMessage = "you have reached the maximum number of requests allowed within this time frame"
	defaultQuotaMessage     = "daily generation limit reached, quota resets at the next day boundary"
	defaultUnavailable      = "admission check is temporarily unavailable, please retry shortly"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Quota     QuotaConfig
	Reclaim   ReclaimConfig
}

type ServerConfig struct {
	Port string
}

type StorageConfig struct {
	Type   string // memory | redis | sqlite
	Redis  RedisConfig
	SQLite SQLiteConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type SQLiteConfig struct {
	Path string
}

type RateLimitConfig struct {
	GlobalRule domain.RateLimitRule
	RouteRules map[string]domain.RateLimitRule
	Message    string
}

type QuotaConfig struct {
	DailyLimit         int64
	Timezone           string
	LedgerTimeout      time.Duration
	Message            string
	UnavailableMessage string
}

type ReclaimConfig struct {
	RetentionDays int
	// Interval enables the optional in-process ticker; zero leaves purging
	// entirely to the external scheduler hitting /internal/reclaim.
	Interval time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	server := ServerConfig{Port: getEnv("SERVER_PORT", "8080")}

	storage, err := buildStorageConfig()
	if err != nil {
		return Config{}, err
	}

	rateLimit, err := buildRateLimitConfig()
	if err != nil {
		return Config{}, err
	}

	quota, err := buildQuotaConfig()
	if err != nil {
		return Config{}, err
	}

	reclaim, err := buildReclaimConfig()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server:    server,
		Storage:   storage,
		RateLimit: rateLimit,
		Quota:     quota,
		Reclaim:   reclaim,
	}, nil
}

func buildStorageConfig() (StorageConfig, error) {
	storageType := getEnv("STORAGE_TYPE", "memory")
	switch storageType {
	case "memory", "redis", "sqlite":
	default:
		return StorageConfig{}, fmt.Errorf("unsupported STORAGE_TYPE: %s", storageType)
	}

	redisPort, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return StorageConfig{}, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return StorageConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return StorageConfig{
		Type: storageType,
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		SQLite: SQLiteConfig{Path: getEnv("SQLITE_PATH", "admission.db")},
	}, nil
}

func buildRateLimitConfig() (RateLimitConfig, error) {
	globalRequests, err := strconv.ParseInt(getEnv("RATE_LIMIT_GLOBAL_REQUESTS", "60"), 10, 64)
	if err != nil {
		return RateLimitConfig{}, fmt.Errorf("invalid RATE_LIMIT_GLOBAL_REQUESTS: %w", err)
	}
	globalWindowMs, err := strconv.ParseInt(getEnv("RATE_LIMIT_GLOBAL_WINDOW_MS", "60000"), 10, 64)
	if err != nil {
		return RateLimitConfig{}, fmt.Errorf("invalid RATE_LIMIT_GLOBAL_WINDOW_MS: %w", err)
	}

	routeRules, err := buildRouteRules()
	if err != nil {
		return RateLimitConfig{}, err
	}

	return RateLimitConfig{
		GlobalRule: domain.RateLimitRule{
			Scope:  domain.ScopeGlobal,
			Limit:  globalRequests,
			Window: time.Duration(globalWindowMs) * time.Millisecond,
		},
		RouteRules: routeRules,
		Message:    getEnv("RATE_LIMIT_MESSAGE", defaultRateLimitMessage),
	}, nil
}

// buildRouteRules parses ROUTE_LIMITS, a comma-separated list of
// ROUTE:REQUESTS:WINDOW_MS entries, for example
// "/generate:10:60000,/preview:30:60000".
func buildRouteRules() (map[string]domain.RateLimitRule, error) {
	raw := strings.TrimSpace(os.Getenv("ROUTE_LIMITS"))
	rules := make(map[string]domain.RateLimitRule)
	if raw == "" {
		return rules, nil
	}

	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("route limit must follow ROUTE:REQUESTS:WINDOW_MS: %s", item)
		}

		route := strings.TrimSpace(parts[0])
		requests, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid requests for route %s: %w", route, err)
		}
		windowMs, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid window for route %s: %w", route, err)
		}

		rules[route] = domain.RateLimitRule{
			Scope:  domain.ScopeRoute,
			Limit:  requests,
			Window: time.Duration(windowMs) * time.Millisecond,
		}
	}

	return rules, nil
}

func buildQuotaConfig() (QuotaConfig, error) {
	dailyLimit, err := strconv.ParseInt(getEnv("QUOTA_DAILY_LIMIT", "50"), 10, 64)
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("invalid QUOTA_DAILY_LIMIT: %w", err)
	}
	timeoutMs, err := strconv.ParseInt(getEnv("LEDGER_TIMEOUT_MS", "2000"), 10, 64)
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("invalid LEDGER_TIMEOUT_MS: %w", err)
	}

	return QuotaConfig{
		DailyLimit:         dailyLimit,
		Timezone:           getEnv("QUOTA_TIMEZONE", "UTC"),
		LedgerTimeout:      time.Duration(timeoutMs) * time.Millisecond,
		Message:            getEnv("QUOTA_MESSAGE", defaultQuotaMessage),
		UnavailableMessage: getEnv("UNAVAILABLE_MESSAGE", defaultUnavailable),
	}, nil
}

func buildReclaimConfig() (ReclaimConfig, error) {
	retentionDays, err := strconv.Atoi(getEnv("QUOTA_RETENTION_DAYS", "7"))
	if err != nil {
		return ReclaimConfig{}, fmt.Errorf("invalid QUOTA_RETENTION_DAYS: %w", err)
	}
	intervalHours, err := strconv.Atoi(getEnv("RECLAIM_INTERVAL_HOURS", "0"))
	if err != nil {
		return ReclaimConfig{}, fmt.Errorf("invalid RECLAIM_INTERVAL_HOURS: %w", err)
	}

	return ReclaimConfig{
		RetentionDays: retentionDays,
		Interval:      time.Duration(intervalHours) * time.Hour,
	}, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
