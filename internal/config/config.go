package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string
	TablePrefix string
	// Persistence
	DatabaseURL   string // postgres, optional
	HistoryDBPath string // local sqlite, optional
	// Generation
	AnthropicAPIKey string
	DefaultModel    string
	// Version history tuning. The cap and TTL are deliberate configuration,
	// not constants.
	MaxVersions     int
	HistoryCacheTTL time.Duration
	// Debug flags
	Debug bool
	// LogDir enables file logging with rotation when set.
	LogDir      string
	MaxLogFiles int
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Environment:     env,
		TablePrefix:     getTablePrefix(env),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		HistoryDBPath:   getEnv("HISTORY_DB_PATH", "inkwell.db"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "lorem-fast"),
		MaxVersions:     getEnvInt("MAX_BEAT_VERSIONS", 10),
		HistoryCacheTTL: time.Duration(getEnvInt("HISTORY_CACHE_TTL_SECONDS", 300)) * time.Second,
		Debug:           getEnv("DEBUG", getDefaultDebug(env)) == "true",
		LogDir:          getEnv("LOG_DIR", ""),
		MaxLogFiles:     getEnvInt("MAX_LOG_FILES", 5),
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}
	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
