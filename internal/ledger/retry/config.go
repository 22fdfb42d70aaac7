package retry

import (
	"os"
	"strconv"
	"time"
)

// Config holds retry configuration for collaborator reads
// (pending feed, challenge lists, recent blockhash).
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// DefaultConfig keeps total retry time well under one scheduler tick
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// LoadConfig overlays retry settings from environment variables on base
func LoadConfig(base Config) Config {
	def := base
	return Config{
		Enabled:      getEnvAsBool("RETRY_ENABLED", def.Enabled),
		MaxRetries:   getEnvAsInt("RETRY_MAX_RETRIES", def.MaxRetries),
		InitialDelay: getEnvAsDuration("RETRY_INITIAL_DELAY", def.InitialDelay),
		MaxDelay:     getEnvAsDuration("RETRY_MAX_DELAY", def.MaxDelay),
	}
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// getEnvAsDuration accepts Go durations ("750ms") or bare seconds ("2")
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(valStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
