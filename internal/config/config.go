package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oracle/internal/ledger/retry"
)

// FleetSize is the only supported node count; the 2-of-3 quorum is fixed
const FleetSize = 3

type Config struct {
	// Identity
	NodeID        int      `yaml:"node_id"`    // 1-based index in the fleet
	NodeCount     int      `yaml:"node_count"` // Fixed fleet size
	SecretKey     string   `yaml:"-"`          // Only from ORACLE_SECRET_KEY
	OracleSigners []string `yaml:"oracle_signers"`

	// Peer RPC and operator HTTP
	ListenPort  int           `yaml:"listen_port"`
	PeerURLs    []string      `yaml:"peer_urls"`
	PeerTimeout time.Duration `yaml:"peer_timeout"`

	// Ledger
	SolanaRPCURL string `yaml:"solana_rpc_url"`
	ProgramID    string `yaml:"program_id"`

	// Record store: DATABASE_URL takes precedence over BACKEND_URL
	BackendURL  string `yaml:"backend_url"`
	DatabaseURL string `yaml:"database_url"`

	// Scheduling
	TickInterval             time.Duration `yaml:"tick_interval"`
	LeaderGracePeriod        time.Duration `yaml:"leader_grace_period"`
	MaxConcurrentResolutions int           `yaml:"max_concurrent_resolutions"`
	DedupeCapacity           int           `yaml:"dedupe_capacity"`

	// Market data
	DexScreenerURL    string        `yaml:"dexscreener_url"`
	JupiterURL        string        `yaml:"jupiter_url"`
	ProviderTimeout   time.Duration `yaml:"provider_timeout"`
	ProviderRateLimit float64       `yaml:"provider_rate_limit"` // Requests per second per provider
	LiquidityFloorUSD float64       `yaml:"liquidity_floor_usd"`

	LogLevel string       `yaml:"log_level"`
	Retry    retry.Config `yaml:"retry"`
}

// Default returns the built-in configuration for node 1
func Default() *Config {
	return &Config{
		NodeID:                   1,
		NodeCount:                FleetSize,
		PeerTimeout:              10 * time.Second,
		SolanaRPCURL:             "https://api.devnet.solana.com",
		BackendURL:               "http://localhost:4000",
		TickInterval:             60 * time.Second,
		LeaderGracePeriod:        300 * time.Second,
		MaxConcurrentResolutions: 4,
		DedupeCapacity:           1000,
		DexScreenerURL:           "https://api.dexscreener.com",
		JupiterURL:               "https://price.jup.ag",
		ProviderTimeout:          5 * time.Second,
		ProviderRateLimit:        5,
		LiquidityFloorUSD:        1000,
		LogLevel:                 "info",
		Retry:                    retry.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and then environment variables
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.ListenPort == 0 {
		cfg.ListenPort = 3000 + cfg.NodeID - 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.NodeID = getEnvAsInt("NODE_ID", c.NodeID)
	c.NodeCount = getEnvAsInt("NODE_COUNT", c.NodeCount)
	c.SecretKey = getEnv("ORACLE_SECRET_KEY", c.SecretKey)
	c.OracleSigners = getEnvAsList("ORACLE_SIGNERS", c.OracleSigners)

	c.ListenPort = getEnvAsInt("PORT", c.ListenPort)
	c.PeerURLs = getEnvAsList("PEER_URLS", c.PeerURLs)
	for _, key := range []string{"PEER_1_URL", "PEER_2_URL"} {
		if u := os.Getenv(key); u != "" && !contains(c.PeerURLs, u) {
			c.PeerURLs = append(c.PeerURLs, u)
		}
	}
	c.PeerTimeout = getEnvAsDuration("PEER_TIMEOUT", c.PeerTimeout)

	c.SolanaRPCURL = getEnv("SOLANA_RPC_URL", c.SolanaRPCURL)
	c.ProgramID = getEnv("PROGRAM_ID", c.ProgramID)
	c.BackendURL = getEnv("BACKEND_URL", c.BackendURL)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	c.TickInterval = getEnvAsDuration("TICK_INTERVAL", c.TickInterval)
	c.LeaderGracePeriod = getEnvAsDuration("LEADER_GRACE_PERIOD", c.LeaderGracePeriod)
	c.MaxConcurrentResolutions = getEnvAsInt("MAX_CONCURRENT_RESOLUTIONS", c.MaxConcurrentResolutions)
	c.DedupeCapacity = getEnvAsInt("DEDUPE_CAPACITY", c.DedupeCapacity)

	c.DexScreenerURL = getEnv("DEXSCREENER_URL", c.DexScreenerURL)
	c.JupiterURL = getEnv("JUPITER_URL", c.JupiterURL)
	c.ProviderTimeout = getEnvAsDuration("PROVIDER_TIMEOUT", c.ProviderTimeout)
	c.ProviderRateLimit = getEnvAsFloat("PROVIDER_RATE_LIMIT", c.ProviderRateLimit)
	c.LiquidityFloorUSD = getEnvAsFloat("LIQUIDITY_FLOOR_USD", c.LiquidityFloorUSD)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Retry = retry.LoadConfig(c.Retry)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.NodeCount != FleetSize {
		return fmt.Errorf("NodeCount must be %d, got %d", FleetSize, c.NodeCount)
	}
	if c.NodeID < 1 || c.NodeID > c.NodeCount {
		return fmt.Errorf("NodeID must be between 1 and %d, got %d", c.NodeCount, c.NodeID)
	}
	if c.SecretKey == "" {
		return fmt.Errorf("ORACLE_SECRET_KEY is required")
	}
	if c.ProgramID == "" {
		return fmt.Errorf("ProgramID is required")
	}
	if c.SolanaRPCURL == "" {
		return fmt.Errorf("SolanaRPCURL is required")
	}
	if c.BackendURL == "" && c.DatabaseURL == "" {
		return fmt.Errorf("one of BackendURL or DatabaseURL is required")
	}
	if len(c.PeerURLs) != c.NodeCount-1 {
		return fmt.Errorf("PeerURLs lists %d peers, want %d", len(c.PeerURLs), c.NodeCount-1)
	}
	if len(c.OracleSigners) > 0 && len(c.OracleSigners) != c.NodeCount {
		return fmt.Errorf("OracleSigners lists %d keys for %d nodes", len(c.OracleSigners), c.NodeCount)
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("ListenPort %d out of range", c.ListenPort)
	}
	if c.TickInterval <= 0 || c.PeerTimeout <= 0 || c.ProviderTimeout <= 0 {
		return fmt.Errorf("TickInterval, PeerTimeout and ProviderTimeout must be positive")
	}
	if c.LeaderGracePeriod < 0 {
		return fmt.Errorf("LeaderGracePeriod must not be negative")
	}
	if c.DedupeCapacity < 1 {
		return fmt.Errorf("DedupeCapacity must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LogLevel %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	val, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return val
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90")
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

func getEnvAsList(key string, defaultVal []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
