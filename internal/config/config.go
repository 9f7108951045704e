// Package config provides configuration loading and management for the application.
package config

import (
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jovemjeune/gnosisland-treasury/internal/types"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Endpoints for the two external yield protocols
	ProtocolAlpha types.ProtocolConfig
	ProtocolBeta  types.ProtocolConfig

	// Percentage of every allocation routed to protocol alpha (0-100)
	AllocationPercent int

	// Duration a stake entry must age before it becomes withdrawable
	LockPeriod time.Duration

	// Minimum allowed purchase price after discounts
	MinPurchasePrice *big.Int

	// Identities for restricted entry points
	Owner            common.Address
	AuthorizedCaller common.Address

	// Bearer tokens mapped to the identities above at the HTTP boundary
	OwnerToken  string
	CallerToken string

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// Webhook for periodic accounting snapshot export (empty disables it)
	SnapshotWebhookURL string
	SnapshotInterval   time.Duration

	// Timeouts and rate limiting
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Circuit breaker settings for the external protocol clients
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
}

// Load creates a new Config from environment variables
func Load() Config {
	return Config{
		Port: GetEnvOrDefault("PORT", "8080"),
		ProtocolAlpha: types.ProtocolConfig{
			Endpoint: GetEnvOrDefault("PROTOCOL_ALPHA_URL", "http://localhost:9001"),
			APIKey:   os.Getenv("PROTOCOL_ALPHA_API_KEY"),
		},
		ProtocolBeta: types.ProtocolConfig{
			Endpoint: GetEnvOrDefault("PROTOCOL_BETA_URL", "http://localhost:9002"),
			APIKey:   os.Getenv("PROTOCOL_BETA_API_KEY"),
		},
		AllocationPercent:       GetEnvAsInt("ALLOCATION_PERCENT", 90),
		LockPeriod:              GetEnvAsDuration("LOCK_PERIOD", 24*time.Hour),
		MinPurchasePrice:        GetEnvAsBigInt("MIN_PURCHASE_PRICE", big.NewInt(10)),
		Owner:                   common.HexToAddress(GetEnvOrDefault("OWNER_ADDRESS", "0x0000000000000000000000000000000000000001")),
		AuthorizedCaller:        common.HexToAddress(GetEnvOrDefault("CALLER_ADDRESS", "0x0000000000000000000000000000000000000002")),
		OwnerToken:              os.Getenv("OWNER_TOKEN"),
		CallerToken:             os.Getenv("CALLER_TOKEN"),
		OtelEndpoint:            GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		SnapshotWebhookURL:      os.Getenv("SNAPSHOT_WEBHOOK_URL"),
		SnapshotInterval:        GetEnvAsDuration("SNAPSHOT_INTERVAL", time.Minute),
		RequestTimeout:          GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		RateLimitRPS:            GetEnvAsFloat("RATE_LIMIT_RPS", 10.0),
		RateLimitBurst:          GetEnvAsInt("RATE_LIMIT_BURST", 20),
		BreakerFailureThreshold: GetEnvAsInt("BREAKER_FAILURE_THRESHOLD", 3),
		BreakerCooldown:         GetEnvAsDuration("BREAKER_COOLDOWN", 5*time.Minute),
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvAsBigInt retrieves an environment variable as a base-10 big integer
// with a default value
func GetEnvAsBigInt(key string, defaultValue *big.Int) *big.Int {
	if value, exists := GetEnv(key); exists {
		if parsed, ok := new(big.Int).SetString(value, 10); ok {
			return parsed
		}
	}
	return new(big.Int).Set(defaultValue)
}
