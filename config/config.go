package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	// Server configuration
	Environment string

	// Storage configuration
	StoreBackend   string
	RedisURL       string
	RedisKeyPrefix string

	// Broadcast configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string
	PubNubChannel      string
	RedisEventsChannel string
	RealtimeEnabled    bool

	// Queue engine configuration
	OperationTimeout time.Duration
	ServeRetryLimit  int

	// Storage circuit breaker
	BreakerMaxRequests  int
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration

	// Rate limiting, requests per minute
	JoinRateLimit    int
	AntiBotRateLimit int

	// Monitoring
	EnableMetrics   bool
	MetricsPort     string
	MetricsInterval time.Duration

	// Queues created at boot when absent
	QueueSeedFile string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Storage
		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "qt"),

		// Broadcast
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "queue-ticket-server"),
		PubNubChannel:      getEnv("PUBNUB_CHANNEL", "queue-ticket"),
		RedisEventsChannel: getEnv("REDIS_EVENTS_CHANNEL", ""),
		RealtimeEnabled:    getEnvAsBool("REALTIME_ENABLED", true),

		// Queue engine
		OperationTimeout: getEnvAsDuration("OPERATION_TIMEOUT", "5s"),
		ServeRetryLimit:  getEnvAsInt("SERVE_RETRY_LIMIT", 16),

		// Circuit breaker
		BreakerMaxRequests:  getEnvAsInt("BREAKER_MAX_REQUESTS", 100),
		BreakerFailureRatio: getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.6),
		BreakerOpenTimeout:  getEnvAsDuration("BREAKER_OPEN_TIMEOUT", "30s"),

		// Rate limiting
		JoinRateLimit:    getEnvAsInt("JOIN_RATE_LIMIT", 10),
		AntiBotRateLimit: getEnvAsInt("ANTIBOT_RATE_LIMIT", 120),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "15s"),

		QueueSeedFile: getEnv("QUEUE_SEED_FILE", ""),
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("config: OPERATION_TIMEOUT must be positive")
	}
	if c.ServeRetryLimit < 1 {
		return fmt.Errorf("config: SERVE_RETRY_LIMIT must be at least 1")
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("config: BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	return nil
}

func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

// QueueSeed is the YAML document read from QUEUE_SEED_FILE.
type QueueSeed struct {
	Queues []SeedQueue `yaml:"queues"`
}

type SeedQueue struct {
	Name     string `yaml:"name"`
	Inactive bool   `yaml:"inactive"`
}

// LoadQueueSeed parses a queue seed file. An empty path yields an empty seed.
func LoadQueueSeed(path string) (*QueueSeed, error) {
	seed := &QueueSeed{}
	if path == "" {
		return seed, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue seed: %w", err)
	}
	if err := yaml.Unmarshal(raw, seed); err != nil {
		return nil, fmt.Errorf("parse queue seed %s: %w", path, err)
	}

	for i, q := range seed.Queues {
		seed.Queues[i].Name = strings.TrimSpace(q.Name)
		if seed.Queues[i].Name == "" {
			return nil, fmt.Errorf("queue seed %s: entry %d has no name", path, i)
		}
	}
	return seed, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
