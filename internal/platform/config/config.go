package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	PostgresURL   string
	JWTSigningKey string

	Redis RedisConfig
	Kafka KafkaConfig

	// SiteCacheTTL bounds how long an installation resolved by rotating site
	// code may be served from cache before hitting the directory again.
	SiteCacheTTL time.Duration

	Trust TrustConfig
}

// RedisConfig holds connection settings for the cache backend.
// An empty URL means Redis is not configured and the in-memory cache is used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds broker settings for the fire-and-forget notification
// stream. Empty brokers means notifications are logged only.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TrustConfig carries the patrol trust-score weighting. The coefficients are
// deliberately configurable; they should be tuned against real operational
// data, not treated as constants.
type TrustConfig struct {
	CompletionWeight float64
	MotionWeight     float64
	BatteryWeight    float64
	TimingWeight     float64

	// CompletionThreshold is the mark ratio at or above which an execution
	// finalizes as completed rather than partial.
	CompletionThreshold float64
	// SuspiciousFloor is the trust score (0-100) below which an execution is
	// finalized as suspicious regardless of its completion ratio.
	SuspiciousFloor float64
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("VIGIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	topic := os.Getenv("KAFKA_NOTIFY_TOPIC")
	if topic == "" {
		topic = "vigil.notifications"
	}

	return Server{
		Addr:          addr,
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		JWTSigningKey: jwtSigningKey,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
		},
		SiteCacheTTL: envDuration("SITE_CACHE_TTL", 5*time.Minute),
		Trust:        TrustFromEnv(),
	}
}

// TrustFromEnv reads the trust-score weighting, falling back to the defaults
// validated against pilot deployments.
func TrustFromEnv() TrustConfig {
	return TrustConfig{
		CompletionWeight:    envFloat("TRUST_WEIGHT_COMPLETION", 0.40),
		MotionWeight:        envFloat("TRUST_WEIGHT_MOTION", 0.20),
		BatteryWeight:       envFloat("TRUST_WEIGHT_BATTERY", 0.15),
		TimingWeight:        envFloat("TRUST_WEIGHT_TIMING", 0.25),
		CompletionThreshold: envFloat("TRUST_COMPLETION_THRESHOLD", 0.80),
		SuspiciousFloor:     envFloat("TRUST_SUSPICIOUS_FLOOR", 40),
	}
}

func envInt(key string, def int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return def
}
