package app

import (
	"os"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	SentryDSN   string
	LogLevel    string

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// AI providers
	OpenAIAPIKey      string
	EmbeddingModel    string
	SentimentEndpoint string
	SentimentAPIKey   string

	// Coaching suggestions: "catalog" (default) or "llm"
	RecommenderMode  string
	RecommenderModel string

	// Redis cache (optional)
	RedisAddr     string
	RedisPassword string
	AnalyticsTTL  time.Duration

	// RabbitMQ (optional)
	AMQPURL string

	// Sentiment stream
	StreamInterval time.Duration

	// Background worker
	SweepInterval time.Duration
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		SentryDSN:   getenv("SENTRY_DSN", ""),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		// JWT Authentication
		JWTSecret: os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry: getenvDuration("JWT_EXPIRY", 24*time.Hour),

		// AI providers
		OpenAIAPIKey:      getenv("OPENAI_API_KEY", ""),
		EmbeddingModel:    getenv("EMBEDDING_MODEL", ""),
		SentimentEndpoint: getenv("SENTIMENT_ENDPOINT", ""),
		SentimentAPIKey:   getenv("SENTIMENT_API_KEY", ""),

		// Coaching suggestions
		RecommenderMode:  getenv("RECOMMENDER_MODE", "catalog"),
		RecommenderModel: getenv("RECOMMENDER_MODEL", ""),

		// Redis cache
		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		AnalyticsTTL:  getenvDuration("ANALYTICS_CACHE_TTL", 5*time.Minute),

		// RabbitMQ
		AMQPURL: getenv("AMQP_URL", ""),

		// Sentiment stream emits one sample per interval
		StreamInterval: getenvDurationClamped("STREAM_INTERVAL", 2*time.Second, 100*time.Millisecond, time.Minute),

		// Background worker
		SweepInterval: getenvDuration("SWEEP_INTERVAL", time.Minute),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getenvDurationClamped(k string, def, min, max time.Duration) time.Duration {
	d := getenvDuration(k, def)
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
