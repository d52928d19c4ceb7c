package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (user-facing payment notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Midpay gateway configuration
	Midpay MidpayConfig

	// Order lifecycle
	OrderTTL           time.Duration
	ExpirySweepEvery   time.Duration
	RecoverySweepEvery time.Duration

	// Payment status cache
	PaymentStatusCacheTTL time.Duration

	// Rate limiting
	OrderCreateLimit  int
	WebhookBurstLimit int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

type MidpayConfig struct {
	BaseURL    string
	MerchantID string
	ClientID   string
	ClientKey  string
	ServerKey  string

	// Provider push stream (secondary channel beside the webhook).
	PNSubKey    string
	PNUUID      string
	PNChannel   string
	PNCipherKey string
}

func LoadConfig() *Config {
	// Local development convenience; the file is optional.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using process environment")
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Midpay
		Midpay: MidpayConfig{
			BaseURL:     getEnv("MIDPAY_BASE_URL", "https://api.sandbox.midpay.test"),
			MerchantID:  getEnv("MIDPAY_MERCHANT_ID", ""),
			ClientID:    getEnv("MIDPAY_CLIENT_ID", ""),
			ClientKey:   getEnv("MIDPAY_CLIENT_KEY", ""),
			ServerKey:   getEnv("MIDPAY_SERVER_KEY", ""),
			PNSubKey:    getEnv("MIDPAY_PN_SUBKEY", ""),
			PNUUID:      getEnv("MIDPAY_PN_UUID", ""),
			PNChannel:   getEnv("MIDPAY_PN_CHANNEL", ""),
			PNCipherKey: getEnv("MIDPAY_PN_CIPHERKEY", ""),
		},

		// Order lifecycle
		OrderTTL:           getEnvAsDuration("ORDER_TTL", "15m"),
		ExpirySweepEvery:   getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", "1m"),
		RecoverySweepEvery: getEnvAsDuration("RECOVERY_SWEEP_INTERVAL", "5m"),

		// Payment status cache
		PaymentStatusCacheTTL: getEnvAsDuration("PAYMENT_STATUS_CACHE_TTL", "10s"),

		// Rate limiting
		OrderCreateLimit:  getEnvAsInt("ORDER_CREATE_LIMIT", 30),
		WebhookBurstLimit: getEnvAsInt("WEBHOOK_BURST_LIMIT", 120),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
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
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
