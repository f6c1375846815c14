package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	postgres "github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/storage/postgres"
)

// Config aggregates runtime configuration grouped by concern.
type Config struct {
	ServiceName string
	HTTP        HTTPConfig
	ShopAPI     ShopAPIConfig
	Checkout    CheckoutConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	Database    postgres.DatabaseConfig
	Email       EmailConfig
}

type HTTPConfig struct {
	Addr string
}

type ShopAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CheckoutConfig struct {
	MethodCodeSegments int
	CaptureTimeout     time.Duration
	SessionTTL         time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	CheckoutTopic string
	EmailGroup    string
	Enabled       bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	DemoRecipient string
}

// Load reads configuration from environment variables, applying sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "storefront-checkout"),
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_LISTEN_ADDR", ":3000"),
		},
		ShopAPI: ShopAPIConfig{
			BaseURL: getEnv("SHOP_API_BASE_URL", "http://localhost:8000"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
			CheckoutTopic: getEnv("KAFKA_CHECKOUT_TOPIC", "checkout.v1"),
			EmailGroup:    getEnv("KAFKA_EMAIL_GROUP_ID", "email-workers"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Email: EmailConfig{
			DemoRecipient: getEnv("DEMO_TO_EMAIL", "test@example.local"),
		},
	}

	var err error
	if cfg.Kafka.Enabled, err = getBool("KAFKA_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.ShopAPI.Timeout, err = getDuration("SHOP_API_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.CaptureTimeout, err = getDuration("CHECKOUT_CAPTURE_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.SessionTTL, err = getDuration("CHECKOUT_SESSION_TTL", 2*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.MethodCodeSegments, err = getInt("CHECKOUT_METHOD_CODE_SEGMENTS", 2); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.MethodCodeSegments < 1 {
		return Config{}, fmt.Errorf("CHECKOUT_METHOD_CODE_SEGMENTS must be at least 1, got %d", cfg.Checkout.MethodCodeSegments)
	}
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}

	port, err := getInt("CHECKOUT_DB_PORT", 5432)
	if err != nil {
		return Config{}, err
	}

	cfg.Database = postgres.DatabaseConfig{
		Host:     getEnv("CHECKOUT_DB_HOST", "localhost"),
		Port:     port,
		Database: getEnv("CHECKOUT_DB_NAME", "storefrontcheckout"),
		User:     getEnv("CHECKOUT_DB_USER", "checkoutadmin"),
		Password: getEnv("CHECKOUT_DB_PASSWORD", ""),
		SSLMode:  getEnv("CHECKOUT_DB_SSLMODE", "disable"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
