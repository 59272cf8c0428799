package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	KafkaBrokers string
	RedisAddr    string
	WebhookURL   string
	ServiceName  string
}

// Load reads configuration from the environment, with a .env file as an
// optional local-development convenience.
func Load(serviceName string) Config {
	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "printshop"),
			getEnv("DB_PASSWORD", "printshop"),
			getEnv("DB_NAME", "printshop"),
		)
	}

	return Config{
		HTTPAddr:     ":" + getEnv("HTTP_PORT", "8080"),
		PostgresDSN:  dsn,
		KafkaBrokers: getEnv("KAFKA_BROKERS", "localhost:9092"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		WebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", "http://localhost:9090/notify"),
		ServiceName:  serviceName,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
