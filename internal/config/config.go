package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Realtime Settings
	LeaderboardPeriodSeconds int
	LeaderboardTopN          int
	QueueExpiryMinutes       int
	QueueSweepSeconds        int

	// Security
	JWTSecret string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/playhive?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Realtime Settings
		LeaderboardPeriodSeconds: getEnvInt("LEADERBOARD_PERIOD_SECONDS", 5),
		LeaderboardTopN:          getEnvInt("LEADERBOARD_TOP_N", 50),
		QueueExpiryMinutes:       getEnvInt("QUEUE_EXPIRY_MINUTES", 10),
		QueueSweepSeconds:        getEnvInt("QUEUE_SWEEP_SECONDS", 30),

		// Security
		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
