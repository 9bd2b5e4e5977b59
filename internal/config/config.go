package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is loaded from the environment at startup. DATABASE_URL empty means
// the seeded in-memory store; REDIS_ADDR empty means no snapshot cache.
type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret     string
	AccessTokenTTL time.Duration

	SnapshotTTL  time.Duration
	StoreTimeout time.Duration
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:5173"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AuthSecret:     os.Getenv("AUTH_SECRET"),
		AccessTokenTTL: time.Duration(getEnvInt("ACCESS_TOKEN_TTL_HOURS", 168)) * time.Hour,

		SnapshotTTL:  time.Duration(getEnvInt("SNAPSHOT_TTL_SECONDS", 30)) * time.Second,
		StoreTimeout: time.Duration(getEnvInt("STORE_TIMEOUT_SECONDS", 5)) * time.Second,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
