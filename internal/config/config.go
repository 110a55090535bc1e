package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string // Postgres-backed store; empty disables it
	RedisURL    string // Redis-backed store; empty disables it
	BaseURL     string // Public base URL used when building short links
	AuthURL     string // Remote auth service; empty uses the local issuer
	GeoURL      string // Geo lookup service; empty records Unknown

	JWTSecret       string // Signing secret for the local issuer
	TokenTTLSeconds int    // Access token lifetime issued locally

	DefaultTTLMinutes  int // Entry TTL when a shorten request names none
	RefreshLeadMinutes int // How long before expiry the session renews
	GeoTimeoutMS       int // Bound on each geo lookup

	RateLimitRPS          float64 // Rate limit for general API endpoints (requests per second)
	RateLimitBurst        int     // Burst size for rate limiting
	RateLimitAuthRPS      float64 // Rate limit for auth endpoints (stricter)
	RateLimitAuthBurst    int     // Burst size for auth endpoints
	RateLimitShortenRPS   float64 // Rate limit for URL shortening (stricter)
	RateLimitShortenBurst int     // Burst size for URL shortening
}

func Load() *Config {
	// Try to load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or defaults")
	}

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		AuthURL:     getEnv("AUTH_URL", ""),
		GeoURL:      getEnv("GEO_URL", ""),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenTTLSeconds: getEnvInt("TOKEN_TTL_SECONDS", 3600),

		DefaultTTLMinutes:  getEnvInt("DEFAULT_TTL_MINUTES", 30),
		RefreshLeadMinutes: getEnvInt("REFRESH_LEAD_MINUTES", 5),
		GeoTimeoutMS:       getEnvInt("GEO_TIMEOUT_MS", 1500),

		RateLimitRPS:          getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:        getEnvInt("RATE_LIMIT_BURST", 20),
		RateLimitAuthRPS:      getEnvFloat("RATE_LIMIT_AUTH_RPS", 5),
		RateLimitAuthBurst:    getEnvInt("RATE_LIMIT_AUTH_BURST", 10),
		RateLimitShortenRPS:   getEnvFloat("RATE_LIMIT_SHORTEN_RPS", 2),
		RateLimitShortenBurst: getEnvInt("RATE_LIMIT_SHORTEN_BURST", 5),
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
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
