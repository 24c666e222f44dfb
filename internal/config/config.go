package config

import (
	"log"
	"os"
	"strconv"

	"github.com/labstack/gommon/random"
)

// Config carries all environment-driven settings.
type Config struct {
	DatabaseURL string
	Port        string

	JWTSecret string
	JWKSURL   string

	// BaseDomain is the apex domain requests arrive on; subdomain labels
	// below it act as tenant routing keys.
	BaseDomain string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	ArchiveBucket  string

	TrialDays int
}

// Load reads configuration from the environment. DATABASE_URL is the only
// hard requirement; everything else has a development default.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWKSURL:        os.Getenv("JWKS_URL"),
		BaseDomain:     os.Getenv("BASE_DOMAIN"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		ArchiveBucket:  getEnv("ARCHIVE_BUCKET", "clinicore-audit"),
		TrialDays:      getEnvInt("TRIAL_DAYS", 15),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		cfg.JWTSecret = random.String(32) // Generate random secret for development
		log.Printf("WARNING: Using generated JWT secret: %s", cfg.JWTSecret)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
