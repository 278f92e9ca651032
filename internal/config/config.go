package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	OpenAIKey         string
	OpenAIEndpoint    string
	OpenAIModel       string
	Database          string
	UploadDir         string
	GenerationTimeout time.Duration
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint:    getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		Database:          getEnv("DATABASE_PATH", "./data/quizdeck.db"),
		UploadDir:         getEnv("UPLOAD_DIR", "./data/uploads"),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 2*time.Minute),
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to ensure upload dir %s: %v", cfg.UploadDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		log.Fatalf("failed to ensure database dir %s: %v", cfg.Database, err)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Fatalf("invalid %s %q: %v", key, val, err)
	}
	return d
}
