package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	AdminToken         string
	StoragePath        string
	VendorAPIKey       string
	VendorBaseURL      string
	VendorImageModel   string
	VendorVideoModel   string
	VendorAudioModel   string
	VendorScriptModel  string
	VendorPollInterval time.Duration
	VendorPollTimeout  time.Duration
	WorkerConcurrency  int
	MaintenanceMode    bool
	MaintenanceMessage string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
		StoragePath:        getEnv("STORAGE_PATH", "./data/artifacts"),
		VendorAPIKey:       os.Getenv("VENDOR_API_KEY"),
		VendorBaseURL:      getEnv("VENDOR_BASE_URL", "https://api.mediavendor.example/v1"),
		VendorImageModel:   getEnv("VENDOR_IMAGE_MODEL", "forge-image-1"),
		VendorVideoModel:   getEnv("VENDOR_VIDEO_MODEL", "forge-video-1"),
		VendorAudioModel:   getEnv("VENDOR_AUDIO_MODEL", "forge-audio-1"),
		VendorScriptModel:  getEnv("VENDOR_SCRIPT_MODEL", "forge-script-1"),
		VendorPollInterval: time.Second * time.Duration(getEnvInt("VENDOR_POLL_INTERVAL_SECONDS", 2)),
		VendorPollTimeout:  time.Minute * time.Duration(getEnvInt("VENDOR_POLL_TIMEOUT_MINUTES", 10)),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		MaintenanceMode:    getEnvBool("MAINTENANCE_MODE", false),
		MaintenanceMessage: getEnv("MAINTENANCE_MESSAGE", "scheduled maintenance in progress"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
