package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	APIBaseURL       string
	CDNBaseURL       string
	UserID           string
	EffectID         string
	Mode             string
	PollInterval     time.Duration
	MaxPolls         int
	DownloadDir      string
	HTTPTimeout      time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults matching the production studio endpoints.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		APIBaseURL:       getEnv("STUDIO_API_BASE_URL", "https://api.chromastudio.ai"),
		CDNBaseURL:       getEnv("STUDIO_CDN_BASE_URL", "https://contents.maxstudio.ai"),
		UserID:           getEnv("STUDIO_USER_ID", "DObRu1vyStbUynoQmTcHBlhs55z2"),
		EffectID:         getEnv("STUDIO_EFFECT_ID", "stencilMaker"),
		Mode:             getEnv("STUDIO_MODE", "image-effects"),
		PollInterval:     time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)),
		MaxPolls:         getEnvInt("MAX_POLLS", 60),
		DownloadDir:      getEnv("DOWNLOAD_DIR", "downloads"),
		HTTPTimeout:      time.Second * time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 45)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.Mode {
	case "image-effects", "video-effects":
	default:
		return nil, fmt.Errorf("unsupported STUDIO_MODE %q", cfg.Mode)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if cfg.MaxPolls <= 0 {
		return nil, fmt.Errorf("MAX_POLLS must be positive")
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
