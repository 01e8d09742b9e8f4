package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIBaseURL != "https://api.chromastudio.ai" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.CDNBaseURL != "https://contents.maxstudio.ai" {
		t.Errorf("CDNBaseURL = %q", cfg.CDNBaseURL)
	}
	if cfg.EffectID != "stencilMaker" {
		t.Errorf("EffectID = %q", cfg.EffectID)
	}
	if cfg.Mode != "image-effects" {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.MaxPolls != 60 {
		t.Errorf("MaxPolls = %d", cfg.MaxPolls)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STUDIO_API_BASE_URL", "http://localhost:9090")
	t.Setenv("POLL_INTERVAL_MS", "50")
	t.Setenv("MAX_POLLS", "3")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:9090" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.MaxPolls != 3 {
		t.Errorf("MaxPolls = %d", cfg.MaxPolls)
	}
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	t.Setenv("STUDIO_MODE", "audio-effects")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}
