package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("ADMIN_RATE_LIMIT", "")
	t.Setenv("ADMIN_RATE_WINDOW", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.AdminRateLimit != DefaultAdminRateLimit {
		t.Errorf("AdminRateLimit = %d, want %d", cfg.AdminRateLimit, DefaultAdminRateLimit)
	}
	if cfg.AdminRateWindow != DefaultAdminRateWindow {
		t.Errorf("AdminRateWindow = %v, want %v", cfg.AdminRateWindow, DefaultAdminRateWindow)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ADMIN_RATE_LIMIT", "3")
	t.Setenv("ADMIN_RATE_WINDOW", "30s")
	t.Setenv("RISK_LIST_MIN_SCORE", "75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.AdminRateLimit != 3 {
		t.Errorf("AdminRateLimit = %d", cfg.AdminRateLimit)
	}
	if cfg.AdminRateWindow != 30*time.Second {
		t.Errorf("AdminRateWindow = %v", cfg.AdminRateWindow)
	}
	if cfg.ListMinScore != 75 {
		t.Errorf("ListMinScore = %d", cfg.ListMinScore)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Env: "production", AdminRateLimit: 10, AdminRateWindow: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing ADMIN_SECRET in production")
	}
	cfg.AdminSecret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	cfg.AdminRateLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero rate limit")
	}
}
