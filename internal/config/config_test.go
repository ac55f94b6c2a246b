package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %s, want :8080", cfg.Server.Addr)
	}
	if cfg.Engine.DebounceWindow != 750*time.Millisecond {
		t.Errorf("debounce = %v, want 750ms", cfg.Engine.DebounceWindow)
	}
	if cfg.Engine.DefaultRate != 10.0 {
		t.Errorf("default rate = %v, want 10.0", cfg.Engine.DefaultRate)
	}
	if cfg.Auth.Enabled {
		t.Error("auth enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ADRECON_HTTP_ADDR", ":9999")
	t.Setenv("ADRECON_DEBOUNCE_WINDOW", "200ms")
	t.Setenv("ADRECON_DEFAULT_RATE", "9.5")
	t.Setenv("ADRECON_AUTH_SKIP_PATHS", "/health, /metrics ,/ready")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %s", cfg.Server.Addr)
	}
	if cfg.Engine.DebounceWindow != 200*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Engine.DebounceWindow)
	}
	if cfg.Engine.DefaultRate != 9.5 {
		t.Errorf("default rate = %v", cfg.Engine.DefaultRate)
	}
	if len(cfg.Auth.SkipPaths) != 3 || cfg.Auth.SkipPaths[2] != "/ready" {
		t.Errorf("skip paths = %v", cfg.Auth.SkipPaths)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("ADRECON_AUTH_ENABLED", "true")
	if _, err := Load(); err == nil {
		t.Error("expected error: auth enabled without master key")
	}

	t.Setenv("ADRECON_API_KEY_MASTER", "secret")
	if _, err := Load(); err != nil {
		t.Errorf("unexpected error with master key set: %v", err)
	}

	t.Setenv("ADRECON_DEBOUNCE_WINDOW", "-1s")
	if _, err := Load(); err == nil {
		t.Error("expected error for negative debounce window")
	}
}
