package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Fatalf("unexpected base URL: %s", cfg.APIBaseURL)
	}
	if cfg.CacheFreshness != 60*time.Second {
		t.Fatalf("unexpected freshness: %v", cfg.CacheFreshness)
	}
	if cfg.CacheIdleEvict != 600*time.Second {
		t.Fatalf("unexpected idle eviction: %v", cfg.CacheIdleEvict)
	}
	if cfg.RetryBudget != 2 {
		t.Fatalf("unexpected retry budget: %d", cfg.RetryBudget)
	}
	if cfg.SearchDebounce != 300*time.Millisecond {
		t.Fatalf("unexpected debounce: %v", cfg.SearchDebounce)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DASHBOARD_API_URL", "https://api.example.com")
	t.Setenv("DASHBOARD_CACHE_FRESHNESS", "5s")
	t.Setenv("DASHBOARD_CACHE_IDLE_EVICT", "50s")
	t.Setenv("DASHBOARD_POLL_INTERVAL", "10s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Fatalf("override not applied: %s", cfg.APIBaseURL)
	}
	if cfg.CacheFreshness != 5*time.Second || cfg.PollInterval != 10*time.Second {
		t.Fatalf("duration overrides not applied: %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	bad := base
	bad.CacheIdleEvict = base.CacheFreshness / 2
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected idle eviction below freshness to fail validation")
	}

	bad = base
	bad.BackoffCap = base.BackoffBase / 2
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected backoff cap below base to fail validation")
	}

	bad = base
	bad.SearchMinLen = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected zero min length to fail validation")
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	content := "symbols:\n  - AAPL\n  - MSFT\nactive_tab: news\npoll_interval: 30s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if len(p.Symbols) != 2 || p.Symbols[0] != "AAPL" {
		t.Fatalf("unexpected symbols: %v", p.Symbols)
	}
	if p.ActiveTab != "news" {
		t.Fatalf("unexpected tab: %s", p.ActiveTab)
	}
	if p.PollInterval.Std() != 30*time.Second {
		t.Fatalf("unexpected interval: %v", p.PollInterval)
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	p, err := LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing profile should not error: %v", err)
	}
	if len(p.Symbols) != 0 {
		t.Fatalf("expected zero profile, got %+v", p)
	}
}
