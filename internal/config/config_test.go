package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("UG_PG_DSN", "postgres://localhost/utilitygrid")
	t.Setenv("UG_ACCESS_SECRET", "access-secret")
	t.Setenv("UG_REFRESH_SECRET", "refresh-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.RefreshTTL)
	}
	if cfg.AutoCreateFirstSite {
		t.Fatal("auto-create first site should default off")
	}
}

func TestLoadMissingSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("UG_ACCESS_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when access secret missing")
	}

	setRequired(t)
	t.Setenv("UG_REFRESH_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when refresh secret missing")
	}
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("UG_REFRESH_SECRET", "access-secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when both token classes share a secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("UG_ACCESS_TTL_MINUTES", "15")
	t.Setenv("UG_AUTO_CREATE_FIRST_SITE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if !cfg.AutoCreateFirstSite {
		t.Fatal("expected auto-create first site enabled")
	}
}
