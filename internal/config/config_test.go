package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("Address = %s, want :8080", cfg.Address())
	}
	if cfg.AccessTokenTTL != 168*time.Hour {
		t.Fatalf("AccessTokenTTL = %s, want 168h", cfg.AccessTokenTTL)
	}
	if cfg.SnapshotTTL != 30*time.Second {
		t.Fatalf("SnapshotTTL = %s, want 30s", cfg.SnapshotTTL)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("StoreTimeout = %s, want 5s", cfg.StoreTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL_HOURS", "24")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SNAPSHOT_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.AccessTokenTTL != 24*time.Hour {
		t.Fatalf("AccessTokenTTL = %s, want 24h", cfg.AccessTokenTTL)
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("RedisDB = %d, want 3", cfg.RedisDB)
	}
	if cfg.SnapshotTTL != 30*time.Second {
		t.Fatalf("SnapshotTTL = %s, want fallback 30s", cfg.SnapshotTTL)
	}
}
