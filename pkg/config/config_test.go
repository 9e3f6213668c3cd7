package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CATALOG_DB_DSN", "postgres://localhost/catalog")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Builder.ChunkSize != 10000 {
		t.Fatalf("expected default chunk size 10000, got %d", cfg.Builder.ChunkSize)
	}
	if cfg.Builder.StalenessThreshold != 15*time.Minute {
		t.Fatalf("expected 15m staleness threshold, got %s", cfg.Builder.StalenessThreshold)
	}
	if cfg.Builder.ShowZeroPrices {
		t.Fatal("expected zero prices hidden by default")
	}
	if cfg.Updater.ContentionBackoff != 2*time.Second {
		t.Fatalf("expected 2s contention backoff, got %s", cfg.Updater.ContentionBackoff)
	}
	if !cfg.App.IsDev() {
		t.Fatal("expected dev env by default")
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("CATALOG_DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DSN missing")
	}
}

func TestDefaultCustomerGroupsParsed(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CATALOG_RESOLVER_DEFAULT_GROUPS", "1,4,9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	groups := cfg.Resolver.DefaultCustomerGroups
	if len(groups) != 3 || groups[0] != 1 || groups[2] != 9 {
		t.Fatalf("expected [1 4 9], got %v", groups)
	}
}
